package relay

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrUsernameTaken is returned by Bind when the username is held by a
	// different live connection.
	ErrUsernameTaken = errors.New("username already in use")

	// ErrAlreadyBound is returned by Bind when the connection already
	// holds a username.
	ErrAlreadyBound = errors.New("connection already has a username")
)

// Directory is the authoritative mapping of active sessions: which
// connection holds which username, and each username's public key. The
// three indexes are always mutated together under one lock, so no caller
// can observe a half-applied bind or unbind.
type Directory struct {
	mu     sync.RWMutex
	byConn map[string]string // connection ID -> username
	byName map[string]string // username -> connection ID
	keys   map[string]string // username -> public key
}

func NewDirectory() *Directory {
	return &Directory{
		byConn: make(map[string]string),
		byName: make(map[string]string),
		keys:   make(map[string]string),
	}
}

// Bind registers username and publicKey for the connection. The connection
// must be anonymous and the username unclaimed; a bound connection is
// rejected before the collision check, so a connection re-requesting its
// own username still gets ErrAlreadyBound.
func (d *Directory) Bind(connID, username, publicKey string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byConn[connID]; ok {
		return ErrAlreadyBound
	}
	if _, ok := d.byName[username]; ok {
		return ErrUsernameTaken
	}
	d.byConn[connID] = username
	d.byName[username] = connID
	d.keys[username] = publicKey
	return nil
}

// Unbind removes the username, connection, and public-key entries for the
// connection in one step. Unbinding an anonymous connection is a no-op.
func (d *Directory) Unbind(connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	username, ok := d.byConn[connID]
	if !ok {
		return
	}
	delete(d.byConn, connID)
	delete(d.byName, username)
	delete(d.keys, username)
}

// PublicKey returns the public key submitted for username.
func (d *Directory) PublicKey(username string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	key, ok := d.keys[username]
	return key, ok
}

// Username returns the username bound to the connection.
func (d *Directory) Username(connID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	username, ok := d.byConn[connID]
	return username, ok
}

// Connection returns the connection ID currently bound to username.
func (d *Directory) Connection(username string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	connID, ok := d.byName[username]
	return connID, ok
}

// Usernames returns a sorted snapshot of all registered usernames. Sorting
// gives clients a stable list across broadcasts.
func (d *Directory) Usernames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	users := make([]string, 0, len(d.byName))
	for username := range d.byName {
		users = append(users, username)
	}
	sort.Strings(users)
	return users
}

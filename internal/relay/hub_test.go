package relay

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleCloseCleansDirectory(t *testing.T) {
	h := NewHub(Options{})
	openConn(t, h, "conn-a")
	b := openConn(t, h, "conn-b")
	setUsername(t, h, "conn-a", "alice", "PK_A")
	setUsername(t, h, "conn-b", "bob", "PK_B")
	b.reset()

	h.HandleClose("conn-a")

	// The remaining client sees a user list without the departed user:
	// the directory is cleaned before the broadcast snapshot.
	msgs := b.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user_list", msgs[0]["type"])
	assert.Equal(t, []any{"bob"}, msgs[0]["users"])

	// The public key is gone in the same observable step.
	b.reset()
	h.HandleMessage("conn-b", []byte(`{"type":"get_public_key","username":"alice"}`))
	msgs = b.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, "public_key", msgs[0]["type"])
	assert.Equal(t, "", msgs[0]["publicKey"])

	// The username is free for the next connection.
	c := openConn(t, h, "conn-c")
	setUsername(t, h, "conn-c", "alice", "PK_A2")
	cMsgs := c.messages(t)
	require.NotEmpty(t, cMsgs)
	assert.Equal(t, "username_set", cMsgs[0]["type"])
}

func TestHandleCloseAnonymous(t *testing.T) {
	h := NewHub(Options{})
	openConn(t, h, "conn-a")
	b := openConn(t, h, "conn-b")
	setUsername(t, h, "conn-b", "bob", "PK_B")
	b.reset()

	// Closing a connection that never registered a username only drops
	// the connection; the directory is untouched.
	h.HandleClose("conn-a")
	msgs := b.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, []any{"bob"}, msgs[0]["users"])

	// Closing it again is a no-op on the directory and does not error.
	h.HandleClose("conn-a")
}

func TestHandleOpenServerFull(t *testing.T) {
	h := NewHub(Options{MaxClients: 1})
	openConn(t, h, "conn-a")

	err := h.HandleOpen("conn-b", &fakeSender{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrServerFull))
}

func TestBroadcastSurvivesFailedConnections(t *testing.T) {
	h := NewHub(Options{})
	broken := &fakeSender{err: errors.New("connection reset")}
	require.NoError(t, h.HandleOpen("conn-broken", broken))
	b := openConn(t, h, "conn-b")

	// A send failure on one connection must not block delivery to the
	// others, and must not roll back the directory mutation.
	setUsername(t, h, "conn-b", "bob", "PK_B")

	msgs := b.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, "username_set", msgs[0]["type"])
	assert.Equal(t, []any{"bob"}, msgs[1]["users"])
}

func TestConcurrentHandlers(t *testing.T) {
	h := NewHub(Options{})
	const workers = 32

	var wg sync.WaitGroup
	for n := 0; n < workers; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			connID := fmt.Sprintf("conn-%d", n)
			if err := h.HandleOpen(connID, &fakeSender{}); err != nil {
				return
			}
			// Even workers fight over one username; the rest register
			// their own. Everyone relays toward the contested name.
			name := fmt.Sprintf("user-%d", n)
			if n%2 == 0 {
				name = "contested"
			}
			h.HandleMessage(connID, []byte(fmt.Sprintf(
				`{"type":"set_username","username":%q,"publicKey":"PK"}`, name)))
			h.HandleMessage(connID, []byte(
				`{"type":"message","to":"contested","message":"x"}`))
			h.HandleMessage(connID, []byte(
				`{"type":"get_public_key","username":"contested"}`))
			if n%4 == 0 {
				h.HandleClose(connID)
			}
		}(n)
	}
	wg.Wait()

	// Every listed username must resolve to a live registered connection
	// that is bound back to it, with a public key on record.
	live := make(map[string]bool)
	for _, connID := range h.registry.All() {
		live[connID] = true
	}
	for _, username := range h.directory.Usernames() {
		connID, ok := h.directory.Connection(username)
		require.True(t, ok, "username %q has no connection", username)
		assert.True(t, live[connID], "username %q bound to dead connection %q", username, connID)
		bound, ok := h.directory.Username(connID)
		require.True(t, ok)
		assert.Equal(t, username, bound)
		_, ok = h.directory.PublicKey(username)
		assert.True(t, ok, "username %q has no public key", username)
	}

	// The contested name was won at most once: no duplicates anywhere.
	seen := make(map[string]bool)
	for _, username := range h.directory.Usernames() {
		assert.False(t, seen[username], "username %q listed twice", username)
		seen[username] = true
	}
}

func TestUserListMatchesDirectory(t *testing.T) {
	h := NewHub(Options{})
	a := openConn(t, h, "conn-a")
	openConn(t, h, "conn-b")
	setUsername(t, h, "conn-a", "alice", "PK_A")
	setUsername(t, h, "conn-b", "bob", "PK_B")

	// A failed registration must not grow the broadcast list.
	openConn(t, h, "conn-c")
	setUsername(t, h, "conn-c", "alice", "PK_X")

	a.reset()
	h.HandleMessage("conn-a", []byte(`{"type":"noop"}`))
	msgs := a.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, []any{"alice", "bob"}, msgs[1]["users"])
}

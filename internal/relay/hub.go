// Package relay implements the core of the encrypted-chat relay: the
// connection registry, the session directory binding connections to
// usernames and public keys, the protocol router, and the user-list
// broadcast that follows every state-affecting event. Payloads are opaque
// to the relay; it never decrypts anything.
package relay

import (
	"encoding/json"

	"go.uber.org/zap"
)

// Hub wires the registry, directory, and router together and reacts to
// connection lifecycle events from the transport.
type Hub struct {
	registry  *Registry
	directory *Directory
	router    *Router
	log       *zap.Logger
}

// Options configures a Hub. Zero values select the defaults.
type Options struct {
	// MaxEncryptedLength caps the message payload size in bytes.
	MaxEncryptedLength int
	// MaxClients caps concurrent connections; 0 means unlimited.
	MaxClients int
	Logger     *zap.Logger
}

func NewHub(opts Options) *Hub {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	maxLength := opts.MaxEncryptedLength
	if maxLength <= 0 {
		maxLength = DefaultMaxEncryptedLength
	}
	registry := NewRegistry(opts.MaxClients)
	directory := NewDirectory()
	return &Hub{
		registry:  registry,
		directory: directory,
		router: &Router{
			registry:           registry,
			directory:          directory,
			maxEncryptedLength: maxLength,
			log:                log,
		},
		log: log,
	}
}

// HandleOpen registers a new connection. The connection stays anonymous
// until it sends set_username.
func (h *Hub) HandleOpen(connID string, sender Sender) error {
	if err := h.registry.Register(connID, sender); err != nil {
		h.log.Warn("register connection", zap.String("conn", connID), zap.Error(err))
		return err
	}
	h.log.Info("new connection", zap.String("conn", connID))
	return nil
}

// HandleClose tears down all state for a closed connection. The directory
// is cleaned before the broadcast snapshot is taken so the departed user
// is absent from the pushed list.
func (h *Hub) HandleClose(connID string) {
	h.directory.Unbind(connID)
	h.registry.Unregister(connID)
	h.log.Info("connection closed", zap.String("conn", connID))
	h.BroadcastUserList()
}

// HandleMessage routes one inbound frame and, for every processed message,
// broadcasts the current user list to all open connections.
func (h *Hub) HandleMessage(connID string, raw []byte) {
	if h.router.Dispatch(connID, raw) {
		h.BroadcastUserList()
	}
}

// BroadcastUserList pushes the full current username list to every open
// connection. Failures to individual stale connections are swallowed; one
// unreachable connection must not block delivery to the others.
func (h *Hub) BroadcastUserList() {
	users := h.directory.Usernames()
	payload, err := json.Marshal(userListMessage{Type: "user_list", Users: users})
	if err != nil {
		h.log.Error("marshal user list", zap.Error(err))
		return
	}
	for _, connID := range h.registry.All() {
		if err := h.registry.Push(connID, payload); err != nil {
			h.log.Debug("user list push failed", zap.String("conn", connID), zap.Error(err))
		}
	}
}

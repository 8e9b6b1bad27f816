package relay

import (
	"encoding/json"
	"errors"

	"go.uber.org/zap"
)

// Router interprets inbound protocol messages, mutates the directory
// through its API, and pushes responses. It holds no state of its own.
type Router struct {
	registry           *Registry
	directory          *Directory
	maxEncryptedLength int
	log                *zap.Logger
}

// Dispatch handles one inbound frame from connID and pushes any direct
// responses. The returned bool reports whether the frame was processed,
// i.e. whether the caller owes the unconditional user-list broadcast.
// Unparseable frames and frames without a string type field are rejected
// without a broadcast.
func (rt *Router) Dispatch(connID string, raw []byte) bool {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil || data == nil {
		rt.pushError(connID, "Error: Invalid message format")
		return false
	}
	msgType, ok := stringField(data, "type")
	if !ok {
		rt.pushError(connID, "Error: Invalid message format")
		return false
	}

	rt.log.Debug("inbound message",
		zap.String("conn", connID),
		zap.String("type", msgType),
		zap.Any("data", data))

	switch msgType {
	case "set_username":
		rt.handleSetUsername(connID, data)
	case "get_public_key":
		rt.handleGetPublicKey(connID, data)
	case "message":
		rt.handleMessage(connID, data)
	case "clear_chat":
		rt.handleClearChat(connID, data)
	default:
		rt.pushError(connID, "Error: Unknown message type")
	}
	return true
}

func (rt *Router) handleSetUsername(connID string, data map[string]any) {
	username, okUser := stringField(data, "username")
	publicKey, okKey := stringField(data, "publicKey")
	if !okUser || !okKey {
		rt.pushError(connID, "Error: Invalid data for setting username")
		return
	}
	username = sanitizeUsername(username)
	if len(username) > maxUsernameLength {
		rt.pushError(connID, "Username must not exceed 64 characters")
		return
	}
	err := rt.directory.Bind(connID, username, publicKey)
	switch {
	case errors.Is(err, ErrAlreadyBound):
		rt.pushError(connID, "Username already set for this connection")
	case errors.Is(err, ErrUsernameTaken):
		rt.pushError(connID, "Username already in use")
	default:
		rt.log.Info("username registered",
			zap.String("conn", connID),
			zap.String("username", username))
		rt.push(connID, usernameSetResponse{Type: "username_set"})
	}
}

func (rt *Router) handleGetPublicKey(connID string, data map[string]any) {
	username, ok := stringField(data, "username")
	if !ok {
		rt.pushError(connID, "Error: Invalid data for getting public key")
		return
	}
	username = sanitizeUsername(username)
	publicKey, _ := rt.directory.PublicKey(username)
	rt.push(connID, publicKeyResponse{
		Type:      "public_key",
		Username:  username,
		PublicKey: publicKey,
	})
}

func (rt *Router) handleMessage(connID string, data map[string]any) {
	to, okTo := stringField(data, "to")
	body, okBody := stringField(data, "message")
	if !okTo || !okBody {
		rt.pushError(connID, "Error: Invalid data for message")
		return
	}
	if len(body) > rt.maxEncryptedLength {
		rt.log.Warn("message exceeds maximum length",
			zap.String("conn", connID),
			zap.Int("limit", rt.maxEncryptedLength),
			zap.Int("length", len(body)))
		rt.pushError(connID, "Message not sent! Encrypted message exceeds the maximum allowed length")
		return
	}
	recipient := sanitizeUsername(to)
	recipientConn, ok := rt.directory.Connection(recipient)
	if !ok {
		rt.pushError(connID, "Recipient not found")
		return
	}
	// The sender may still be anonymous; from is empty in that case.
	from, _ := rt.directory.Username(connID)
	rt.push(recipientConn, relayedMessage{
		Type:    "message",
		From:    from,
		Message: body,
	})
}

func (rt *Router) handleClearChat(connID string, data map[string]any) {
	to, ok := stringField(data, "to")
	if !ok {
		rt.pushError(connID, "Error: Invalid data for clear chat")
		return
	}
	recipient := sanitizeUsername(to)
	recipientConn, ok := rt.directory.Connection(recipient)
	if !ok {
		rt.pushError(connID, "Recipient not found")
		return
	}
	rt.push(recipientConn, clearChatSignal{Type: "clear_chat"})
}

// push serializes v and sends it to one connection. Push failures are
// routine under concurrent closes and never propagate.
func (rt *Router) push(connID string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		rt.log.Error("marshal outbound message", zap.Error(err))
		return
	}
	if err := rt.registry.Push(connID, payload); err != nil {
		rt.log.Debug("push failed", zap.String("conn", connID), zap.Error(err))
	}
}

func (rt *Router) pushError(connID, message string) {
	rt.push(connID, errorResponse{Type: "error", Message: message})
}

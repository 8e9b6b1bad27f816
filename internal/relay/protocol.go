package relay

import (
	"regexp"
	"strings"
)

// maxUsernameLength is the byte limit on usernames after sanitization.
const maxUsernameLength = 64

// DefaultMaxEncryptedLength is the fallback limit on encrypted message
// payloads, in bytes.
const DefaultMaxEncryptedLength = 10000

// Outbound message shapes. The type strings and field names are the wire
// protocol; clients depend on them exactly.

type errorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type usernameSetResponse struct {
	Type string `json:"type"`
}

// publicKeyResponse always carries the publicKey field; it is empty when
// the username is unknown, which is not an error.
type publicKeyResponse struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	PublicKey string `json:"publicKey"`
}

type relayedMessage struct {
	Type    string `json:"type"`
	From    string `json:"from"`
	Message string `json:"message"`
}

type clearChatSignal struct {
	Type string `json:"type"`
}

type userListMessage struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

var tagPattern = regexp.MustCompile(`<[^>]*>?`)

// sanitizeUsername strips HTML tags and control characters from a
// username. This is cosmetic cleanup for display, not a security boundary.
// It runs on the username in set_username and on every username used for
// lookup, so bindings and lookups share one canonical form.
func sanitizeUsername(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

// stringField extracts a string-typed field from a decoded message.
// A missing field and a wrong-typed field are both reported as absent.
func stringField(data map[string]any, key string) (string, bool) {
	value, ok := data[key]
	if !ok {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}

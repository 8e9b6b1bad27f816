// Package config loads the server configuration from a JSON file, with
// defaults matching the reference deployment. Configuration is read once
// at startup and never changes at runtime.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Transport security modes.
const (
	ProtocolWS  = "ws"
	ProtocolWSS = "wss"
)

const (
	DefaultListenAddress      = "0.0.0.0"
	DefaultListenPort         = 2644
	DefaultMaxEncryptedLength = 10000
)

// Config holds the server configuration parameters.
type Config struct {
	ListenAddress      string `json:"listen_address"`
	ListenPort         int    `json:"listen_port"`
	Protocol           string `json:"protocol"`
	SSLCertFile        string `json:"ssl_cert_file"`
	SSLKeyFile         string `json:"ssl_key_file"`
	MaxEncryptedLength int    `json:"max_encrypted_length"`
	// MaxClients caps concurrent connections; 0 means unlimited.
	MaxClients int  `json:"max_clients"`
	Debug      bool `json:"debug"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		ListenAddress:      DefaultListenAddress,
		ListenPort:         DefaultListenPort,
		Protocol:           ProtocolWS,
		MaxEncryptedLength: DefaultMaxEncryptedLength,
	}
}

// Load reads the configuration file at path. An empty path falls back to
// the CRYPTCHAT_CONFIG environment variable; when that is also unset the
// defaults are returned without touching the filesystem. Fields absent
// from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("CRYPTCHAT_CONFIG")
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("listen_address must not be empty")
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("listen_port must be between 1 and 65535")
	}
	switch c.Protocol {
	case ProtocolWS:
	case ProtocolWSS:
		if c.SSLCertFile == "" || c.SSLKeyFile == "" {
			return fmt.Errorf("ssl_cert_file and ssl_key_file are required when protocol is %q", ProtocolWSS)
		}
	default:
		return fmt.Errorf("protocol must be %q or %q, got %q", ProtocolWS, ProtocolWSS, c.Protocol)
	}
	if c.MaxEncryptedLength <= 0 {
		return fmt.Errorf("max_encrypted_length must be a positive integer")
	}
	if c.MaxClients < 0 {
		return fmt.Errorf("max_clients must not be negative")
	}
	return nil
}

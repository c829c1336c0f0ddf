// Package asr streams microphone audio to a speech-recognition server over a
// WebSocket and tracks when a final transcript comes back.
//
// The protocol is the one spoken by Vosk-style servers: binary frames carry
// raw PCM16 audio, text frames coming back are JSON results. A message is a
// final transcript when it carries a "result" field and a non-empty "text".
package asr

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config holds ASR client configuration.
type Config struct {
	// URL is the WebSocket endpoint, e.g. "ws://localhost:2700".
	URL string `yaml:"url" json:"url"`

	// ConnectTimeout bounds the initial dial and handshake.
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`

	// PingInterval is how often a WebSocket ping is sent.
	PingInterval time.Duration `yaml:"ping_interval" json:"ping_interval"`

	// WriteTimeout bounds every audio frame write.
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// SampleRate, when non-zero, is announced to the server right after connecting.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Reconnect lets the client redial on its own after the connection drops.
	Reconnect      bool          `yaml:"reconnect" json:"reconnect"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" json:"reconnect_delay"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:            "ws://localhost:2700",
		ConnectTimeout: 5 * time.Second,
		PingInterval:   45 * time.Second,
		WriteTimeout:   5 * time.Second,
		ReconnectDelay: 3 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("asr: url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("asr: invalid url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("asr: url scheme must be ws or wss, got %q", u.Scheme)
	}
	if c.ConnectTimeout <= 0 {
		return errors.New("asr: connect_timeout must be positive")
	}
	if c.PingInterval <= 0 {
		return errors.New("asr: ping_interval must be positive")
	}
	if c.Reconnect && c.ReconnectDelay <= 0 {
		return errors.New("asr: reconnect_delay must be positive when reconnect is enabled")
	}
	return nil
}

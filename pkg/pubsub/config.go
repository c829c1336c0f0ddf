// Package pubsub is the MQTT side of the device: it announces wake and sleep
// to other devices and carries the DSP sidecar's audio frames and
// direction-of-arrival readings.
//
// This package handles:
//   - Connection management with automatic reconnection (autopaho)
//   - Wake/sleep signalling with the angle of the speaker
//   - Audio frame encoding for the DSP sidecar feed
package pubsub

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Config holds MQTT client configuration.
type Config struct {
	// Broker is the broker URL, e.g. "tcp://localhost:1883".
	Broker string `yaml:"broker" json:"broker"`

	// ClientID defaults to "respeaker-<uuid>".
	ClientID string `yaml:"client_id" json:"client_id"`

	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`

	// Prefix is the topic prefix for the audio feed.
	Prefix string `yaml:"prefix" json:"prefix"`

	// WakeTopic and SleepTopic are full topic names.
	WakeTopic  string `yaml:"wake_topic" json:"wake_topic"`
	SleepTopic string `yaml:"sleep_topic" json:"sleep_topic"`

	QoS byte `yaml:"qos" json:"qos"`

	KeepAlive         time.Duration `yaml:"keep_alive" json:"keep_alive"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	ConnectRetryDelay time.Duration `yaml:"connect_retry_delay" json:"connect_retry_delay"`
	PublishTimeout    time.Duration `yaml:"publish_timeout" json:"publish_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Broker:            "tcp://localhost:1883",
		Prefix:            "respeaker",
		WakeTopic:         "respeaker/led/wake",
		SleepTopic:        "respeaker/led/sleep",
		QoS:               1,
		KeepAlive:         20 * time.Second,
		ConnectTimeout:    5 * time.Second,
		ConnectRetryDelay: 3 * time.Second,
		PublishTimeout:    2 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Broker == "" {
		return errors.New("pubsub: broker is required")
	}
	u, err := url.Parse(c.Broker)
	if err != nil {
		return fmt.Errorf("pubsub: invalid broker url: %w", err)
	}
	switch u.Scheme {
	case "tcp", "mqtt", "ssl", "tls", "mqtts":
	default:
		return fmt.Errorf("pubsub: unsupported broker scheme %q", u.Scheme)
	}
	if c.Prefix == "" {
		return errors.New("pubsub: prefix is required")
	}
	if c.WakeTopic == "" || c.SleepTopic == "" {
		return errors.New("pubsub: wake and sleep topics are required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("pubsub: qos must be 0, 1 or 2, got %d", c.QoS)
	}
	if c.KeepAlive < time.Second {
		return errors.New("pubsub: keep_alive must be at least 1s")
	}
	if c.ConnectTimeout <= 0 {
		return errors.New("pubsub: connect_timeout must be positive")
	}
	return nil
}

func (c *Config) clientID() string {
	if c.ClientID != "" {
		return c.ClientID
	}
	return "respeaker-" + uuid.NewString()
}

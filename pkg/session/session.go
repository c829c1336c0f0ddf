// Package session runs the listening-session state machine: it watches the
// audio pipeline for wake words, streams the following audio to the speech
// recognizer and mutes again on timeout or a final transcript.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-respeaker/pkg/pixelring"
)

// ErrTransportLost is returned by Run when ExitOnTransportLoss is set and
// the recognizer connection drops.
var ErrTransportLost = errors.New("session: asr transport lost")

// Transport is the speech recognizer connection.
type Transport interface {
	SendBinary(data []byte) error
	IsConnected() bool
	IsFinalTranscript() bool
	ResetTranscriptFlag()
}

// StateRequester changes the LED ring state.
type StateRequester interface {
	RequestState(s pixelring.State)
}

// Signaler announces wake and sleep to other devices.
type Signaler interface {
	Wake(ctx context.Context, angle int) error
	Sleep(ctx context.Context) error
}

// Config holds orchestrator settings.
type Config struct {
	// ListeningTimeout ends a session that produced no final transcript.
	ListeningTimeout time.Duration `yaml:"listening_timeout" json:"listening_timeout"`

	// WakeWordOffset delays streaming after detection so the wake word
	// itself is not transcribed.
	WakeWordOffset time.Duration `yaml:"wake_word_offset" json:"wake_word_offset"`

	// ExitOnTransportLoss ends Run as soon as the recognizer disconnects.
	ExitOnTransportLoss bool `yaml:"exit_on_transport_loss" json:"exit_on_transport_loss"`
}

// DefaultConfig returns an 8 second listening window.
func DefaultConfig() Config {
	return Config{
		ListeningTimeout: 8 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.ListeningTimeout <= 0 {
		return errors.New("session: listening_timeout must be positive")
	}
	if c.WakeWordOffset < 0 {
		return errors.New("session: wake_word_offset must not be negative")
	}
	if c.WakeWordOffset >= c.ListeningTimeout {
		return errors.New("session: wake_word_offset must be shorter than listening_timeout")
	}
	return nil
}

// Session is a listening session. The zero value means no session.
type Session struct {
	ID         uuid.UUID `json:"id"`
	Active     bool      `json:"active"`
	DetectedAt time.Time `json:"detected_at"`
	Direction  int       `json:"direction"`
}

// EndReason says why a session ended.
type EndReason int

const (
	EndTimeout EndReason = iota
	EndTranscript
)

func (r EndReason) String() string {
	switch r {
	case EndTimeout:
		return "timeout"
	case EndTranscript:
		return "transcript"
	default:
		return "unknown"
	}
}

// MarshalText encodes the reason by name.
func (r EndReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// EventKind identifies a session transition.
type EventKind string

const (
	EventStarted EventKind = "started"
	EventRearmed EventKind = "rearmed"
	EventEnded   EventKind = "ended"
)

// Event describes a session transition.
type Event struct {
	Kind    EventKind  `json:"kind"`
	Session Session    `json:"session"`
	Reason  *EndReason `json:"reason,omitempty"`
	At      time.Time  `json:"at"`
}

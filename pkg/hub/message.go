// Package hub fans status events out to WebSocket subscribers. A single
// goroutine owns the client set; a client that cannot keep up is dropped
// instead of stalling the others.
package hub

import (
	"encoding/json"
	"fmt"
)

// Message is one frame queued for delivery.
type Message struct {
	// Kind names the event ("status", "state", "session"). Used in logs only.
	Kind   string
	Data   []byte
	Binary bool
}

// Event encodes v as a JSON text frame.
func Event(kind string, v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("hub: encode %s event: %w", kind, err)
	}
	return Message{Kind: kind, Data: data}, nil
}

package pixelring

import (
	"errors"
	"fmt"
	"strings"
)

// State is the visual state shown on the ring.
type State int

const (
	Idle State = iota
	Listening
	Speaking
	EnteringMuted
	EnteringUnmuted
	Disabled

	// NumStates is the number of visual states.
	NumStates = int(Disabled) + 1
)

// ErrUnknownState is returned when a state name cannot be parsed.
var ErrUnknownState = errors.New("pixelring: unknown state")

var stateNames = [NumStates]string{
	Idle:            "idle",
	Listening:       "listening",
	Speaking:        "speaking",
	EnteringMuted:   "muting",
	EnteringUnmuted: "unmuting",
	Disabled:        "disabled",
}

// Aliases used by older configuration files and tooling.
var stateAliases = map[string]State{
	"on_idle":     Idle,
	"on_listen":   Listening,
	"listen":      Listening,
	"on_speak":    Speaking,
	"speak":       Speaking,
	"to_mute":     EnteringMuted,
	"mute":        EnteringMuted,
	"to_unmute":   EnteringUnmuted,
	"unmute":      EnteringUnmuted,
	"on_disabled": Disabled,
}

// States returns every state in declaration order.
func States() []State {
	out := make([]State, NumStates)
	for i := range out {
		out[i] = State(i)
	}
	return out
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	return s >= Idle && s <= Disabled
}

func (s State) String() string {
	if !s.Valid() {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// IsRamp reports whether s is a one-shot ramp that returns to Idle.
func (s State) IsRamp() bool {
	return s == EnteringMuted || s == EnteringUnmuted
}

// ParseState parses a state name, case-insensitively.
func ParseState(name string) (State, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, sn := range stateNames {
		if n == sn {
			return State(i), nil
		}
	}
	if s, ok := stateAliases[n]; ok {
		return s, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownState, name)
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownState, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	v, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

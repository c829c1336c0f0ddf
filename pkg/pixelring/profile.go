package pixelring

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-respeaker/pkg/hardware"
)

// GlobalBrightness is the APA102 global current setting used for every strip.
// Per-state brightness is applied in software on top of it.
const GlobalBrightness = 31

// StepCount is the number of increments in a brightness ramp.
const StepCount = 20

// ErrInvalidProfile is returned when a Profile fails validation.
var ErrInvalidProfile = errors.New("pixelring: invalid profile")

// Profile is the runtime configuration of the ring. The engine keeps its own
// copy, so changes after New have no effect.
type Profile struct {
	Model  string
	LEDs   int
	SPIBus int
	SPIDev int

	// PowerPin and PowerLevel gate the LED supply. -1 means no power pin.
	PowerPin   int
	PowerLevel int

	MaxBrightness uint8

	// Colors and Enabled are indexed by State.
	Colors  [NumStates]hardware.Color
	Enabled [NumStates]bool

	MutedOnStart bool
}

// DefaultProfile returns the profile of a 12-LED ReSpeaker ring with every
// state enabled.
func DefaultProfile() Profile {
	p := Profile{
		Model:         "respeaker_v2",
		LEDs:          12,
		SPIBus:        0,
		SPIDev:        1,
		PowerPin:      -1,
		PowerLevel:    -1,
		MaxBrightness: 31,
	}
	p.Colors[Idle] = hardware.Green
	p.Colors[Listening] = hardware.Blue
	p.Colors[Speaking] = hardware.Purple
	p.Colors[EnteringMuted] = hardware.Yellow
	p.Colors[EnteringUnmuted] = hardware.Green
	for i := range p.Enabled {
		p.Enabled[i] = true
	}
	return p
}

// Validate checks the profile.
func (p Profile) Validate() error {
	if p.LEDs < 1 {
		return fmt.Errorf("%w: LED count must be positive, got %d", ErrInvalidProfile, p.LEDs)
	}
	if p.SPIBus < 0 || p.SPIDev < 0 {
		return fmt.Errorf("%w: invalid SPI bus/dev %d.%d", ErrInvalidProfile, p.SPIBus, p.SPIDev)
	}
	if p.PowerPin < -1 || p.PowerLevel < -1 || p.PowerLevel > 1 {
		return fmt.Errorf("%w: invalid power pin %d level %d", ErrInvalidProfile, p.PowerPin, p.PowerLevel)
	}
	return nil
}

// IsEnabled reports whether s renders its own animation.
// Disabled is always enabled.
func (p Profile) IsEnabled(s State) bool {
	if s == Disabled {
		return true
	}
	return s.Valid() && p.Enabled[s]
}

// StripSpec returns the strip parameters for this profile.
func (p Profile) StripSpec() hardware.StripSpec {
	return hardware.StripSpec{
		LEDs:             p.LEDs,
		Bus:              p.SPIBus,
		Dev:              p.SPIDev,
		GlobalBrightness: GlobalBrightness,
	}
}

// InitialState is the state the engine starts in.
func (p Profile) InitialState() State {
	if p.MutedOnStart {
		return EnteringMuted
	}
	return EnteringUnmuted
}

// Timing holds the per-step delays of every animation.
type Timing struct {
	IdleLead   time.Duration // before a breath starts
	IdleStep   time.Duration
	IdleRest   time.Duration // after a breath ends
	ListenStep time.Duration
	SpeakStep  time.Duration
	SpeakRest  time.Duration
	RampStep   time.Duration
}

// DefaultTiming returns the stock animation timing.
func DefaultTiming() Timing {
	return Timing{
		IdleLead:   2000 * time.Millisecond,
		IdleStep:   100 * time.Millisecond,
		IdleRest:   3000 * time.Millisecond,
		ListenStep: 80 * time.Millisecond,
		SpeakStep:  20 * time.Millisecond,
		SpeakRest:  200 * time.Millisecond,
		RampStep:   50 * time.Millisecond,
	}
}

// RampLevels returns the brightness of every step of a ramp from off to
// maxBrightness and back. The step is maxBrightness/StepCount, truncated,
// and never less than one.
func RampLevels(maxBrightness uint8) []uint8 {
	top := int(maxBrightness)
	step := top / StepCount
	if step < 1 {
		step = 1
	}

	var levels []uint8
	for bri := 0; bri < top; bri += step {
		levels = append(levels, uint8(bri))
	}
	for bri := top; bri > 0; bri -= step {
		levels = append(levels, uint8(bri))
	}
	return levels
}

// Package hardware is the narrow device boundary for the LED ring and the
// power GPIO: a pixel strip, GPIO pin control, and the power-pin sequence
// that gates the strip on boards that need it.
//
// Implementations:
//   - APA102: SPI-driven LED strip via periph.io
//   - SysfsGPIO: GPIO pins via periph.io
//   - Emulator: in-memory strip and GPIO for development and tests
package hardware

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrNotInitialized is returned by strip operations before Init succeeds.
	ErrNotInitialized = errors.New("hardware: strip not initialized")

	// ErrPixelOutOfRange is returned by SetPixel for an index outside the strip.
	ErrPixelOutOfRange = errors.New("hardware: pixel index out of range")

	// ErrPinNotExported is returned when writing to a pin that was never exported.
	ErrPinNotExported = errors.New("hardware: pin not exported")
)

// StripSpec describes the LED strip to open.
type StripSpec struct {
	LEDs             int
	Bus              int
	Dev              int
	GlobalBrightness uint8 // 0-31, APA102 5-bit global current
}

// Validate checks the spec.
func (s StripSpec) Validate() error {
	if s.LEDs < 1 {
		return fmt.Errorf("hardware: LED count must be positive, got %d", s.LEDs)
	}
	if s.Bus < 0 || s.Dev < 0 {
		return fmt.Errorf("hardware: invalid SPI bus/dev %d.%d", s.Bus, s.Dev)
	}
	if s.GlobalBrightness > 31 {
		return fmt.Errorf("hardware: global brightness must be 0-31, got %d", s.GlobalBrightness)
	}
	return nil
}

// Strip is a buffered LED pixel strip.
// SetPixel only touches the buffer; Refresh pushes it out.
type Strip interface {
	Init(spec StripSpec) error
	SetPixel(index int, c Color) error
	Refresh() error
	// ClearAll zeroes the buffer and pushes it to the LEDs.
	ClearAll() error
	io.Closer
}

// Direction is a GPIO pin direction.
type Direction int

const (
	In Direction = iota
	Out
)

func (d Direction) String() string {
	if d == Out {
		return "out"
	}
	return "in"
}

// GPIO controls individual pins by number.
type GPIO interface {
	Export(pin int) error
	SetDirection(pin int, dir Direction) error
	Write(pin int, value int) error
	Unexport(pin int) error
}

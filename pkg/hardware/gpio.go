package hardware

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// SysfsGPIO resolves pins through the periph.io registry.
type SysfsGPIO struct {
	logger *slog.Logger

	mu   sync.Mutex
	pins map[int]gpio.PinIO
	dirs map[int]Direction
}

var _ GPIO = (*SysfsGPIO)(nil)

// NewSysfsGPIO creates a GPIO controller backed by periph.io.
func NewSysfsGPIO(logger *slog.Logger) *SysfsGPIO {
	if logger == nil {
		logger = slog.Default()
	}
	return &SysfsGPIO{
		logger: logger,
		pins:   make(map[int]gpio.PinIO),
		dirs:   make(map[int]Direction),
	}
}

func (s *SysfsGPIO) Export(pin int) error {
	if err := initHost(); err != nil {
		return fmt.Errorf("periph host init: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pins[pin]; ok {
		return nil
	}
	p := gpioreg.ByName(strconv.Itoa(pin))
	if p == nil {
		return fmt.Errorf("gpio %d: no such pin", pin)
	}
	s.pins[pin] = p
	s.dirs[pin] = In
	return nil
}

// SetDirection records the direction. Output pins are driven on the first
// Write so the line does not glitch to a default level in between.
func (s *SysfsGPIO) SetDirection(pin int, dir Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pins[pin]
	if !ok {
		return fmt.Errorf("%w: %d", ErrPinNotExported, pin)
	}
	s.dirs[pin] = dir
	if dir == In {
		return p.In(gpio.PullNoChange, gpio.NoEdge)
	}
	return nil
}

func (s *SysfsGPIO) Write(pin int, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pins[pin]
	if !ok {
		return fmt.Errorf("%w: %d", ErrPinNotExported, pin)
	}
	if s.dirs[pin] != Out {
		return fmt.Errorf("gpio %d: not configured as output", pin)
	}
	return p.Out(gpio.Level(value != 0))
}

func (s *SysfsGPIO) Unexport(pin int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pins[pin]
	if !ok {
		return nil
	}
	delete(s.pins, pin)
	delete(s.dirs, pin)
	return p.Halt()
}

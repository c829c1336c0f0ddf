package hardware

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultPowerSettle is how long the pin is left exported before it is driven.
// The sysfs node needs time to appear with the right permissions.
const DefaultPowerSettle = time.Second

// Power drives the pin that switches the LED supply on some boards.
// A pin or level of -1 means the board has no power pin.
type Power struct {
	gpio   GPIO
	pin    int
	level  int
	settle time.Duration
	logger *slog.Logger

	mu sync.Mutex
	on bool
}

// NewPower creates a power pin controller. Nothing touches the pin until On.
func NewPower(g GPIO, pin, level int, settle time.Duration, logger *slog.Logger) *Power {
	if logger == nil {
		logger = slog.Default()
	}
	return &Power{
		gpio:   g,
		pin:    pin,
		level:  level,
		settle: settle,
		logger: logger,
	}
}

// Present reports whether the board has a power pin.
func (p *Power) Present() bool {
	return p.gpio != nil && p.pin >= 0 && p.level >= 0
}

// On exports the pin, waits for it to settle, then drives the active level.
func (p *Power) On() error {
	if !p.Present() {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.on {
		return nil
	}

	if err := p.gpio.Export(p.pin); err != nil {
		return fmt.Errorf("export power pin %d: %w", p.pin, err)
	}
	if p.settle > 0 {
		time.Sleep(p.settle)
	}
	if err := p.gpio.SetDirection(p.pin, Out); err != nil {
		_ = p.gpio.Unexport(p.pin)
		return fmt.Errorf("set power pin %d direction: %w", p.pin, err)
	}
	if err := p.gpio.Write(p.pin, p.level); err != nil {
		_ = p.gpio.Unexport(p.pin)
		return fmt.Errorf("write power pin %d: %w", p.pin, err)
	}

	p.on = true
	p.logger.Debug("power pin on", "pin", p.pin, "level", p.level)
	return nil
}

// Off drives the inactive level and unexports the pin. Safe to call repeatedly.
func (p *Power) Off() error {
	if !p.Present() {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.on {
		return nil
	}
	p.on = false

	inactive := 0
	if p.level == 0 {
		inactive = 1
	}
	werr := p.gpio.Write(p.pin, inactive)
	uerr := p.gpio.Unexport(p.pin)

	p.logger.Debug("power pin off", "pin", p.pin)
	return errors.Join(werr, uerr)
}

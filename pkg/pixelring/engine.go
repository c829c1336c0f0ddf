// Package pixelring renders device status on an LED ring.
//
// One worker goroutine owns the strip for the engine's lifetime and runs the
// animation that matches the current State. Every animation step ends in a
// cancellable delay, so a state request is picked up within one step. The
// only way to change state from outside is the Controller.
package pixelring

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-respeaker/pkg/hardware"
)

// renderErrorLogInterval bounds how often render errors are logged.
const renderErrorLogInterval = 5 * time.Second

// Observer is called after every effective state change, outside the lock.
type Observer func(prev, next State)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTiming overrides the animation timing.
func WithTiming(t Timing) Option {
	return func(e *Engine) {
		e.timing = t
	}
}

// WithPowerSettle overrides the delay between exporting and driving the power pin.
func WithPowerSettle(d time.Duration) Option {
	return func(e *Engine) {
		e.powerSettle = d
	}
}

// WithPicker sets the function that chooses the LED for each idle breath.
// It must return a value in [0, n).
func WithPicker(pick func(n int) int) Option {
	return func(e *Engine) {
		if pick != nil {
			e.pick = pick
		}
	}
}

// WithObserver registers an observer for state changes.
func WithObserver(fn Observer) Option {
	return func(e *Engine) {
		if fn != nil {
			e.observers = append(e.observers, fn)
		}
	}
}

// Engine drives the LED ring.
type Engine struct {
	profile     Profile
	timing      Timing
	levels      []uint8
	strip       hardware.Strip
	power       *hardware.Power
	powerSettle time.Duration
	pick        func(n int) int
	observers   []Observer
	logger      *slog.Logger
	ctrl        *Controller

	mu        sync.Mutex
	state     State
	terminate bool
	wake      chan struct{} // closed and replaced on every mutation
	seq       uint64        // bumped on every state write

	notifyMu sync.Mutex
	notified uint64 // seq of the last change delivered to observers

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error

	animation   atomic.Int32
	frames      atomic.Int64
	renderErrs  atomic.Int64
	transitions atomic.Int64
	lastErrLog  time.Time // worker only
}

// New powers the ring, opens the strip and starts the render worker.
// On failure everything acquired so far is released and no worker runs.
func New(profile Profile, strip hardware.Strip, gpio hardware.GPIO, opts ...Option) (*Engine, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if strip == nil {
		return nil, errors.New("pixelring: strip is required")
	}

	e := &Engine{
		profile:     profile,
		timing:      DefaultTiming(),
		levels:      RampLevels(profile.MaxBrightness),
		strip:       strip,
		powerSettle: hardware.DefaultPowerSettle,
		pick:        rand.Intn,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.power = hardware.NewPower(gpio, profile.PowerPin, profile.PowerLevel, e.powerSettle, e.logger)
	if err := e.power.On(); err != nil {
		return nil, fmt.Errorf("pixelring: power on: %w", err)
	}
	if err := strip.Init(profile.StripSpec()); err != nil {
		if perr := e.power.Off(); perr != nil {
			e.logger.Warn("power pin reset failed", "error", perr)
		}
		return nil, fmt.Errorf("pixelring: init strip: %w", err)
	}

	e.state = profile.InitialState()
	e.animation.Store(int32(e.state))
	e.wake = make(chan struct{})
	e.done = make(chan struct{})
	e.ctrl = &Controller{engine: e}

	go e.run()

	e.logger.Info("pixel ring started",
		"model", profile.Model,
		"leds", profile.LEDs,
		"brightness", profile.MaxBrightness,
		"state", e.state,
	)
	return e, nil
}

// Controller returns the engine's transition controller.
func (e *Engine) Controller() *Controller {
	return e.ctrl
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Profile returns the engine's copy of its profile.
func (e *Engine) Profile() Profile {
	return e.profile
}

// Close stops the worker, then releases the strip and the power pin.
// Safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.terminate = true
		e.broadcastLocked()
		e.mu.Unlock()

		<-e.done

		serr := e.strip.Close()
		perr := e.power.Off()
		e.closeErr = errors.Join(serr, perr)
		e.logger.Info("pixel ring stopped", "frames", e.frames.Load(), "render_errors", e.renderErrs.Load())
	})
	return e.closeErr
}

// Stats is a snapshot of engine counters.
type Stats struct {
	State        State `json:"state"`
	Animation    State `json:"animation"`
	Frames       int64 `json:"frames"`
	RenderErrors int64 `json:"render_errors"`
	Transitions  int64 `json:"transitions"`
}

// Stats returns engine counters. Animation is the routine the worker is
// running, which differs from State when the state is disabled.
func (e *Engine) Stats() Stats {
	return Stats{
		State:        e.State(),
		Animation:    State(e.animation.Load()),
		Frames:       e.frames.Load(),
		RenderErrors: e.renderErrs.Load(),
		Transitions:  e.transitions.Load(),
	}
}

func (e *Engine) broadcastLocked() {
	close(e.wake)
	e.wake = make(chan struct{})
}

// setState stores s and wakes the worker. It never waits on rendering.
func (e *Engine) setState(s State) {
	e.mu.Lock()
	prev := e.state
	e.state = s
	e.seq++
	seq := e.seq
	e.broadcastLocked()
	e.mu.Unlock()

	if prev != s {
		e.changed(prev, s, seq)
	}
}

// compareAndSwap moves from to next only if the state is still from.
func (e *Engine) compareAndSwap(from, next State) bool {
	e.mu.Lock()
	if e.state != from {
		e.mu.Unlock()
		return false
	}
	e.state = next
	e.seq++
	seq := e.seq
	e.broadcastLocked()
	e.mu.Unlock()

	e.changed(from, next, seq)
	return true
}

// changed runs the observers outside the state lock. A change whose write
// was overtaken by a later, already delivered one is not delivered, so
// observers always end on the current state.
func (e *Engine) changed(prev, next State, seq uint64) {
	e.transitions.Add(1)
	e.logger.Debug("state changed", "from", prev, "to", next)

	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()
	if seq < e.notified {
		e.logger.Debug("dropping stale state notification", "from", prev, "to", next)
		return
	}
	e.notified = seq
	for _, fn := range e.observers {
		fn(prev, next)
	}
}

// delayOnState waits up to d and reports whether the animation for s must
// stop: the engine is terminating or the state is no longer s. A negative d
// waits until that happens.
func (e *Engine) delayOnState(d time.Duration, s State) bool {
	var timeout <-chan time.Time
	if d >= 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timeout = t.C
	}

	for {
		e.mu.Lock()
		if e.terminate || e.state != s {
			e.mu.Unlock()
			return true
		}
		wake := e.wake
		e.mu.Unlock()

		select {
		case <-wake:
		case <-timeout:
			e.mu.Lock()
			defer e.mu.Unlock()
			return e.terminate || e.state != s
		}
	}
}

func (e *Engine) run() {
	defer close(e.done)

	for {
		e.mu.Lock()
		if e.terminate {
			e.mu.Unlock()
			break
		}
		s := e.state
		e.mu.Unlock()

		e.render(s)
	}

	e.check(e.strip.ClearAll())
}

func (e *Engine) render(s State) {
	if !e.profile.IsEnabled(s) {
		e.animation.Store(int32(Disabled))
		e.disabled(s)
		return
	}
	e.animation.Store(int32(s))

	switch s {
	case Idle:
		e.idle()
	case Listening:
		e.listening()
	case Speaking:
		e.speaking()
	case EnteringMuted, EnteringUnmuted:
		e.ramp(s)
	default:
		e.disabled(s)
	}
}

func (e *Engine) refresh() {
	e.check(e.strip.Refresh())
	e.frames.Add(1)
}

// check counts a render error. Errors are never retried.
func (e *Engine) check(err error) {
	if err == nil {
		return
	}
	n := e.renderErrs.Add(1)
	if time.Since(e.lastErrLog) >= renderErrorLogInterval {
		e.lastErrLog = time.Now()
		e.logger.Warn("render error", "error", err, "total", n)
	}
}

package hardware

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// DefaultFrameHistory is how many refreshed frames an EmulatedStrip keeps.
const DefaultFrameHistory = 4096

// EmulatedStrip is an in-memory strip. It keeps a bounded history of every
// refreshed frame so renders can be inspected.
type EmulatedStrip struct {
	logger *slog.Logger

	mu          sync.Mutex
	spec        StripSpec
	initialized bool
	closed      bool
	buf         []Color
	frames      [][]Color
	history     int
	refreshes   int
	closes      int

	initErr error
	onFrame func([]Color)
}

var _ Strip = (*EmulatedStrip)(nil)

// EmulatorOption configures an EmulatedStrip.
type EmulatorOption func(*EmulatedStrip)

// WithInitError makes Init fail with err.
func WithInitError(err error) EmulatorOption {
	return func(e *EmulatedStrip) {
		e.initErr = err
	}
}

// WithFrameHook calls fn with a copy of every refreshed frame.
// fn runs on the rendering goroutine and must not block.
func WithFrameHook(fn func([]Color)) EmulatorOption {
	return func(e *EmulatedStrip) {
		e.onFrame = fn
	}
}

// WithFrameHistory bounds the number of frames kept.
func WithFrameHistory(n int) EmulatorOption {
	return func(e *EmulatedStrip) {
		e.history = n
	}
}

// NewEmulatedStrip creates an in-memory strip.
func NewEmulatedStrip(logger *slog.Logger, opts ...EmulatorOption) *EmulatedStrip {
	if logger == nil {
		logger = slog.Default()
	}
	e := &EmulatedStrip{
		logger:  logger,
		history: DefaultFrameHistory,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *EmulatedStrip) Init(spec StripSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if e.initErr != nil {
		return e.initErr
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.spec = spec
	e.buf = make([]Color, spec.LEDs)
	e.initialized = true
	e.closed = false
	e.logger.Info("emulated strip ready", "leds", spec.LEDs)
	return nil
}

func (e *EmulatedStrip) SetPixel(index int, c Color) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized || e.closed {
		return ErrNotInitialized
	}
	if index < 0 || index >= len(e.buf) {
		return fmt.Errorf("%w: %d", ErrPixelOutOfRange, index)
	}
	e.buf[index] = c
	return nil
}

func (e *EmulatedStrip) Refresh() error {
	e.mu.Lock()
	if !e.initialized || e.closed {
		e.mu.Unlock()
		return ErrNotInitialized
	}
	frame := e.pushLocked()
	hook := e.onFrame
	e.mu.Unlock()

	if hook != nil {
		hook(frame)
	}
	return nil
}

func (e *EmulatedStrip) ClearAll() error {
	e.mu.Lock()
	if !e.initialized || e.closed {
		e.mu.Unlock()
		return ErrNotInitialized
	}
	clear(e.buf)
	frame := e.pushLocked()
	hook := e.onFrame
	e.mu.Unlock()

	if hook != nil {
		hook(frame)
	}
	return nil
}

func (e *EmulatedStrip) pushLocked() []Color {
	frame := slices.Clone(e.buf)
	e.refreshes++
	if e.history > 0 {
		if len(e.frames) >= e.history {
			e.frames = e.frames[1:]
		}
		e.frames = append(e.frames, frame)
	}
	return frame
}

func (e *EmulatedStrip) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || !e.initialized {
		return nil
	}
	e.closed = true
	e.closes++
	return nil
}

// Frames returns a copy of the recorded frames, oldest first.
func (e *EmulatedStrip) Frames() [][]Color {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.frames)
}

// ResetFrames drops the recorded history.
func (e *EmulatedStrip) ResetFrames() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frames = nil
}

// Pixels returns the current buffer.
func (e *EmulatedStrip) Pixels() []Color {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.buf)
}

// Refreshes returns how many frames were pushed, including clears.
func (e *EmulatedStrip) Refreshes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refreshes
}

// Closed reports whether Close released an initialized strip.
func (e *EmulatedStrip) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Spec returns the spec the strip was initialized with.
func (e *EmulatedStrip) Spec() StripSpec {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.spec
}

// EmulatedGPIO records pin operations in memory.
type EmulatedGPIO struct {
	mu        sync.Mutex
	exported  map[int]bool
	dirs      map[int]Direction
	values    map[int]int
	ops       []string
	exportErr error
}

var _ GPIO = (*EmulatedGPIO)(nil)

// NewEmulatedGPIO creates an in-memory GPIO controller.
func NewEmulatedGPIO() *EmulatedGPIO {
	return &EmulatedGPIO{
		exported: make(map[int]bool),
		dirs:     make(map[int]Direction),
		values:   make(map[int]int),
	}
}

// FailExport makes every Export fail with err.
func (g *EmulatedGPIO) FailExport(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.exportErr = err
}

func (g *EmulatedGPIO) Export(pin int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.exportErr != nil {
		return g.exportErr
	}
	g.exported[pin] = true
	g.ops = append(g.ops, fmt.Sprintf("export %d", pin))
	return nil
}

func (g *EmulatedGPIO) SetDirection(pin int, dir Direction) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.exported[pin] {
		return fmt.Errorf("%w: %d", ErrPinNotExported, pin)
	}
	g.dirs[pin] = dir
	g.ops = append(g.ops, fmt.Sprintf("direction %d %s", pin, dir))
	return nil
}

func (g *EmulatedGPIO) Write(pin int, value int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.exported[pin] {
		return fmt.Errorf("%w: %d", ErrPinNotExported, pin)
	}
	g.values[pin] = value
	g.ops = append(g.ops, fmt.Sprintf("write %d %d", pin, value))
	return nil
}

func (g *EmulatedGPIO) Unexport(pin int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.exported[pin] {
		return nil
	}
	delete(g.exported, pin)
	g.ops = append(g.ops, fmt.Sprintf("unexport %d", pin))
	return nil
}

// Ops returns the recorded operations in order.
func (g *EmulatedGPIO) Ops() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.ops)
}

// Exported reports whether pin is currently exported.
func (g *EmulatedGPIO) Exported(pin int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.exported[pin]
}

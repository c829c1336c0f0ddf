package hardware

import (
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// APA102SpeedHz is the SPI clock used for the strip.
const APA102SpeedHz = 8 * physic.MegaHertz

var (
	hostOnce sync.Once
	hostErr  error
)

// initHost loads the periph.io host drivers once per process.
func initHost() error {
	hostOnce.Do(func() {
		_, hostErr = host.Init()
	})
	return hostErr
}

// APA102 is an SPI-attached APA102 (DotStar) LED strip.
//
// Frames go out unmodified: a 4-byte zero start frame, one
// [0xE0|global, B, G, R] word per LED, then an end frame of 0xFF bytes
// long enough to clock the data through the whole chain.
type APA102 struct {
	logger *slog.Logger
	open   func(name string) (spi.PortCloser, error)

	mu     sync.Mutex
	port   spi.PortCloser
	conn   spi.Conn
	leds   int
	global byte
	frame  []byte
}

var _ Strip = (*APA102)(nil)

// NewAPA102 creates an unopened strip. Call Init to open the SPI port.
func NewAPA102(logger *slog.Logger) *APA102 {
	if logger == nil {
		logger = slog.Default()
	}
	return &APA102{logger: logger, open: openSPI}
}

func openSPI(name string) (spi.PortCloser, error) {
	if err := initHost(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return spireg.Open(name)
}

// apa102EndFrameLen is the end frame size for n LEDs: one clock edge per
// two LEDs, at least 32 bits.
func apa102EndFrameLen(n int) int {
	return max(4, (n+15)/16)
}

// Init opens SPI<bus>.<dev> and configures the strip.
func (a *APA102) Init(spec StripSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn != nil {
		return nil
	}

	name := fmt.Sprintf("SPI%d.%d", spec.Bus, spec.Dev)
	port, err := a.open(name)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	conn, err := port.Connect(APA102SpeedHz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return fmt.Errorf("connect %s: %w", name, err)
	}

	a.port, a.conn = port, conn
	a.leds = spec.LEDs
	a.global = 0xE0 | (spec.GlobalBrightness & 0x1F)
	a.frame = make([]byte, 4+spec.LEDs*4+apa102EndFrameLen(spec.LEDs))
	a.blankLocked()

	a.logger.Info("apa102 strip ready", "port", name, "leds", spec.LEDs, "global_brightness", spec.GlobalBrightness)
	return nil
}

// blankLocked resets every LED word to the global byte with zero color
// and fills the end frame.
func (a *APA102) blankLocked() {
	clear(a.frame[:4])
	for i := 0; i < a.leds; i++ {
		off := 4 + i*4
		a.frame[off], a.frame[off+1], a.frame[off+2], a.frame[off+3] = a.global, 0, 0, 0
	}
	for i := 4 + a.leds*4; i < len(a.frame); i++ {
		a.frame[i] = 0xFF
	}
}

func (a *APA102) SetPixel(index int, c Color) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return ErrNotInitialized
	}
	if index < 0 || index >= a.leds {
		return fmt.Errorf("%w: %d", ErrPixelOutOfRange, index)
	}
	r, g, b := c.RGB()
	off := 4 + index*4
	a.frame[off+1], a.frame[off+2], a.frame[off+3] = b, g, r
	return nil
}

func (a *APA102) Refresh() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return ErrNotInitialized
	}
	return a.conn.Tx(a.frame, nil)
}

func (a *APA102) ClearAll() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return ErrNotInitialized
	}
	a.blankLocked()
	return a.conn.Tx(a.frame, nil)
}

// Close blanks the strip and releases the SPI port. Safe to call repeatedly.
func (a *APA102) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return nil
	}
	a.blankLocked()
	terr := a.conn.Tx(a.frame, nil)
	perr := a.port.Close()
	a.conn, a.port, a.frame = nil, nil, nil

	if terr != nil {
		return fmt.Errorf("blank apa102: %w", terr)
	}
	return perr
}

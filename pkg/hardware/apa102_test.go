package hardware

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// fakeSPI records every transfer written to it.
type fakeSPI struct {
	mu      sync.Mutex
	writes  [][]byte
	speed   physic.Frequency
	mode    spi.Mode
	bits    int
	closed  bool
	connErr error
}

func (f *fakeSPI) String() string                    { return "fake-spi" }
func (f *fakeSPI) LimitSpeed(physic.Frequency) error { return nil }
func (f *fakeSPI) Duplex() conn.Duplex               { return conn.Half }
func (f *fakeSPI) TxPackets([]spi.Packet) error      { return errors.New("not supported") }

func (f *fakeSPI) Connect(speed physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	if f.connErr != nil {
		return nil, f.connErr
	}
	f.speed, f.mode, f.bits = speed, mode, bits
	return f, nil
}

func (f *fakeSPI) Tx(w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, bytes.Clone(w))
	return nil
}

func (f *fakeSPI) Close() error {
	f.closed = true
	return nil
}

func (f *fakeSPI) last() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return nil
	}
	return f.writes[len(f.writes)-1]
}

func newTestAPA102(t *testing.T, port *fakeSPI, spec StripSpec) *APA102 {
	t.Helper()
	a := NewAPA102(nil)
	a.open = func(name string) (spi.PortCloser, error) {
		if name != "SPI0.1" {
			t.Errorf("opened %q, want SPI0.1", name)
		}
		return port, nil
	}
	if err := a.Init(spec); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return a
}

func TestAPA102_FrameBytes(t *testing.T) {
	port := &fakeSPI{}
	a := newTestAPA102(t, port, StripSpec{LEDs: 3, Bus: 0, Dev: 1, GlobalBrightness: 31})

	if port.speed != APA102SpeedHz || port.mode != spi.Mode0 || port.bits != 8 {
		t.Errorf("connect = %v mode %v bits %d", port.speed, port.mode, port.bits)
	}

	// Scaled green at brightness 31 must reach the wire as 0x1F, untouched.
	if err := a.SetPixel(0, Scale(Green, 31)); err != nil {
		t.Fatal(err)
	}
	if err := a.SetPixel(2, RGB(0x12, 0x34, 0x56)); err != nil {
		t.Fatal(err)
	}
	if err := a.Refresh(); err != nil {
		t.Fatal(err)
	}

	want := []byte{
		0x00, 0x00, 0x00, 0x00,
		0xFF, 0x00, 0x1F, 0x00,
		0xFF, 0x00, 0x00, 0x00,
		0xFF, 0x56, 0x34, 0x12,
		0xFF, 0xFF, 0xFF, 0xFF,
	}
	if got := port.last(); !bytes.Equal(got, want) {
		t.Errorf("frame = % x\nwant    % x", got, want)
	}

	if err := a.ClearAll(); err != nil {
		t.Fatal(err)
	}
	cleared := port.last()
	for i := 0; i < 3; i++ {
		word := cleared[4+i*4 : 8+i*4]
		if !bytes.Equal(word, []byte{0xFF, 0, 0, 0}) {
			t.Errorf("led %d after clear = % x", i, word)
		}
	}
}

func TestAPA102_GlobalBrightnessAndEndFrame(t *testing.T) {
	port := &fakeSPI{}
	a := newTestAPA102(t, port, StripSpec{LEDs: 40, Bus: 0, Dev: 1, GlobalBrightness: 5})
	if err := a.Refresh(); err != nil {
		t.Fatal(err)
	}
	frame := port.last()
	if len(frame) != 4+40*4+4 {
		t.Fatalf("frame len = %d", len(frame))
	}
	if frame[4] != 0xE5 {
		t.Errorf("global byte = %#x, want 0xe5", frame[4])
	}
	if got := apa102EndFrameLen(100); got != 7 {
		t.Errorf("end frame for 100 leds = %d, want 7", got)
	}
}

func TestAPA102_Lifecycle(t *testing.T) {
	port := &fakeSPI{}
	a := newTestAPA102(t, port, StripSpec{LEDs: 2, Bus: 0, Dev: 1, GlobalBrightness: 31})

	if err := a.SetPixel(2, Red); !errors.Is(err, ErrPixelOutOfRange) {
		t.Errorf("SetPixel(2) = %v, want ErrPixelOutOfRange", err)
	}
	_ = a.SetPixel(1, Red)

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !port.closed {
		t.Error("port should be closed")
	}
	if got := port.last(); got[9] != 0 || got[10] != 0 || got[11] != 0 {
		t.Errorf("Close should blank the strip, last frame % x", got)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := a.Refresh(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Refresh after Close = %v, want ErrNotInitialized", err)
	}
}

func TestAPA102_ConnectFailureClosesPort(t *testing.T) {
	port := &fakeSPI{connErr: errors.New("busy")}
	a := NewAPA102(nil)
	a.open = func(string) (spi.PortCloser, error) { return port, nil }
	if err := a.Init(StripSpec{LEDs: 2, GlobalBrightness: 31}); err == nil {
		t.Fatal("Init should fail when Connect fails")
	}
	if !port.closed {
		t.Error("port should be closed after a failed connect")
	}
}

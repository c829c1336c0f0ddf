package dsp

import (
	"context"
	"encoding/binary"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Mock is a synthetic pipeline for emulated runs and tests. It generates
// silence (or a sine wave) every BufferDuration and reports hotwords only
// when Trigger is called.
type Mock struct {
	cfg    Config
	logger *slog.Logger
	queue  *queue

	mu      sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
	done    chan struct{}
	pending int

	direction atomic.Int64
	chunks    atomic.Int64
	hotwords  atomic.Int64

	// Synthetic audio generation
	phase     float64
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0
}

var _ Pipeline = (*Mock)(nil)

// MockOption configures a Mock.
type MockOption func(*Mock)

// WithSineWave configures the mock to generate a sine wave.
func WithSineWave(frequency, amplitude float64) MockOption {
	return func(m *Mock) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// NewMock creates a mock pipeline.
func NewMock(cfg Config, logger *slog.Logger, opts ...MockOption) (*Mock, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Mock{
		cfg:       cfg,
		logger:    logger,
		queue:     newQueue(cfg.QueueSize),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
		amplitude: 0.5,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start begins generating audio.
func (m *Mock) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrStopped
	}
	if m.running {
		return nil
	}
	m.running = true

	go m.generateLoop(ctx)

	m.logger.Info("mock audio pipeline started",
		"sample_rate", m.cfg.SampleRate,
		"frequency", m.frequency,
	)
	return nil
}

// Trigger makes the next generated chunk carry hotword index and sets the
// reported direction to angle.
func (m *Mock) Trigger(index, angle int) {
	m.direction.Store(int64(angle))
	m.mu.Lock()
	m.pending = index
	m.mu.Unlock()
}

func (m *Mock) generateLoop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.BufferDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.mu.Lock()
			hotword := m.pending
			m.pending = 0
			m.mu.Unlock()

			m.chunks.Add(1)
			if hotword > 0 {
				m.hotwords.Add(1)
			}
			m.queue.push(Chunk{PCM: m.generate(), Hotword: hotword})
		}
	}
}

func (m *Mock) generate() []byte {
	n := m.cfg.BufferSize()
	pcm := make([]byte, n*2)
	if m.frequency <= 0 {
		return pcm
	}
	for i := 0; i < n; i++ {
		s := m.amplitude * math.Sin(2*math.Pi*m.frequency*m.phase/float64(m.cfg.SampleRate))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(s*32767)))
		m.phase++
		if m.phase >= float64(m.cfg.SampleRate) {
			m.phase = 0
		}
	}
	return pcm
}

// Next returns the oldest generated chunk.
func (m *Mock) Next(ctx context.Context) (Chunk, error) {
	select {
	case <-ctx.Done():
		return Chunk{}, ctx.Err()
	case <-m.stopCh:
		return Chunk{}, ErrStopped
	case c := <-m.queue.ch:
		return c, nil
	}
}

// Direction returns the angle set by the last Trigger.
func (m *Mock) Direction() int {
	return int(m.direction.Load())
}

// Stop halts generation and waits for the generator to exit.
func (m *Mock) Stop() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	running := m.running
	close(m.stopCh)
	m.mu.Unlock()

	if running {
		<-m.done
	}
	m.logger.Info("mock audio pipeline stopped", "chunks", m.chunks.Load())
	return nil
}

// Stats returns pipeline statistics.
func (m *Mock) Stats() Stats {
	return Stats{
		Chunks:    m.chunks.Load(),
		Hotwords:  m.hotwords.Load(),
		Overruns:  m.queue.overruns.Load(),
		Direction: m.Direction(),
	}
}

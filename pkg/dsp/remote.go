package dsp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-respeaker/pkg/pubsub"
)

// Subscriber registers MQTT topic handlers.
type Subscriber interface {
	Subscribe(ctx context.Context, filter string, handler pubsub.Handler) error
}

// Remote consumes a DSP sidecar that publishes processed frames and
// direction readings over MQTT.
type Remote struct {
	cfg    Config
	sub    Subscriber
	topics *pubsub.Topics
	logger *slog.Logger
	queue  *queue

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}

	direction atomic.Int64
	chunks    atomic.Int64
	hotwords  atomic.Int64
	malformed atomic.Int64
	converted atomic.Int64
	level     atomic.Uint64 // float64 bits of the last frame's level
}

var _ Pipeline = (*Remote)(nil)

// NewRemote creates a pipeline fed by the sidecar topics.
func NewRemote(cfg Config, sub Subscriber, topics *pubsub.Topics, logger *slog.Logger) (*Remote, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Remote{
		cfg:    cfg,
		sub:    sub,
		topics: topics,
		logger: logger,
		queue:  newQueue(cfg.QueueSize),
		stopCh: make(chan struct{}),
	}, nil
}

// Start subscribes to the frame and DOA topics.
func (r *Remote) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return ErrStopped
	}
	if r.started {
		return nil
	}

	if err := r.sub.Subscribe(ctx, r.topics.AudioDOA(), r.onDOA); err != nil {
		return fmt.Errorf("dsp: subscribe doa: %w", err)
	}
	if err := r.sub.Subscribe(ctx, r.topics.AudioFrame(), r.onFrame); err != nil {
		return fmt.Errorf("dsp: subscribe frames: %w", err)
	}
	r.started = true

	r.logger.Info("remote audio pipeline started",
		"frames", r.topics.AudioFrame(),
		"doa", r.topics.AudioDOA(),
	)
	return nil
}

// halted reports whether Stop has been called.
func (r *Remote) halted() bool {
	select {
	case <-r.stopCh:
		return true
	default:
		return false
	}
}

func (r *Remote) onFrame(_ string, payload []byte) {
	if r.halted() {
		return
	}
	var f pubsub.AudioFrame
	if err := f.Decode(payload); err != nil {
		r.malformed.Add(1)
		r.logger.Debug("dropping malformed audio frame", "error", err)
		return
	}
	if f.SampleRate <= 0 || f.Channels <= 0 || len(f.Samples)%f.Channels != 0 {
		r.malformed.Add(1)
		r.logger.Debug("dropping audio frame with bad format",
			"rate", f.SampleRate, "channels", f.Channels, "samples", len(f.Samples))
		return
	}

	// The recognizer expects mono at the configured rate.
	if f.Channels > 1 || f.SampleRate != r.cfg.SampleRate {
		f.Samples = resample(downmix(f.Samples, f.Channels), f.SampleRate, r.cfg.SampleRate)
		f.Channels, f.SampleRate = 1, r.cfg.SampleRate
		r.converted.Add(1)
	}

	r.chunks.Add(1)
	if f.Hotword > 0 {
		r.hotwords.Add(1)
	}
	r.level.Store(math.Float64bits(level(f.Samples)))
	r.queue.push(Chunk{PCM: f.PCM(), Hotword: f.Hotword})
}

func (r *Remote) onDOA(_ string, payload []byte) {
	if r.halted() {
		return
	}
	var d pubsub.DOA
	if err := json.Unmarshal(payload, &d); err != nil {
		r.malformed.Add(1)
		r.logger.Debug("dropping malformed doa reading", "error", err)
		return
	}
	r.direction.Store(int64(d.Angle))
}

// Next returns the oldest buffered chunk.
func (r *Remote) Next(ctx context.Context) (Chunk, error) {
	select {
	case <-ctx.Done():
		return Chunk{}, ctx.Err()
	case <-r.stopCh:
		return Chunk{}, ErrStopped
	case c := <-r.queue.ch:
		return c, nil
	}
}

// Direction returns the last reported angle.
func (r *Remote) Direction() int {
	return int(r.direction.Load())
}

// Stop halts the pipeline. Frames and readings arriving afterwards are
// ignored, and Next returns ErrStopped.
func (r *Remote) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil
	}
	r.stopped = true
	close(r.stopCh)
	r.logger.Info("remote audio pipeline stopped", "chunks", r.chunks.Load())
	return nil
}

// Stats returns pipeline statistics.
func (r *Remote) Stats() Stats {
	return Stats{
		Chunks:    r.chunks.Load(),
		Hotwords:  r.hotwords.Load(),
		Overruns:  r.queue.overruns.Load(),
		Malformed: r.malformed.Load(),
		Converted: r.converted.Load(),
		Level:     math.Float64frombits(r.level.Load()),
		Direction: r.Direction(),
	}
}

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-respeaker/pkg/dsp"
	"github.com/teslashibe/go-respeaker/pkg/pixelring"
)

// Observer is called on every session transition, from the Run goroutine.
type Observer func(Event)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithSignaler publishes wake and sleep on session start and end.
func WithSignaler(s Signaler) Option {
	return func(o *Orchestrator) {
		o.signaler = s
	}
}

// WithObserver registers a transition observer.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) {
		o.observers = append(o.observers, fn)
	}
}

// Orchestrator drives listening sessions from the audio pipeline.
type Orchestrator struct {
	cfg       Config
	pipeline  dsp.Pipeline
	transport Transport
	states    StateRequester
	signaler  Signaler
	observers []Observer
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.RWMutex
	current Session

	signals chan func(context.Context) error

	// Stats
	started       atomic.Int64
	rearmed       atomic.Int64
	timeouts      atomic.Int64
	transcripts   atomic.Int64
	chunksSent    atomic.Int64
	chunksDropped atomic.Int64
	sendErrors    atomic.Int64
	signalErrors  atomic.Int64
}

// New creates an orchestrator. Run starts it.
func New(cfg Config, pipeline dsp.Pipeline, transport Transport, states StateRequester, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if pipeline == nil || transport == nil || states == nil {
		return nil, errors.New("session: pipeline, transport and state requester are required")
	}

	o := &Orchestrator{
		cfg:       cfg,
		pipeline:  pipeline,
		transport: transport,
		states:    states,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "session")
	return o, nil
}

// Run processes audio chunks until ctx is cancelled, which returns nil.
// It returns ErrTransportLost when ExitOnTransportLoss is set and the
// recognizer disconnects, or the pipeline's error if it fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	if o.signaler != nil {
		o.signals = make(chan func(context.Context) error, 16)
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.signalLoop()
		}()
		defer func() {
			close(o.signals)
			wg.Wait()
		}()
	}

	o.logger.Info("session loop started",
		"listening_timeout", o.cfg.ListeningTimeout,
		"wake_word_offset", o.cfg.WakeWordOffset,
	)

	for {
		if ctx.Err() != nil {
			o.logger.Info("session loop stopped")
			return nil
		}
		if o.cfg.ExitOnTransportLoss && !o.transport.IsConnected() {
			o.logger.Error("asr transport lost, leaving session loop")
			return ErrTransportLost
		}

		chunk, err := o.pipeline.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				o.logger.Info("session loop stopped")
				return nil
			}
			return fmt.Errorf("session: read audio: %w", err)
		}
		o.step(chunk)
	}
}

// step advances the state machine by one chunk.
func (o *Orchestrator) step(chunk dsp.Chunk) {
	now := o.now()

	if chunk.Hotword >= 1 {
		o.arm(now, chunk.Hotword)
	} else if o.active() {
		o.forward(now, chunk.PCM)
	}

	o.mu.RLock()
	s := o.current
	o.mu.RUnlock()
	if !s.Active {
		return
	}

	switch {
	case now.Sub(s.DetectedAt) > o.cfg.ListeningTimeout:
		o.end(now, EndTimeout)
	case o.transport.IsFinalTranscript():
		o.end(now, EndTranscript)
	}
}

func (o *Orchestrator) arm(now time.Time, hotword int) {
	direction := o.pipeline.Direction()

	o.mu.Lock()
	kind := EventStarted
	if o.current.Active {
		kind = EventRearmed
	}
	o.current = Session{
		ID:         uuid.New(),
		Active:     true,
		DetectedAt: now,
		Direction:  direction,
	}
	s := o.current
	o.mu.Unlock()

	if kind == EventRearmed {
		o.rearmed.Add(1)
	} else {
		o.started.Add(1)
	}

	o.transport.ResetTranscriptFlag()
	o.states.RequestState(pixelring.EnteringUnmuted)
	o.logger.Info("wake word detected",
		"session", s.ID,
		"hotword", hotword,
		"angle", direction,
		"rearmed", kind == EventRearmed,
	)

	o.signal(func(ctx context.Context) error { return o.signaler.Wake(ctx, direction) })
	o.notify(Event{Kind: kind, Session: s, At: now})
}

func (o *Orchestrator) forward(now time.Time, pcm []byte) {
	o.mu.RLock()
	detectedAt := o.current.DetectedAt
	o.mu.RUnlock()

	if now.Sub(detectedAt) < o.cfg.WakeWordOffset {
		return
	}
	if !o.transport.IsConnected() {
		o.chunksDropped.Add(1)
		return
	}
	if err := o.transport.SendBinary(pcm); err != nil {
		o.sendErrors.Add(1)
		o.logger.Debug("dropping audio chunk", "error", err)
		return
	}
	o.chunksSent.Add(1)
}

func (o *Orchestrator) end(now time.Time, reason EndReason) {
	o.mu.Lock()
	s := o.current
	o.current = Session{}
	o.mu.Unlock()

	if reason == EndTimeout {
		o.timeouts.Add(1)
	} else {
		o.transcripts.Add(1)
	}

	o.transport.ResetTranscriptFlag()
	o.states.RequestState(pixelring.EnteringMuted)
	o.logger.Info("session ended",
		"session", s.ID,
		"reason", reason,
		"duration", now.Sub(s.DetectedAt),
	)

	o.signal(func(ctx context.Context) error { return o.signaler.Sleep(ctx) })
	o.notify(Event{Kind: EventEnded, Session: s, Reason: &reason, At: now})
}

func (o *Orchestrator) active() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current.Active
}

func (o *Orchestrator) notify(e Event) {
	for _, fn := range o.observers {
		fn(e)
	}
}

// signal queues a publish so a slow broker never stalls the audio loop.
func (o *Orchestrator) signal(fn func(context.Context) error) {
	if o.signals == nil {
		return
	}
	select {
	case o.signals <- fn:
	default:
		o.signalErrors.Add(1)
		o.logger.Warn("signal queue full, dropping signal")
	}
}

func (o *Orchestrator) signalLoop() {
	for fn := range o.signals {
		if err := fn(context.Background()); err != nil {
			o.signalErrors.Add(1)
			o.logger.Warn("signal publish failed", "error", err)
		}
	}
}

// Snapshot returns the current session.
func (o *Orchestrator) Snapshot() Session {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current
}

// Stats returns orchestrator statistics.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Started:           o.started.Load(),
		Rearmed:           o.rearmed.Load(),
		EndedByTimeout:    o.timeouts.Load(),
		EndedByTranscript: o.transcripts.Load(),
		ChunksSent:        o.chunksSent.Load(),
		ChunksDropped:     o.chunksDropped.Load(),
		SendErrors:        o.sendErrors.Load(),
		SignalErrors:      o.signalErrors.Load(),
	}
}

// Stats holds orchestrator statistics.
type Stats struct {
	Started           int64 `json:"started"`
	Rearmed           int64 `json:"rearmed"`
	EndedByTimeout    int64 `json:"ended_by_timeout"`
	EndedByTranscript int64 `json:"ended_by_transcript"`
	ChunksSent        int64 `json:"chunks_sent"`
	ChunksDropped     int64 `json:"chunks_dropped"`
	SendErrors        int64 `json:"send_errors"`
	SignalErrors      int64 `json:"signal_errors"`
}

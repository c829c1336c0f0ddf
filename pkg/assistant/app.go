// Package assistant wires the LED ring, the audio pipeline and the speech
// and device-control transports into one running device.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-respeaker/internal/config"
	"github.com/teslashibe/go-respeaker/pkg/asr"
	"github.com/teslashibe/go-respeaker/pkg/dsp"
	"github.com/teslashibe/go-respeaker/pkg/hardware"
	"github.com/teslashibe/go-respeaker/pkg/pixelring"
	"github.com/teslashibe/go-respeaker/pkg/pubsub"
	"github.com/teslashibe/go-respeaker/pkg/session"
	"github.com/teslashibe/go-respeaker/pkg/web"
)

// Options adjust how the app builds its components.
type Options struct {
	// Emulate uses the in-memory strip and GPIO regardless of the model.
	Emulate bool

	// MockAudio uses the synthetic pipeline instead of the DSP sidecar.
	MockAudio bool

	Logger *slog.Logger

	// Strip, GPIO and Pipeline replace the drivers the app would pick.
	Strip    hardware.Strip
	GPIO     hardware.GPIO
	Pipeline dsp.Pipeline

	// Timing overrides the animation timings.
	Timing *pixelring.Timing
}

// App is the device application.
// It manages all components and their lifecycle.
type App struct {
	cfg    config.Config
	opts   Options
	logger *slog.Logger

	strip hardware.Strip
	gpio  hardware.GPIO

	engine   *pixelring.Engine
	asr      *asr.Client
	mqtt     *pubsub.Client
	pipeline dsp.Pipeline
	mock     *dsp.Mock
	orch     *session.Orchestrator
	web      *web.Server

	started      time.Time
	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates the app. Nothing is opened until Init.
func New(cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		cfg:    cfg,
		opts:   opts,
		logger: logger,
	}, nil
}

// Init brings components up in dependency order. On failure whatever was
// acquired is released and the error is returned.
func (a *App) Init(ctx context.Context) error {
	a.started = time.Now()

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"hardware", a.initHardware},
		{"pixel ring", a.initEngine},
		{"asr", a.initASR},
		{"mqtt", a.initMQTT},
		{"audio", a.initPipeline},
		{"session", a.initSession},
		{"status server", a.initWeb},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			a.logger.Error("initialization failed", "step", step.name, "error", err)
			if serr := a.Shutdown(); serr != nil {
				a.logger.Warn("cleanup after failed init", "error", serr)
			}
			return fmt.Errorf("init %s: %w", step.name, err)
		}
	}

	a.logger.Info("assistant ready",
		"asr", a.cfg.WebSocketAddress,
		"mqtt", a.mqtt != nil,
		"status", a.web != nil,
	)
	return nil
}

func (a *App) initHardware(context.Context) error {
	a.strip, a.gpio = a.opts.Strip, a.opts.GPIO
	emulated := a.opts.Emulate || a.cfg.Emulated()

	if a.strip == nil {
		if emulated {
			a.strip = hardware.NewEmulatedStrip(a.logger)
		} else {
			a.strip = hardware.NewAPA102(a.logger)
		}
	}
	if a.gpio == nil {
		if emulated {
			a.gpio = hardware.NewEmulatedGPIO()
		} else {
			a.gpio = hardware.NewSysfsGPIO(a.logger)
		}
	}
	return nil
}

func (a *App) initEngine(context.Context) error {
	profile, err := a.cfg.Profile()
	if err != nil {
		return err
	}

	// The status server exists before the engine so state changes can be
	// broadcast from the first transition.
	if a.cfg.Status.Address != "" {
		a.web = web.NewServer(a.cfg.Status.Address, nil, a.Status, a.logger)
	}

	opts := []pixelring.Option{pixelring.WithLogger(a.logger)}
	if a.opts.Timing != nil {
		opts = append(opts, pixelring.WithTiming(*a.opts.Timing))
	}
	if a.opts.Emulate || a.cfg.Emulated() {
		opts = append(opts, pixelring.WithPowerSettle(0))
	}
	if a.web != nil {
		opts = append(opts, pixelring.WithObserver(a.web.NotifyState))
	}

	a.engine, err = pixelring.New(profile, a.strip, a.gpio, opts...)
	return err
}

func (a *App) initASR(ctx context.Context) error {
	client, err := asr.New(a.cfg.ASRConfig(), a.logger)
	if err != nil {
		return err
	}
	client.OnTranscript(func(t asr.Transcript) {
		if t.Final {
			a.logger.Info("transcript", "text", t.Text)
		}
	})
	a.asr = client
	return client.Connect(ctx)
}

func (a *App) initMQTT(ctx context.Context) error {
	if !a.cfg.MQTT.Enabled() {
		a.logger.Info("mqtt disabled")
		return nil
	}
	client, err := pubsub.New(a.cfg.PubSubConfig(), a.logger)
	if err != nil {
		return err
	}
	a.mqtt = client
	return client.Connect(ctx)
}

func (a *App) initPipeline(ctx context.Context) error {
	switch {
	case a.opts.Pipeline != nil:
		a.pipeline = a.opts.Pipeline

	case a.opts.MockAudio || a.cfg.Audio.Source == config.SourceMock:
		m, err := dsp.NewMock(a.cfg.DSPConfig(), a.logger)
		if err != nil {
			return err
		}
		a.pipeline, a.mock = m, m

	default:
		if a.mqtt == nil {
			return errors.New("sidecar audio needs mqtt")
		}
		r, err := dsp.NewRemote(a.cfg.DSPConfig(), a.mqtt, a.mqtt.Topics(), a.logger)
		if err != nil {
			return err
		}
		a.pipeline = r
	}
	return a.pipeline.Start(ctx)
}

func (a *App) initSession(context.Context) error {
	opts := []session.Option{session.WithLogger(a.logger)}
	if a.mqtt != nil {
		pcfg := a.cfg.PubSubConfig()
		opts = append(opts, session.WithSignaler(
			pubsub.NewSignaler(a.mqtt, a.mqtt.Topics(), pcfg.PublishTimeout, a.logger),
		))
	}
	if a.web != nil {
		opts = append(opts, session.WithObserver(a.web.NotifySession))
	}

	orch, err := session.New(a.cfg.SessionConfig(), a.pipeline, a.asr, a.engine.Controller(), opts...)
	if err != nil {
		return err
	}
	a.orch = orch
	return nil
}

func (a *App) initWeb(context.Context) error {
	if a.web == nil {
		return nil
	}
	a.web.SetStateRequester(a.engine.Controller())
	if a.mock != nil {
		a.web.SetHotwordTrigger(a.mock.Trigger)
	}
	return a.web.Start()
}

// Run blocks in the session loop until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.orch == nil {
		return errors.New("assistant: Run called before Init")
	}
	return a.orch.Run(ctx)
}

// Engine returns the LED ring engine.
func (a *App) Engine() *pixelring.Engine {
	return a.engine
}

// StatusAddr returns the status server address, or "" when disabled.
func (a *App) StatusAddr() string {
	if a.web == nil {
		return ""
	}
	return a.web.Addr()
}

// Status reports the current device status.
func (a *App) Status() web.Status {
	st := web.Status{
		Uptime: time.Since(a.started).Round(time.Second).String(),
	}
	if a.engine != nil {
		st.State = a.engine.State()
		st.Engine = a.engine.Stats()
	}
	if a.orch != nil {
		st.Session = a.orch.Snapshot()
		st.Sessions = a.orch.Stats()
	}
	if a.asr != nil {
		st.ASRConnected = a.asr.IsConnected()
	}
	if a.mqtt != nil {
		st.MQTTConnected = a.mqtt.IsConnected()
	}
	return st
}

// Shutdown releases everything in reverse dependency order: audio first,
// then the ring (joining its worker before the strip and power pin are
// released), then the transports and the status server. It is safe to
// call more than once.
func (a *App) Shutdown() error {
	a.shutdownOnce.Do(func() {
		var errs []error

		if a.pipeline != nil {
			if err := a.pipeline.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("stop audio: %w", err))
			}
		}
		if a.engine != nil {
			if err := a.engine.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close pixel ring: %w", err))
			}
		}
		if a.asr != nil {
			if err := a.asr.Disconnect(); err != nil {
				errs = append(errs, fmt.Errorf("disconnect asr: %w", err))
			}
		}
		if a.mqtt != nil {
			if err := a.mqtt.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close mqtt: %w", err))
			}
		}
		if a.web != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := a.web.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("stop status server: %w", err))
			}
			cancel()
		}

		a.shutdownErr = errors.Join(errs...)
		a.logger.Info("assistant stopped")
	})
	return a.shutdownErr
}

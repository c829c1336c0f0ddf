package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/teslashibe/go-respeaker/pkg/asr"
	"github.com/teslashibe/go-respeaker/pkg/dsp"
	"github.com/teslashibe/go-respeaker/pkg/hardware"
	"github.com/teslashibe/go-respeaker/pkg/pixelring"
	"github.com/teslashibe/go-respeaker/pkg/pubsub"
	"github.com/teslashibe/go-respeaker/pkg/session"
)

// Validate checks the whole document.
func (c *Config) Validate() error {
	u, err := url.Parse(c.WebSocketAddress)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("%w: webSocketAddress must be a ws:// or wss:// url, got %q", ErrInvalid, c.WebSocketAddress)
	}
	if c.PixelRing.LEDBrightness < 0 || c.PixelRing.LEDBrightness > 255 {
		return fmt.Errorf("%w: ledBrightness must be 0-255, got %d", ErrInvalid, c.PixelRing.LEDBrightness)
	}
	if _, err := c.Profile(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	sc := c.SessionConfig()
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	ac := c.ASRConfig()
	if err := ac.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.MQTT.Enabled() {
		pc := c.PubSubConfig()
		if err := pc.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	switch c.Audio.Source {
	case SourceMock:
	case SourceSidecar:
		if !c.MQTT.Enabled() {
			return fmt.Errorf("%w: audio source %q needs mqtt.address", ErrInvalid, SourceSidecar)
		}
	default:
		return fmt.Errorf("%w: unknown audio source %q", ErrInvalid, c.Audio.Source)
	}
	dc := c.DSPConfig()
	if err := dc.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log format must be text or json, got %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

// Emulated reports whether the hardware model is the in-memory emulator.
func (c *Config) Emulated() bool {
	return strings.EqualFold(c.Hardware.Model, "emulated")
}

// Profile builds the LED ring profile.
func (c *Config) Profile() (pixelring.Profile, error) {
	p := pixelring.DefaultProfile()
	p.Model = c.Hardware.Model
	p.LEDs = c.Hardware.LEDsAmount
	p.SPIBus = c.Hardware.SPIBus
	p.SPIDev = c.Hardware.SPIDev
	p.PowerPin = c.Hardware.Power.GPIOPin
	p.PowerLevel = c.Hardware.Power.GPIOVal
	p.MaxBrightness = uint8(c.PixelRing.LEDBrightness)
	p.MutedOnStart = c.PixelRing.IsMutedOnStart

	colors := []struct {
		state pixelring.State
		key   string
		value string
	}{
		{pixelring.Idle, "idleColor", c.PixelRing.IdleColor},
		{pixelring.Listening, "listenColor", c.PixelRing.ListenColor},
		{pixelring.Speaking, "speakColor", c.PixelRing.SpeakColor},
		{pixelring.EnteringMuted, "muteColor", c.PixelRing.MuteColor},
		{pixelring.EnteringUnmuted, "unmuteColor", c.PixelRing.UnmuteColor},
	}
	for _, col := range colors {
		v, err := hardware.ParseColor(col.value)
		if err != nil {
			return pixelring.Profile{}, fmt.Errorf("%s: %w", col.key, err)
		}
		p.Colors[col.state] = v
	}

	p.Enabled[pixelring.Idle] = c.PixelRing.OnIdle
	p.Enabled[pixelring.Listening] = c.PixelRing.OnListen
	p.Enabled[pixelring.Speaking] = c.PixelRing.OnSpeak
	p.Enabled[pixelring.EnteringMuted] = c.PixelRing.ToMute
	p.Enabled[pixelring.EnteringUnmuted] = c.PixelRing.ToUnmute

	if err := p.Validate(); err != nil {
		return pixelring.Profile{}, err
	}
	return p, nil
}

// SessionConfig builds the orchestrator config.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		ListeningTimeout:    time.Duration(c.Respeaker.ListeningTimeout) * time.Millisecond,
		WakeWordOffset:      time.Duration(c.Respeaker.WakeWordDetectionOffset) * time.Millisecond,
		ExitOnTransportLoss: c.Respeaker.ExitOnTransportLoss,
	}
}

// ASRConfig builds the recognizer client config.
func (c *Config) ASRConfig() asr.Config {
	cfg := asr.DefaultConfig()
	cfg.URL = c.WebSocketAddress
	cfg.SampleRate = c.Audio.SampleRate
	cfg.Reconnect = c.ASR.Reconnect
	if c.ASR.PingInterval > 0 {
		cfg.PingInterval = c.ASR.PingInterval.Std()
	}
	return cfg
}

// PubSubConfig builds the MQTT client config.
func (c *Config) PubSubConfig() pubsub.Config {
	cfg := pubsub.DefaultConfig()
	cfg.Broker = c.MQTT.Address
	cfg.Username = c.MQTT.User
	cfg.Password = c.MQTT.Password
	if c.MQTT.Prefix != "" {
		cfg.Prefix = c.MQTT.Prefix
	}
	if c.MQTT.WakeTopic != "" {
		cfg.WakeTopic = c.MQTT.WakeTopic
	}
	if c.MQTT.SleepTopic != "" {
		cfg.SleepTopic = c.MQTT.SleepTopic
	}
	return cfg
}

// DSPConfig builds the audio pipeline config.
func (c *Config) DSPConfig() dsp.Config {
	cfg := dsp.DefaultConfig()
	cfg.SampleRate = c.Audio.SampleRate
	return cfg
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/go-respeaker/pkg/hardware"
	"github.com/teslashibe/go-respeaker/pkg/pixelring"
)

const sampleJSON = `{
  "webSocketAddress": "ws://asr.local:2700",
  "respeaker": {"kwsModelName": "snowboy.umdl", "listeningTimeout": 5000,
                "wakeWordDetectionOffset": 250, "exitOnTransportLoss": true},
  "hardware": {"model": "respeaker_core_v2", "ledsAmount": 12, "spiBus": 0,
               "spiDev": 0, "power": {"gpioPin": 66, "gpioVal": 1}},
  "pixelRing": {"ledBrightness": 100, "onSpeak": false, "muteColor": "#ff8800",
                "isMutedOnStart": true},
  "mqtt": {"address": "tcp://broker:1883", "user": "pi", "wakeTopic": "home/wake"},
  "asr": {"pingInterval": "30s"}
}`

const sampleYAML = `
webSocketAddress: wss://asr.example.com/stt
respeaker:
  listeningTimeout: 6000
hardware:
  model: emulated
pixelRing:
  idleColor: teal
  toUnmute: false
mqtt:
  address: ""
audio:
  source: mock
asr:
  pingInterval: 15000
log:
  level: debug
  format: json
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func noEnv(string) string { return "" }

func TestLoad_JSON(t *testing.T) {
	t.Setenv(EnvWSAddress, "")
	t.Setenv(EnvMQTTAddress, "")
	t.Setenv(EnvLogLevel, "")

	cfg, err := Load(writeFile(t, "respeaker.json", sampleJSON))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.WebSocketAddress != "ws://asr.local:2700" {
		t.Errorf("WebSocketAddress = %q", cfg.WebSocketAddress)
	}
	if cfg.Respeaker.KWSModelName != "snowboy.umdl" {
		t.Errorf("KWSModelName = %q", cfg.Respeaker.KWSModelName)
	}
	if cfg.Audio.Source != SourceSidecar || cfg.Audio.SampleRate != 16000 {
		t.Errorf("audio defaults lost: %+v", cfg.Audio)
	}

	p, err := cfg.Profile()
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.PowerPin != 66 || p.PowerLevel != 1 || p.SPIDev != 0 || p.MaxBrightness != 100 {
		t.Errorf("profile = %+v", p)
	}
	if p.Enabled[pixelring.Speaking] || !p.Enabled[pixelring.Listening] {
		t.Errorf("enable flags = %v", p.Enabled)
	}
	if p.Colors[pixelring.EnteringMuted] != hardware.RGB(0xff, 0x88, 0x00) {
		t.Errorf("mute color = %v", p.Colors[pixelring.EnteringMuted])
	}
	if p.Colors[pixelring.Idle] != hardware.Green {
		t.Errorf("idle color default lost: %v", p.Colors[pixelring.Idle])
	}
	if p.InitialState() != pixelring.EnteringMuted {
		t.Errorf("InitialState() = %v", p.InitialState())
	}

	sc := cfg.SessionConfig()
	if sc.ListeningTimeout != 5*time.Second || sc.WakeWordOffset != 250*time.Millisecond || !sc.ExitOnTransportLoss {
		t.Errorf("session config = %+v", sc)
	}

	ac := cfg.ASRConfig()
	if ac.URL != "ws://asr.local:2700" || ac.PingInterval != 30*time.Second || ac.SampleRate != 16000 {
		t.Errorf("asr config = %+v", ac)
	}

	pc := cfg.PubSubConfig()
	if pc.Broker != "tcp://broker:1883" || pc.Username != "pi" || pc.WakeTopic != "home/wake" || pc.SleepTopic != "respeaker/led/sleep" {
		t.Errorf("pubsub config = %+v", pc)
	}
}

func TestLoad_YAML(t *testing.T) {
	t.Setenv(EnvWSAddress, "")
	t.Setenv(EnvMQTTAddress, "")
	t.Setenv(EnvLogLevel, "")

	cfg, err := Load(writeFile(t, "respeaker.yaml", sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Emulated() {
		t.Error("expected emulated hardware")
	}
	if cfg.MQTT.Enabled() {
		t.Error("mqtt should be disabled by an empty address")
	}
	if cfg.ASR.PingInterval.Std() != 15*time.Second {
		t.Errorf("PingInterval = %v", cfg.ASR.PingInterval.Std())
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}

	p, err := cfg.Profile()
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.Colors[pixelring.Idle] != hardware.Teal || p.Enabled[pixelring.EnteringUnmuted] {
		t.Errorf("profile = %+v", p)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv(EnvWSAddress, "ws://override:2700")
	t.Setenv(EnvMQTTAddress, "tcp://override:1883")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(writeFile(t, "respeaker.json", `{}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WebSocketAddress != "ws://override:2700" || cfg.MQTT.Address != "tcp://override:1883" || cfg.Log.Level != "warn" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv(EnvWSAddress, "")
	t.Setenv(EnvMQTTAddress, "")
	t.Setenv(EnvLogLevel, "")

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v", err)
	}
	if _, err := Load(writeFile(t, "bad.json", `{"respeaker":`)); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Load(writeFile(t, "bad.yml", "hardware: [1, 2")); err == nil {
		t.Error("expected yaml parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"http_asr", func(c *Config) { c.WebSocketAddress = "http://x" }, true},
		{"bad_color", func(c *Config) { c.PixelRing.SpeakColor = "mauve" }, true},
		{"brightness_range", func(c *Config) { c.PixelRing.LEDBrightness = 300 }, true},
		{"no_leds", func(c *Config) { c.Hardware.LEDsAmount = 0 }, true},
		{"no_timeout", func(c *Config) { c.Respeaker.ListeningTimeout = 0 }, true},
		{"sidecar_without_mqtt", func(c *Config) { c.MQTT.Address = "" }, true},
		{"mock_without_mqtt", func(c *Config) { c.MQTT.Address, c.Audio.Source = "", SourceMock }, false},
		{"unknown_source", func(c *Config) { c.Audio.Source = "alsa" }, true},
		{"bad_broker", func(c *Config) { c.MQTT.Address = "http://broker" }, true},
		{"bad_log_format", func(c *Config) { c.Log.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("error %v does not wrap ErrInvalid", err)
			}
		})
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{`{"asr": {"pingInterval": "1m"}}`, time.Minute},
		{`{"asr": {"pingInterval": 500}}`, 500 * time.Millisecond},
	}
	for _, tt := range tests {
		cfg, err := Parse([]byte(tt.in), "json")
		if err != nil {
			t.Fatalf("Parse(%s): %v", tt.in, err)
		}
		if got := cfg.ASR.PingInterval.Std(); got != tt.want {
			t.Errorf("Parse(%s) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := Parse([]byte(`{"asr": {"pingInterval": "soon"}}`), "json"); err == nil {
		t.Error("expected error for bad duration")
	}
}

func TestApplyEnv_Empty(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(noEnv)
	if cfg.WebSocketAddress != Default().WebSocketAddress {
		t.Error("empty environment must not change the config")
	}
}

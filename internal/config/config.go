// Package config loads the device configuration document and converts it
// into the per-package configs.
//
// The document is JSON, or YAML when the file ends in .yaml or .yml. Keys
// that are absent keep their defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Environment overrides.
const (
	EnvWSAddress   = "RESPEAKER_WS_ADDRESS"
	EnvMQTTAddress = "RESPEAKER_MQTT_ADDRESS"
	EnvLogLevel    = "RESPEAKER_LOG_LEVEL"
)

// Config is the whole configuration document.
type Config struct {
	WebSocketAddress string `json:"webSocketAddress" yaml:"webSocketAddress"`

	Respeaker Respeaker `json:"respeaker" yaml:"respeaker"`
	Hardware  Hardware  `json:"hardware" yaml:"hardware"`
	PixelRing PixelRing `json:"pixelRing" yaml:"pixelRing"`
	MQTT      MQTT      `json:"mqtt" yaml:"mqtt"`
	Audio     Audio     `json:"audio" yaml:"audio"`
	ASR       ASR       `json:"asr" yaml:"asr"`
	Status    Status    `json:"status" yaml:"status"`
	Log       Log       `json:"log" yaml:"log"`
}

// Respeaker holds session and DSP settings. Times are in milliseconds. The
// kws*, gain, agc, beam and wav keys belong to the DSP sidecar and are only
// passed through.
type Respeaker struct {
	KWSModelName            string  `json:"kwsModelName" yaml:"kwsModelName"`
	KWSSensitivity          float64 `json:"kwsSensitivity" yaml:"kwsSensitivity"`
	ListeningTimeout        int     `json:"listeningTimeout" yaml:"listeningTimeout"`
	WakeWordDetectionOffset int     `json:"wakeWordDetectionOffset" yaml:"wakeWordDetectionOffset"`
	GainLevel               int     `json:"gainLevel" yaml:"gainLevel"`
	AGC                     bool    `json:"agc" yaml:"agc"`
	SingleBeamOutput        bool    `json:"singleBeamOutput" yaml:"singleBeamOutput"`
	EnableWavLog            bool    `json:"enableWavLog" yaml:"enableWavLog"`
	ExitOnTransportLoss     bool    `json:"exitOnTransportLoss" yaml:"exitOnTransportLoss"`
}

// Hardware describes the LED ring.
type Hardware struct {
	Model      string `json:"model" yaml:"model"`
	LEDsAmount int    `json:"ledsAmount" yaml:"ledsAmount"`
	SPIBus     int    `json:"spiBus" yaml:"spiBus"`
	SPIDev     int    `json:"spiDev" yaml:"spiDev"`
	Power      Power  `json:"power" yaml:"power"`
}

// Power is the LED supply pin. -1 disables it.
type Power struct {
	GPIOPin int `json:"gpioPin" yaml:"gpioPin"`
	GPIOVal int `json:"gpioVal" yaml:"gpioVal"`
}

// PixelRing holds per-state colors and enable flags.
type PixelRing struct {
	LEDBrightness  int    `json:"ledBrightness" yaml:"ledBrightness"`
	OnIdle         bool   `json:"onIdle" yaml:"onIdle"`
	OnListen       bool   `json:"onListen" yaml:"onListen"`
	OnSpeak        bool   `json:"onSpeak" yaml:"onSpeak"`
	ToMute         bool   `json:"toMute" yaml:"toMute"`
	ToUnmute       bool   `json:"toUnmute" yaml:"toUnmute"`
	IdleColor      string `json:"idleColor" yaml:"idleColor"`
	ListenColor    string `json:"listenColor" yaml:"listenColor"`
	SpeakColor     string `json:"speakColor" yaml:"speakColor"`
	MuteColor      string `json:"muteColor" yaml:"muteColor"`
	UnmuteColor    string `json:"unmuteColor" yaml:"unmuteColor"`
	IsMutedOnStart bool   `json:"isMutedOnStart" yaml:"isMutedOnStart"`
}

// MQTT is the broker connection. An empty address disables MQTT.
type MQTT struct {
	Address    string `json:"address" yaml:"address"`
	User       string `json:"user" yaml:"user"`
	Password   string `json:"password" yaml:"password"`
	WakeTopic  string `json:"wakeTopic" yaml:"wakeTopic"`
	SleepTopic string `json:"sleepTopic" yaml:"sleepTopic"`
	Prefix     string `json:"prefix" yaml:"prefix"`
}

// Enabled reports whether a broker is configured.
func (m MQTT) Enabled() bool {
	return m.Address != ""
}

// Audio sources.
const (
	SourceSidecar = "sidecar"
	SourceMock    = "mock"
)

// Audio selects the audio pipeline.
type Audio struct {
	Source     string `json:"source" yaml:"source"`
	SampleRate int    `json:"sampleRate" yaml:"sampleRate"`
}

// ASR holds recognizer transport settings beyond its address.
type ASR struct {
	PingInterval Duration `json:"pingInterval" yaml:"pingInterval"`
	Reconnect    bool     `json:"reconnect" yaml:"reconnect"`
}

// Status is the HTTP status server. An empty address disables it.
type Status struct {
	Address string `json:"address" yaml:"address"`
}

// Log configures logging.
type Log struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns the configuration used for absent keys.
func Default() Config {
	return Config{
		WebSocketAddress: "ws://localhost:2700",
		Respeaker: Respeaker{
			KWSSensitivity:      0.5,
			ListeningTimeout:    8000,
			GainLevel:           10,
			AGC:                 true,
			ExitOnTransportLoss: true,
		},
		Hardware: Hardware{
			Model:      "respeaker_v2",
			LEDsAmount: 12,
			SPIBus:     0,
			SPIDev:     1,
			Power:      Power{GPIOPin: -1, GPIOVal: -1},
		},
		PixelRing: PixelRing{
			LEDBrightness: 31,
			OnIdle:        true,
			OnListen:      true,
			OnSpeak:       true,
			ToMute:        true,
			ToUnmute:      true,
			IdleColor:     "green",
			ListenColor:   "blue",
			SpeakColor:    "purple",
			MuteColor:     "yellow",
			UnmuteColor:   "green",
		},
		MQTT: MQTT{
			Address:    "tcp://localhost:1883",
			WakeTopic:  "respeaker/led/wake",
			SleepTopic: "respeaker/led/sleep",
			Prefix:     "respeaker",
		},
		Audio: Audio{
			Source:     SourceSidecar,
			SampleRate: 16000,
		},
		ASR: ASR{
			PingInterval: Duration(45 * time.Second),
		},
		Status: Status{Address: ":8080"},
		Log:    Log{Level: "info", Format: "text"},
	}
}

// Load reads, overrides from the environment and validates the document at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg, err := Parse(data, formatOf(path))
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes a document on top of the defaults. format is "json" or "yaml".
func Parse(data []byte, format string) (Config, error) {
	cfg := Default()
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse yaml: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse json: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported format %q", format)
	}
	return cfg, nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// ApplyEnv applies the RESPEAKER_* overrides.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvWSAddress); v != "" {
		c.WebSocketAddress = v
	}
	if v := getenv(EnvMQTTAddress); v != "" {
		c.MQTT.Address = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// Duration accepts "45s" style strings or a number of milliseconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalJSON encodes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON decodes a string or millisecond count.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return d.parse(s)
	}
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("duration must be a string or milliseconds: %s", b)
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

// UnmarshalYAML decodes a string or millisecond count.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var ms int64
	if err := n.Decode(&ms); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

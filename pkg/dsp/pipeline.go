// Package dsp is the boundary to the microphone-array audio pipeline. The
// pipeline does wake-word spotting, beamforming and direction-of-arrival
// estimation; this package only consumes its output.
package dsp

import (
	"context"
	"errors"
	"time"
)

// ErrStopped is returned by Next once the pipeline is stopped.
var ErrStopped = errors.New("dsp: pipeline stopped")

// Chunk is one block of processed audio.
type Chunk struct {
	// PCM is 16-bit little-endian mono audio.
	PCM []byte

	// Hotword is 0 when no wake word fired in this chunk, otherwise the
	// 1-based index of the keyword model that fired.
	Hotword int
}

// Pipeline produces processed audio chunks.
type Pipeline interface {
	// Start begins producing chunks. It returns an error if the pipeline
	// cannot be brought up.
	Start(ctx context.Context) error

	// Next blocks until the next chunk is available.
	Next(ctx context.Context) (Chunk, error)

	// Direction returns the last estimated speaker angle in degrees.
	Direction() int

	// Stop halts the pipeline. It is safe to call Stop multiple times.
	Stop() error
}

// Config holds pipeline settings shared by implementations.
type Config struct {
	SampleRate     int           `yaml:"sample_rate" json:"sample_rate"`
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`

	// QueueSize is how many chunks are buffered before the oldest is dropped.
	QueueSize int `yaml:"queue_size" json:"queue_size"`
}

// DefaultConfig returns 16kHz audio in 32ms chunks.
func DefaultConfig() Config {
	return Config{
		SampleRate:     16000,
		BufferDuration: 32 * time.Millisecond,
		QueueSize:      64,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return errors.New("dsp: sample_rate must be positive")
	}
	if c.BufferDuration <= 0 {
		return errors.New("dsp: buffer_duration must be positive")
	}
	if c.QueueSize <= 0 {
		return errors.New("dsp: queue_size must be positive")
	}
	return nil
}

// BufferSize returns samples per chunk.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// Stats holds pipeline statistics.
type Stats struct {
	Chunks    int64 `json:"chunks"`
	Hotwords  int64 `json:"hotwords"`
	Overruns  int64 `json:"overruns"`
	Malformed int64 `json:"malformed"`

	// Converted counts frames downmixed or resampled on arrival.
	Converted int64 `json:"converted"`

	// Level is the mean power of the last frame, 0 to 1.
	Level float64 `json:"level"`

	Direction int `json:"direction"`
}

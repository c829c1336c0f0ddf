package pubsub

import (
	"fmt"
	"strings"
)

// TopicAudioFrame carries encoded AudioFrames from the DSP sidecar.
const TopicAudioFrame = "audio/frame"

// TopicAudioDOA carries JSON direction-of-arrival readings.
const TopicAudioDOA = "audio/doa"

// Topics builds fully-qualified topic names.
type Topics struct {
	prefix string
	wake   string
	sleep  string
}

// NewTopics creates a Topics helper from the config.
func NewTopics(cfg Config) *Topics {
	return &Topics{
		prefix: cfg.Prefix,
		wake:   cfg.WakeTopic,
		sleep:  cfg.SleepTopic,
	}
}

// Wake is where wake-word detections are announced.
func (t *Topics) Wake() string {
	return t.wake
}

// Sleep is where the end of a listening session is announced.
func (t *Topics) Sleep() string {
	return t.sleep
}

// AudioFrame returns the full audio frame topic path.
func (t *Topics) AudioFrame() string {
	return fmt.Sprintf("%s/%s", t.prefix, TopicAudioFrame)
}

// AudioDOA returns the full DOA topic path.
func (t *Topics) AudioDOA() string {
	return fmt.Sprintf("%s/%s", t.prefix, TopicAudioDOA)
}

// Match reports whether topic matches the subscription filter,
// honoring the + and # wildcards.
func Match(filter, topic string) bool {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")

	for i, f := range fs {
		if f == "#" {
			return true
		}
		if i >= len(ts) {
			return false
		}
		if f != "+" && f != ts[i] {
			return false
		}
	}
	return len(fs) == len(ts)
}

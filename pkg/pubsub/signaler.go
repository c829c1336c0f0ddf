package pubsub

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

// Publisher publishes a payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Signaler announces wake and sleep to other devices.
type Signaler struct {
	pub     Publisher
	wake    string
	sleep   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewSignaler creates a signaler publishing on the given topics.
func NewSignaler(pub Publisher, topics *Topics, timeout time.Duration, logger *slog.Logger) *Signaler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Signaler{
		pub:     pub,
		wake:    topics.Wake(),
		sleep:   topics.Sleep(),
		timeout: timeout,
		logger:  logger,
	}
}

// Wake publishes the speaker's angle in decimal.
func (s *Signaler) Wake(ctx context.Context, angle int) error {
	return s.publish(ctx, s.wake, []byte(strconv.Itoa(angle)))
}

// Sleep publishes an empty payload.
func (s *Signaler) Sleep(ctx context.Context) error {
	return s.publish(ctx, s.sleep, nil)
}

func (s *Signaler) publish(ctx context.Context, topic string, payload []byte) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.pub.Publish(ctx, topic, payload); err != nil {
		s.logger.Debug("signal publish failed", "topic", topic, "error", err)
		return err
	}
	return nil
}

package pubsub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-respeaker/internal/log"
	"github.com/teslashibe/go-respeaker/pkg/pubsub/pubsubtest"
)

type received struct {
	topic   string
	payload string
}

type recorder struct {
	mu  sync.Mutex
	got []received
}

func (r *recorder) handle(topic string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, received{topic, string(payload)})
}

func (r *recorder) messages() []received {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]received(nil), r.got...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testConfig(broker string) Config {
	cfg := DefaultConfig()
	cfg.Broker = broker
	cfg.ConnectTimeout = 2 * time.Second
	cfg.ConnectRetryDelay = 50 * time.Millisecond
	return cfg
}

func newConnected(t *testing.T, b *pubsubtest.Broker) *Client {
	t.Helper()
	c, err := New(testConfig(b.URL()), log.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return c
}

func TestClient_PublishSubscribe(t *testing.T) {
	b := pubsubtest.Start(t)
	sub := newConnected(t, b)
	pub := newConnected(t, b)

	if !sub.IsConnected() || !pub.IsConnected() {
		t.Fatal("expected both clients connected")
	}

	var rec recorder
	ctx := context.Background()
	if err := sub.Subscribe(ctx, "respeaker/led/+", rec.handle); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	sig := NewSignaler(pub, pub.Topics(), time.Second, log.Discard())
	if err := sig.Wake(ctx, 270); err != nil {
		t.Fatalf("Wake: %v", err)
	}
	if err := sig.Sleep(ctx); err != nil {
		t.Fatalf("Sleep: %v", err)
	}

	waitFor(t, "two messages", func() bool { return len(rec.messages()) == 2 })

	got := rec.messages()
	want := []received{
		{"respeaker/led/wake", "270"},
		{"respeaker/led/sleep", ""},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	if st := pub.Stats(); st.MessagesSent != 2 || st.PublishErrors != 0 {
		t.Errorf("publisher stats = %+v", st)
	}
	if st := sub.Stats(); st.MessagesReceived != 2 {
		t.Errorf("subscriber stats = %+v", st)
	}
}

func TestClient_AudioFrameOverBroker(t *testing.T) {
	b := pubsubtest.Start(t)
	c := newConnected(t, b)

	frames := make(chan AudioFrame, 1)
	err := c.Subscribe(context.Background(), c.Topics().AudioFrame(), func(_ string, payload []byte) {
		var f AudioFrame
		if err := f.Decode(payload); err == nil {
			frames <- f
		}
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	in := AudioFrame{SampleRate: 16000, Channels: 1, Hotword: 1, Samples: []int16{1, -2, 3}}
	b.Publish(t, "respeaker/audio/frame", in.Encode())

	select {
	case f := <-frames:
		if f.Hotword != 1 || f.SampleRate != 16000 || len(f.Samples) != 3 || f.Samples[1] != -2 {
			t.Errorf("decoded frame = %+v", f)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no frame received")
	}
}

func TestClient_NotConnected(t *testing.T) {
	c, err := New(testConfig("tcp://127.0.0.1:1"), log.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Publish(context.Background(), "x", nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := c.Connect(ctx); err == nil {
		t.Fatal("expected connect error")
	}
	if c.IsConnected() {
		t.Error("should not be connected")
	}
}

func TestClient_CloseIdempotent(t *testing.T) {
	b := pubsubtest.Start(t)
	c := newConnected(t, b)

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if c.IsConnected() {
		t.Error("should be disconnected")
	}
	if err := c.Publish(context.Background(), "x", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after Close = %v, want ErrClosed", err)
	}
	if err := c.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect after Close = %v, want ErrClosed", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"no_broker", func(c *Config) { c.Broker = "" }, true},
		{"ws_scheme", func(c *Config) { c.Broker = "ws://localhost:1883" }, true},
		{"tls_scheme", func(c *Config) { c.Broker = "ssl://localhost:8883" }, false},
		{"no_prefix", func(c *Config) { c.Prefix = "" }, true},
		{"no_wake_topic", func(c *Config) { c.WakeTopic = "" }, true},
		{"bad_qos", func(c *Config) { c.QoS = 3 }, true},
		{"short_keepalive", func(c *Config) { c.KeepAlive = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

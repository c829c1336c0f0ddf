// Package pubsubtest runs an in-process MQTT broker for tests.
package pubsubtest

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	mochimqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

// Broker is a running in-process broker.
type Broker struct {
	Server *mochimqtt.Server
	Addr   string
}

// URL returns the broker address as a tcp:// URL.
func (b *Broker) URL() string {
	return "tcp://" + b.Addr
}

// Publish injects a message as if sent by another client.
func (b *Broker) Publish(t testing.TB, topic string, payload []byte) {
	t.Helper()
	if err := b.Server.Publish(topic, payload, false, 0); err != nil {
		t.Fatalf("broker publish %s: %v", topic, err)
	}
}

// Start starts a broker on a free loopback port. It is closed when the test ends.
func Start(t testing.TB) *Broker {
	t.Helper()

	addr := findAvailablePort(t)
	srv := mochimqtt.New(&mochimqtt.Options{
		InlineClient: true,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err := srv.AddHook(new(auth.AllowHook), nil); err != nil {
		t.Fatalf("add auth hook: %v", err)
	}
	tcp := listeners.NewTCP(listeners.Config{ID: "tcp", Address: addr})
	if err := srv.AddListener(tcp); err != nil {
		t.Fatalf("add listener: %v", err)
	}

	go func() {
		_ = srv.Serve()
	}()
	t.Cleanup(func() { srv.Close() })

	waitListening(t, addr)
	return &Broker{Server: srv, Addr: addr}
}

func findAvailablePort(t testing.TB) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available port: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func waitListening(t testing.TB, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("broker did not start on %s", addr)
}

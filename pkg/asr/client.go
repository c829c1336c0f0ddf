package asr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrNotConnected is returned by SendBinary while no connection is up.
	ErrNotConnected = errors.New("asr: not connected")

	// ErrClosed is returned by Connect after Disconnect.
	ErrClosed = errors.New("asr: client closed")
)

// Client is a streaming ASR WebSocket client.
type Client struct {
	cfg    Config
	logger *slog.Logger
	dialer websocket.Dialer

	mu           sync.Mutex
	conn         *websocket.Conn
	writeMu      sync.Mutex
	onTranscript func(Transcript)

	connected atomic.Bool
	final     atomic.Bool
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// Stats
	framesSent   atomic.Int64
	bytesSent    atomic.Int64
	transcripts  atomic.Int64
	parseErrors  atomic.Int64
	reconnects   atomic.Int64
	disconnected atomic.Int64
}

// New creates a new ASR client. Call Connect to open the socket.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
		dialer: websocket.Dialer{
			HandshakeTimeout:  cfg.ConnectTimeout,
			EnableCompression: false,
		},
		done: make(chan struct{}),
	}, nil
}

// OnTranscript registers a callback for every decoded message.
// It runs on the reader goroutine.
func (c *Client) OnTranscript(fn func(Transcript)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTranscript = fn
}

// Connect dials the server and waits up to ConnectTimeout for the handshake.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.connected.Load() {
		return nil
	}

	c.logger.Info("connecting to ASR server", "url", c.cfg.URL)
	if err := c.dial(ctx); err != nil {
		return fmt.Errorf("asr: connect %s: %w", c.cfg.URL, err)
	}
	c.logger.Info("connected to ASR server", "url", c.cfg.URL)
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}

	if c.cfg.SampleRate > 0 {
		msg := map[string]any{"config": map[string]any{"sample_rate": c.cfg.SampleRate}}
		conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			conn.Close()
			return fmt.Errorf("send config: %w", err)
		}
	}

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.connected.Store(true)
	c.mu.Unlock()

	gone := make(chan struct{})
	c.wg.Add(2)
	go c.readLoop(conn, gone)
	go c.keepAlive(conn, gone)
	return nil
}

// readLoop decodes server messages until the connection fails.
func (c *Client) readLoop(conn *websocket.Conn, gone chan struct{}) {
	defer c.wg.Done()
	defer close(gone)

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			c.lost(conn, err)
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	t, err := ParseTranscript(data)
	if err != nil {
		c.parseErrors.Add(1)
		c.logger.Warn("unreadable ASR message", "error", err)
		return
	}

	if t.Partial != "" {
		c.logger.Debug("partial transcript", "text", t.Partial)
	}
	if t.Final {
		c.transcripts.Add(1)
		c.final.Store(true)
		c.logger.Info("final transcript", "text", t.Text, "words", len(t.Words))
	}

	c.mu.Lock()
	fn := c.onTranscript
	c.mu.Unlock()
	if fn != nil {
		fn(t)
	}
}

// keepAlive pings the server until the connection goes away.
func (c *Client) keepAlive(conn *websocket.Conn, gone <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return
		case <-c.done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.logger.Debug("ASR ping failed", "error", err)
				return
			}
		}
	}
}

// lost marks the connection down and, if configured, starts redialing.
func (c *Client) lost(conn *websocket.Conn, err error) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()

	if !current || c.closed.Load() {
		return
	}
	c.connected.Store(false)
	c.disconnected.Add(1)
	c.logger.Warn("ASR connection lost", "error", err)

	if c.cfg.Reconnect {
		c.wg.Add(1)
		go c.redial()
	}
}

func (c *Client) redial() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}

		c.reconnects.Add(1)
		if err := c.dial(context.Background()); err != nil {
			if errors.Is(err, ErrClosed) {
				return
			}
			c.logger.Warn("ASR reconnect failed", "error", err, "retry_in", c.cfg.ReconnectDelay)
			continue
		}
		c.logger.Info("ASR connection restored", "url", c.cfg.URL)
		return
	}
}

// SendBinary writes one audio frame.
func (c *Client) SendBinary(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || !c.connected.Load() {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("asr: send audio: %w", err)
	}

	c.framesSent.Add(1)
	c.bytesSent.Add(int64(len(data)))
	return nil
}

// IsConnected reports whether the socket is up.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// IsFinalTranscript reports whether a final transcript arrived since the
// last ResetTranscriptFlag.
func (c *Client) IsFinalTranscript() bool {
	return c.final.Load()
}

// ResetTranscriptFlag clears the final-transcript flag.
func (c *Client) ResetTranscriptFlag() {
	c.final.Store(false)
}

// Disconnect closes the socket and stops background goroutines.
// Safe to call more than once.
func (c *Client) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)

		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.connected.Store(false)
		c.mu.Unlock()

		if conn != nil {
			c.writeMu.Lock()
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			c.writeMu.Unlock()
			err = conn.Close()
		}
		c.wg.Wait()
		c.logger.Info("ASR client closed", "frames_sent", c.framesSent.Load())
	})
	return err
}

// Stats returns client statistics.
func (c *Client) Stats() Stats {
	return Stats{
		Connected:   c.connected.Load(),
		FramesSent:  c.framesSent.Load(),
		BytesSent:   c.bytesSent.Load(),
		Transcripts: c.transcripts.Load(),
		ParseErrors: c.parseErrors.Load(),
		Disconnects: c.disconnected.Load(),
		Reconnects:  c.reconnects.Load(),
	}
}

// Stats contains client statistics.
type Stats struct {
	Connected   bool  `json:"connected"`
	FramesSent  int64 `json:"frames_sent"`
	BytesSent   int64 `json:"bytes_sent"`
	Transcripts int64 `json:"transcripts"`
	ParseErrors int64 `json:"parse_errors"`
	Disconnects int64 `json:"disconnects"`
	Reconnects  int64 `json:"reconnects"`
}

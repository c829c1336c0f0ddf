package pubsub

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/packets"
	"github.com/eclipse/paho.golang/paho"
)

var (
	// ErrNotConnected is returned when publishing before Connect.
	ErrNotConnected = errors.New("pubsub: not connected")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("pubsub: client closed")
)

// Handler receives messages for a subscription.
type Handler func(topic string, payload []byte)

// Client provides a high-level interface to the MQTT broker.
type Client struct {
	cfg    Config
	logger *slog.Logger
	topics *Topics

	mu       sync.RWMutex
	cm       *autopaho.ConnectionManager
	cancel   context.CancelFunc
	handlers map[string]Handler
	closed   bool

	connected atomic.Bool

	// Stats
	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
	publishErrors    atomic.Int64
	connects         atomic.Int64
}

var _ Publisher = (*Client)(nil)

// New creates a new MQTT client.
// Call Connect() to establish the session.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:      cfg,
		logger:   logger,
		topics:   NewTopics(cfg),
		handlers: make(map[string]Handler),
	}, nil
}

// Connect establishes the broker session and waits for the first CONNACK.
// The connection manager keeps reconnecting in the background afterwards.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.cm != nil {
		return nil
	}

	u, err := url.Parse(c.cfg.Broker)
	if err != nil {
		return fmt.Errorf("pubsub: parse broker url: %w", err)
	}

	id := c.cfg.clientID()
	c.logger.Info("connecting to MQTT", "broker", c.cfg.Broker, "client_id", id)

	cliCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		AttemptConnection:             attemptConnection,
		CleanStartOnInitialConnection: true,
		KeepAlive:                     uint16(c.cfg.KeepAlive / time.Second),
		ConnectRetryDelay:             c.cfg.ConnectRetryDelay,
		ConnectTimeout:                c.cfg.ConnectTimeout,
		ConnectPacketBuilder:          c.setCreds,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			c.connected.Store(true)
			if c.connects.Add(1) > 1 {
				c.logger.Info("MQTT reconnected", "broker", c.cfg.Broker)
			}
			go c.resubscribe(cm)
		},
		OnConnectError: func(err error) {
			c.connected.Store(false)
			c.logger.Warn("MQTT connection failed", "broker", c.cfg.Broker, "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: id,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.dispatch,
			},
			OnClientError: func(err error) {
				c.connected.Store(false)
				c.logger.Warn("MQTT client error", "error", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				c.connected.Store(false)
				c.logger.Warn("MQTT server disconnected", "reason", d.ReasonCode)
			},
		},
	}

	runCtx, cancel := context.WithCancel(context.Background())
	cm, err := autopaho.NewConnection(runCtx, cliCfg)
	if err != nil {
		cancel()
		return fmt.Errorf("pubsub: start connection: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer waitCancel()
	if err := cm.AwaitConnection(waitCtx); err != nil {
		cancel()
		<-cm.Done()
		return fmt.Errorf("pubsub: connect %s: %w", c.cfg.Broker, err)
	}

	c.cm = cm
	c.cancel = cancel

	c.logger.Info("connected to MQTT", "broker", c.cfg.Broker)
	return nil
}

func (c *Client) setCreds(pc *paho.Connect, _ *url.URL) (*paho.Connect, error) {
	if c.cfg.Username == "" {
		pc.UsernameFlag = false
		pc.PasswordFlag = false
		pc.Username = ""
		pc.Password = nil
		return pc, nil
	}
	pc.UsernameFlag = true
	pc.Username = c.cfg.Username
	if c.cfg.Password != "" {
		pc.PasswordFlag = true
		pc.Password = []byte(c.cfg.Password)
	}
	return pc, nil
}

func attemptConnection(ctx context.Context, cc autopaho.ClientConfig, u *url.URL) (net.Conn, error) {
	switch strings.ToLower(u.Scheme) {
	case "mqtt", "tcp":
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", u.Host)
		if err != nil {
			return nil, err
		}
		return packets.NewThreadSafeConn(conn), nil
	case "ssl", "tls", "mqtts":
		d := tls.Dialer{Config: cc.TlsCfg}
		conn, err := d.DialContext(ctx, "tcp", u.Host)
		if err != nil {
			return nil, err
		}
		return packets.NewThreadSafeConn(conn), nil
	default:
		return nil, fmt.Errorf("unsupported scheme %q in %s", u.Scheme, u)
	}
}

// Topics returns the topics helper.
func (c *Client) Topics() *Topics {
	return c.topics
}

// IsConnected returns true while the broker session is up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cm != nil && !c.closed && c.connected.Load()
}

// Publish publishes data to a topic with the configured QoS.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.RLock()
	cm, closed := c.cm, c.closed
	c.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if cm == nil {
		return ErrNotConnected
	}

	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     c.cfg.QoS,
	}); err != nil {
		c.publishErrors.Add(1)
		return fmt.Errorf("pubsub: publish %s: %w", topic, err)
	}

	c.messagesSent.Add(1)
	return nil
}

// Subscribe registers handler for filter. Subscriptions made before Connect
// are sent once the session is up, and all are renewed after a reconnect.
// Filters may use the + and # wildcards.
func (c *Client) Subscribe(ctx context.Context, filter string, handler Handler) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.handlers[filter] = handler
	cm := c.cm
	c.mu.Unlock()

	if cm == nil {
		return nil
	}
	if _, err := cm.Subscribe(ctx, c.subscribePacket(filter)); err != nil {
		return fmt.Errorf("pubsub: subscribe %s: %w", filter, err)
	}

	c.logger.Debug("subscribed", "filter", filter)
	return nil
}

func (c *Client) resubscribe(cm *autopaho.ConnectionManager) {
	c.mu.RLock()
	filters := c.filters()
	c.mu.RUnlock()
	if len(filters) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	for _, f := range filters {
		if _, err := cm.Subscribe(ctx, c.subscribePacket(f)); err != nil {
			c.logger.Error("MQTT resubscribe error", "filter", f, "error", err)
		}
	}
}

func (c *Client) filters() []string {
	out := make([]string, 0, len(c.handlers))
	for f := range c.handlers {
		out = append(out, f)
	}
	return out
}

func (c *Client) subscribePacket(filter string) *paho.Subscribe {
	return &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: filter, QoS: c.cfg.QoS},
		},
	}
}

func (c *Client) dispatch(pr paho.PublishReceived) (bool, error) {
	topic := pr.Packet.Topic
	c.messagesReceived.Add(1)

	c.mu.RLock()
	var matched []Handler
	for f, h := range c.handlers {
		if Match(f, topic) {
			matched = append(matched, h)
		}
	}
	c.mu.RUnlock()

	for _, h := range matched {
		h(topic, pr.Packet.Payload)
	}
	return len(matched) > 0, nil
}

// Close disconnects from the broker. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cm, cancel := c.cm, c.cancel
	c.cm = nil
	c.mu.Unlock()

	c.connected.Store(false)
	if cm == nil {
		return nil
	}

	ctx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()

	err := cm.Disconnect(ctx)
	cancel()
	<-cm.Done()

	c.logger.Info("MQTT client closed",
		"messages_sent", c.messagesSent.Load(),
		"messages_received", c.messagesReceived.Load(),
	)
	if err != nil {
		return fmt.Errorf("pubsub: disconnect: %w", err)
	}
	return nil
}

// Stats returns client statistics.
func (c *Client) Stats() Stats {
	return Stats{
		Connected:        c.IsConnected(),
		MessagesSent:     c.messagesSent.Load(),
		MessagesReceived: c.messagesReceived.Load(),
		PublishErrors:    c.publishErrors.Load(),
		Connects:         c.connects.Load(),
	}
}

// Stats holds client statistics.
type Stats struct {
	Connected        bool  `json:"connected"`
	MessagesSent     int64 `json:"messages_sent"`
	MessagesReceived int64 `json:"messages_received"`
	PublishErrors    int64 `json:"publish_errors"`
	Connects         int64 `json:"connects"`
}

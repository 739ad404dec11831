package mqtt

import (
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/hars-imp/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for the agent.
//
// Besides publish/subscribe it keeps a bounded queue of incoming events
// (messages and connection losses) that the main loop consumes through
// Events or Poll, and tracks asynchronous publishes so they can be flushed
// before a disconnect.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on reconnection.
type Client struct {
	client         pahomqtt.Client
	options        *pahomqtt.ClientOptions
	cfg            config.MQTTConfig
	will           *Will
	connectTimeout time.Duration

	// subscriptions maps queued topics to their QoS for re-subscription
	// on reconnect.
	subscriptions map[string]byte
	subMu         sync.RWMutex

	// connected tracks current connection state. lost is set by a connection
	// loss so the next connect is logged as a restore.
	connected bool
	lost      bool
	connMu    sync.RWMutex

	events  chan Event
	dropped uint64
	dropMu  sync.Mutex

	inflight   []pahomqtt.Token
	inflightMu sync.Mutex

	// logger is fixed at construction (WithLogger); nil disables logging.
	logger Logger
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS)
//  2. Configures Last Will and Testament (LWT) if WithWill was given
//  3. Attempts the connection and waits up to the connect timeout
//
// A failed attempt is torn down before returning so no background
// reconnect loop is left behind.
func Connect(cfg config.MQTTConfig, opts ...Option) (*Client, error) {
	buffer := cfg.EventBuffer
	if buffer < 1 {
		buffer = defaultEventBuffer
	}

	c := &Client{
		cfg:            cfg,
		connectTimeout: defaultConnectTimeout,
		subscriptions:  make(map[string]byte),
		events:         make(chan Event, buffer),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.options = buildClientOptions(cfg)
	configureLWT(c.options, c.will)

	c.options.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})

	c.options.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	c.client = pahomqtt.NewClient(c.options)
	token := c.client.Connect()
	if !token.WaitTimeout(c.connectTimeout) {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, c.connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnectHandler runs asynchronously and may not have executed
	// yet, so mark the client connected here.
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return c, nil
}

// handleConnect is called when the connection is established or restored.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	restored := c.lost
	c.lost = false
	c.connMu.Unlock()

	c.restoreSubscriptions()

	if restored && c.logger != nil {
		c.logger.Info("MQTT connection restored", "broker", c.cfg.Broker.Host)
	}
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.lost = true
	c.connMu.Unlock()

	if c.logger != nil {
		c.logger.Warn("MQTT connection lost", "broker", c.cfg.Broker.Host, "error", err)
	}
	c.enqueue(Event{Err: fmt.Errorf("%w: %w", ErrConnectionLost, err)})
}

// restoreSubscriptions re-subscribes to all tracked topics after reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for topic, qos := range c.subscriptions {
		// Errors during reconnection surface on the next connection loss.
		c.client.Subscribe(topic, qos, c.queueHandler)
	}
}

// Disconnect closes the connection after waiting up to quiesce milliseconds
// for in-progress work.
//
// It returns ErrAlreadyClosed when the connection was already gone, which
// callers should treat as expected (see IsExpectedDisconnect).
func (c *Client) Disconnect(quiesce uint) error {
	if c.client == nil {
		return ErrAlreadyClosed
	}

	open := c.client.IsConnectionOpen()
	c.client.Disconnect(quiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	if !open {
		return ErrAlreadyClosed
	}
	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// queueHandler copies an incoming message onto the event queue. It runs on
// paho's router goroutine and never blocks.
func (c *Client) queueHandler(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil && c.logger != nil {
			c.logger.Error("MQTT handler panic recovered",
				"topic", msg.Topic(),
				"panic", r,
			)
		}
	}()

	// The queued event outlives the paho message.
	payload := msg.Payload()
	body := make([]byte, len(payload))
	copy(body, payload)
	c.enqueue(Event{Topic: msg.Topic(), Payload: body})
}

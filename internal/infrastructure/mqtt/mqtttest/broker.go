// Package mqtttest runs an in-process MQTT broker for tests.
package mqtttest

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mqttserver "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/nerrad567/hars-imp/internal/infrastructure/config"
)

// Message is a publish observed by the broker.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
	QoS      byte
}

// Broker is a mochi-mqtt server listening on a loopback port.
type Broker struct {
	Server *mqttserver.Server
	Host   string
	Port   int

	subID atomic.Int32
}

// Start launches a broker and stops it when the test ends.
func Start(t testing.TB) *Broker {
	t.Helper()

	port := freePort(t)
	server := mqttserver.New(&mqttserver.Options{InlineClient: true})
	server.Log = slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		t.Fatalf("adding auth hook: %v", err)
	}

	tcp := listeners.NewTCP(listeners.Config{
		ID:      fmt.Sprintf("t%d", port),
		Address: fmt.Sprintf("127.0.0.1:%d", port),
	})
	if err := server.AddListener(tcp); err != nil {
		t.Fatalf("adding listener: %v", err)
	}

	go func() {
		_ = server.Serve() //nolint:errcheck // failures surface as connect errors
	}()

	b := &Broker{Server: server, Host: "127.0.0.1", Port: port}
	t.Cleanup(func() {
		_ = server.Close() //nolint:errcheck // test teardown
	})

	waitListening(t, b.Addr())
	return b
}

// Addr returns host:port.
func (b *Broker) Addr() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}

// Config returns an MQTT config pointing at the broker.
func (b *Broker) Config(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     b.Host,
			Port:     b.Port,
			ClientID: clientID,
		},
		QoS:         1,
		KeepAlive:   30,
		EventBuffer: 16,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     2,
		},
	}
}

// Publish injects a message as if another client had sent it.
func (b *Broker) Publish(t testing.TB, topic string, payload []byte, retained bool) {
	t.Helper()
	if err := b.Server.Publish(topic, payload, retained, 0); err != nil {
		t.Fatalf("broker publish %s: %v", topic, err)
	}
}

// Capture records every message matching filter from now on.
func (b *Broker) Capture(t testing.TB, filter string) *Capture {
	t.Helper()
	c := &Capture{}
	id := int(b.subID.Add(1))
	err := b.Server.Subscribe(filter, id, func(_ *mqttserver.Client, _ packets.Subscription, pk packets.Packet) {
		c.add(Message{
			Topic:    pk.TopicName,
			Payload:  append([]byte(nil), pk.Payload...),
			Retained: pk.FixedHeader.Retain,
			QoS:      pk.FixedHeader.Qos,
		})
	})
	if err != nil {
		t.Fatalf("inline subscribe %s: %v", filter, err)
	}
	return c
}

// Capture collects messages seen by an inline subscription.
type Capture struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *Capture) add(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
}

// Messages returns a snapshot of what has been captured.
func (c *Capture) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.msgs...)
}

// Wait blocks until at least n messages were captured or timeout passes.
func (c *Capture) Wait(t testing.TB, n int, timeout time.Duration) []Message {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		msgs := c.Messages()
		if len(msgs) >= n {
			return msgs
		}
		if time.Now().After(deadline) {
			t.Fatalf("captured %d message(s), want %d", len(msgs), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func freePort(t testing.TB) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port //nolint:forcetypeassert // tcp listener
}

func waitListening(t testing.TB, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			_ = conn.Close() //nolint:errcheck // probe only
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("broker did not start on %s: %v", addr, err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

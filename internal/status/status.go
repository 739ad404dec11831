// Package status publishes the agent's power state to Home Assistant.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/hars-imp/internal/infrastructure/mqtt"
)

// Value is a status shown on the Home Assistant status sensor.
type Value string

// Status values.
const (
	On        Value = "On"
	Off       Value = "Off"
	Suspended Value = "Suspended"
)

// DefaultTimeout bounds a single status publish.
const DefaultTimeout = 5 * time.Second

// Publisher is the subset of *mqtt.Client used here.
type Publisher interface {
	PublishAsync(topic string, payload []byte, qos byte, retained bool) (pahomqtt.Token, error)
}

// payload is the JSON body read by the sensor's value template.
type payload struct {
	Status Value `json:"status"`
}

// Payload returns the JSON body for v.
func Payload(v Value) []byte {
	b, _ := json.Marshal(payload{Status: v}) //nolint:errcheck // cannot fail for a string field
	return b
}

// StatusPublisher publishes status values for one host.
type StatusPublisher struct {
	client  Publisher
	topic   string
	timeout time.Duration
}

// NewPublisher creates a StatusPublisher. A non-positive timeout uses DefaultTimeout.
func NewPublisher(client Publisher, host string, timeout time.Duration) *StatusPublisher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &StatusPublisher{
		client:  client,
		topic:   mqtt.Topics{Host: host}.Status(),
		timeout: timeout,
	}
}

// Topic returns the status state topic.
func (p *StatusPublisher) Topic() string {
	return p.topic
}

// Publish sends v at QoS 0, not retained, and waits up to the timeout for
// it to leave the client. The publish stays tracked by the client after a
// timeout so a later flush can still send it.
func (p *StatusPublisher) Publish(ctx context.Context, v Value) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	token, err := p.client.PublishAsync(p.topic, Payload(v), 0, false)
	if err != nil {
		return fmt.Errorf("publishing status %s: %w", v, err)
	}
	if err := mqtt.WaitToken(ctx, token); err != nil {
		return fmt.Errorf("publishing status %s: %w", v, err)
	}
	return nil
}

package mqtt

import (
	"context"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20 // 1MB

func validatePublish(topic string, payload []byte, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	return nil
}

// Publish sends a message and waits for it to complete.
//
// QoS Levels:
//   - 0: At most once (fire and forget)
//   - 1: At least once (guaranteed delivery, may duplicate)
//   - 2: Exactly once (guaranteed, no duplicates, higher overhead)
//
// Retained messages are used for discovery and switch state so Home
// Assistant sees them after a restart. Status and metrics are not retained.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validatePublish(topic, payload, qos); err != nil {
		return err
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishAsync queues a message and returns without waiting for it to be
// sent. The publish is tracked until Flush sees it complete.
func (c *Client) PublishAsync(topic string, payload []byte, qos byte, retained bool) (pahomqtt.Token, error) {
	if err := validatePublish(topic, payload, qos); err != nil {
		return nil, err
	}

	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)

	c.inflightMu.Lock()
	c.inflight = append(pruneDone(c.inflight), token)
	c.inflightMu.Unlock()

	return token, nil
}

// Pending returns the number of tracked publishes not yet complete.
func (c *Client) Pending() int {
	c.inflightMu.Lock()
	defer c.inflightMu.Unlock()
	c.inflight = pruneDone(c.inflight)
	return len(c.inflight)
}

// Flush waits for every tracked asynchronous publish to complete or for ctx
// to end. It returns the first publish error seen.
func (c *Client) Flush(ctx context.Context) error {
	c.inflightMu.Lock()
	tokens := c.inflight
	c.inflight = nil
	c.inflightMu.Unlock()

	var firstErr error
	for i, token := range tokens {
		select {
		case <-token.Done():
			if err := token.Error(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("%w: %w", ErrPublishFailed, err)
			}
		case <-ctx.Done():
			// Put back what we did not get to.
			c.inflightMu.Lock()
			c.inflight = append(c.inflight, tokens[i:]...)
			c.inflightMu.Unlock()
			return fmt.Errorf("%w: flush: %w", ErrTimeout, ctx.Err())
		}
	}
	return firstErr
}

// WaitToken waits for token to complete or ctx to end.
func WaitToken(ctx context.Context, token pahomqtt.Token) error {
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("%w: %w", ErrPublishFailed, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
}

func pruneDone(tokens []pahomqtt.Token) []pahomqtt.Token {
	live := tokens[:0]
	for _, t := range tokens {
		select {
		case <-t.Done():
		default:
			live = append(live, t)
		}
	}
	return live
}

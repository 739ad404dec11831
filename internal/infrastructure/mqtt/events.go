package mqtt

import (
	"context"
	"errors"
	"io"
	"strings"
	"syscall"
)

// Event is one item from the client's incoming queue: either a message on
// a queued subscription or a transport error.
type Event struct {
	Topic   string
	Payload []byte
	Err     error
}

// IsMessage reports whether the event carries a message.
func (e Event) IsMessage() bool {
	return e.Err == nil && e.Topic != ""
}

// Events returns the incoming event queue for use in a select loop.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Dropped returns how many events were discarded because the queue was full.
func (c *Client) Dropped() uint64 {
	c.dropMu.Lock()
	defer c.dropMu.Unlock()
	return c.dropped
}

// enqueue adds ev without blocking, discarding the oldest event when full.
func (c *Client) enqueue(ev Event) {
	for {
		select {
		case c.events <- ev:
			return
		default:
		}

		select {
		case old := <-c.events:
			c.dropMu.Lock()
			c.dropped++
			c.dropMu.Unlock()
			if logger := c.logger; logger != nil {
				logger.Warn("MQTT event queue full, dropping oldest", "topic", old.Topic)
			}
		default:
		}
	}
}

// Poll flushes in-flight publishes and then waits for the next event.
//
// A transport-error event is returned as an error. ctx bounds the whole call.
func (c *Client) Poll(ctx context.Context) (Event, error) {
	if err := c.Flush(ctx); err != nil {
		return Event{}, err
	}

	select {
	case ev := <-c.events:
		if ev.Err != nil {
			return ev, ev.Err
		}
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// IsExpectedDisconnect reports whether err describes a connection the peer
// already closed. Such errors are normal while disconnecting and are not
// failures.
func IsExpectedDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAlreadyClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection closed by peer") ||
		strings.Contains(msg, "ConnectionAborted")
}

package power

import (
	"context"
	"errors"
	"sync"
)

// DefaultBusCapacity is the per-subscriber backlog before the oldest event is dropped.
const DefaultBusCapacity = 16

// Bus broadcasts Events to every Subscriber.
//
// Publish never blocks. Each subscriber has its own bounded backlog; when it
// is full the oldest event is discarded and the subscriber's lag counter is
// incremented.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Bus struct {
	mu       sync.Mutex
	capacity int
	subs     map[*Subscriber]struct{}
	closed   bool
}

// NewBus creates a bus with the given per-subscriber capacity.
// A capacity below 1 uses DefaultBusCapacity.
func NewBus(capacity int) *Bus {
	if capacity < 1 {
		capacity = DefaultBusCapacity
	}
	return &Bus{
		capacity: capacity,
		subs:     make(map[*Subscriber]struct{}),
	}
}

// Subscribe registers a new receiver. It only sees events published after
// this call. Subscribing to a closed bus returns a receiver that reports
// ErrClosed immediately.
func (b *Bus) Subscribe() *Subscriber {
	s := &Subscriber{
		bus:    b,
		buf:    make([]Event, 0, b.capacity),
		notify: make(chan struct{}, 1),
		logger: noopLogger{},
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.closed = true
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Publish delivers ev to every current subscriber and returns how many
// received it. It returns ErrClosed after Close.
func (b *Bus) Publish(ev Event) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}
	for s := range b.subs {
		s.push(ev, b.capacity)
	}
	return len(b.subs), nil
}

// SubscriberCount returns the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close permanently closes the bus. Subscribers drain what they already
// hold and then receive ErrClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.close()
	}
	b.subs = nil
}

func (b *Bus) unsubscribe(s *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, s)
}

// Subscriber is one receiving end of a Bus.
type Subscriber struct {
	bus    *Bus
	logger Logger

	mu     sync.Mutex
	buf    []Event
	lagged uint64
	closed bool
	notify chan struct{}
}

// SetLogger sets the logger used to report lag in Next.
func (s *Subscriber) SetLogger(logger Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

func (s *Subscriber) push(ev Event, capacity int) {
	s.mu.Lock()
	if len(s.buf) == capacity {
		s.buf = s.buf[1:]
		s.lagged++
	}
	s.buf = append(s.buf, ev)
	s.mu.Unlock()
	s.wake()
}

func (s *Subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wake()
}

func (s *Subscriber) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Recv waits for the next event.
//
// It returns a *LagError (and no event) once after events were dropped, then
// continues with the oldest event still held. It returns ErrClosed when the
// bus is closed and nothing is left to read, or ctx.Err() if ctx ends first.
func (s *Subscriber) Recv(ctx context.Context) (Event, error) {
	for {
		s.mu.Lock()
		if s.lagged > 0 {
			n := s.lagged
			s.lagged = 0
			s.mu.Unlock()
			return 0, &LagError{Skipped: n}
		}
		if len(s.buf) > 0 {
			ev := s.buf[0]
			s.buf = s.buf[1:]
			s.mu.Unlock()
			return ev, nil
		}
		if s.closed {
			s.mu.Unlock()
			return 0, ErrClosed
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Next is Recv with lag handling: a lag is logged and exactly one more
// receive is attempted.
func (s *Subscriber) Next(ctx context.Context) (Event, error) {
	ev, err := s.Recv(ctx)

	var lag *LagError
	if errors.As(err, &lag) {
		s.mu.Lock()
		logger := s.logger
		s.mu.Unlock()
		logger.Warn("power event receiver lagged", "skipped", lag.Skipped)
		return s.Recv(ctx)
	}
	return ev, err
}

// Events forwards events from Next onto a channel for use in a select loop.
// The channel is closed when the bus closes or ctx ends.
func (s *Subscriber) Events(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			ev, err := s.Next(ctx)
			if err != nil {
				if errors.Is(err, ErrClosed) || ctx.Err() != nil {
					return
				}
				// A second lag in a row; keep reading.
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Close detaches the subscriber from its bus.
func (s *Subscriber) Close() {
	s.bus.unsubscribe(s)
	s.close()
}

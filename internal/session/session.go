package session

import (
	"context"
	"sync"

	"github.com/nerrad567/hars-imp/internal/components"
	"github.com/nerrad567/hars-imp/internal/infrastructure/mqtt"
	"github.com/nerrad567/hars-imp/internal/status"
)

// Session is one live broker connection.
type Session struct {
	client *mqtt.Client
	set    *components.Set
	status *status.StatusPublisher
	logger Logger

	mu          sync.Mutex
	stopMonitor context.CancelFunc
	monitorDone chan struct{}
}

// runner is the part of *sysmon.Monitor a session drives.
type runner interface {
	Run(ctx context.Context)
}

func (s *Session) startMonitor(r runner) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.stopMonitor = cancel
	s.monitorDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		r.Run(ctx)
	}()
}

// StopMonitor cancels the metrics task without waiting for it. It is safe
// to call more than once.
func (s *Session) StopMonitor() {
	s.mu.Lock()
	cancel := s.stopMonitor
	s.stopMonitor = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.logger.Debug("metrics task stopped")
	}
}

// MonitorDone is closed when the metrics task has exited. It is nil when
// monitoring is disabled.
func (s *Session) MonitorDone() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitorDone
}

// PublishStatus publishes a status value, bounded by the status timeout.
func (s *Session) PublishStatus(ctx context.Context, v status.Value) error {
	s.logger.Info("publishing status", "status", string(v))
	return s.status.Publish(ctx, v)
}

// Poll flushes pending publishes and consumes at most one queued event.
// A queued transport error is returned; a queued message is discarded.
func (s *Session) Poll(ctx context.Context) error {
	if err := s.client.Flush(ctx); err != nil {
		return err
	}

	select {
	case ev := <-s.client.Events():
		if ev.Err != nil {
			return ev.Err
		}
		s.logger.Debug("discarding message while draining", "topic", ev.Topic)
	default:
	}
	return nil
}

// Disconnect closes the connection. mqtt.ErrAlreadyClosed is returned when
// the peer had already closed it.
func (s *Session) Disconnect() error {
	return s.client.Disconnect(mqtt.DefaultDisconnectQuiesce)
}

// IsConnected reports whether the client is connected.
func (s *Session) IsConnected() bool {
	return s.client.IsConnected()
}

// Events returns the incoming message and transport-error queue.
func (s *Session) Events() <-chan mqtt.Event {
	return s.client.Events()
}

// HandleMessage routes an incoming message to its component. Messages on
// topics no component owns are logged and ignored.
func (s *Session) HandleMessage(ctx context.Context, ev mqtt.Event) {
	handled, err := s.set.Dispatch(ctx, ev.Topic, ev.Payload)
	if !handled {
		s.logger.Debug("no handler for topic", "topic", ev.Topic)
		return
	}
	if err != nil {
		s.logger.Warn("command failed", "topic", ev.Topic, "error", err)
	}
}

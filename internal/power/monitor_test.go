package power

import (
	"context"
	"testing"
	"time"
)

func runMonitor(t *testing.T, m *Monitor) (context.CancelFunc, <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	return cancel, done
}

func assertStillRunning(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
		t.Fatal("Run returned before its context ended")
	case <-time.After(50 * time.Millisecond):
	}
}

func assertStops(t *testing.T, cancel context.CancelFunc, done <-chan struct{}) {
	t.Helper()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func recvWithin(t *testing.T, sub *Subscriber) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	return ev
}

func TestMonitor_PublishesEvents(t *testing.T) {
	conn := newFakeConn()
	bus := NewBus(0)
	sub := bus.Subscribe()
	m := NewMonitor(&fakeDialer{conns: []*fakeConn{conn}}, bus, nil)
	cancel, done := runMonitor(t, m)

	conn.signals <- Signal{Name: prepareForSleepMember, Body: []any{true}}
	conn.signals <- Signal{Name: prepareForSleepMember, Body: []any{false}}

	if ev := recvWithin(t, sub); ev != Suspending {
		t.Errorf("first event = %v, want Suspending", ev)
	}
	if ev := recvWithin(t, sub); ev != Resuming {
		t.Errorf("second event = %v, want Resuming", ev)
	}

	assertStops(t, cancel, done)
}

func TestMonitor_SkipsMalformedSignals(t *testing.T) {
	conn := newFakeConn()
	bus := NewBus(0)
	sub := bus.Subscribe()
	logger := &recordingLogger{}
	m := NewMonitor(&fakeDialer{conns: []*fakeConn{conn}}, bus, logger)
	cancel, done := runMonitor(t, m)

	conn.signals <- Signal{Name: prepareForSleepMember, Body: []any{"garbage"}}
	conn.signals <- Signal{Name: prepareForSleepMember}
	conn.signals <- Signal{Name: prepareForSleepMember, Body: []any{true}}

	if ev := recvWithin(t, sub); ev != Suspending {
		t.Errorf("event = %v, want Suspending after skipped signals", ev)
	}
	if logger.warnCount() != 2 {
		t.Errorf("warnings = %d, want 2", logger.warnCount())
	}

	assertStops(t, cancel, done)
}

func TestMonitor_IdlesWhenBusUnavailable(t *testing.T) {
	m := NewMonitor(&fakeDialer{err: ErrNoBusConnection}, NewBus(0), nil)
	cancel, done := runMonitor(t, m)

	assertStillRunning(t, done)
	assertStops(t, cancel, done)
}

func TestMonitor_IdlesWhenSubscriptionFails(t *testing.T) {
	conn := newFakeConn()
	conn.watchErr = ErrWatchFailed
	m := NewMonitor(&fakeDialer{conns: []*fakeConn{conn}}, NewBus(0), nil)
	cancel, done := runMonitor(t, m)

	assertStillRunning(t, done)
	assertStops(t, cancel, done)
	if !conn.closed {
		t.Error("connection not closed after Run returned")
	}
}

func TestMonitor_IdlesWhenConnectionLost(t *testing.T) {
	conn := newFakeConn()
	m := NewMonitor(&fakeDialer{conns: []*fakeConn{conn}}, NewBus(0), nil)
	cancel, done := runMonitor(t, m)

	close(conn.signals)

	assertStillRunning(t, done)
	assertStops(t, cancel, done)
}

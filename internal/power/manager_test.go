package power

import (
	"context"
	"errors"
	"testing"
)

func TestManager_AcquireConnectsLazily(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	m := NewManager(dialer)

	if dialer.dialCount() != 0 {
		t.Fatalf("NewManager dialed %d times, want 0", dialer.dialCount())
	}

	lock, err := m.Acquire(context.Background(), ClassSleep, "testing")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if lock.Class() != ClassSleep {
		t.Errorf("lock.Class() = %v, want sleep", lock.Class())
	}
	if !m.Held(ClassSleep) {
		t.Error("Held(sleep) = false after Acquire")
	}

	calls := conn.inhibitCalls()
	if len(calls) != 1 {
		t.Fatalf("Inhibit calls = %d, want 1", len(calls))
	}
	want := inhibitCall{what: "sleep", who: AppName, why: "testing", mode: "delay"}
	if calls[0] != want {
		t.Errorf("Inhibit(%+v), want %+v", calls[0], want)
	}

	// Second acquire reuses the connection.
	if _, err := m.Acquire(context.Background(), ClassShutdown, "testing"); err != nil {
		t.Fatalf("Acquire(shutdown) error = %v", err)
	}
	if dialer.dialCount() != 1 {
		t.Errorf("dials = %d, want 1", dialer.dialCount())
	}
	if got := conn.inhibitCalls()[1].what; got != "shutdown" {
		t.Errorf("second Inhibit what = %q, want shutdown", got)
	}
}

func TestManager_AcquireWithoutBus(t *testing.T) {
	m := NewManager(&fakeDialer{err: errFake})

	_, err := m.Acquire(context.Background(), ClassSleep, "testing")
	if !errors.Is(err, ErrNoBusConnection) {
		t.Fatalf("Acquire() error = %v, want ErrNoBusConnection", err)
	}
	if m.Held(ClassSleep) {
		t.Error("Held(sleep) = true after failed Acquire")
	}
}

func TestManager_AcquireRejected(t *testing.T) {
	conn := newFakeConn()
	conn.inhibitErr = errFake
	m := NewManager(&fakeDialer{conns: []*fakeConn{conn}})

	_, err := m.Acquire(context.Background(), ClassShutdown, "testing")
	if !errors.Is(err, ErrInhibitFailed) || !errors.Is(err, errFake) {
		t.Fatalf("Acquire() error = %v, want ErrInhibitFailed wrapping cause", err)
	}
}

func TestManager_ReleaseClosesHandleOnce(t *testing.T) {
	conn := newFakeConn()
	m := NewManager(&fakeDialer{conns: []*fakeConn{conn}})

	if _, err := m.Acquire(context.Background(), ClassSleep, "testing"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	m.Release(ClassSleep)
	m.Release(ClassSleep)

	if got := conn.handles[0].closes.Load(); got != 1 {
		t.Errorf("handle closed %d times, want 1", got)
	}
	if m.Held(ClassSleep) {
		t.Error("Held(sleep) = true after Release")
	}
}

func TestManager_ReleaseWhenNothingHeld(t *testing.T) {
	m := NewManager(&fakeDialer{err: errFake})

	// Must not panic or dial.
	m.Release(ClassSleep)
	m.Release(ClassShutdown)
}

func TestManager_ReacquireReplacesLock(t *testing.T) {
	conn := newFakeConn()
	m := NewManager(&fakeDialer{conns: []*fakeConn{conn}})
	ctx := context.Background()

	first, _ := m.Acquire(ctx, ClassSleep, "one") //nolint:errcheck
	if _, err := m.Acquire(ctx, ClassSleep, "two"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if got := conn.handles[0].closes.Load(); got != 1 {
		t.Errorf("replaced handle closed %d times, want 1", got)
	}
	if err := first.Release(); err != nil {
		t.Errorf("Release() on replaced lock error = %v", err)
	}
	if got := conn.handles[0].closes.Load(); got != 1 {
		t.Errorf("replaced handle closed %d times after extra Release, want 1", got)
	}
}

func TestManager_EnsureConnectionRedialsDroppedConn(t *testing.T) {
	first := newFakeConn()
	second := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{first, second}}
	m := NewManager(dialer)
	ctx := context.Background()

	if err := m.EnsureConnection(ctx); err != nil {
		t.Fatalf("EnsureConnection() error = %v", err)
	}
	if err := m.EnsureConnection(ctx); err != nil {
		t.Fatalf("EnsureConnection() error = %v", err)
	}
	if dialer.dialCount() != 1 {
		t.Fatalf("dials = %d, want 1 while connected", dialer.dialCount())
	}

	first.setConnected(false)
	if err := m.EnsureConnection(ctx); err != nil {
		t.Fatalf("EnsureConnection() after drop error = %v", err)
	}
	if dialer.dialCount() != 2 {
		t.Errorf("dials = %d, want 2 after drop", dialer.dialCount())
	}
	if !first.closed {
		t.Error("dropped connection was not closed")
	}
}

func TestManager_Close(t *testing.T) {
	conn := newFakeConn()
	m := NewManager(&fakeDialer{conns: []*fakeConn{conn}})
	ctx := context.Background()
	_, _ = m.Acquire(ctx, ClassSleep, "x")    //nolint:errcheck
	_, _ = m.Acquire(ctx, ClassShutdown, "y") //nolint:errcheck

	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	for i, h := range conn.handles {
		if h.closes.Load() != 1 {
			t.Errorf("handle %d closed %d times, want 1", i, h.closes.Load())
		}
	}
	if !conn.closed {
		t.Error("connection not closed")
	}
}

func TestClass_What(t *testing.T) {
	if ClassSleep.What() != "sleep" || ClassShutdown.What() != "shutdown" {
		t.Errorf("What() = %q, %q", ClassSleep.What(), ClassShutdown.What())
	}
	if Class(0).String() != "unknown" {
		t.Errorf("Class(0).String() = %q, want unknown", Class(0).String())
	}
}

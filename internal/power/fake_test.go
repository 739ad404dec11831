package power

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

var errFake = errors.New("fake failure")

type fakeHandle struct {
	closes atomic.Int32
}

func (h *fakeHandle) Close() error {
	h.closes.Add(1)
	return nil
}

type inhibitCall struct {
	what, who, why, mode string
}

type fakeConn struct {
	mu         sync.Mutex
	inhibitErr error
	watchErr   error
	calls      []inhibitCall
	handles    []*fakeHandle
	signals    chan Signal
	connected  bool
	closed     bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{signals: make(chan Signal, 8), connected: true}
}

func (c *fakeConn) Inhibit(_ context.Context, what, who, why, mode string) (io.Closer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inhibitErr != nil {
		return nil, c.inhibitErr
	}
	c.calls = append(c.calls, inhibitCall{what, who, why, mode})
	h := &fakeHandle{}
	c.handles = append(c.handles, h)
	return h, nil
}

func (c *fakeConn) WatchPrepareForSleep(context.Context) (<-chan Signal, error) {
	if c.watchErr != nil {
		return nil, c.watchErr
	}
	return c.signals, nil
}

func (c *fakeConn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeConn) setConnected(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = v
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.connected = false
	return nil
}

func (c *fakeConn) inhibitCalls() []inhibitCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]inhibitCall(nil), c.calls...)
}

// fakeDialer hands out conns in order, or fails while err is set.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
	dials int
}

func (d *fakeDialer) Dial(context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	if len(d.conns) == 0 {
		return nil, errFake
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// recordingLogger captures warnings for assertions.
type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	infos []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Error(string, ...any) {}

func (l *recordingLogger) Info(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) warnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns)
}

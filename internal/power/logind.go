package power

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"
)

// logind D-Bus coordinates.
const (
	login1Service = "org.freedesktop.login1"
	login1Path    = dbus.ObjectPath("/org/freedesktop/login1")
	login1Manager = "org.freedesktop.login1.Manager"
)

// SystemBusDialer connects to logind on the system bus.
type SystemBusDialer struct{}

// Dial opens a private system bus connection.
func (SystemBusDialer) Dial(ctx context.Context) (Conn, error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoBusConnection, err)
	}
	return &logindConn{
		conn: conn,
		obj:  conn.Object(login1Service, login1Path),
	}, nil
}

type logindConn struct {
	conn *dbus.Conn
	obj  dbus.BusObject

	mu      sync.Mutex
	watched bool
}

func (c *logindConn) Inhibit(ctx context.Context, what, who, why, mode string) (io.Closer, error) {
	var fd dbus.UnixFD
	call := c.obj.CallWithContext(ctx, login1Manager+".Inhibit", 0, what, who, why, mode)
	if err := call.Store(&fd); err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), "inhibit-"+what), nil
}

func (c *logindConn) WatchPrepareForSleep(ctx context.Context) (<-chan Signal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watched {
		return nil, fmt.Errorf("%w: already watching", ErrWatchFailed)
	}

	err := c.conn.AddMatchSignalContext(ctx,
		dbus.WithMatchObjectPath(login1Path),
		dbus.WithMatchInterface(login1Manager),
		dbus.WithMatchMember("PrepareForSleep"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWatchFailed, err)
	}

	raw := make(chan *dbus.Signal, DefaultBusCapacity)
	c.conn.Signal(raw)
	c.watched = true

	out := make(chan Signal)
	go func() {
		defer close(out)
		defer c.conn.RemoveSignal(raw)
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-raw:
				if !ok {
					return
				}
				if sig == nil || sig.Path != login1Path {
					continue
				}
				select {
				case out <- Signal{Name: sig.Name, Body: sig.Body}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (c *logindConn) Connected() bool {
	return c.conn.Connected()
}

func (c *logindConn) Close() error {
	return c.conn.Close()
}

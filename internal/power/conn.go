package power

import (
	"context"
	"io"
)

// Inhibit modes accepted by logind.
const (
	ModeDelay = "delay"
	ModeBlock = "block"
)

// Signal is a raw D-Bus signal as delivered by the system bus.
type Signal struct {
	Name string
	Body []any
}

// Conn is a connection to logind on the system bus.
type Conn interface {
	// Inhibit takes an inhibitor lock. The returned handle releases it on Close.
	Inhibit(ctx context.Context, what, who, why, mode string) (io.Closer, error)

	// WatchPrepareForSleep subscribes to logind's PrepareForSleep signal.
	// The channel is closed when the connection is lost.
	WatchPrepareForSleep(ctx context.Context) (<-chan Signal, error)

	// Connected reports whether the connection is still usable.
	Connected() bool

	Close() error
}

// Dialer opens Conns.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Conn, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}

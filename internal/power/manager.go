package power

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// AppName identifies the agent in `systemd-inhibit --list`.
const AppName = "hars-imp"

// Manager owns the logind connection and the inhibitor locks held by the agent.
//
// The connection is opened lazily on first use and reused. At most one lock
// per Class is held; acquiring a class that is already held replaces the old
// lock.
type Manager struct {
	dialer Dialer
	logger Logger
	who    string

	mu    sync.Mutex
	conn  Conn
	locks map[Class]*Lock
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the manager's logger.
func WithManagerLogger(logger Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithWho overrides the inhibitor "who" string.
func WithWho(who string) ManagerOption {
	return func(m *Manager) {
		if who != "" {
			m.who = who
		}
	}
}

// NewManager creates a Manager. No connection is made until it is needed.
func NewManager(dialer Dialer, opts ...ManagerOption) *Manager {
	m := &Manager{
		dialer: dialer,
		logger: noopLogger{},
		who:    AppName,
		locks:  make(map[Class]*Lock),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureConnection opens a logind connection if there is none or the
// previous one was dropped.
func (m *Manager) EnsureConnection(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.connLocked(ctx)
	return err
}

func (m *Manager) connLocked(ctx context.Context) (Conn, error) {
	if m.conn != nil && m.conn.Connected() {
		return m.conn, nil
	}
	if m.conn != nil {
		m.logger.Warn("logind connection dropped, reconnecting")
		_ = m.conn.Close() //nolint:errcheck // already unusable
		m.conn = nil
	}

	conn, err := m.dialer.Dial(ctx)
	if err != nil {
		if errors.Is(err, ErrNoBusConnection) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrNoBusConnection, err)
	}
	m.conn = conn
	m.logger.Debug("connected to logind")
	return conn, nil
}

// Acquire takes a delay inhibitor of the given class. Any lock of the same
// class already held is released first.
func (m *Manager) Acquire(ctx context.Context, class Class, reason string) (*Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, err := m.connLocked(ctx)
	if err != nil {
		return nil, err
	}

	handle, err := conn.Inhibit(ctx, class.What(), m.who, reason, ModeDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInhibitFailed, class, err)
	}

	if old, ok := m.locks[class]; ok {
		_ = old.Release() //nolint:errcheck // logged by Release
	}
	lock := newLock(class, handle, m.logger)
	m.locks[class] = lock
	m.logger.Info("inhibitor acquired", "class", class.String(), "reason", reason)
	return lock, nil
}

// Release drops the held lock of the given class. It is a no-op when none is held.
func (m *Manager) Release(class Class) {
	m.mu.Lock()
	lock, ok := m.locks[class]
	delete(m.locks, class)
	m.mu.Unlock()

	if !ok {
		m.logger.Debug("no inhibitor held", "class", class.String())
		return
	}
	_ = lock.Release() //nolint:errcheck // logged by Release
}

// Held reports whether a lock of the given class is held.
func (m *Manager) Held(class Class) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.locks[class]
	return ok
}

// Close releases every lock and closes the logind connection.
func (m *Manager) Close() error {
	m.Release(ClassSleep)
	m.Release(ClassShutdown)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}

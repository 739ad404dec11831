package power

import (
	"io"
	"sync"
)

// Class is an inhibitor class understood by logind's Inhibit "what" argument.
type Class int

const (
	// ClassSleep delays suspend and hibernate.
	ClassSleep Class = iota + 1

	// ClassShutdown delays poweroff and reboot.
	ClassShutdown
)

// What returns the logind "what" string for the class.
func (c Class) What() string {
	switch c {
	case ClassSleep:
		return "sleep"
	case ClassShutdown:
		return "shutdown"
	default:
		return ""
	}
}

func (c Class) String() string {
	if w := c.What(); w != "" {
		return w
	}
	return "unknown"
}

// Lock is a held delay inhibitor. logind keeps the transition delayed until
// the handle is closed or InhibitDelayMaxSec expires.
type Lock struct {
	class  Class
	handle io.Closer
	logger Logger

	once sync.Once
	err  error
}

func newLock(class Class, handle io.Closer, logger Logger) *Lock {
	return &Lock{class: class, handle: handle, logger: logger}
}

// Class returns the inhibitor class.
func (l *Lock) Class() Class {
	return l.class
}

// Release closes the inhibitor handle. Only the first call has any effect.
func (l *Lock) Release() error {
	l.once.Do(func() {
		l.err = l.handle.Close()
		if l.err != nil {
			l.logger.Warn("closing inhibitor handle", "class", l.class.String(), "error", l.err)
			return
		}
		l.logger.Info("inhibitor released", "class", l.class.String())
	})
	return l.err
}

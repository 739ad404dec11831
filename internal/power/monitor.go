package power

import (
	"context"
)

// prepareForSleepMember is the fully qualified signal name.
const prepareForSleepMember = login1Manager + ".PrepareForSleep"

// Monitor publishes logind sleep/wake transitions on a Bus.
type Monitor struct {
	dialer Dialer
	bus    *Bus
	logger Logger
}

// NewMonitor creates a Monitor. It opens its own connection when Run starts.
func NewMonitor(dialer Dialer, bus *Bus, logger Logger) *Monitor {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Monitor{dialer: dialer, bus: bus, logger: logger}
}

// Run watches PrepareForSleep until ctx ends.
//
// Run does not return early when logind is unavailable: a failed dial or
// subscription, or a lost connection, is logged and Run then waits for ctx.
// A signal that cannot be decoded is logged and skipped.
func (m *Monitor) Run(ctx context.Context) {
	conn, err := m.dialer.Dial(ctx)
	if err != nil {
		m.logger.Warn("power monitoring disabled: cannot connect to system bus", "error", err)
		m.idle(ctx)
		return
	}
	defer conn.Close() //nolint:errcheck // best effort on exit

	signals, err := conn.WatchPrepareForSleep(ctx)
	if err != nil {
		m.logger.Warn("power monitoring disabled: cannot subscribe to PrepareForSleep", "error", err)
		m.idle(ctx)
		return
	}

	m.logger.Info("power monitoring started")

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				m.logger.Warn("power monitoring stopped: system bus connection lost")
				m.idle(ctx)
				return
			}
			m.handle(sig)
		}
	}
}

func (m *Monitor) handle(sig Signal) {
	if sig.Name != "" && sig.Name != prepareForSleepMember {
		m.logger.Debug("ignoring unexpected signal", "name", sig.Name)
		return
	}

	ev, err := ParsePrepareForSleep(sig.Body)
	if err != nil {
		m.logger.Warn("skipping unparseable PrepareForSleep signal", "error", err, "body", sig.Body)
		return
	}

	m.logger.Info("power event received", "event", ev.String())
	if _, err := m.bus.Publish(ev); err != nil {
		m.logger.Warn("publishing power event", "event", ev.String(), "error", err)
	}
}

func (m *Monitor) idle(ctx context.Context) {
	<-ctx.Done()
}

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/hars-imp/internal/infrastructure/mqtt"
	"github.com/nerrad567/hars-imp/internal/power"
	"github.com/nerrad567/hars-imp/internal/retry"
	"github.com/nerrad567/hars-imp/internal/shutdown"
	"github.com/nerrad567/hars-imp/internal/status"
)

// Defaults for Config zero values.
const (
	DefaultDrainAttempts    = 2
	DefaultDrainDelay       = 5 * time.Millisecond
	DefaultDrainPollTimeout = time.Second
)

// Journal event names.
const (
	EventSuspend  = "suspend"
	EventResume   = "resume"
	EventShutdown = "shutdown"
)

// Session is the live connection the coordinator acts on.
type Session interface {
	StopMonitor()
	PublishStatus(ctx context.Context, v status.Value) error
	Poll(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
}

// Builder creates a fresh session from static configuration.
type Builder[S Session] interface {
	Build(ctx context.Context) (S, error)
}

// PowerControl is the inhibitor side of *power.Manager.
type PowerControl interface {
	EnsureConnection(ctx context.Context) error
	Acquire(ctx context.Context, class power.Class, reason string) (*power.Lock, error)
	Release(class power.Class)
}

// Recorder receives one entry per handled transition.
type Recorder interface {
	Record(ctx context.Context, event, outcome, detail string) error
}

// Logger defines the logging interface for the coordinator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config tunes the coordinator.
type Config struct {
	// Retry governs session rebuild, logind reconnection and inhibitor
	// re-acquisition on resume.
	Retry retry.Policy

	// DrainAttempts is the number of polls before disconnecting. Zero
	// disables draining; a negative value selects DefaultDrainAttempts.
	DrainAttempts    int
	DrainDelay       time.Duration
	DrainPollTimeout time.Duration

	// SleepReason is the inhibitor reason used when re-acquiring on resume.
	SleepReason string

	Logger    Logger
	Recorders []Recorder
}

// Coordinator owns the current session and drives it through power and
// shutdown transitions.
type Coordinator[S Session] struct {
	builder Builder[S]
	power   PowerControl
	cfg     Config
	logger  Logger

	// handling serialises transitions.
	handling sync.Mutex

	mu      sync.RWMutex
	session S
}

// NewCoordinator creates a coordinator for an already built session.
func NewCoordinator[S Session](session S, builder Builder[S], pc PowerControl, cfg Config) *Coordinator[S] {
	if cfg.Retry == (retry.Policy{}) {
		cfg.Retry = retry.DefaultPolicy()
	}
	if cfg.DrainAttempts < 0 {
		cfg.DrainAttempts = DefaultDrainAttempts
	}
	if cfg.DrainDelay == 0 {
		cfg.DrainDelay = DefaultDrainDelay
	}
	if cfg.DrainPollTimeout <= 0 {
		cfg.DrainPollTimeout = DefaultDrainPollTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return &Coordinator[S]{
		builder: builder,
		power:   pc,
		cfg:     cfg,
		logger:  cfg.Logger,
		session: session,
	}
}

// Session returns the current session. It changes after a successful resume.
func (c *Coordinator[S]) Session() S {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// HandlePowerEvent runs the suspend or resume procedure.
func (c *Coordinator[S]) HandlePowerEvent(ctx context.Context, ev power.Event) {
	c.handling.Lock()
	defer c.handling.Unlock()

	switch ev {
	case power.Suspending:
		c.logger.Info("system is suspending")
		c.suspend(ctx)
	case power.Resuming:
		c.logger.Info("system resumed")
		c.resume(ctx)
	default:
		c.logger.Warn("ignoring unknown power event", "event", ev.String())
	}
}

// HandleShutdown acknowledges a shutdown signal and tears the session down.
// It returns once cleanup has finished so the caller can exit.
func (c *Coordinator[S]) HandleShutdown(ctx context.Context, sig shutdown.Signal) shutdown.Scenario {
	c.handling.Lock()
	defer c.handling.Unlock()

	scenario := sig.Scenario()
	c.logger.Info("shutdown requested", "signal", sig.Description(), "scenario", scenario.String())

	var failures []string
	c.step("release shutdown inhibitor", &failures, func() error {
		c.power.Release(power.ClassShutdown)
		return nil
	})
	c.terminate(ctx, terminalStatus(scenario), &failures)

	c.record(ctx, EventShutdown, failures)
	return scenario
}

func (c *Coordinator[S]) suspend(ctx context.Context) {
	var failures []string
	defer func() {
		c.step("release sleep inhibitor", &failures, func() error {
			c.power.Release(power.ClassSleep)
			return nil
		})
		c.record(ctx, EventSuspend, failures)
	}()

	sess := c.Session()
	c.step("stop metrics task", &failures, func() error {
		sess.StopMonitor()
		return nil
	})
	c.terminate(ctx, status.Suspended, &failures)
}

// terminate publishes a terminal status, drains and disconnects.
func (c *Coordinator[S]) terminate(ctx context.Context, v status.Value, failures *[]string) {
	sess := c.Session()

	c.step("publish "+string(v)+" status", failures, func() error {
		return sess.PublishStatus(ctx, v)
	})
	c.step("drain events", failures, func() error {
		return c.drain(ctx, sess)
	})
	c.step("disconnect", failures, func() error {
		err := sess.Disconnect()
		if err != nil && mqtt.IsExpectedDisconnect(err) {
			c.logger.Debug("connection already closed by peer")
			return nil
		}
		return err
	})
}

// drain polls the session a bounded number of times so a queued status
// publish has a chance to leave. Delivery is not guaranteed. A connection
// closed by the peer or a cancelled ctx ends the drain without error; any
// other poll failure is returned.
func (c *Coordinator[S]) drain(ctx context.Context, sess S) error {
	for i := range c.cfg.DrainAttempts {
		pctx, cancel := context.WithTimeout(ctx, c.cfg.DrainPollTimeout)
		err := sess.Poll(pctx)
		cancel()
		if err != nil {
			switch {
			case mqtt.IsExpectedDisconnect(err):
				c.logger.Debug("connection closed while draining", "error", err)
				return nil
			case ctx.Err() != nil:
				return nil
			default:
				return fmt.Errorf("poll %d: %w", i+1, err)
			}
		}

		if i < c.cfg.DrainAttempts-1 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.cfg.DrainDelay):
			}
		}
	}
	return nil
}

func (c *Coordinator[S]) resume(ctx context.Context) {
	var failures []string

	c.step("rebuild session", &failures, func() error {
		next, err := retry.DoValue(ctx, c.cfg.Retry, c.builder.Build, c.notify("rebuild session"))
		if err != nil {
			c.logger.Error("keeping previous session after failed rebuild", "error", err)
			return err
		}
		c.replace(next)
		return nil
	})

	c.step("reconnect logind", &failures, func() error {
		return retry.Do(ctx, c.cfg.Retry, c.power.EnsureConnection, c.notify("reconnect logind"))
	})

	c.step("acquire sleep inhibitor", &failures, func() error {
		return retry.Do(ctx, c.cfg.Retry, func(ctx context.Context) error {
			_, err := c.power.Acquire(ctx, power.ClassSleep, c.cfg.SleepReason)
			return err
		}, c.notify("acquire sleep inhibitor"))
	})

	c.record(ctx, EventResume, failures)
}

// replace installs next and retires the old session if it is still live.
func (c *Coordinator[S]) replace(next S) {
	c.mu.Lock()
	old := c.session
	c.session = next
	c.mu.Unlock()

	if old.IsConnected() {
		c.logger.Warn("previous session still connected, closing it")
		old.StopMonitor()
		if err := old.Disconnect(); err != nil && !mqtt.IsExpectedDisconnect(err) {
			c.logger.Warn("closing previous session", "error", err)
		}
	}
	c.logger.Info("session rebuilt")
}

func (c *Coordinator[S]) notify(op string) retry.Notify {
	return func(attempt int, err error, delay time.Duration) {
		c.logger.Warn("attempt failed, retrying",
			"operation", op, "attempt", attempt, "error", err, "retry_in", delay)
	}
}

// step runs fn, logging its failure or panic and appending it to failures.
func (c *Coordinator[S]) step(name string, failures *[]string, fn func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn()
	}()
	if err != nil {
		c.logger.Warn("lifecycle step failed", "step", name, "error", err)
		*failures = append(*failures, name+": "+err.Error())
		return
	}
	c.logger.Debug("lifecycle step done", "step", name)
}

func (c *Coordinator[S]) record(ctx context.Context, event string, failures []string) {
	outcome, detail := "ok", ""
	if len(failures) > 0 {
		outcome, detail = "error", strings.Join(failures, "; ")
	}
	var errs []error
	for _, r := range c.cfg.Recorders {
		if err := r.Record(ctx, event, outcome, detail); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		c.logger.Warn("failed to record lifecycle event", "event", event, "error", err)
	}
}

func terminalStatus(s shutdown.Scenario) status.Value {
	if s == shutdown.Suspend {
		return status.Suspended
	}
	return status.Off
}

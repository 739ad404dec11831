// Package shutdown turns SIGINT and SIGTERM into shutdown requests for the
// main loop.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Signal identifies which OS signal asked the agent to stop.
type Signal int

const (
	// Interrupt is SIGINT, usually Ctrl+C in a terminal.
	Interrupt Signal = iota + 1

	// Terminate is SIGTERM, usually systemd stopping the unit or the machine.
	Terminate
)

func (s Signal) String() string {
	switch s {
	case Interrupt:
		return "interrupt"
	case Terminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// Description is a human-readable line for logs.
func (s Signal) Description() string {
	switch s {
	case Interrupt:
		return "SIGINT (Ctrl+C) received"
	case Terminate:
		return "SIGTERM received (likely from systemctl)"
	default:
		return "unknown signal received"
	}
}

// Scenario selects the terminal status and whether the process exits.
type Scenario int

const (
	// FullShutdown publishes "Off" and exits.
	FullShutdown Scenario = iota + 1

	// Suspend publishes "Suspended" and keeps the process alive.
	Suspend
)

func (s Scenario) String() string {
	switch s {
	case FullShutdown:
		return "full_shutdown"
	case Suspend:
		return "suspend"
	default:
		return "unknown"
	}
}

// Scenario maps a signal to its shutdown scenario. Both signals stop the agent.
func (Signal) Scenario() Scenario {
	return FullShutdown
}

// Classify maps an OS signal to a Signal. ok is false for anything else.
func Classify(sig os.Signal) (Signal, bool) {
	switch sig {
	case os.Interrupt:
		return Interrupt, true
	case syscall.SIGTERM:
		return Terminate, true
	default:
		return 0, false
	}
}

// Source delivers shutdown signals. The OS handlers are installed once by
// NewSource and stay installed until Stop.
type Source struct {
	raw  chan os.Signal
	out  chan Signal
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewSource installs SIGINT and SIGTERM handlers.
func NewSource() *Source {
	s := &Source{
		raw:  make(chan os.Signal, 2),
		out:  make(chan Signal, 1),
		done: make(chan struct{}),
	}
	signal.Notify(s.raw, os.Interrupt, syscall.SIGTERM)

	s.wg.Add(1)
	go s.forward()
	return s
}

func (s *Source) forward() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case sig := <-s.raw:
			kind, ok := Classify(sig)
			if !ok {
				continue
			}
			select {
			case s.out <- kind:
			case <-s.done:
				return
			}
		}
	}
}

// C returns the channel of shutdown signals for use in a select loop.
func (s *Source) C() <-chan Signal {
	return s.out
}

// Wait blocks until a shutdown signal arrives or ctx ends.
func (s *Source) Wait(ctx context.Context) (Signal, error) {
	select {
	case sig := <-s.out:
		return sig, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Stop uninstalls the handlers. A later SIGINT or SIGTERM gets the default
// behavior and kills the process.
func (s *Source) Stop() {
	s.once.Do(func() {
		signal.Stop(s.raw)
		close(s.done)
		s.wg.Wait()
	})
}

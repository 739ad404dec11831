package power

import (
	"errors"
	"fmt"
)

// Sentinel errors for power management.
var (
	// ErrNoBusConnection is returned when the system bus cannot be reached.
	ErrNoBusConnection = errors.New("power: no system bus connection")

	// ErrInhibitFailed is returned when logind rejects an inhibitor request.
	ErrInhibitFailed = errors.New("power: inhibit request failed")

	// ErrWatchFailed is returned when the PrepareForSleep subscription cannot be set up.
	ErrWatchFailed = errors.New("power: signal subscription failed")

	// ErrMalformedSignal is returned for a PrepareForSleep body that is not a single bool.
	ErrMalformedSignal = errors.New("power: malformed PrepareForSleep signal")

	// ErrClosed is returned by Recv once the bus is closed and drained.
	ErrClosed = errors.New("power: event bus closed")
)

// LagError reports that a subscriber fell behind and Skipped events were dropped.
type LagError struct {
	Skipped uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("power: subscriber lagged, %d event(s) skipped", e.Skipped)
}

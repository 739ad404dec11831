package power

// Event is a sleep/wake transition reported by logind.
type Event int

const (
	// Suspending is emitted just before the system sleeps (PrepareForSleep(true)).
	Suspending Event = iota + 1

	// Resuming is emitted just after the system wakes (PrepareForSleep(false)).
	Resuming
)

func (e Event) String() string {
	switch e {
	case Suspending:
		return "suspending"
	case Resuming:
		return "resuming"
	default:
		return "unknown"
	}
}

// EventFromPrepareForSleep maps the signal flag to an Event.
func EventFromPrepareForSleep(start bool) Event {
	if start {
		return Suspending
	}
	return Resuming
}

// ParsePrepareForSleep decodes a PrepareForSleep signal body.
func ParsePrepareForSleep(body []any) (Event, error) {
	if len(body) != 1 {
		return 0, ErrMalformedSignal
	}
	start, ok := body[0].(bool)
	if !ok {
		return 0, ErrMalformedSignal
	}
	return EventFromPrepareForSleep(start), nil
}

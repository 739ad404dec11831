package components

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/hars-imp/internal/discovery"
)

// FallbackSummary titles notifications whose payload is not valid JSON.
const FallbackSummary = "MQTT Notification"

// Urgency levels understood by freedesktop notification daemons.
type Urgency uint8

const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

// Timeout returns the expiry in milliseconds; 0 keeps the notification until dismissed.
func (u Urgency) Timeout() int32 {
	switch u {
	case UrgencyLow:
		return 5000
	case UrgencyCritical:
		return 0
	default:
		return 10000
	}
}

// Icon returns the freedesktop icon name for u.
func (u Urgency) Icon() string {
	if u == UrgencyCritical {
		return "dialog-warning"
	}
	return "dialog-information"
}

// Notification is a desktop notification request.
type Notification struct {
	Summary string
	Message string
	Urgency Urgency
}

// NotificationPayload is the JSON body Home Assistant sends.
type NotificationPayload struct {
	Summary    string  `json:"summary"`
	Message    string  `json:"message"`
	Importance *string `json:"importance,omitempty"`
}

// Urgency maps importance to an urgency level. Unknown or missing values are normal.
func (p NotificationPayload) Urgency() Urgency {
	if p.Importance == nil {
		return UrgencyNormal
	}
	switch *p.Importance {
	case "low":
		return UrgencyLow
	case "high", "critical":
		return UrgencyCritical
	default:
		return UrgencyNormal
	}
}

// ParseNotification decodes a payload. Invalid JSON yields a normal
// notification titled FallbackSummary carrying the raw payload, and ok=false.
func ParseNotification(payload []byte) (n Notification, ok bool) {
	var p NotificationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return Notification{Summary: FallbackSummary, Message: string(payload), Urgency: UrgencyNormal}, false
	}
	return Notification{Summary: p.Summary, Message: p.Message, Urgency: p.Urgency()}, true
}

func (s *Set) notifyEntry() entry {
	id := s.topics.ObjectID("notifications")
	topic := s.topics.NotifyCommand()

	return entry{
		id:        id,
		component: discovery.Notify("Notifications", id, topic),
		handle: func(ctx context.Context, payload string) error {
			n, ok := ParseNotification([]byte(payload))
			if !ok {
				s.deps.Logger.Warn("invalid notification payload, sending raw text", "payload", payload)
			}
			if s.deps.Notifier == nil {
				return ErrNoDBus
			}

			s.deps.Logger.Info("sending notification", "summary", n.Summary, "urgency", n.Urgency)
			if err := s.deps.Notifier.Notify(ctx, n); err != nil {
				s.deps.Logger.Error("failed to send notification", "error", err)
				return fmt.Errorf("notify: %w", err)
			}
			return nil
		},
	}
}

package components

import (
	"context"
	"fmt"
	"strings"

	"github.com/nerrad567/hars-imp/internal/discovery"
	"github.com/nerrad567/hars-imp/internal/infrastructure/config"
)

// switchStateQoS is the QoS of retained switch state publishes.
const switchStateQoS = 1

func (s *Set) switchEntry(sw config.SwitchConfig) (entry, error) {
	var act func(ctx context.Context, on bool) error
	switch {
	case sw.Exec != "":
		act = s.execAction(sw.Exec)
	case sw.DBus != nil:
		act = s.dbusAction(*sw.DBus)
	default:
		return entry{}, ErrNoAction
	}

	id := s.topics.ObjectID(sw.Name)
	cmdTopic := s.topics.SwitchCommand(sw.Name)
	stateTopic := s.topics.SwitchState(sw.Name)

	return entry{
		id:        id,
		component: discovery.Switch(sw.Name, id, cmdTopic, stateTopic),
		handle: func(ctx context.Context, payload string) error {
			state := strings.TrimSpace(payload)
			if state != PayloadOn && state != PayloadOff {
				s.deps.Logger.Debug("ignoring switch payload", "switch", sw.Name, "payload", payload)
				return nil
			}

			s.deps.Logger.Info("switch command received", "switch", sw.Name, "state", state)
			if err := act(ctx, state == PayloadOn); err != nil {
				s.deps.Logger.Error("switch action failed", "switch", sw.Name, "error", err)
				// An empty retained state marks the entity unknown.
				if perr := s.deps.Publisher.Publish(stateTopic, nil, switchStateQoS, true); perr != nil {
					s.deps.Logger.Error("failed to publish switch failure state", "switch", sw.Name, "error", perr)
				}
				return fmt.Errorf("switch %q: %w", sw.Name, err)
			}

			if err := s.deps.Publisher.Publish(stateTopic, []byte(state), switchStateQoS, true); err != nil {
				return fmt.Errorf("publishing switch %q state: %w", sw.Name, err)
			}
			return nil
		},
	}, nil
}

// execAction runs "<exec> on" or "<exec> off".
func (s *Set) execAction(exec string) func(ctx context.Context, on bool) error {
	return func(ctx context.Context, on bool) error {
		arg := "off"
		if on {
			arg = "on"
		}
		res, err := s.deps.Exec.Run(ctx, exec+" "+arg)
		if err != nil {
			s.deps.Logger.Debug("switch command stderr", "stderr", res.Stderr)
			return err
		}
		return nil
	}
}

func (s *Set) dbusAction(a config.DBusAction) func(ctx context.Context, on bool) error {
	return func(ctx context.Context, on bool) error {
		if s.deps.DBus == nil {
			return ErrNoDBus
		}
		return s.deps.DBus.Call(ctx, MethodCall{
			Bus:       BusKind(a.Bus),
			Service:   a.Service,
			Path:      a.Path,
			Interface: a.Interface,
			Method:    a.Method,
			Args:      []any{on},
		})
	}
}

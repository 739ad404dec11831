package components

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/hars-imp/internal/discovery"
	"github.com/nerrad567/hars-imp/internal/infrastructure/config"
	"github.com/nerrad567/hars-imp/internal/infrastructure/mqtt"
	"github.com/nerrad567/hars-imp/internal/process"
)

// Command payloads sent by Home Assistant.
const (
	PayloadPress = "PRESS"
	PayloadOn    = "ON"
	PayloadOff   = "OFF"
)

// ErrNoAction is returned for a switch configured with neither exec nor dbus.
var ErrNoAction = errors.New("components: switch requires exec or dbus action")

// Logger defines the logging interface for components.
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

// Executor runs shell commands. *process.Runner satisfies it.
type Executor interface {
	Run(ctx context.Context, command string) (process.Result, error)
}

// StatePublisher publishes switch state. *mqtt.Client satisfies it.
type StatePublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Deps are the collaborators a Set needs.
type Deps struct {
	Exec      Executor
	DBus      MethodCaller
	Notifier  Notifier
	Publisher StatePublisher
	Logger    Logger
}

type entry struct {
	id        string
	component discovery.Component
	handle    func(ctx context.Context, payload string) error
}

// Set holds every command-driven entity for one host, keyed by command topic.
type Set struct {
	topics  mqtt.Topics
	deps    Deps
	order   []string
	byTopic map[string]entry
}

// NewSet builds buttons, switches and the notify entity from cfg, in that order.
func NewSet(cfg *config.Config, deps Deps) (*Set, error) {
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	s := &Set{
		topics:  mqtt.Topics{Host: cfg.Hostname},
		deps:    deps,
		byTopic: make(map[string]entry),
	}

	for _, b := range cfg.Buttons {
		s.add(s.button(b))
	}
	for _, sw := range cfg.Switches {
		e, err := s.switchEntry(sw)
		if err != nil {
			return nil, fmt.Errorf("switch %q: %w", sw.Name, err)
		}
		s.add(e)
	}
	if cfg.Notifications.Enabled {
		s.add(s.notifyEntry())
	}

	return s, nil
}

func (s *Set) add(e entry) {
	topic := e.component.CommandTopic
	if _, exists := s.byTopic[topic]; !exists {
		s.order = append(s.order, topic)
	}
	s.byTopic[topic] = e
}

// Topics returns the command topics to subscribe to, in configuration order.
func (s *Set) Topics() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Components returns the discovery components keyed by entity ID.
func (s *Set) Components() map[string]discovery.Component {
	out := make(map[string]discovery.Component, len(s.byTopic))
	for _, e := range s.byTopic {
		out[e.id] = e.component
	}
	return out
}

// AddTo registers every component with b.
func (s *Set) AddTo(b *discovery.Builder) {
	for _, topic := range s.order {
		e := s.byTopic[topic]
		b.Add(e.id, e.component)
	}
}

// Dispatch routes a message to the entity owning topic. It reports whether
// the topic belongs to this set; the error is the entity's action failure.
func (s *Set) Dispatch(ctx context.Context, topic string, payload []byte) (bool, error) {
	e, ok := s.byTopic[topic]
	if !ok {
		return false, nil
	}
	return true, e.handle(ctx, string(payload))
}

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/hars-imp/internal/components"
	"github.com/nerrad567/hars-imp/internal/discovery"
	"github.com/nerrad567/hars-imp/internal/infrastructure/config"
	"github.com/nerrad567/hars-imp/internal/infrastructure/mqtt"
	"github.com/nerrad567/hars-imp/internal/process"
	"github.com/nerrad567/hars-imp/internal/status"
	"github.com/nerrad567/hars-imp/internal/sysmon"
)

// DefaultSettleDelay is the pause between discovery and the first status.
const DefaultSettleDelay = 500 * time.Millisecond

// discoveryQoS is the QoS of the retained discovery message.
const discoveryQoS = 1

// commandQoS is the QoS of command subscriptions.
const commandQoS = 0

// Logger defines the logging interface for sessions.
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

// Builder creates sessions from configuration.
type Builder struct {
	cfg     *config.Config
	version string
	logger  Logger

	exec     components.Executor
	dbus     components.MethodCaller
	notifier components.Notifier

	source sysmon.Source
	sink   sysmon.Sink

	settle  time.Duration
	mqttOpt []mqtt.Option
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the logger used by the builder and its sessions.
func WithLogger(logger Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithExecutor replaces the default shell command runner.
func WithExecutor(exec components.Executor) BuilderOption {
	return func(b *Builder) { b.exec = exec }
}

// WithDBus sets the D-Bus method caller for D-Bus switches.
func WithDBus(caller components.MethodCaller) BuilderOption {
	return func(b *Builder) { b.dbus = caller }
}

// WithNotifier sets the desktop notifier.
func WithNotifier(n components.Notifier) BuilderOption {
	return func(b *Builder) { b.notifier = n }
}

// WithMetricsSource overrides the host counter source.
func WithMetricsSource(src sysmon.Source) BuilderOption {
	return func(b *Builder) { b.source = src }
}

// WithMetricsSink adds a time-series sink for samples.
func WithMetricsSink(sink sysmon.Sink) BuilderOption {
	return func(b *Builder) { b.sink = sink }
}

// WithSettleDelay overrides DefaultSettleDelay.
func WithSettleDelay(d time.Duration) BuilderOption {
	return func(b *Builder) { b.settle = d }
}

// WithMQTTOptions appends options passed to mqtt.Connect.
func WithMQTTOptions(opts ...mqtt.Option) BuilderOption {
	return func(b *Builder) { b.mqttOpt = append(b.mqttOpt, opts...) }
}

// NewBuilder creates a Builder for cfg. version is reported in discovery.
func NewBuilder(cfg *config.Config, version string, opts ...BuilderOption) *Builder {
	b := &Builder{
		cfg:     cfg,
		version: version,
		logger:  noopLogger{},
		source:  sysmon.HostSource{},
		settle:  DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.exec == nil {
		runner := process.NewRunner(process.Config{
			Shell:   cfg.Commands.Shell,
			Timeout: cfg.GetCommandTimeout(),
		})
		runner.SetLogger(b.logger)
		b.exec = runner
	}
	return b
}

// Build connects and initialises a new session. On failure nothing is left
// connected.
func (b *Builder) Build(ctx context.Context) (*Session, error) {
	host := b.cfg.Hostname
	topics := mqtt.Topics{Host: host}

	b.logger.Info("connecting to MQTT broker",
		"host", b.cfg.MQTT.Broker.Host, "port", b.cfg.MQTT.Broker.Port)

	mqttCfg := b.cfg.MQTT
	mqttCfg.Broker.ClientID = b.cfg.ClientID()
	opts := append([]mqtt.Option{
		mqtt.WithWill(mqtt.Will{Topic: topics.Status(), Payload: string(status.Payload(status.Off))}),
		mqtt.WithLogger(b.logger),
	}, b.mqttOpt...)

	client, err := mqtt.Connect(mqttCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}

	s, err := b.init(ctx, client, topics)
	if err != nil {
		_ = client.Disconnect(mqtt.DefaultDisconnectQuiesce) //nolint:errcheck // already failing
		return nil, err
	}
	return s, nil
}

func (b *Builder) init(ctx context.Context, client *mqtt.Client, topics mqtt.Topics) (*Session, error) {
	set, err := components.NewSet(b.cfg, components.Deps{
		Exec:      b.exec,
		DBus:      b.dbus,
		Notifier:  b.notifier,
		Publisher: client,
		Logger:    b.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating components: %w", err)
	}

	for _, topic := range set.Topics() {
		b.logger.Debug("subscribing", "topic", topic)
		if err := client.SubscribeQueued(topic, commandQoS); err != nil {
			return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}

	disc := discovery.NewBuilder(topics.Host, b.version)
	set.AddTo(disc)
	sensors := sysmon.Components(topics.Host)
	if b.cfg.Monitoring.Enabled {
		for _, m := range sysmon.Metrics {
			disc.Add(m.Field, sensors[m.Field])
		}
	}
	disc.Add("status", sensors["status"])

	payload, err := disc.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encoding discovery: %w", err)
	}
	if err := client.Publish(topics.DeviceDiscovery(), payload, discoveryQoS, true); err != nil {
		return nil, fmt.Errorf("publishing discovery: %w", err)
	}
	b.logger.Info("published discovery", "topic", topics.DeviceDiscovery(), "components", len(disc.IDs()))

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(b.settle):
	}

	s := &Session{
		client: client,
		set:    set,
		status: status.NewPublisher(client, topics.Host, b.cfg.GetStatusTimeout()),
		logger: b.logger,
	}

	if err := s.PublishStatus(ctx, status.On); err != nil {
		b.logger.Warn("failed to publish initial status", "error", err)
	}

	if b.cfg.Monitoring.Enabled {
		mon := sysmon.NewMonitor(sysmon.Config{
			Host:     topics.Host,
			Topic:    topics.SystemPerformance(),
			Interval: b.cfg.GetMonitoringInterval(),
			Warmup:   b.cfg.GetMonitoringWarmup(),
		}, sysmon.NewSampler(b.source, b.cfg.Monitoring.RootPaths, b.cfg.Monitoring.MinDiskGB), client, b.sink, b.logger)
		s.startMonitor(mon)
	}

	return s, nil
}

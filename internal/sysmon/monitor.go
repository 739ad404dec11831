package sysmon

import (
	"context"
	"encoding/json"
	"time"
)

// Publisher sends a payload. *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Sink receives each sample as a time-series point. *influxdb.Client satisfies it.
type Sink interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]interface{})
}

// Logger defines the logging interface for the monitor.
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

// Measurement is the time-series measurement name for samples.
const Measurement = "system_performance"

// Config configures a Monitor.
type Config struct {
	Host     string
	Topic    string
	Interval time.Duration
	Warmup   time.Duration
}

// Monitor publishes a sample every interval until its context ends.
type Monitor struct {
	cfg     Config
	sampler *Sampler
	pub     Publisher
	sink    Sink
	logger  Logger
}

// NewMonitor creates a Monitor. sink may be nil.
func NewMonitor(cfg Config, sampler *Sampler, pub Publisher, sink Sink, logger Logger) *Monitor {
	if logger == nil {
		logger = noopLogger{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Monitor{cfg: cfg, sampler: sampler, pub: pub, sink: sink, logger: logger}
}

// Run primes the CPU counters, waits the warmup, publishes immediately and
// then on every tick. Publish failures are logged and do not stop the loop.
func (m *Monitor) Run(ctx context.Context) {
	m.sampler.Prime(ctx)

	select {
	case <-ctx.Done():
		return
	case <-time.After(m.cfg.Warmup):
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := m.publish(ctx); err != nil {
			m.logger.Error("failed to publish system metrics", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) publish(ctx context.Context) error {
	s, err := m.sampler.Sample(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}

	m.logger.Debug("publishing system metrics",
		"cpu_load", s.CPULoad, "memory_free", s.MemoryFree, "disk_free", s.DiskFree)

	if m.sink != nil {
		m.sink.WritePoint(Measurement, map[string]string{"host": m.cfg.Host}, s.Fields())
	}
	return m.pub.Publish(m.cfg.Topic, payload, 0, false)
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/hars-imp/internal/retry"
)

// Config is the root configuration structure for hars-imp.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	// Hostname identifies this machine in every Home Assistant topic and entity ID.
	Hostname string `yaml:"hostname"`

	// UpdateIntervalMS is how long the main loop waits after an MQTT transport error.
	UpdateIntervalMS int `yaml:"update_interval_ms"`

	MQTT          MQTTConfig         `yaml:"mqtt"`
	Logging       LoggingConfig      `yaml:"logging"`
	Power         PowerConfig        `yaml:"power"`
	Monitoring    MonitoringConfig   `yaml:"monitoring"`
	Buttons       []ButtonConfig     `yaml:"buttons"`
	Switches      []SwitchConfig     `yaml:"switches"`
	Notifications NotificationConfig `yaml:"notifications"`
	Commands      CommandsConfig     `yaml:"commands"`
	InfluxDB      InfluxDBConfig     `yaml:"influxdb"`
	Journal       JournalConfig      `yaml:"journal"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	KeepAlive int                 `yaml:"keep_alive"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// EventBuffer bounds the queue of incoming messages waiting for the main loop.
	EventBuffer int `yaml:"event_buffer"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`

	// Output is stdout, stderr or journal. Empty picks journal when running
	// under systemd and stdout otherwise.
	Output string `yaml:"output"`
}

// PowerConfig controls the logind integration.
type PowerConfig struct {
	// Enabled turns on inhibitor locks and PrepareForSleep monitoring.
	Enabled bool `yaml:"enabled"`

	// SleepReason and ShutdownReason are shown by `systemd-inhibit --list`.
	SleepReason    string `yaml:"sleep_reason"`
	ShutdownReason string `yaml:"shutdown_reason"`

	// StatusTimeoutMS bounds each status publish.
	StatusTimeoutMS int `yaml:"status_timeout_ms"`

	Retry RetryConfig `yaml:"retry"`
	Drain DrainConfig `yaml:"drain"`
}

// RetryConfig describes the bounded exponential backoff used on resume.
type RetryConfig struct {
	MaxAttempts int     `yaml:"max_attempts"`
	BaseDelayMS int     `yaml:"base_delay_ms"`
	Multiplier  float64 `yaml:"multiplier"`
}

// DrainConfig describes how the MQTT event loop is flushed before a disconnect.
type DrainConfig struct {
	Attempts int `yaml:"attempts"`
	DelayMS  int `yaml:"delay_ms"`
}

// MonitoringConfig controls periodic host metric publishing.
type MonitoringConfig struct {
	Enabled   bool     `yaml:"enabled"`
	IntervalS int      `yaml:"interval"`
	WarmupMS  int      `yaml:"warmup_ms"`
	MinDiskGB int      `yaml:"min_disk_gb"`
	RootPaths []string `yaml:"root_paths"`
}

// ButtonConfig maps a Home Assistant button to a shell command.
type ButtonConfig struct {
	Name string `yaml:"name"`
	Exec string `yaml:"exec"`
}

// SwitchConfig maps a Home Assistant switch to either a shell command
// (called with "on" or "off") or a D-Bus method taking a single bool.
type SwitchConfig struct {
	Name string      `yaml:"name"`
	Exec string      `yaml:"exec,omitempty"`
	DBus *DBusAction `yaml:"dbus,omitempty"`
}

// DBusAction is a method call target.
type DBusAction struct {
	// Bus is "session" (default) or "system".
	Bus       string `yaml:"bus"`
	Service   string `yaml:"service"`
	Path      string `yaml:"path"`
	Interface string `yaml:"interface"`
	Method    string `yaml:"method"`
}

// NotificationConfig controls the desktop notification component.
type NotificationConfig struct {
	Enabled bool `yaml:"enabled"`
}

// CommandsConfig controls shell command execution for buttons and switches.
type CommandsConfig struct {
	Shell    string `yaml:"shell"`
	TimeoutS int    `yaml:"timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// JournalConfig contains settings for the SQLite lifecycle journal.
type JournalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HARS_SECTION_KEY
// For example: HARS_MQTT_HOST, HARS_JOURNAL_PATH
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	hostname, _ := os.Hostname() //nolint:errcheck // empty hostname is caught by Validate

	return &Config{
		Hostname:         hostname,
		UpdateIntervalMS: 1000,
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS:       1,
			KeepAlive: 60,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			EventBuffer: 64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Power: PowerConfig{
			Enabled:         true,
			SleepReason:     "MQTT daemon running - preventing unexpected suspension",
			ShutdownReason:  "MQTT daemon running - preventing unexpected shutdown",
			StatusTimeoutMS: 5000,
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelayMS: 500,
				Multiplier:  2,
			},
			Drain: DrainConfig{
				Attempts: 2,
				DelayMS:  5,
			},
		},
		Monitoring: MonitoringConfig{
			Enabled:   true,
			IntervalS: 60,
			WarmupMS:  200,
			MinDiskGB: 1,
			RootPaths: []string{"/sysroot", "/"},
		},
		Notifications: NotificationConfig{
			Enabled: true,
		},
		Commands: CommandsConfig{
			Shell:    "sh",
			TimeoutS: 30,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Journal: JournalConfig{
			Path:        "./data/hars-imp.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HARS_HOSTNAME"); v != "" {
		cfg.Hostname = v
	}

	// MQTT
	if v := os.Getenv("HARS_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HARS_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("HARS_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HARS_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("HARS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("HARS_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("HARS_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
}

// Validate checks the configuration for errors.
//
// All problems are collected and reported together so a broken config file
// can be fixed in one pass.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Hostname) == "" {
		errs = append(errs, "hostname is required (set HARS_HOSTNAME environment variable)")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.EventBuffer < 1 {
		errs = append(errs, "mqtt.event_buffer must be at least 1")
	}

	// Power validation
	retryErrs := len(errs)
	if c.Power.Retry.MaxAttempts < 1 || c.Power.Retry.MaxAttempts > retry.MaxAttemptsLimit {
		errs = append(errs, fmt.Sprintf("power.retry.max_attempts must be between 1 and %d", retry.MaxAttemptsLimit))
	}
	if c.Power.Retry.BaseDelayMS <= 0 {
		errs = append(errs, "power.retry.base_delay_ms must be positive")
	}
	if !(c.Power.Retry.Multiplier >= 1 && c.Power.Retry.Multiplier <= retry.MaxMultiplier) {
		errs = append(errs, fmt.Sprintf("power.retry.multiplier must be between 1 and %d", retry.MaxMultiplier))
	}
	// The fields are individually in range; the whole schedule may still
	// exceed retry.MaxTotalWait.
	if len(errs) == retryErrs {
		if err := c.GetRetryPolicy().Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("power.retry: %v", err))
		}
	}
	if c.Power.Drain.Attempts < 0 {
		errs = append(errs, "power.drain.attempts must not be negative")
	}

	if c.Monitoring.Enabled && c.Monitoring.IntervalS < 1 {
		errs = append(errs, "monitoring.interval must be at least 1 second")
	}

	// Components
	seen := make(map[string]bool)
	for i, b := range c.Buttons {
		if b.Name == "" || b.Exec == "" {
			errs = append(errs, fmt.Sprintf("buttons[%d] requires name and exec", i))
		}
		if seen[b.Name] {
			errs = append(errs, fmt.Sprintf("buttons[%d]: duplicate name %q", i, b.Name))
		}
		seen[b.Name] = true
	}
	for i, s := range c.Switches {
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("switches[%d] requires name", i))
		}
		if (s.Exec == "") == (s.DBus == nil) {
			errs = append(errs, fmt.Sprintf("switches[%d] requires exactly one of exec or dbus", i))
		}
		if s.DBus != nil {
			if s.DBus.Service == "" || s.DBus.Path == "" || s.DBus.Interface == "" || s.DBus.Method == "" {
				errs = append(errs, fmt.Sprintf("switches[%d].dbus requires service, path, interface and method", i))
			}
			if s.DBus.Bus != "" && s.DBus.Bus != "session" && s.DBus.Bus != "system" {
				errs = append(errs, fmt.Sprintf("switches[%d].dbus.bus must be session or system", i))
			}
		}
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when journal is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ClientID returns the MQTT client ID, defaulting to the hostname.
func (c *Config) ClientID() string {
	if c.MQTT.Broker.ClientID != "" {
		return c.MQTT.Broker.ClientID
	}
	return c.Hostname
}

// GetUpdateInterval returns the main loop error back-off as a Duration.
func (c *Config) GetUpdateInterval() time.Duration {
	return time.Duration(c.UpdateIntervalMS) * time.Millisecond
}

// GetStatusTimeout returns the status publish timeout as a Duration.
func (c *Config) GetStatusTimeout() time.Duration {
	return time.Duration(c.Power.StatusTimeoutMS) * time.Millisecond
}

// GetRetryBaseDelay returns the first retry delay as a Duration.
func (c *Config) GetRetryBaseDelay() time.Duration {
	return time.Duration(c.Power.Retry.BaseDelayMS) * time.Millisecond
}

// GetRetryPolicy returns the resume retry schedule.
func (c *Config) GetRetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Power.Retry.MaxAttempts,
		BaseDelay:   c.GetRetryBaseDelay(),
		Multiplier:  c.Power.Retry.Multiplier,
	}
}

// GetDrainDelay returns the pause between drain polls as a Duration.
func (c *Config) GetDrainDelay() time.Duration {
	return time.Duration(c.Power.Drain.DelayMS) * time.Millisecond
}

// GetMonitoringInterval returns the metrics publish interval as a Duration.
func (c *Config) GetMonitoringInterval() time.Duration {
	return time.Duration(c.Monitoring.IntervalS) * time.Second
}

// GetMonitoringWarmup returns the CPU counter warmup as a Duration.
func (c *Config) GetMonitoringWarmup() time.Duration {
	return time.Duration(c.Monitoring.WarmupMS) * time.Millisecond
}

// GetCommandTimeout returns the shell command timeout as a Duration.
func (c *Config) GetCommandTimeout() time.Duration {
	return time.Duration(c.Commands.TimeoutS) * time.Second
}

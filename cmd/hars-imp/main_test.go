package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/hars-imp/internal/infrastructure/database"
	"github.com/nerrad567/hars-imp/internal/infrastructure/mqtt"
	"github.com/nerrad567/hars-imp/internal/infrastructure/mqtt/mqtttest"
	"github.com/nerrad567/hars-imp/internal/journal"
	"github.com/nerrad567/hars-imp/internal/lifecycle"
)

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"--version"}, &out); err != nil {
		t.Fatalf("run(--version) error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "hars-imp ") {
		t.Errorf("output = %q, want version line", out.String())
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"--bogus"}, &out); err == nil {
		t.Fatal("run() with unknown flag should fail")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv(configEnv, "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, nil, &bytes.Buffer{})
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("error = %v, want loading config", err)
	}
}

func TestRun_BrokerUnreachableIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "127.0.0.1", 1, false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := run(ctx, []string{"--config", path}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "initialising session") {
		t.Fatalf("run() error = %v, want initialising session failure", err)
	}
}

// TestRun_StartupAndShutdown runs the daemon against an in-process broker
// and stops it by cancelling its context.
func TestRun_StartupAndShutdown(t *testing.T) {
	broker := mqtttest.Start(t)
	statusTopic := mqtt.Topics{Host: "desk"}.Status()
	statuses := broker.Capture(t, statusTopic)

	dir := t.TempDir()
	path := writeConfig(t, dir, broker.Host, broker.Port, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, []string{"-c", path}, &bytes.Buffer{}) }()

	msgs := statuses.Wait(t, 1, 5*time.Second)
	if got := string(msgs[0].Payload); got != `{"status":"On"}` {
		t.Fatalf("first status = %s, want On", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not return after cancel")
	}

	msgs = statuses.Wait(t, 2, 2*time.Second)
	if got := string(msgs[len(msgs)-1].Payload); got != `{"status":"Off"}` {
		t.Errorf("last status = %s, want Off", got)
	}

	j, err := journal.Open(context.Background(), database.Config{Path: filepath.Join(dir, "journal.db")}, "desk")
	if err != nil {
		t.Fatalf("journal.Open() error = %v", err)
	}
	defer j.Close()

	entries, err := j.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	var events []string
	for _, e := range entries {
		events = append(events, e.Event)
	}
	want := []string{lifecycle.EventShutdown, eventStartup}
	if fmt.Sprint(events) != fmt.Sprint(want) {
		t.Errorf("journal events = %v, want %v", events, want)
	}
}

// =============================================================================
// Config path resolution
// =============================================================================

func TestResolveConfigPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)

	userPath := filepath.Join(home, "hars-imp", configFileName)

	tests := []struct {
		name     string
		flag     string
		env      string
		userFile bool
		want     string
	}{
		{"flag wins", "/etc/flag.yaml", "/etc/env.yaml", true, "/etc/flag.yaml"},
		{"env over user file", "", "/etc/env.yaml", true, "/etc/env.yaml"},
		{"user file", "", "", true, userPath},
		{"working directory fallback", "", "", false, configFileName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(configEnv, tt.env)
			os.RemoveAll(filepath.Dir(userPath))
			if tt.userFile {
				if err := os.MkdirAll(filepath.Dir(userPath), 0o755); err != nil {
					t.Fatal(err)
				}
				if err := os.WriteFile(userPath, []byte("hostname: x\n"), 0o600); err != nil {
					t.Fatal(err)
				}
			}

			if got := resolveConfigPath(tt.flag); got != tt.want {
				t.Errorf("resolveConfigPath(%q) = %q, want %q", tt.flag, got, tt.want)
			}
		})
	}
}

func writeConfig(t *testing.T, dir, host string, port int, journalEnabled bool) string {
	t.Helper()
	content := fmt.Sprintf(`
hostname: desk
update_interval_ms: 50

mqtt:
  broker:
    host: %q
    port: %d
    client_id: desk-main-test
  qos: 1
  keep_alive: 30
  event_buffer: 16

logging:
  level: error
  format: text
  output: stderr

power:
  enabled: false
  status_timeout_ms: 2000
  retry:
    max_attempts: 1
    base_delay_ms: 10
    multiplier: 2

monitoring:
  enabled: false

notifications:
  enabled: false

journal:
  enabled: %t
  path: %q
`, host, port, journalEnabled, filepath.Join(dir, "journal.db"))

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

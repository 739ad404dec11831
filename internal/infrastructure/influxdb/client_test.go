package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/hars-imp/internal/infrastructure/config"
	"github.com/nerrad567/hars-imp/internal/infrastructure/influxdb"
)

// fakeServer answers the InfluxDB v2 ping and write endpoints and records
// every line-protocol body it receives.
type fakeServer struct {
	*httptest.Server

	mu      sync.Mutex
	lines   []string
	healthy bool
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{healthy: true}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			f.mu.Lock()
			healthy := f.healthy
			f.mu.Unlock()
			if !healthy {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body) //nolint:errcheck
			f.mu.Lock()
			for _, l := range strings.Split(strings.TrimSpace(string(body)), "\n") {
				if l != "" {
					f.lines = append(f.lines, l)
				}
			}
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeServer) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.lines))
	copy(out, f.lines)
	return out
}

func (f *fakeServer) setHealthy(v bool) {
	f.mu.Lock()
	f.healthy = v
	f.mu.Unlock()
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "test-token",
		Org:           "home",
		Bucket:        "hosts",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func connect(t *testing.T, f *fakeServer) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(context.Background(), testConfig(f.URL), "desk")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck
	return client
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	client := connect(t, newFakeServer(t))

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	_, err := influxdb.Connect(context.Background(), cfg, "desk")
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	f := newFakeServer(t)
	url := f.URL
	f.Close()

	_, err := influxdb.Connect(context.Background(), testConfig(url), "desk")
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_Unhealthy(t *testing.T) {
	f := newFakeServer(t)
	f.setHealthy(false)

	_, err := influxdb.Connect(context.Background(), testConfig(f.URL), "desk")
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	f := newFakeServer(t)
	cfg := testConfig(f.URL)
	cfg.BatchSize = -5
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(context.Background(), cfg, "desk")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck

	if !client.IsConnected() {
		t.Error("IsConnected() = false with default batch settings")
	}
}

// =============================================================================
// Write Tests
// =============================================================================

func TestWritePoint(t *testing.T) {
	f := newFakeServer(t)
	client := connect(t, f)

	client.WritePoint("system_performance",
		map[string]string{"host": "desk"},
		map[string]interface{}{"cpu_load": 12.5})
	client.Flush()

	lines := f.Lines()
	if len(lines) != 1 {
		t.Fatalf("lines = %v, want 1", lines)
	}
	if !strings.HasPrefix(lines[0], "system_performance,host=desk cpu_load=12.5 ") {
		t.Errorf("line = %q", lines[0])
	}
}

func TestWritePointWithTime(t *testing.T) {
	f := newFakeServer(t)
	client := connect(t, f)

	ts := time.Unix(1700000000, 0)
	client.WritePointWithTime("m", nil, map[string]interface{}{"v": 1.0}, ts)
	client.Flush()

	lines := f.Lines()
	if len(lines) != 1 || !strings.HasSuffix(lines[0], " 1700000000000000000") {
		t.Errorf("lines = %v", lines)
	}
}

func TestEventRecorder(t *testing.T) {
	f := newFakeServer(t)
	client := connect(t, f)

	rec := influxdb.EventRecorder{Client: client}
	if err := rec.Record(context.Background(), "suspend", "ok", ""); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := rec.Record(context.Background(), "resume", "error", "rebuilt after 2 attempts"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	client.Flush()

	lines := f.Lines()
	if len(lines) != 2 {
		t.Fatalf("lines = %v, want 2", lines)
	}
	if !strings.HasPrefix(lines[0], "lifecycle,event=suspend,host=desk,outcome=ok count=1i ") {
		t.Errorf("line[0] = %q", lines[0])
	}
	if !strings.Contains(lines[1], `detail="rebuilt after 2 attempts"`) {
		t.Errorf("line[1] = %q", lines[1])
	}
}

func TestWritePoint_DefaultHostTag(t *testing.T) {
	f := newFakeServer(t)
	client := connect(t, f)

	client.WritePoint("m", map[string]string{"kind": "probe"}, map[string]interface{}{"v": 1.0})
	client.Flush()

	lines := f.Lines()
	if len(lines) != 1 || !strings.Contains(lines[0], "host=desk") {
		t.Errorf("lines = %v, want host=desk tag", lines)
	}
	if client.Host() != "desk" {
		t.Errorf("Host() = %q, want desk", client.Host())
	}
}

func TestWrite_AfterCloseIsNoop(t *testing.T) {
	f := newFakeServer(t)
	client := connect(t, f)
	client.Close() //nolint:errcheck

	client.WritePoint("m", nil, map[string]interface{}{"v": 1.0})
	client.Flush()

	if lines := f.Lines(); len(lines) != 0 {
		t.Errorf("lines after close = %v", lines)
	}
}

func TestClose_Nil(t *testing.T) {
	var client influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
}

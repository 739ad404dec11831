package sysmon

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// Fakes
// =============================================================================

type fakeSource struct {
	cpu     float64
	cpuErr  error
	mhz     float64
	memTot  uint64
	memFree uint64
	mounts  []string
	usage   map[string]Usage
	calls   int
}

func (f *fakeSource) CPUPercent(context.Context) (float64, error) {
	f.calls++
	return f.cpu, f.cpuErr
}

func (f *fakeSource) CPUFrequencyMHz(context.Context) (float64, error) { return f.mhz, nil }

func (f *fakeSource) Memory(context.Context) (uint64, uint64, error) {
	return f.memTot, f.memFree, nil
}

func (f *fakeSource) Mountpoints(context.Context) ([]string, error) { return f.mounts, nil }

func (f *fakeSource) DiskUsage(_ context.Context, path string) (Usage, error) {
	u, ok := f.usage[path]
	if !ok {
		return Usage{}, errors.New("not mounted")
	}
	return u, nil
}

type fakePublisher struct {
	mu    sync.Mutex
	msgs  [][]byte
	topic string
}

func (f *fakePublisher) Publish(topic string, payload []byte, _ byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topic = topic
	f.msgs = append(f.msgs, payload)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

type fakeSink struct {
	mu     sync.Mutex
	points int
}

func (f *fakeSink) WritePoint(string, map[string]string, map[string]interface{}) {
	f.mu.Lock()
	f.points++
	f.mu.Unlock()
}

func hostSource() *fakeSource {
	return &fakeSource{
		cpu:     12.345,
		mhz:     2400,
		memTot:  16 * bytesPerGB,
		memFree: 4 * bytesPerGB,
		mounts:  []string{"/", "/boot", "/home"},
		usage: map[string]Usage{
			"/":     {Total: 100 * bytesPerGB, Free: 25 * bytesPerGB},
			"/boot": {Total: bytesPerGB / 2, Free: bytesPerGB / 4},
			"/home": {Total: 500 * bytesPerGB, Free: 100 * bytesPerGB},
		},
	}
}

// =============================================================================
// Sampler
// =============================================================================

func TestSampler_Sample(t *testing.T) {
	s := NewSampler(hostSource(), nil, 1)

	got, err := s.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}

	if got.CPULoad != 12.35 {
		t.Errorf("CPULoad = %v, want 12.35", got.CPULoad)
	}
	if got.CPUFrequency == nil || *got.CPUFrequency != 2.4 {
		t.Errorf("CPUFrequency = %v, want 2.4", got.CPUFrequency)
	}
	if got.MemoryTotal != 16 || got.MemoryFree != 4 || got.MemoryFreePercentage != 25 {
		t.Errorf("memory = %v/%v/%v", got.MemoryTotal, got.MemoryFree, got.MemoryFreePercentage)
	}
	if got.DiskTotal != 100 || got.DiskFree != 25 || got.DiskFreePercentage != 25 {
		t.Errorf("disk = %v/%v/%v", got.DiskTotal, got.DiskFree, got.DiskFreePercentage)
	}
}

func TestSampler_NoFrequency(t *testing.T) {
	src := hostSource()
	src.mhz = 0

	got, err := NewSampler(src, nil, 1).Sample(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.CPUFrequency != nil {
		t.Errorf("CPUFrequency = %v, want nil", *got.CPUFrequency)
	}

	b, _ := json.Marshal(got) //nolint:errcheck
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if v, ok := m["cpu_frequency"]; !ok || v != nil {
		t.Errorf("cpu_frequency = %v, want null", v)
	}
}

func TestSampler_CPUError(t *testing.T) {
	src := hostSource()
	src.cpuErr = errors.New("no /proc")

	if _, err := NewSampler(src, nil, 1).Sample(context.Background()); err == nil {
		t.Error("Sample() error = nil")
	}
}

func TestSampler_Disk(t *testing.T) {
	tests := []struct {
		name    string
		mounts  []string
		usage   map[string]Usage
		want    string
		wantErr error
	}{
		{
			name:   "sysroot preferred",
			mounts: []string{"/", "/sysroot"},
			usage: map[string]Usage{
				"/":        {Total: 10 * bytesPerGB},
				"/sysroot": {Total: 200 * bytesPerGB},
			},
			want: "/sysroot",
		},
		{
			name:   "root when no sysroot",
			mounts: []string{"/", "/data"},
			usage: map[string]Usage{
				"/":     {Total: 10 * bytesPerGB},
				"/data": {Total: 900 * bytesPerGB},
			},
			want: "/",
		},
		{
			name:   "tiny root falls back to largest",
			mounts: []string{"/", "/a", "/b"},
			usage: map[string]Usage{
				"/":  {Total: bytesPerGB / 2},
				"/a": {Total: 5 * bytesPerGB},
				"/b": {Total: 50 * bytesPerGB},
			},
			want: "/b",
		},
		{
			name:    "nothing qualifies",
			mounts:  []string{"/"},
			usage:   map[string]Usage{"/": {Total: 1024}},
			wantErr: ErrNoDisk,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{mounts: tt.mounts, usage: tt.usage}
			got, err := NewSampler(src, nil, 1).Disk(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Disk() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Disk() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSampler_NoDiskLeavesZeros(t *testing.T) {
	src := hostSource()
	src.usage = map[string]Usage{}

	got, err := NewSampler(src, nil, 1).Sample(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.DiskTotal != 0 || got.DiskFree != 0 {
		t.Errorf("disk = %v/%v, want zeros", got.DiskTotal, got.DiskFree)
	}
}

// =============================================================================
// Components
// =============================================================================

func TestComponents(t *testing.T) {
	cmps := Components("desk")

	if len(cmps) != len(Metrics)+1 {
		t.Fatalf("len = %d, want %d", len(cmps), len(Metrics)+1)
	}

	mt := cmps["memory_total"]
	if mt.StateTopic != "homeassistant/sensor/desk/system_performance/state" {
		t.Errorf("StateTopic = %q", mt.StateTopic)
	}
	if mt.ValueTemplate != "{{ value_json.memory_total }}" || mt.DeviceClass != "data_size" || mt.UnitOfMeasurement != "GB" {
		t.Errorf("memory_total = %+v", mt)
	}

	st := cmps["status"]
	if st.Name != "Status" || st.StateTopic != "homeassistant/sensor/desk/status/state" {
		t.Errorf("status = %+v", st)
	}
	if st.ValueTemplate != "{{ value_json.status }}" {
		t.Errorf("status template = %q", st.ValueTemplate)
	}
}

// =============================================================================
// Monitor
// =============================================================================

func TestMonitor_PublishesUntilCancelled(t *testing.T) {
	src := hostSource()
	pub := &fakePublisher{}
	sink := &fakeSink{}
	m := NewMonitor(Config{
		Host:     "desk",
		Topic:    "homeassistant/sensor/desk/system_performance/state",
		Interval: 10 * time.Millisecond,
		Warmup:   time.Millisecond,
	}, NewSampler(src, nil, 1), pub, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for pub.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if pub.count() < 3 {
		t.Fatalf("published %d samples, want at least 3", pub.count())
	}
	if pub.topic != "homeassistant/sensor/desk/system_performance/state" {
		t.Errorf("topic = %q", pub.topic)
	}

	var s Sample
	if err := json.Unmarshal(pub.msgs[0], &s); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if s.CPULoad != 12.35 {
		t.Errorf("CPULoad = %v", s.CPULoad)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.points < 3 {
		t.Errorf("sink points = %d, want >= 3", sink.points)
	}
}

func TestMonitor_CancelDuringWarmup(t *testing.T) {
	pub := &fakePublisher{}
	m := NewMonitor(Config{Interval: time.Hour, Warmup: time.Hour}, NewSampler(hostSource(), nil, 1), pub, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Run(ctx)

	if pub.count() != 0 {
		t.Errorf("published %d, want 0", pub.count())
	}
}

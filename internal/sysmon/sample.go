package sysmon

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
)

const bytesPerGB = 1 << 30

// ErrNoDisk is returned when no mounted filesystem qualifies as the root disk.
var ErrNoDisk = errors.New("sysmon: no suitable disk found")

// Sample is one performance reading. Values are rounded to two decimals.
// CPUFrequency is nil when the platform does not report it.
type Sample struct {
	CPULoad              float64  `json:"cpu_load"`
	CPUFrequency         *float64 `json:"cpu_frequency"`
	MemoryTotal          float64  `json:"memory_total"`
	MemoryFree           float64  `json:"memory_free"`
	MemoryFreePercentage float64  `json:"memory_free_percentage"`
	DiskTotal            float64  `json:"disk_total"`
	DiskFree             float64  `json:"disk_free"`
	DiskFreePercentage   float64  `json:"disk_free_percentage"`
}

// Fields returns the sample as a field map for time-series writes.
func (s Sample) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"cpu_load":               s.CPULoad,
		"memory_total":           s.MemoryTotal,
		"memory_free":            s.MemoryFree,
		"memory_free_percentage": s.MemoryFreePercentage,
		"disk_total":             s.DiskTotal,
		"disk_free":              s.DiskFree,
		"disk_free_percentage":   s.DiskFreePercentage,
	}
	if s.CPUFrequency != nil {
		fields["cpu_frequency"] = *s.CPUFrequency
	}
	return fields
}

// Usage is a filesystem's size in bytes.
type Usage struct {
	Total uint64
	Free  uint64
}

// Source reads raw host counters.
type Source interface {
	// CPUPercent returns average utilisation across all CPUs since the previous call.
	CPUPercent(ctx context.Context) (float64, error)
	// CPUFrequencyMHz returns the first CPU's frequency, or 0 if unknown.
	CPUFrequencyMHz(ctx context.Context) (float64, error)
	Memory(ctx context.Context) (total, available uint64, err error)
	Mountpoints(ctx context.Context) ([]string, error)
	DiskUsage(ctx context.Context, path string) (Usage, error)
}

// Sampler turns Source readings into Samples. The root disk is chosen on
// first use and cached.
type Sampler struct {
	src       Source
	rootPaths []string
	minDisk   uint64

	disk string
}

// NewSampler creates a Sampler preferring the first of rootPaths that is
// mounted and at least minDiskGB in size.
func NewSampler(src Source, rootPaths []string, minDiskGB int) *Sampler {
	if len(rootPaths) == 0 {
		rootPaths = []string{"/sysroot", "/"}
	}
	return &Sampler{
		src:       src,
		rootPaths: rootPaths,
		minDisk:   uint64(max(minDiskGB, 0)) * bytesPerGB,
	}
}

// Disk returns the selected mountpoint, selecting it if needed.
func (s *Sampler) Disk(ctx context.Context) (string, error) {
	if s.disk != "" {
		return s.disk, nil
	}

	mounts, err := s.src.Mountpoints(ctx)
	if err != nil {
		return "", fmt.Errorf("listing mountpoints: %w", err)
	}

	usage := make(map[string]Usage, len(mounts))
	for _, m := range mounts {
		if u, err := s.src.DiskUsage(ctx, m); err == nil {
			usage[m] = u
		}
	}

	for _, p := range s.rootPaths {
		if u, ok := usage[p]; ok && u.Total >= s.minDisk {
			s.disk = p
			return p, nil
		}
	}

	// Fall back to the largest qualifying filesystem.
	var best string
	var bestTotal uint64
	slices.Sort(mounts)
	for _, m := range mounts {
		u, ok := usage[m]
		if ok && u.Total >= s.minDisk && u.Total > bestTotal {
			best, bestTotal = m, u.Total
		}
	}
	if best == "" {
		return "", ErrNoDisk
	}
	s.disk = best
	return best, nil
}

// Prime takes a throwaway CPU reading so the next one covers a real interval.
func (s *Sampler) Prime(ctx context.Context) {
	_, _ = s.src.CPUPercent(ctx) //nolint:errcheck
}

// Sample reads every metric. Disk figures are zero when no disk qualifies.
func (s *Sampler) Sample(ctx context.Context) (Sample, error) {
	var out Sample

	load, err := s.src.CPUPercent(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("reading cpu load: %w", err)
	}
	out.CPULoad = round2(load)

	if mhz, err := s.src.CPUFrequencyMHz(ctx); err == nil && mhz > 0 {
		ghz := round2(mhz / 1000)
		out.CPUFrequency = &ghz
	}

	total, avail, err := s.src.Memory(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("reading memory: %w", err)
	}
	out.MemoryTotal = round2(gb(total))
	out.MemoryFree = round2(gb(avail))
	out.MemoryFreePercentage = round2(percent(avail, total))

	if disk, err := s.Disk(ctx); err == nil {
		if u, err := s.src.DiskUsage(ctx, disk); err == nil {
			out.DiskTotal = round2(gb(u.Total))
			out.DiskFree = round2(gb(u.Free))
			out.DiskFreePercentage = round2(percent(u.Free, u.Total))
		}
	}

	return out, nil
}

func gb(b uint64) float64 { return float64(b) / bytesPerGB }

func percent(part, whole uint64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

package ffmpeg

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats is a point-in-time resource sample of a transcoder process.
type ProcessStats struct {
	PID           int     `json:"pid"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryRSSMB   float64 `json:"memory_rss_mb"`
	MemoryRSSByte uint64  `json:"memory_rss_bytes"`
}

// InspectProcess samples CPU and memory usage for pid.
func InspectProcess(ctx context.Context, pid int) (*ProcessStats, error) {
	p, err := process.NewProcessWithContext(ctx, int32(pid)) //nolint:gosec // pids fit in int32
	if err != nil {
		return nil, fmt.Errorf("inspecting process %d: %w", pid, err)
	}

	stats := &ProcessStats{PID: pid}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		stats.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		stats.MemoryRSSByte = mem.RSS
		stats.MemoryRSSMB = float64(mem.RSS) / 1024 / 1024
	}
	return stats, nil
}

// ProcessExists reports whether pid is still present in the process table.
func ProcessExists(ctx context.Context, pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := process.PidExistsWithContext(ctx, int32(pid)) //nolint:gosec // pids fit in int32
	return err == nil && ok
}

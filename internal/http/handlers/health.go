package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/ABHIRAMSHIBU/internetradio/internal/ffmpeg"
	"github.com/ABHIRAMSHIBU/internetradio/internal/relay"
	"github.com/ABHIRAMSHIBU/internetradio/internal/scheduler"
)

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseInfo is optionally implemented by the Pinger to report its driver
// and connection pool.
type DatabaseInfo interface {
	Driver() string
	Stats() (map[string]any, error)
}

// FFmpegDetector locates the ffmpeg binary.
type FFmpegDetector interface {
	Detect(ctx context.Context) (*ffmpeg.BinaryInfo, error)
}

// CircuitReporter reports upstream circuit breakers.
type CircuitReporter interface {
	CircuitStats() map[string]relay.CircuitStats
}

// JobReporter reports scheduled jobs.
type JobReporter interface {
	Status() []scheduler.JobStatus
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	version   string
	startTime time.Time
	manager   SessionManager
	db        Pinger
	ffmpeg    FFmpegDetector
	circuits  CircuitReporter
	jobs      JobReporter
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string, manager SessionManager) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
		manager:   manager,
	}
}

// WithDB sets the database used for health checks.
func (h *HealthHandler) WithDB(db Pinger) *HealthHandler {
	h.db = db
	return h
}

// WithFFmpeg sets the ffmpeg detector.
func (h *HealthHandler) WithFFmpeg(d FFmpegDetector) *HealthHandler {
	h.ffmpeg = d
	return h
}

// WithCircuits sets the circuit breaker source.
func (h *HealthHandler) WithCircuits(c CircuitReporter) *HealthHandler {
	h.circuits = c
	return h
}

// WithJobs sets the scheduler.
func (h *HealthHandler) WithJobs(j JobReporter) *HealthHandler {
	h.jobs = j
	return h
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// HealthResponse is the full health report.
type HealthResponse struct {
	Status         string                 `json:"status" enum:"healthy,degraded"`
	Timestamp      time.Time              `json:"timestamp"`
	Version        string                 `json:"version"`
	Uptime         string                 `json:"uptime"`
	UptimeSeconds  float64                `json:"uptime_seconds"`
	ActiveSessions int                    `json:"active_sessions"`
	Engine         string                 `json:"engine"`
	CPU            CPUInfo                `json:"cpu"`
	Memory         MemoryInfo             `json:"memory"`
	FFmpeg         FFmpegHealth           `json:"ffmpeg"`
	Database       ComponentHealth        `json:"database"`
	Circuits       []CircuitBreakerStatus `json:"circuit_breakers"`
	Jobs           []scheduler.JobStatus  `json:"jobs"`
	Checks         map[string]string      `json:"checks"`
}

// CPUInfo holds load averages.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo holds system and process-tree memory.
type MemoryInfo struct {
	TotalMemoryMB     float64           `json:"total_memory_mb"`
	UsedMemoryMB      float64           `json:"used_memory_mb"`
	AvailableMemoryMB float64           `json:"available_memory_mb"`
	Process           ProcessMemoryInfo `json:"process"`
}

// ProcessMemoryInfo covers this process and its transcoder children.
type ProcessMemoryInfo struct {
	MainProcessMB      float64 `json:"main_process_mb"`
	ChildProcessesMB   float64 `json:"child_processes_mb"`
	TotalProcessTreeMB float64 `json:"total_process_tree_mb"`
	ChildProcessCount  int     `json:"child_process_count"`
	PercentageOfSystem float64 `json:"percentage_of_system"`
}

// FFmpegHealth reports whether the transcoder binary is usable.
type FFmpegHealth struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ComponentHealth is the status of one dependency.
type ComponentHealth struct {
	Status         string         `json:"status" enum:"ok,error,disabled"`
	ResponseTimeMS float64        `json:"response_time_ms,omitempty"`
	Driver         string         `json:"driver,omitempty"`
	Pool           map[string]any `json:"pool,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// CircuitBreakerStatus is the state of one upstream host.
type CircuitBreakerStatus struct {
	Host     string `json:"host"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

// LivezInput is the input for the liveness probe.
type LivezInput struct{}

// LivezOutput is the output for the liveness probe.
type LivezOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the service including system metrics and transcoder processes",
		Tags:        []string{"System"},
	}, h.GetHealth)

	huma.Register(api, huma.Operation{
		OperationID: "getLivez",
		Method:      http.MethodGet,
		Path:        "/livez",
		Summary:     "Liveness probe",
		Tags:        []string{"System"},
	}, h.GetLivez)
}

// GetLivez reports that the process is serving requests.
func (h *HealthHandler) GetLivez(_ context.Context, _ *LivezInput) (*LivezOutput, error) {
	out := &LivezOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	resp := HealthResponse{
		Status:        "healthy",
		Timestamp:     now.UTC(),
		Version:       h.version,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		CPU:           h.getCPUInfo(),
		Memory:        h.getMemoryInfo(ctx),
		FFmpeg:        h.getFFmpegHealth(ctx),
		Database:      h.getDatabaseHealth(ctx),
		Circuits:      h.getCircuits(),
		Jobs:          []scheduler.JobStatus{},
		Checks:        map[string]string{},
	}
	if h.manager != nil {
		resp.ActiveSessions = h.manager.Count()
		resp.Engine = h.manager.EngineName()
	}
	if h.jobs != nil {
		resp.Jobs = h.jobs.Status()
	}

	resp.Checks["database"] = resp.Database.Status
	switch {
	case resp.FFmpeg.Available:
		resp.Checks["ffmpeg"] = "ok"
	case h.ffmpeg == nil:
		resp.Checks["ffmpeg"] = "disabled"
	default:
		resp.Checks["ffmpeg"] = "error"
	}
	for _, status := range resp.Checks {
		if status == "error" {
			resp.Status = "degraded"
		}
	}

	return &HealthOutput{Body: resp}, nil
}

func (h *HealthHandler) getCPUInfo() CPUInfo {
	info := CPUInfo{Cores: runtime.NumCPU()}

	loadAvg, err := load.Avg()
	if err == nil && loadAvg != nil {
		info.Load1Min = loadAvg.Load1
		info.Load5Min = loadAvg.Load5
		info.Load15Min = loadAvg.Load15
		if info.Cores > 0 {
			info.LoadPercentage1Min = (loadAvg.Load1 / float64(info.Cores)) * 100
		}
	}
	return info
}

func (h *HealthHandler) getMemoryInfo(ctx context.Context) MemoryInfo {
	info := MemoryInfo{}

	vmStat, err := mem.VirtualMemoryWithContext(ctx)
	if err == nil && vmStat != nil {
		info.TotalMemoryMB = float64(vmStat.Total) / 1024 / 1024
		info.UsedMemoryMB = float64(vmStat.Used) / 1024 / 1024
		info.AvailableMemoryMB = float64(vmStat.Available) / 1024 / 1024
	}

	info.Process = h.getProcessMemoryInfo(ctx, info.TotalMemoryMB)
	return info
}

// getProcessMemoryInfo counts transcoders as child processes of the server.
func (h *HealthHandler) getProcessMemoryInfo(ctx context.Context, totalSystemMB float64) ProcessMemoryInfo {
	info := ProcessMemoryInfo{}

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())) //nolint:gosec // pids fit in int32
	if err != nil {
		return info
	}

	if memInfo, err := proc.MemoryInfoWithContext(ctx); err == nil && memInfo != nil {
		info.MainProcessMB = float64(memInfo.RSS) / 1024 / 1024
		info.TotalProcessTreeMB = info.MainProcessMB
	}

	if children, err := proc.ChildrenWithContext(ctx); err == nil {
		info.ChildProcessCount = len(children)
		for _, child := range children {
			if childMem, err := child.MemoryInfoWithContext(ctx); err == nil && childMem != nil {
				childMB := float64(childMem.RSS) / 1024 / 1024
				info.ChildProcessesMB += childMB
				info.TotalProcessTreeMB += childMB
			}
		}
	}

	if totalSystemMB > 0 {
		info.PercentageOfSystem = (info.TotalProcessTreeMB / totalSystemMB) * 100
	}
	return info
}

func (h *HealthHandler) getFFmpegHealth(ctx context.Context) FFmpegHealth {
	if h.ffmpeg == nil {
		return FFmpegHealth{}
	}
	bin, err := h.ffmpeg.Detect(ctx)
	if err != nil {
		return FFmpegHealth{Error: err.Error()}
	}
	return FFmpegHealth{Available: true, Path: bin.Path, Version: bin.Version}
}

func (h *HealthHandler) getDatabaseHealth(ctx context.Context) ComponentHealth {
	if h.db == nil {
		return ComponentHealth{Status: "disabled"}
	}

	start := time.Now()
	err := h.db.Ping(ctx)
	health := ComponentHealth{
		Status:         "ok",
		ResponseTimeMS: float64(time.Since(start).Microseconds()) / 1000,
	}
	if err != nil {
		health.Status = "error"
		health.Error = err.Error()
	}

	if info, ok := h.db.(DatabaseInfo); ok {
		health.Driver = info.Driver()
		if pool, err := info.Stats(); err == nil {
			health.Pool = pool
		}
	}
	return health
}

func (h *HealthHandler) getCircuits() []CircuitBreakerStatus {
	out := []CircuitBreakerStatus{}
	if h.circuits == nil {
		return out
	}
	for host, s := range h.circuits.CircuitStats() {
		out = append(out, CircuitBreakerStatus{Host: host, State: s.State, Failures: s.Failures})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Host < out[j].Host })
	return out
}

package relay

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ABHIRAMSHIBU/internetradio/internal/ffmpeg"
	"github.com/ABHIRAMSHIBU/internetradio/internal/observability"
)

// ManagerConfig holds configuration for the relay manager.
type ManagerConfig struct {
	Engine   Engine
	Resolver SourceResolver
	Format   TargetFormat

	ChunkDuration     time.Duration
	ReadTimeout       time.Duration
	ProgressLogChunks int
	// MaxSessions caps concurrent sessions. Zero means unlimited.
	MaxSessions int

	Logger  *slog.Logger
	Metrics Metrics

	// OnSessionEnd is called once per session after it has been removed.
	OnSessionEnd func(SessionSummary)
	// OnRestart is called before each transcoder restart of any session.
	OnRestart func(sessionID string, ev RestartEvent)
}

// DefaultManagerConfig returns the configuration defaults without an engine.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Format:            DefaultFormat,
		ChunkDuration:     100 * time.Millisecond,
		ReadTimeout:       15 * time.Second,
		ProgressLogChunks: 100,
		MaxSessions:       32,
	}
}

// Manager owns the registry of active sessions. It is the only mutator of
// the registry; readers get copies.
type Manager struct {
	config  ManagerConfig
	logger  *slog.Logger
	metrics Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a new relay manager.
func NewManager(config ManagerConfig) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	if config.Format.SampleRate == 0 {
		config.Format = DefaultFormat
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Manager{
		config:   config,
		logger:   observability.WithComponent(logger, "relay"),
		metrics:  metrics,
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Format returns the output format every session emits.
func (m *Manager) Format() TargetFormat {
	return m.config.Format
}

// EngineName returns the name of the engine sessions use.
func (m *Manager) EngineName() string {
	if m.config.Engine == nil {
		return ""
	}
	return m.config.Engine.Name()
}

// OpenSession validates src and registers a new session for clientID. The
// caller must Attach a sink, or CloseSession if it no longer wants it.
func (m *Manager) OpenSession(ctx context.Context, clientID string, src SourceDescriptor) (*Session, error) {
	if src.IsZero() {
		return nil, ErrNoSource
	}
	if err := m.admit(); err != nil {
		return nil, err
	}

	if m.config.Resolver != nil {
		if err := m.config.Resolver.Resolve(ctx, src); err != nil {
			return nil, err
		}
	}

	id := ulid.Make().String()
	logger := observability.WithSession(m.logger, id, clientID)
	sctx, cancel := context.WithCancel(m.ctx)

	s := &Session{
		id:        id,
		clientID:  clientID,
		source:    src,
		startedAt: time.Now(),
		manager:   m,
		logger:    logger,
		ctx:       sctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.loop = NewLoop(LoopConfig{
		Engine:            m.config.Engine,
		Source:            src,
		Format:            m.config.Format,
		ChunkDuration:     m.config.ChunkDuration,
		ReadTimeout:       m.config.ReadTimeout,
		ProgressLogChunks: m.config.ProgressLogChunks,
		Logger:            logger,
		Metrics:           m.metrics,
		OnRestart: func(ev RestartEvent) {
			if m.config.OnRestart != nil {
				m.config.OnRestart(id, ev)
			}
		},
	})

	m.mu.Lock()
	if err := m.admitLocked(); err != nil {
		m.mu.Unlock()
		cancel()
		return nil, err
	}
	m.sessions[id] = s
	m.mu.Unlock()

	m.metrics.SessionOpened()
	logger.Info("session opened",
		slog.String("source", src.Name),
		slog.String("source_kind", src.Kind.String()),
		slog.String("engine", m.EngineName()))

	return s, nil
}

func (m *Manager) admit() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.admitLocked()
}

func (m *Manager) admitLocked() error {
	if m.closed {
		return ErrManagerClosed
	}
	if m.config.MaxSessions > 0 && len(m.sessions) >= m.config.MaxSessions {
		return ErrTooManySessions
	}
	return nil
}

// Session returns a registered session.
func (m *Manager) Session(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// CloseSession cancels a session, terminates its transcoder and removes it.
// Closing an unknown or already closed session is a no-op.
func (m *Manager) CloseSession(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return nil
	}

	s.stop(EndClosed)
	<-s.done
	return nil
}

// release removes a finished session and reports it.
func (m *Manager) release(s *Session, reason EndReason, err error) {
	m.mu.Lock()
	if cur, ok := m.sessions[s.id]; ok && cur == s {
		delete(m.sessions, s.id)
	}
	m.mu.Unlock()

	summary := s.summary(reason, err)
	m.metrics.SessionClosed(reason)

	attrs := []any{
		slog.String("reason", string(reason)),
		slog.Int64("bytes", summary.BytesSent),
		slog.Int64("chunks", summary.ChunksSent),
		slog.Int64("restarts", summary.Restarts),
		slog.Duration("duration", summary.EndedAt.Sub(summary.StartedAt)),
	}
	if reason == EndFatal {
		s.logger.Error("session failed", append(attrs, slog.Any("error", err))...)
	} else {
		s.logger.Info("session closed", attrs...)
	}

	if m.config.OnSessionEnd != nil {
		m.config.OnSessionEnd(summary)
	}
}

// Snapshot is a point-in-time copy of the registry.
type Snapshot struct {
	ActiveSessions int            `json:"active_sessions"`
	MaxSessions    int            `json:"max_sessions"`
	Sessions       []SessionStats `json:"sessions"`
}

// Snapshot returns the session count and per-session counters. Process
// resource usage is sampled for sessions with a live OS process.
func (m *Manager) Snapshot(ctx context.Context) Snapshot {
	// Copy session pointers while holding the lock briefly
	m.mu.RLock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.RUnlock()

	sessions := make([]SessionStats, 0, len(list))
	for _, s := range list {
		stats := s.Stats()
		if stats.PID > 0 && stats.State == StateRunning.String() {
			if ps, err := ffmpeg.InspectProcess(ctx, stats.PID); err == nil {
				stats.Process = ps
			}
		}
		sessions = append(sessions, stats)
	}
	// ULIDs sort by creation time.
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })

	return Snapshot{
		ActiveSessions: len(sessions),
		MaxSessions:    m.config.MaxSessions,
		Sessions:       sessions,
	}
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close ends every session and waits for all transcoders to exit. New
// sessions are refused afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.Unlock()

	for _, s := range list {
		s.stop(EndShutdown)
	}
	m.cancel()
	m.wg.Wait()
}

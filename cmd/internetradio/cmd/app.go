package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/ABHIRAMSHIBU/internetradio/internal/catalog"
	"github.com/ABHIRAMSHIBU/internetradio/internal/config"
	"github.com/ABHIRAMSHIBU/internetradio/internal/database"
	"github.com/ABHIRAMSHIBU/internetradio/internal/ffmpeg"
	internalhttp "github.com/ABHIRAMSHIBU/internetradio/internal/http"
	"github.com/ABHIRAMSHIBU/internetradio/internal/http/handlers"
	"github.com/ABHIRAMSHIBU/internetradio/internal/metrics"
	"github.com/ABHIRAMSHIBU/internetradio/internal/models"
	"github.com/ABHIRAMSHIBU/internetradio/internal/observability"
	"github.com/ABHIRAMSHIBU/internetradio/internal/relay"
	"github.com/ABHIRAMSHIBU/internetradio/internal/repository"
	"github.com/ABHIRAMSHIBU/internetradio/internal/scheduler"
	"github.com/ABHIRAMSHIBU/internetradio/internal/version"
)

// Scheduled job names.
const (
	jobCatalogRescan = "catalog_rescan"
	jobRelayStats    = "relay_stats"
	jobHistoryPrune  = "history_prune"
)

const (
	historyPruneSchedule = "@hourly"
	selectionsKept       = 100
	recordTimeout        = 5 * time.Second
	maxRecordErrorLength = 1024
)

// app holds the wired components of a running server.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db         *database.DB
	sessions   repository.SessionRepository
	selections repository.SelectionRepository

	detector  *ffmpeg.BinaryDetector
	resolver  *relay.Resolver
	catalog   *catalog.Catalog
	manager   *relay.Manager
	metrics   *metrics.Metrics
	scheduler *scheduler.Scheduler
	server    *internalhttp.Server
}

// newApp wires every component from cfg. The caller must call close.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	ready := false
	defer func() {
		if !ready {
			a.close()
		}
	}()

	var err error
	a.detector = ffmpeg.NewBinaryDetector(cfg.FFmpeg.BinaryPath)
	engine, err := selectEngine(ctx, cfg, a.detector, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Database.Enabled {
		a.db, err = database.Open(ctx, cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("initializing database: %w", err)
		}
		a.sessions = repository.NewSessionRepository(a.db.DB)
		a.selections = repository.NewSelectionRepository(a.db.DB)
	}

	catCfg := catalog.Config{
		MediaDir:   cfg.Source.MediaDir,
		Extensions: cfg.Source.Extensions,
		Policy:     reconnectPolicy(cfg.Relay.Retry),
		Logger:     logger,
	}
	if a.selections != nil {
		catCfg.Store = a.selections
	}
	a.catalog, err = catalog.New(catCfg)
	if err != nil {
		return nil, fmt.Errorf("initializing catalog: %w", err)
	}

	a.resolver = relay.NewResolver(relay.ResolverConfig{
		UserAgent:    cfg.FFmpeg.UserAgent,
		ProbeTimeout: cfg.Source.ProbeTimeout,
		CircuitBreaker: relay.CircuitBreakerConfig{
			FailureThreshold: cfg.Relay.CircuitBreaker.Threshold,
			SuccessThreshold: 1,
			Timeout:          cfg.Relay.CircuitBreaker.Timeout,
		},
		Logger: logger,
	})

	a.selectInitialSource(ctx)

	managerCfg := relay.ManagerConfig{
		Engine:            engine,
		Resolver:          a.resolver,
		Format:            relay.DefaultFormat,
		ChunkDuration:     cfg.Relay.ChunkDuration,
		ReadTimeout:       cfg.Relay.ReadTimeout,
		ProgressLogChunks: cfg.Relay.ProgressLogChunks,
		MaxSessions:       cfg.Relay.MaxSessions,
		Logger:            logger,
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
		managerCfg.Metrics = a.metrics
	}
	if a.sessions != nil {
		managerCfg.OnSessionEnd = a.recordSession
	}
	a.manager = relay.NewManager(managerCfg)

	a.scheduler = scheduler.New(logger)
	if err := a.registerJobs(); err != nil {
		return nil, err
	}

	a.server = a.buildServer()
	ready = true
	return a, nil
}

// selectEngine picks the transcoder engine named by relay.engine. auto
// prefers ffmpeg and falls back to the native decoders.
func selectEngine(ctx context.Context, cfg *config.Config, detector *ffmpeg.BinaryDetector, logger *slog.Logger) (relay.Engine, error) {
	ffmpegEngine := func(info *ffmpeg.BinaryInfo) relay.Engine {
		logger.Info("using ffmpeg engine",
			slog.String("path", info.Path),
			slog.String("version", info.Version))
		return relay.NewFFmpegEngine(relay.FFmpegEngineConfig{
			Binary:            detector,
			UserAgent:         cfg.FFmpeg.UserAgent,
			ReconnectDelayMax: cfg.FFmpeg.ReconnectDelayMax,
			LogLevel:          cfg.FFmpeg.LogLevel,
			GracePeriod:       cfg.Relay.GracePeriod,
			Logger:            logger,
		})
	}

	switch cfg.Relay.Engine {
	case config.EngineNative:
		logger.Info("using native engine")
		return relay.NewNativeEngine(logger), nil
	case config.EngineAuto:
		info, err := detector.Detect(ctx)
		if err != nil {
			logger.Warn("ffmpeg not available, falling back to native engine",
				slog.String("error", err.Error()))
			return relay.NewNativeEngine(logger), nil
		}
		return ffmpegEngine(info), nil
	default:
		info, err := detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("ffmpeg engine selected: %w", err)
		}
		return ffmpegEngine(info), nil
	}
}

func reconnectPolicy(r config.RetryConfig) relay.ReconnectPolicy {
	return relay.ReconnectPolicy{
		MaxAttempts:   r.MaxAttempts,
		InitialDelay:  r.InitialDelay,
		MaxDelay:      r.MaxDelay,
		BackoffFactor: r.BackoffFactor,
	}
}

// selectInitialSource restores the persisted selection, then applies
// source.initial on top. Failures are logged; /load can still fix them.
func (a *app) selectInitialSource(ctx context.Context) {
	if _, err := a.catalog.Restore(ctx); err != nil {
		a.logger.Warn("failed to restore source selection", slog.String("error", err.Error()))
	}

	if spec := a.cfg.Source.Initial; spec != "" {
		if _, err := a.catalog.Initial(ctx, spec); err != nil {
			a.logger.Warn("initial source not loaded",
				slog.String("source", spec),
				slog.String("error", err.Error()))
		}
	}

	src := a.catalog.Source()
	if !src.IsRemote() {
		return
	}
	if err := a.resolver.Resolve(ctx, src); err != nil {
		a.logger.Warn("remote source is not reachable yet",
			slog.String("source", src.Name),
			slog.String("error", err.Error()))
	}
}

// recordSession persists a finished session.
func (a *app) recordSession(s relay.SessionSummary) {
	id, err := models.ParseULID(s.ID)
	if err != nil {
		a.logger.Warn("session id is not a ULID", slog.String("session_id", s.ID))
		return
	}

	rec := &models.SessionRecord{
		BaseModel:  models.BaseModel{ID: id},
		ClientID:   s.ClientID,
		Source:     s.Source.Name,
		SourceKind: s.Source.Kind.String(),
		StartedAt:  s.StartedAt,
		EndedAt:    s.EndedAt,
		BytesSent:  s.BytesSent,
		ChunksSent: s.ChunksSent,
		Restarts:   s.Restarts,
		Reason:     string(s.Reason),
	}
	if s.Err != nil {
		rec.Error = truncateUTF8(s.Err.Error(), maxRecordErrorLength)
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := a.sessions.Create(ctx, rec); err != nil {
		observability.WithError(a.logger, err).Warn("failed to record session",
			slog.String("session_id", s.ID))
	}
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (a *app) registerJobs() error {
	if err := a.scheduler.Register(jobCatalogRescan, a.cfg.Source.RescanSchedule, a.rescanCatalog); err != nil {
		return fmt.Errorf("registering %s: %w", jobCatalogRescan, err)
	}
	if err := a.scheduler.Register(jobRelayStats, a.cfg.Relay.StatsSchedule, a.reportStats); err != nil {
		return fmt.Errorf("registering %s: %w", jobRelayStats, err)
	}
	if a.db != nil && a.cfg.Database.HistoryRetention > 0 {
		if err := a.scheduler.Register(jobHistoryPrune, historyPruneSchedule, a.pruneHistory); err != nil {
			return fmt.Errorf("registering %s: %w", jobHistoryPrune, err)
		}
	}
	return nil
}

func (a *app) rescanCatalog(ctx context.Context) error {
	entries, err := a.catalog.Rescan(ctx)
	if err != nil {
		return err
	}
	a.catalog.Refresh()
	if a.metrics != nil {
		a.metrics.SetCatalogFiles(len(entries))
	}
	return nil
}

func (a *app) reportStats(ctx context.Context) error {
	snap := a.manager.Snapshot(ctx)
	if a.metrics != nil {
		a.metrics.SetActiveSessions(snap.ActiveSessions)
	}

	var bytes, restarts int64
	for _, s := range snap.Sessions {
		bytes += s.BytesSent
		restarts += s.Restarts
	}
	observability.LoggerFromContext(ctx).InfoContext(ctx, "relay stats",
		slog.Int("active_sessions", snap.ActiveSessions),
		slog.Int64("bytes_sent", bytes),
		slog.String("sent", humanize.IBytes(uint64(bytes))),
		slog.Int64("restarts", restarts))
	return nil
}

func (a *app) pruneHistory(ctx context.Context) error {
	logger := observability.LoggerFromContext(ctx)
	defer observability.TimedOperation(ctx, logger, jobHistoryPrune)()

	cutoff := time.Now().Add(-a.cfg.Database.HistoryRetention)
	removed, err := a.sessions.DeleteEndedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pruning session history: %w", err)
	}
	pruned, err := a.selections.Prune(ctx, selectionsKept)
	if err != nil {
		return fmt.Errorf("pruning source selections: %w", err)
	}
	if removed > 0 || pruned > 0 {
		logger.InfoContext(ctx, "pruned history",
			slog.Int64("sessions", removed),
			slog.Int64("selections", pruned))
	}
	return nil
}

func (a *app) buildServer() *internalhttp.Server {
	serverCfg := internalhttp.ServerConfig{
		Host:            a.cfg.Server.Host,
		Port:            a.cfg.Server.Port,
		ReadTimeout:     a.cfg.Server.ReadTimeout,
		WriteTimeout:    a.cfg.Server.WriteTimeout,
		IdleTimeout:     a.cfg.Server.IdleTimeout,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
	}
	if a.metrics != nil {
		serverCfg.Middleware = append(serverCfg.Middleware, metrics.RequestMiddleware(a.metrics))
	}

	server := internalhttp.NewServer(serverCfg, a.logger, version.Version)
	api := server.API()

	stream := handlers.NewStreamHandler(a.manager, a.catalog).WithLogger(a.logger)
	stream.Register(api)
	handlers.NewStatusHandler(version.Version, a.manager, a.catalog).Register(api)
	handlers.NewLoadHandler(a.catalog).Register(api)

	var history handlers.HistoryStore
	if a.sessions != nil {
		history = a.sessions
	}
	handlers.NewSessionsHandler(a.manager, history).Register(api)
	handlers.NewJobsHandler(a.scheduler).Register(api)

	health := handlers.NewHealthHandler(version.Version, a.manager).
		WithCircuits(a.resolver).
		WithJobs(a.scheduler)
	if a.manager.EngineName() == config.EngineFFmpeg {
		health.WithFFmpeg(a.detector)
	}
	if a.db != nil {
		health.WithDB(a.db)
	}
	health.Register(api)

	// Raw routes replace the documentation-only huma registrations.
	stream.RegisterChiRoutes(server.Router())
	if a.metrics != nil {
		server.Router().Handle(a.cfg.Metrics.Path, a.metrics.Handler(func() {
			a.metrics.SetActiveSessions(a.manager.Count())
			a.metrics.SetCatalogFiles(len(a.catalog.List()))
		}))
	}

	// Open streams hold Shutdown until their sessions end.
	server.RegisterOnShutdown(a.manager.Close)
	return server
}

// run serves until ctx is cancelled or a component fails.
func (a *app) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.ListenAndServe(gctx)
	})
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	if a.cfg.Source.Watch {
		watcher := catalog.NewWatcher(a.catalog, catalog.DefaultDebounce)
		if a.metrics != nil {
			watcher.OnRescan = func(entries []catalog.Entry) {
				a.metrics.SetCatalogFiles(len(entries))
			}
		}
		g.Go(func() error {
			// Polling by rescan_schedule still works without a watcher.
			if err := watcher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn("media directory watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	return g.Wait()
}

// close releases everything newApp acquired. Sessions are ended before the
// database closes so their history is written.
func (a *app) close() {
	if a.manager != nil {
		a.manager.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("closing database", slog.String("error", err.Error()))
		}
	}
}

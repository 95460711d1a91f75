package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Sink receives relayed chunks. Flush pushes everything written so far to
// the client.
type Sink interface {
	Write(p []byte) (int, error)
	Flush() error
}

type writerSink struct {
	w io.Writer
}

// NewWriterSink adapts an io.Writer into a Sink. Flush is forwarded when w
// supports it.
func NewWriterSink(w io.Writer) Sink {
	return writerSink{w: w}
}

func (s writerSink) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

func (s writerSink) Flush() error {
	switch f := s.w.(type) {
	case interface{ Flush() error }:
		return f.Flush()
	case http.Flusher:
		f.Flush()
	}
	return nil
}

// RestartReason says why a relay loop replaced its handle.
type RestartReason string

const (
	RestartExhausted RestartReason = "exhausted"
	RestartAbnormal  RestartReason = "abnormal"
	RestartWatchdog  RestartReason = "watchdog"
	RestartSpawn     RestartReason = "spawn_failed"
)

// RestartEvent describes one handle replacement.
type RestartEvent struct {
	Reason RestartReason
	// Attempt is the retry number within the current failure streak, 0 for
	// exhaustion restarts.
	Attempt int
	Delay   time.Duration
	Err     error
}

// LoopConfig configures a relay loop.
type LoopConfig struct {
	Engine        Engine
	Source        SourceDescriptor
	Format        TargetFormat
	ChunkDuration time.Duration
	// ReadTimeout kills a handle that produces nothing for this long.
	// Zero disables the watchdog.
	ReadTimeout time.Duration
	// ProgressLogChunks logs progress every N chunks. Zero disables it.
	ProgressLogChunks int
	Logger            *slog.Logger
	Metrics           Metrics
	// OnRestart is called synchronously before each restart.
	OnRestart func(RestartEvent)
}

// LoopStats is a point-in-time view of a loop's counters.
type LoopStats struct {
	BytesSent    int64
	ChunksSent   int64
	Restarts     int64
	AudioSeconds float64
	StartedAt    time.Time
	PID          int
	State        State
}

// Loop relays one source to one sink in fixed-size chunks, restarting the
// transcoder on exhaustion and on failure.
type Loop struct {
	config    LoopConfig
	chunkSize int
	logger    *slog.Logger
	metrics   Metrics
	startedAt time.Time

	bytesSent  atomic.Int64
	chunksSent atomic.Int64
	restarts   atomic.Int64

	mu     sync.Mutex
	handle Handle
}

// NewLoop creates a relay loop. Nothing runs until Run is called.
func NewLoop(config LoopConfig) *Loop {
	if config.Format.SampleRate == 0 {
		config.Format = DefaultFormat
	}
	if config.ChunkDuration <= 0 {
		config.ChunkDuration = 100 * time.Millisecond
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Loop{
		config:    config,
		chunkSize: config.Format.ChunkSize(config.ChunkDuration),
		logger:    logger,
		metrics:   metrics,
		startedAt: time.Now(),
	}
}

// ChunkSize returns the maximum number of bytes written per chunk.
func (l *Loop) ChunkSize() int {
	return l.chunkSize
}

// Stats returns the loop's counters.
func (l *Loop) Stats() LoopStats {
	l.mu.Lock()
	h := l.handle
	l.mu.Unlock()

	bytes := l.bytesSent.Load()
	stats := LoopStats{
		BytesSent:    bytes,
		ChunksSent:   l.chunksSent.Load(),
		Restarts:     l.restarts.Load(),
		AudioSeconds: l.config.Format.Duration(bytes).Seconds(),
		StartedAt:    l.startedAt,
	}
	if h != nil {
		stats.PID = h.PID()
		stats.State = h.State()
	}
	return stats
}

// Run relays until ctx is cancelled (nil), the sink fails (ErrClientGone),
// the first spawn fails (ErrSpawn) or restarts run out
// (ErrSourceExhaustedFatal). The current handle is always terminated
// before Run returns.
func (l *Loop) Run(ctx context.Context, sink Sink) error {
	r, err := l.spawn(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer func() {
		if r != nil {
			r.close()
		}
	}()

	buf := make([]byte, l.chunkSize)
	b := newBackoff(l.config.Source.Policy)

	for {
		n, readErr := r.read(buf)
		if n > 0 {
			if err := l.deliver(sink, buf[:n]); err != nil {
				return err
			}
		}
		if readErr == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		reason, cause := l.classify(ctx, r, readErr)
		r.close()
		if r.bytes > 0 {
			b.reset()
		}

		r, err = l.restart(ctx, b, reason, cause)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (l *Loop) deliver(sink Sink, p []byte) error {
	if _, err := sink.Write(p); err != nil {
		return fmt.Errorf("%w: %w", ErrClientGone, err)
	}
	if err := sink.Flush(); err != nil {
		return fmt.Errorf("%w: %w", ErrClientGone, err)
	}

	bytes := l.bytesSent.Add(int64(len(p)))
	chunks := l.chunksSent.Add(1)
	l.metrics.ChunkSent(len(p))

	if every := int64(l.config.ProgressLogChunks); every > 0 && chunks%every == 0 {
		audio := l.config.Format.Duration(bytes)
		elapsed := time.Since(l.startedAt)
		rate := 0.0
		if elapsed > 0 {
			rate = audio.Seconds() / elapsed.Seconds()
		}
		l.logger.Info("relay progress",
			slog.Int64("chunks", chunks),
			slog.Int64("bytes", bytes),
			slog.Float64("audio_seconds", audio.Seconds()),
			slog.Duration("elapsed", elapsed),
			slog.Float64("rate", rate))
	}
	return nil
}

// classify decides how the current handle's output ended.
func (l *Loop) classify(ctx context.Context, r *run, readErr error) (RestartReason, error) {
	if r.stalled.Load() {
		return RestartWatchdog, fmt.Errorf("%w: no output for %s", ErrAbnormalTermination, l.config.ReadTimeout)
	}
	if !errors.Is(readErr, io.EOF) {
		return RestartAbnormal, fmt.Errorf("%w: %w", ErrAbnormalTermination, readErr)
	}

	exit, err := r.handle.Exit(ctx)
	if err != nil {
		return RestartAbnormal, err
	}
	if exit.Kind != ExitExhausted {
		return RestartAbnormal, exit.Err
	}
	if r.bytes == 0 {
		// An empty source would otherwise restart in a hot loop.
		return RestartAbnormal, fmt.Errorf("%w: source produced no audio", ErrAbnormalTermination)
	}
	return RestartExhausted, nil
}

// restart spawns a replacement handle. Exhaustion restarts immediately;
// everything else waits out the backoff and counts against the retry
// bound. Spawn failures count as further attempts.
func (l *Loop) restart(ctx context.Context, b *backoff, reason RestartReason, cause error) (*run, error) {
	for {
		ev := RestartEvent{Reason: reason, Err: cause}
		if reason != RestartExhausted {
			delay, ok := b.next()
			if !ok {
				return nil, fmt.Errorf("%w after %d attempts: %w", ErrSourceExhaustedFatal, b.policy.MaxAttempts, cause)
			}
			ev.Attempt, ev.Delay = b.attempt, delay
		}

		l.restarts.Add(1)
		l.metrics.TranscoderRestarted(reason)
		if reason == RestartExhausted {
			l.logger.Info("source exhausted, restarting")
		} else {
			l.logger.Warn("transcoder failed, restarting",
				slog.String("reason", string(reason)),
				slog.Int("attempt", ev.Attempt),
				slog.Duration("delay", ev.Delay),
				slog.Any("error", cause))
		}
		if l.config.OnRestart != nil {
			l.config.OnRestart(ev)
		}

		if err := sleepCtx(ctx, ev.Delay); err != nil {
			return nil, err
		}

		r, err := l.spawn(ctx)
		if err == nil {
			return r, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		reason, cause = RestartSpawn, err
	}
}

func (l *Loop) spawn(ctx context.Context) (*run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h, err := l.config.Engine.Start(ctx, l.config.Source, l.config.Format)
	if err != nil {
		l.metrics.SpawnFailed()
		return nil, err
	}

	r := &run{handle: h, timeout: l.config.ReadTimeout}
	r.stopCtx = context.AfterFunc(ctx, func() { _ = h.Terminate() })
	if r.timeout > 0 {
		r.timer = time.AfterFunc(r.timeout, func() {
			r.stalled.Store(true)
			_ = h.Terminate()
		})
	}

	l.mu.Lock()
	l.handle = h
	l.mu.Unlock()

	return r, nil
}

// run is one handle plus its watchdog and cancellation hooks.
type run struct {
	handle  Handle
	timeout time.Duration
	timer   *time.Timer
	stalled atomic.Bool
	stopCtx func() bool
	bytes   int64
}

func (r *run) read(p []byte) (int, error) {
	if r.timer != nil {
		r.timer.Reset(r.timeout)
	}
	n, err := r.handle.Read(p)
	if r.timer != nil {
		r.timer.Stop()
	}
	r.bytes += int64(n)
	return n, err
}

func (r *run) close() {
	if r.timer != nil {
		r.timer.Stop()
	}
	r.stopCtx()
	_ = r.handle.Terminate()
}

// backoff tracks one failure streak.
type backoff struct {
	policy  ReconnectPolicy
	attempt int
	delay   time.Duration
}

func newBackoff(policy ReconnectPolicy) *backoff {
	b := &backoff{policy: policy}
	b.reset()
	return b
}

func (b *backoff) reset() {
	b.attempt = 0
	b.delay = b.policy.InitialDelay
}

// next returns the delay before the next attempt, or false once
// MaxAttempts is used up. Delays never decrease and never exceed MaxDelay.
func (b *backoff) next() (time.Duration, bool) {
	b.attempt++
	if b.attempt > b.policy.MaxAttempts {
		return 0, false
	}

	d := b.delay
	if b.policy.MaxDelay > 0 && d > b.policy.MaxDelay {
		d = b.policy.MaxDelay
	}
	b.delay = time.Duration(float64(d) * max(b.policy.BackoffFactor, 1))
	if b.policy.MaxDelay > 0 {
		b.delay = min(b.delay, b.policy.MaxDelay)
	}
	return d, true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

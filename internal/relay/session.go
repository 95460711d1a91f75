package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ABHIRAMSHIBU/internetradio/internal/ffmpeg"
)

// EndReason records why a session ended.
type EndReason string

const (
	EndClientGone EndReason = "client_gone"
	EndClosed     EndReason = "closed"
	EndFatal      EndReason = "fatal"
	EndShutdown   EndReason = "shutdown"
)

// Session is one client's relay: a loop bound to a source, registered with
// the Manager until it ends.
type Session struct {
	id        string
	clientID  string
	source    SourceDescriptor
	startedAt time.Time
	loop      *Loop
	manager   *Manager
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	attached bool
	reason   EndReason
	err      error

	finishOnce sync.Once
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// ClientID returns the client identity the session was opened for.
func (s *Session) ClientID() string { return s.clientID }

// Source returns the session's source.
func (s *Session) Source() SourceDescriptor { return s.source }

// Context is cancelled when the session starts tearing down.
func (s *Session) Context() context.Context { return s.ctx }

// Done is closed once the session has fully ended and its transcoder is gone.
func (s *Session) Done() <-chan struct{} { return s.done }

// ChunkSize returns the maximum size of each write to the sink.
func (s *Session) ChunkSize() int { return s.loop.ChunkSize() }

// Err returns the error that ended the session, if any. Only meaningful
// after Done is closed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Reason returns why the session ended, or "" while it is running.
func (s *Session) Reason() EndReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Attach starts relaying into sink. The session ends with EndClientGone
// when clientCtx is cancelled. A session can be attached once.
func (s *Session) Attach(clientCtx context.Context, sink Sink) error {
	s.mu.Lock()
	if s.attached {
		s.mu.Unlock()
		return ErrSessionAttached
	}
	if s.reason != "" || s.ctx.Err() != nil {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.attached = true
	s.manager.wg.Add(1)
	s.mu.Unlock()

	stop := context.AfterFunc(clientCtx, func() { s.stop(EndClientGone) })

	go func() {
		defer s.manager.wg.Done()
		defer stop()
		s.finish(s.loop.Run(s.ctx, sink))
	}()
	return nil
}

// stop begins teardown. The first reason recorded wins.
func (s *Session) stop(reason EndReason) {
	s.mu.Lock()
	if s.reason == "" {
		s.reason = reason
	}
	attached := s.attached
	s.mu.Unlock()

	s.cancel()
	if !attached {
		s.finish(nil)
	}
}

func (s *Session) finish(err error) {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		if s.reason == "" {
			switch {
			case errors.Is(err, ErrClientGone):
				s.reason = EndClientGone
			case err != nil:
				s.reason = EndFatal
			default:
				s.reason = EndShutdown
			}
		}
		s.err = err
		reason := s.reason
		s.mu.Unlock()

		s.cancel()
		s.manager.release(s, reason, err)
		close(s.done)
	})
}

// SessionStats is a point-in-time view of one session.
type SessionStats struct {
	ID            string               `json:"id"`
	Client        string               `json:"client"`
	Source        string               `json:"source"`
	SourceKind    string               `json:"source_kind"`
	StartedAt     time.Time            `json:"started_at"`
	UptimeSeconds float64              `json:"uptime_seconds"`
	BytesSent     int64                `json:"bytes_sent"`
	ChunksSent    int64                `json:"chunks_sent"`
	AudioSeconds  float64              `json:"audio_seconds"`
	Restarts      int64                `json:"restarts"`
	PID           int                  `json:"pid,omitempty"`
	State         string               `json:"state"`
	Process       *ffmpeg.ProcessStats `json:"process,omitempty"`
}

// Stats returns the session's counters.
func (s *Session) Stats() SessionStats {
	ls := s.loop.Stats()
	stats := SessionStats{
		ID:            s.id,
		Client:        s.clientID,
		Source:        s.source.Name,
		SourceKind:    s.source.Kind.String(),
		StartedAt:     s.startedAt,
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		BytesSent:     ls.BytesSent,
		ChunksSent:    ls.ChunksSent,
		AudioSeconds:  ls.AudioSeconds,
		Restarts:      ls.Restarts,
		PID:           ls.PID,
		State:         ls.State.String(),
	}
	return stats
}

// SessionSummary describes a finished session.
type SessionSummary struct {
	ID         string
	ClientID   string
	Source     SourceDescriptor
	StartedAt  time.Time
	EndedAt    time.Time
	BytesSent  int64
	ChunksSent int64
	Restarts   int64
	Reason     EndReason
	Err        error
}

func (s *Session) summary(reason EndReason, err error) SessionSummary {
	ls := s.loop.Stats()
	return SessionSummary{
		ID:         s.id,
		ClientID:   s.clientID,
		Source:     s.source,
		StartedAt:  s.startedAt,
		EndedAt:    time.Now(),
		BytesSent:  ls.BytesSent,
		ChunksSent: ls.ChunksSent,
		Restarts:   ls.Restarts,
		Reason:     reason,
		Err:        err,
	}
}

package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

var errBoom = errors.New("boom")

// eventLog records engine and handle events in order.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) index(event string) int {
	for i, e := range l.list() {
		if e == event {
			return i
		}
	}
	return -1
}

// handleSpec describes how a fake handle behaves.
type handleSpec struct {
	data    []byte
	maxRead int
	// endless repeats data until terminated.
	endless bool
	// block waits for termination after data is drained.
	block bool
	exit  ExitState
	// readErr is returned instead of io.EOF after data is drained.
	readErr error
}

type fakeHandle struct {
	id     int
	spec   handleSpec
	pos    int
	state  lifecycle
	events *eventLog

	terminated chan struct{}
	termOnce   sync.Once
}

func (h *fakeHandle) PID() int     { return 0 }
func (h *fakeHandle) State() State { return h.state.get() }

func (h *fakeHandle) isTerminated() bool {
	select {
	case <-h.terminated:
		return true
	default:
		return false
	}
}

func (h *fakeHandle) Read(p []byte) (int, error) {
	if h.isTerminated() {
		return 0, io.EOF
	}
	if h.spec.endless && len(h.spec.data) > 0 && h.pos >= len(h.spec.data) {
		h.pos = 0
	}
	if h.pos < len(h.spec.data) {
		if h.spec.maxRead > 0 && len(p) > h.spec.maxRead {
			p = p[:h.spec.maxRead]
		}
		n := copy(p, h.spec.data[h.pos:])
		h.pos += n
		return n, nil
	}
	if h.spec.block {
		<-h.terminated
		return 0, io.EOF
	}
	if h.spec.readErr != nil {
		h.state.advance(StateFailed)
		return 0, h.spec.readErr
	}
	if h.spec.exit.Kind == ExitExhausted {
		h.state.advance(StateDraining)
	} else {
		h.state.advance(StateFailed)
	}
	return 0, io.EOF
}

func (h *fakeHandle) Exit(ctx context.Context) (ExitState, error) {
	if h.spec.block || h.spec.endless {
		select {
		case <-h.terminated:
			return ExitState{Kind: ExitTerminated, Err: &ExitError{Killed: true}}, nil
		case <-ctx.Done():
			return ExitState{}, ctx.Err()
		}
	}
	return h.spec.exit, nil
}

func (h *fakeHandle) Terminate() error {
	h.termOnce.Do(func() {
		h.events.add("terminate %d", h.id)
		close(h.terminated)
		h.state.advance(StateTerminated)
	})
	return nil
}

// fakeEngine hands out fake handles built by next, numbered from 1.
type fakeEngine struct {
	events *eventLog
	next   func(n int) (handleSpec, error)

	mu      sync.Mutex
	starts  int
	handles []*fakeHandle
}

func newFakeEngine(next func(n int) (handleSpec, error)) *fakeEngine {
	return &fakeEngine{events: &eventLog{}, next: next}
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Start(ctx context.Context, _ SourceDescriptor, _ TargetFormat) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	e.mu.Lock()
	e.starts++
	n := e.starts
	e.mu.Unlock()

	spec, err := e.next(n)
	if err != nil {
		e.events.add("spawn failed %d", n)
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	e.events.add("start %d", n)

	h := &fakeHandle{id: n, spec: spec, events: e.events, terminated: make(chan struct{})}
	h.state.advance(StateRunning)

	e.mu.Lock()
	e.handles = append(e.handles, h)
	e.mu.Unlock()
	return h, nil
}

func (e *fakeEngine) startCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts
}

func (e *fakeEngine) allHandles() []*fakeHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*fakeHandle(nil), e.handles...)
}

func exhausted(data []byte) handleSpec {
	return handleSpec{data: data, exit: ExitState{Kind: ExitExhausted}}
}

func abnormal(data []byte) handleSpec {
	return handleSpec{
		data: data,
		exit: ExitState{Kind: ExitAbnormal, Code: 1, Err: &ExitError{Code: 1}},
	}
}

// recordingSink captures writes. failOn makes the Nth write fail.
type recordingSink struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	writes  []int
	flushes int
	failOn  int
	onWrite func(total int)
}

func (s *recordingSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	if s.failOn > 0 && len(s.writes)+1 == s.failOn {
		s.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	s.writes = append(s.writes, len(p))
	s.buf.Write(p)
	total := s.buf.Len()
	cb := s.onWrite
	s.mu.Unlock()

	if cb != nil {
		cb(total)
	}
	return len(p), nil
}

func (s *recordingSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func (s *recordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

func (s *recordingSink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.buf.Bytes())
}

// pattern returns n deterministic bytes.
func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + i/251)
	}
	return b
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func fastPolicy(attempts int) ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts:   attempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      4 * time.Millisecond,
		BackoffFactor: 2,
	}
}

// recordingMetrics counts relay events.
type recordingMetrics struct {
	mu       sync.Mutex
	opened   int
	closed   map[EndReason]int
	chunks   int
	restarts map[RestartReason]int
	spawns   int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{closed: map[EndReason]int{}, restarts: map[RestartReason]int{}}
}

func (m *recordingMetrics) SessionOpened() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened++
}

func (m *recordingMetrics) SessionClosed(r EndReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed[r]++
}

func (m *recordingMetrics) ChunkSent(int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks++
}

func (m *recordingMetrics) TranscoderRestarted(r RestartReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restarts[r]++
}

func (m *recordingMetrics) SpawnFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spawns++
}

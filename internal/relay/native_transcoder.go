package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ABHIRAMSHIBU/internetradio/internal/audio"
)

// NativeEngine decodes local files in-process with pure Go decoders. It
// cannot play remote sources.
type NativeEngine struct {
	logger *slog.Logger
}

// NewNativeEngine creates an in-process engine.
func NewNativeEngine(logger *slog.Logger) *NativeEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &NativeEngine{logger: logger.With(slog.String("engine", "native"))}
}

// Name implements Engine.
func (e *NativeEngine) Name() string {
	return "native"
}

// Supports reports whether the engine can play src.
func (e *NativeEngine) Supports(src SourceDescriptor) bool {
	return !src.IsRemote() && audio.Supported(src.Location)
}

// Start implements Engine.
func (e *NativeEngine) Start(ctx context.Context, src SourceDescriptor, format TargetFormat) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	if src.IsRemote() {
		return nil, fmt.Errorf("%w: native engine cannot play remote source %s", ErrSpawn, src.Name)
	}
	if format.Encoding != DefaultFormat.Encoding || format.Channels != 1 {
		return nil, fmt.Errorf("%w: native engine only produces mono %s, not %s",
			ErrSpawn, DefaultFormat.Encoding, format)
	}
	if err := statLocal(src.Location); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	decoded, err := audio.Open(src.Location)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	e.logger.Debug("decoder started",
		slog.String("source", src.Name),
		slog.Int("input_rate", decoded.SampleRate()),
		slog.Int("input_channels", decoded.Channels()))

	return newReaderHandle(audio.NewPCMStream(decoded, format.SampleRate)), nil
}

// readerHandle is a Handle over an in-process byte stream.
type readerHandle struct {
	r     io.ReadCloser
	state lifecycle

	exit       ExitState
	done       chan struct{}
	finishOnce sync.Once
	termOnce   sync.Once
}

func newReaderHandle(r io.ReadCloser) *readerHandle {
	h := &readerHandle{r: r, done: make(chan struct{})}
	h.state.advance(StateRunning)
	return h
}

func (h *readerHandle) PID() int {
	return 0
}

func (h *readerHandle) State() State {
	return h.state.get()
}

func (h *readerHandle) Read(p []byte) (int, error) {
	select {
	case <-h.done:
		return 0, io.EOF
	default:
	}

	n, err := h.r.Read(p)
	if err == nil {
		return n, nil
	}
	if errors.Is(err, io.EOF) {
		h.finish(ExitState{Kind: ExitExhausted})
		h.state.advance(StateDraining)
		return n, io.EOF
	}

	h.finish(ExitState{
		Kind: ExitAbnormal,
		Code: -1,
		Err:  &ExitError{Code: -1, Err: err},
	})
	if h.exit.Kind == ExitTerminated {
		// The stream was closed under us.
		return n, io.EOF
	}
	h.state.advance(StateFailed)
	return n, fmt.Errorf("decoding source: %w", err)
}

// finish records the first outcome and releases Exit waiters.
func (h *readerHandle) finish(state ExitState) {
	h.finishOnce.Do(func() {
		h.exit = state
		close(h.done)
	})
}

func (h *readerHandle) Exit(ctx context.Context) (ExitState, error) {
	select {
	case <-h.done:
		return h.exit, nil
	case <-ctx.Done():
		return ExitState{}, ctx.Err()
	}
}

func (h *readerHandle) Terminate() error {
	h.termOnce.Do(func() {
		h.finish(ExitState{
			Kind: ExitTerminated,
			Err:  &ExitError{Killed: true},
		})
		_ = h.r.Close()
		h.state.advance(StateTerminated)
	})
	return nil
}

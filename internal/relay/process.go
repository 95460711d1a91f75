package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ABHIRAMSHIBU/internetradio/internal/ffmpeg"
)

// killWait bounds how long we wait for the kernel to reap a killed process.
const killWait = 500 * time.Millisecond

// processHandle is a Handle backed by an OS process writing to stdout.
type processHandle struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr *ffmpeg.StderrRing
	grace  time.Duration
	logger *slog.Logger
	state  lifecycle

	// done is closed once cmd.Wait has returned and waitErr is set.
	done       chan struct{}
	waitErr    error
	terminated atomic.Bool

	termOnce sync.Once
}

// startProcess launches cmd with stdout on a pipe we own, so the process
// can be reaped as soon as it exits without losing buffered output.
func startProcess(cmd *exec.Cmd, grace time.Duration, logger *slog.Logger) (*processHandle, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: creating stdout pipe: %w", ErrSpawn, err)
	}

	stderr := ffmpeg.NewStderrRing(ffmpeg.DefaultStderrLines)
	cmd.Stdout = pw
	cmd.Stderr = stderr
	cmd.WaitDelay = grace
	setProcessGroup(cmd)

	h := &processHandle{
		cmd:    cmd,
		stdout: pr,
		stderr: stderr,
		grace:  grace,
		logger: logger,
		done:   make(chan struct{}),
	}

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		h.state.advance(StateFailed)
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	// The child holds its own copy of the write end.
	_ = pw.Close()
	h.state.advance(StateRunning)

	go func() {
		h.waitErr = cmd.Wait()
		close(h.done)
	}()

	return h, nil
}

func (h *processHandle) PID() int {
	return h.cmd.Process.Pid
}

func (h *processHandle) State() State {
	return h.state.get()
}

func (h *processHandle) Read(p []byte) (int, error) {
	n, err := h.stdout.Read(p)
	if err == nil {
		return n, nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
		h.settle()
		return n, io.EOF
	}

	h.state.advance(StateFailed)
	return n, fmt.Errorf("reading transcoder output: %w", err)
}

// settle waits for the process to exit after its output closed and records
// whether it drained cleanly or failed.
func (h *processHandle) settle() {
	select {
	case <-h.done:
	case <-time.After(h.grace):
		h.logger.Warn("transcoder closed its output but kept running",
			slog.Int("pid", h.PID()))
		_ = h.Terminate()
	}

	if h.exitState().Kind == ExitExhausted {
		h.state.advance(StateDraining)
	} else {
		h.state.advance(StateFailed)
	}
}

func (h *processHandle) Exit(ctx context.Context) (ExitState, error) {
	select {
	case <-h.done:
		return h.exitState(), nil
	case <-ctx.Done():
		return ExitState{}, ctx.Err()
	}
}

// exitState must only be called after done is closed.
func (h *processHandle) exitState() ExitState {
	code := 0
	var exitErr *exec.ExitError
	if errors.As(h.waitErr, &exitErr) {
		code = exitErr.ExitCode()
	}

	if h.terminated.Load() {
		return ExitState{
			Kind: ExitTerminated,
			Code: code,
			Err:  &ExitError{PID: h.PID(), Code: code, Killed: true},
		}
	}
	if h.waitErr == nil {
		return ExitState{Kind: ExitExhausted}
	}

	e := &ExitError{PID: h.PID(), Code: code, Stderr: h.stderr.Tail(5)}
	if exitErr == nil {
		e.Code = -1
		e.Err = h.waitErr
	}
	return ExitState{Kind: ExitAbnormal, Code: e.Code, Err: e}
}

func (h *processHandle) Terminate() error {
	h.termOnce.Do(func() {
		select {
		case <-h.done:
			// Children of a wrapper can outlive it.
			_ = killGroup(h.PID())
		default:
			h.terminated.Store(true)
			h.stop()
		}
		_ = h.stdout.Close()
		h.state.advance(StateTerminated)
	})
	return nil
}

// stop interrupts the process group, then kills it if the leader outlives
// the grace period.
func (h *processHandle) stop() {
	pid := h.PID()

	if err := interruptGroup(pid); err == nil {
		select {
		case <-h.done:
			_ = killGroup(pid)
			return
		case <-time.After(h.grace):
		}
		h.logger.Warn("transcoder ignored interrupt, killing",
			slog.Int("pid", pid),
			slog.Duration("grace_period", h.grace))
	}

	_ = killGroup(pid)

	select {
	case <-h.done:
	case <-time.After(killWait):
		h.logger.Error("transcoder could not be reaped after kill",
			slog.Int("pid", pid))
	}
}

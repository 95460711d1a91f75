package ffmpeg

import (
	"bytes"
	"strings"
	"sync"
)

// DefaultStderrLines is how many stderr lines a StderrRing keeps.
const DefaultStderrLines = 100

// StderrRing is an io.Writer that keeps the last N complete lines written
// to it. It is meant to be assigned to exec.Cmd.Stderr.
type StderrRing struct {
	mu      sync.Mutex
	max     int
	lines   []string
	partial []byte
}

// NewStderrRing creates a ring holding at most maxLines lines.
func NewStderrRing(maxLines int) *StderrRing {
	if maxLines <= 0 {
		maxLines = DefaultStderrLines
	}
	return &StderrRing{max: maxLines}
}

// Write implements io.Writer. It never fails.
func (r *StderrRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := append(r.partial, p...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		r.push(strings.TrimRight(string(data[:i]), "\r"))
		data = data[i+1:]
	}
	r.partial = append(r.partial[:0], data...)

	return len(p), nil
}

func (r *StderrRing) push(line string) {
	if line == "" {
		return
	}
	if len(r.lines) >= r.max {
		r.lines = r.lines[1:]
	}
	r.lines = append(r.lines, line)
}

// Lines returns a copy of the retained lines, including any unterminated
// trailing line.
func (r *StderrRing) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.lines), len(r.lines)+1)
	copy(out, r.lines)
	if len(r.partial) > 0 {
		out = append(out, string(r.partial))
	}
	return out
}

// Tail returns the last n lines joined by newlines.
func (r *StderrRing) Tail(n int) string {
	lines := r.Lines()
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

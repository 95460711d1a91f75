// Package ffmpeg locates the ffmpeg binary and builds the command lines used
// to transcode audio sources into raw PCM.
package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// BinaryEnvVar overrides the ffmpeg binary location.
const BinaryEnvVar = "INTERNETRADIO_FFMPEG_BINARY"

// ErrNotFound is returned when no usable ffmpeg binary can be located.
var ErrNotFound = errors.New("ffmpeg binary not found")

var versionPattern = regexp.MustCompile(`^n?(\d+)\.(\d+)`)

// BinaryInfo describes the detected ffmpeg installation.
type BinaryInfo struct {
	Path         string `json:"path"`
	Version      string `json:"version"`
	MajorVersion int    `json:"major_version"`
	MinorVersion int    `json:"minor_version"`
	BuildInfo    string `json:"build_info,omitempty"`
}

// JSON returns the info as indented JSON.
func (info *BinaryInfo) JSON() string {
	data, _ := json.MarshalIndent(info, "", "  ")
	return string(data)
}

// BinaryDetector finds ffmpeg and caches the result.
type BinaryDetector struct {
	configured string

	mu           sync.RWMutex
	info         *BinaryInfo
	lastDetected time.Time
	cacheTTL     time.Duration
}

// NewBinaryDetector creates a detector. A non-empty configuredPath is tried
// before the usual search locations.
func NewBinaryDetector(configuredPath string) *BinaryDetector {
	return &BinaryDetector{
		configured: configuredPath,
		cacheTTL:   5 * time.Minute,
	}
}

// Detect locates ffmpeg and reads its version.
func (d *BinaryDetector) Detect(ctx context.Context) (*BinaryInfo, error) {
	d.mu.RLock()
	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		info := d.info
		d.mu.RUnlock()
		return info, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	// Double-check after acquiring write lock
	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		return d.info, nil
	}

	path, err := d.locate()
	if err != nil {
		return nil, err
	}

	out, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return nil, fmt.Errorf("running %s -version: %w", path, err)
	}

	info, err := parseVersion(string(out))
	if err != nil {
		return nil, err
	}
	info.Path = path

	d.info = info
	d.lastDetected = time.Now()
	return info, nil
}

// Path returns the detected binary path without running it.
func (d *BinaryDetector) Path() (string, error) {
	d.mu.RLock()
	if d.info != nil {
		p := d.info.Path
		d.mu.RUnlock()
		return p, nil
	}
	d.mu.RUnlock()
	return d.locate()
}

// Clear clears the cached binary information.
func (d *BinaryDetector) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info = nil
}

func (d *BinaryDetector) locate() (string, error) {
	if d.configured != "" {
		if isExecutable(d.configured) {
			return d.configured, nil
		}
		if p, err := exec.LookPath(d.configured); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("%w: configured path %s is not executable", ErrNotFound, d.configured)
	}
	return FindBinary("ffmpeg", BinaryEnvVar)
}

// parseVersion extracts version details from `ffmpeg -version` output.
func parseVersion(output string) (*BinaryInfo, error) {
	info := &BinaryInfo{}

	for _, line := range strings.Split(output, "\n") {
		switch {
		case strings.HasPrefix(line, "ffmpeg version"):
			// "ffmpeg version 6.0 Copyright...", "ffmpeg version n6.0-2-g..."
			parts := strings.Fields(line)
			if len(parts) < 3 {
				continue
			}
			info.Version = parts[2]
			if m := versionPattern.FindStringSubmatch(parts[2]); len(m) == 3 {
				info.MajorVersion, _ = strconv.Atoi(m[1])
				info.MinorVersion, _ = strconv.Atoi(m[2])
			}
		case strings.HasPrefix(line, "built with"):
			info.BuildInfo = strings.TrimPrefix(line, "built with ")
		}
	}

	if info.Version == "" {
		return nil, fmt.Errorf("failed to parse ffmpeg version")
	}
	return info, nil
}

// FindBinary searches for an executable by name: the envVar path if set,
// then ./name, then PATH.
func FindBinary(name string, envVar string) (string, error) {
	if envVar != "" {
		if envPath := os.Getenv(envVar); envPath != "" && isExecutable(envPath) {
			return envPath, nil
		}
	}

	if local := "./" + name; isExecutable(local) {
		return local, nil
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}

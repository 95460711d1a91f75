package relay

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// SourceKind distinguishes local files from network streams.
type SourceKind int

const (
	// SourceLocal is a file on disk.
	SourceLocal SourceKind = iota
	// SourceRemote is an http(s) stream.
	SourceRemote
)

func (k SourceKind) String() string {
	if k == SourceRemote {
		return "remote"
	}
	return "local"
}

// ReconnectPolicy bounds restarts after abnormal termination.
type ReconnectPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultReconnectPolicy mirrors the configuration defaults.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// SourceDescriptor identifies what a session plays. It is immutable once a
// session has started.
type SourceDescriptor struct {
	Kind     SourceKind
	Location string // absolute path or URL
	Name     string // display name
	Policy   ReconnectPolicy
}

// LocalSource describes a file on disk.
func LocalSource(path string, policy ReconnectPolicy) SourceDescriptor {
	return SourceDescriptor{
		Kind:     SourceLocal,
		Location: path,
		Name:     filepath.Base(path),
		Policy:   policy,
	}
}

// RemoteSource describes a network stream.
func RemoteSource(rawURL string, policy ReconnectPolicy) SourceDescriptor {
	name := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		u.User = nil
		name = u.String()
	}
	return SourceDescriptor{
		Kind:     SourceRemote,
		Location: rawURL,
		Name:     name,
		Policy:   policy,
	}
}

// IsRemote reports whether the source is a network stream.
func (s SourceDescriptor) IsRemote() bool {
	return s.Kind == SourceRemote
}

// IsZero reports whether no source has been set.
func (s SourceDescriptor) IsZero() bool {
	return s.Location == ""
}

// IsRemoteURL reports whether location looks like an http(s) URL.
func IsRemoteURL(location string) bool {
	lower := strings.ToLower(location)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

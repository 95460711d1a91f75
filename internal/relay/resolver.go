package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"
)

// SourceResolver checks that a source can be opened before a session
// commits to it.
type SourceResolver interface {
	Resolve(ctx context.Context, src SourceDescriptor) error
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	UserAgent      string
	ProbeTimeout   time.Duration
	CircuitBreaker CircuitBreakerConfig
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// Resolver stats local files and probes remote streams. Remote probes go
// through a per-host circuit breaker so a dead upstream fails fast.
type Resolver struct {
	config   ResolverConfig
	breakers *CircuitBreakerRegistry
	logger   *slog.Logger
}

// NewResolver creates a resolver.
func NewResolver(config ResolverConfig) *Resolver {
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = 10 * time.Second
	}
	if config.HTTPClient == nil {
		// No overall Timeout: the probe context bounds each request.
		config.HTTPClient = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   config.ProbeTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   config.ProbeTimeout,
				ResponseHeaderTimeout: config.ProbeTimeout,
				IdleConnTimeout:       90 * time.Second,
			},
		}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "resolver"))

	if config.CircuitBreaker.OnStateChange == nil {
		config.CircuitBreaker.OnStateChange = func(host string, from, to CircuitState) {
			logger.Warn("upstream circuit changed state",
				slog.String("host", host),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		}
	}

	return &Resolver{
		config:   config,
		breakers: NewCircuitBreakerRegistry(config.CircuitBreaker),
		logger:   logger,
	}
}

// Resolve implements SourceResolver. Failures wrap ErrSourceUnavailable.
func (r *Resolver) Resolve(ctx context.Context, src SourceDescriptor) error {
	if src.IsZero() {
		return ErrNoSource
	}
	if !src.IsRemote() {
		return statLocal(src.Location)
	}

	u, err := url.Parse(src.Location)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: invalid url", ErrSourceUnavailable)
	}

	err = r.breakers.Get(u.Host).Execute(ctx, func(ctx context.Context) error {
		return r.probe(ctx, src.Location)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCircuitOpen) {
		return fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, u.Host, err)
	}
	return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
}

// CircuitStats returns breaker state per upstream host.
func (r *Resolver) CircuitStats() map[string]CircuitStats {
	return r.breakers.AllStats()
}

func (r *Resolver) probe(ctx context.Context, location string) error {
	ctx, cancel := context.WithTimeout(ctx, r.config.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return err
	}
	if r.config.UserAgent != "" {
		req.Header.Set("User-Agent", r.config.UserAgent)
	}

	resp, err := r.config.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	// Live streams never end; only the status line matters.
	_, _ = io.CopyN(io.Discard, resp.Body, 512)
	_ = resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("upstream returned %s", resp.Status)
	}
	return nil
}

// statLocal requires path to be an existing regular file.
func statLocal(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrSourceUnavailable, path)
	}
	return nil
}

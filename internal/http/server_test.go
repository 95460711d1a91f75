package http

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_ServeAndShutdown(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.ShutdownTimeout = 2 * time.Second

	var extra atomic.Int32
	cfg.Middleware = []func(http.Handler) http.Handler{
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				extra.Add(1)
				next.ServeHTTP(w, r)
			})
		},
	}

	srv := NewServer(cfg, slog.New(slog.DiscardHandler), "")
	srv.Router().Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "pong")
	})

	var hookRan atomic.Bool
	srv.RegisterOnShutdown(func() { hookRan.Store(true) })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "pong", string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.EqualValues(t, 1, extra.Load())

	resp, err = http.Get("http://" + ln.Addr().String() + "/openapi.json")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Shutdown(context.Background()))
	require.NoError(t, <-done)
	assert.Eventually(t, hookRan.Load, time.Second, 10*time.Millisecond)
}

func TestServer_Addr(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Host = "::1"
	cfg.Port = 9000
	assert.Equal(t, "[::1]:9000", NewServer(cfg, nil, "1.0.0").Addr())
}

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ABHIRAMSHIBU/internetradio/internal/relay"
)

func TestMetrics_RelayEvents(t *testing.T) {
	m := New()

	m.SessionOpened()
	m.SessionOpened()
	m.ChunkSent(3200)
	m.ChunkSent(1600)
	m.TranscoderRestarted(relay.RestartExhausted)
	m.TranscoderRestarted(relay.RestartExhausted)
	m.TranscoderRestarted(relay.RestartAbnormal)
	m.SpawnFailed()
	m.SessionClosed(relay.EndClientGone)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sessionsOpened))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsClosed.WithLabelValues("client_gone")))
	assert.Equal(t, 4800.0, testutil.ToFloat64(m.bytesSent))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.chunksSent))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.transcoderRestarts.WithLabelValues("exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transcoderRestarts.WithLabelValues("abnormal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.spawnFailures))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ChunkSent(3200)

	refreshed := false
	h := m.Handler(func() {
		refreshed = true
		m.SetCatalogFiles(7)
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, refreshed)
	body := rec.Body.String()
	assert.Contains(t, body, "internetradio_bytes_sent_total 3200")
	assert.Contains(t, body, "internetradio_catalog_files 7")
	assert.Contains(t, body, "go_goroutines")
}

func TestRequestMiddleware(t *testing.T) {
	m := New()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "ok") })
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) })
	h := RequestMiddleware(m)(mux)

	for _, path := range []string{"/ok", "/ok", "/missing"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.requestsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorsTotal))
}

func TestRequestMiddleware_PreservesFlush(t *testing.T) {
	m := New()
	var flushErr error
	h := RequestMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("chunk"))
		flushErr = http.NewResponseController(w).Flush()
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))

	assert.NoError(t, flushErr)
	assert.True(t, rec.Flushed)
}

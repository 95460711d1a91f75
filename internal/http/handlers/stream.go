package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/ABHIRAMSHIBU/internetradio/internal/http/middleware"
	"github.com/ABHIRAMSHIBU/internetradio/internal/observability"
	"github.com/ABHIRAMSHIBU/internetradio/internal/relay"
)

const noSourceMessage = "No audio source loaded. Use /load/{filename} to load a file."

// StreamHandler serves the endless PCM stream. Each request gets its own
// relay session and transcoder.
type StreamHandler struct {
	manager SessionManager
	catalog SourceCatalog
	logger  *slog.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(manager SessionManager, catalog SourceCatalog) *StreamHandler {
	return &StreamHandler{
		manager: manager,
		catalog: catalog,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *StreamHandler) WithLogger(logger *slog.Logger) *StreamHandler {
	h.logger = observability.WithComponent(logger, "stream")
	return h
}

// StreamInput is the documentation-only input for GET /stream.
type StreamInput struct{}

// Register adds the OpenAPI description of /stream. The route itself is
// served by RegisterChiRoutes, which must be called afterwards.
func (h *StreamHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "streamAudio",
		Method:      http.MethodGet,
		Path:        "/stream",
		Summary:     "Stream PCM audio",
		Description: `Streams the current source as raw signed 16-bit little-endian mono PCM at 32 kHz.
The body never ends on its own; the server restarts the transcoder when the source is exhausted.`,
		Tags: []string{"Stream"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Raw PCM body",
				Content:     map[string]*huma.MediaType{relay.ContentType: {}},
				Headers: map[string]*huma.Param{
					"X-Session-ID":        {Description: "Relay session ID"},
					"X-Audio-Encoding":    {Description: "Sample encoding (s16le)"},
					"X-Audio-Sample-Rate": {Description: "Samples per second"},
					"X-Audio-Channels":    {Description: "Channel count"},
				},
			},
			"404": {Description: "No source loaded, or the source is unavailable"},
			"503": {Description: "Session limit reached or server shutting down"},
		},
	}, func(context.Context, *StreamInput) (*huma.StreamResponse, error) {
		return nil, huma.Error500InternalServerError("stream is served by the raw handler")
	})
}

// RegisterChiRoutes registers the raw streaming route.
func (h *StreamHandler) RegisterChiRoutes(router chi.Router) {
	router.Get("/stream", h.ServeHTTP)
}

// ServeHTTP opens a session for the client and relays until either side
// ends it.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	client := clientAddr(r)
	logger := h.logger.With(slog.String("client", client))

	src := h.catalog.Source()
	if src.IsZero() {
		logger.InfoContext(r.Context(), "stream requested with no source loaded")
		writeText(w, http.StatusNotFound, noSourceMessage)
		return
	}

	sess, err := h.manager.OpenSession(r.Context(), client, src)
	if err != nil {
		status, msg := openErrorStatus(err, src)
		logger.WarnContext(r.Context(), "stream refused",
			slog.Int("status", status),
			slog.String("error", err.Error()))
		if status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "5")
		}
		writeText(w, status, msg)
		return
	}

	rc := http.NewResponseController(w)
	format := h.manager.Format()
	hdr := w.Header()
	hdr.Set("Content-Type", relay.ContentType)
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Content-Type-Options", "nosniff")
	hdr.Set(middleware.HeaderSessionID, sess.ID())
	hdr.Set(middleware.HeaderAudioEncoding, format.Encoding)
	hdr.Set(middleware.HeaderAudioSampleRate, strconv.Itoa(format.SampleRate))
	hdr.Set(middleware.HeaderAudioChannels, strconv.Itoa(format.Channels))

	// A write blocked on a stalled client must not outlive the session.
	stop := context.AfterFunc(sess.Context(), func() {
		_ = rc.SetWriteDeadline(time.Now())
	})
	defer stop()

	sink := &responseSink{w: w, rc: rc}
	if err := sess.Attach(r.Context(), sink); err != nil {
		logger.WarnContext(r.Context(), "stream attach failed", slog.String("error", err.Error()))
		_ = h.manager.CloseSession(sess.ID())
		writeText(w, http.StatusServiceUnavailable, "Session closed before streaming started")
		return
	}

	<-sess.Done()

	// Nothing has been sent, so the status line is still ours to choose.
	if sink.written.Load() == 0 && sess.Reason() == relay.EndFatal {
		writeText(w, http.StatusServiceUnavailable, "Source could not be transcoded")
	}
}

// responseSink adapts a ResponseWriter into a relay.Sink.
type responseSink struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	written atomic.Int64
}

func (s *responseSink) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	s.written.Add(int64(n))
	return n, err
}

func (s *responseSink) Flush() error {
	return s.rc.Flush()
}

func openErrorStatus(err error, src relay.SourceDescriptor) (int, string) {
	switch {
	case errors.Is(err, relay.ErrNoSource):
		return http.StatusNotFound, noSourceMessage
	case errors.Is(err, relay.ErrSourceUnavailable):
		return http.StatusNotFound, "Source unavailable: " + src.Name
	case errors.Is(err, relay.ErrTooManySessions):
		return http.StatusServiceUnavailable, "Too many active streams"
	case errors.Is(err, relay.ErrManagerClosed):
		return http.StatusServiceUnavailable, "Server is shutting down"
	default:
		return http.StatusInternalServerError, "Failed to open stream"
	}
}

// clientAddr returns the client host without its port.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}

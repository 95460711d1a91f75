package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ABHIRAMSHIBU/internetradio/internal/models"
	"github.com/ABHIRAMSHIBU/internetradio/internal/relay"
)

// DefaultHistoryLimit is the page size of the history endpoint.
const DefaultHistoryLimit = 50

// SessionsHandler exposes active sessions and finished-session history.
type SessionsHandler struct {
	manager SessionManager
	history HistoryStore
}

// NewSessionsHandler creates a new sessions handler. history may be nil
// when persistence is disabled.
func NewSessionsHandler(manager SessionManager, history HistoryStore) *SessionsHandler {
	return &SessionsHandler{manager: manager, history: history}
}

// ListSessionsInput is the input for GET /api/v1/sessions.
type ListSessionsInput struct{}

// ListSessionsOutput is the output for GET /api/v1/sessions.
type ListSessionsOutput struct {
	Body relay.Snapshot
}

// SessionHistoryInput is the input for GET /api/v1/sessions/history.
type SessionHistoryInput struct {
	Limit int `query:"limit" minimum:"1" maximum:"1000" default:"50" doc:"Maximum number of records"`
}

// SessionHistoryOutput is the output for GET /api/v1/sessions/history.
type SessionHistoryOutput struct {
	Body struct {
		Sessions []*models.SessionRecord `json:"sessions"`
		Total    int64                   `json:"total"`
		ByReason map[string]int64        `json:"by_reason" doc:"Finished sessions per end reason"`
	}
}

// SessionRecordInput is the input for GET /api/v1/sessions/history/{id}.
type SessionRecordInput struct {
	ID string `path:"id" doc:"Relay session ID"`
}

// SessionRecordOutput is the output for GET /api/v1/sessions/history/{id}.
type SessionRecordOutput struct {
	Body *models.SessionRecord
}

// CloseSessionInput is the input for DELETE /api/v1/sessions/{id}.
type CloseSessionInput struct {
	ID string `path:"id" doc:"Relay session ID"`
}

// CloseSessionOutput is the empty 204 response.
type CloseSessionOutput struct{}

// Register registers the session routes with the API.
func (h *SessionsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listSessions",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions",
		Summary:     "List active sessions",
		Tags:        []string{"Sessions"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "sessionHistory",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/history",
		Summary:     "Finished sessions",
		Description: "Returns the most recently finished sessions, newest first",
		Tags:        []string{"Sessions"},
		Errors:      []int{http.StatusServiceUnavailable},
	}, h.History)

	huma.Register(api, huma.Operation{
		OperationID: "getSessionRecord",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/history/{id}",
		Summary:     "Get a finished session",
		Tags:        []string{"Sessions"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusServiceUnavailable},
	}, h.Record)

	huma.Register(api, huma.Operation{
		OperationID:   "closeSession",
		Method:        http.MethodDelete,
		Path:          "/api/v1/sessions/{id}",
		Summary:       "Close a session",
		Description:   "Ends the stream and terminates its transcoder",
		Tags:          []string{"Sessions"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, h.Close)
}

// List returns a snapshot of active sessions.
func (h *SessionsHandler) List(ctx context.Context, _ *ListSessionsInput) (*ListSessionsOutput, error) {
	return &ListSessionsOutput{Body: h.manager.Snapshot(ctx)}, nil
}

// History returns recently finished sessions.
func (h *SessionsHandler) History(ctx context.Context, input *SessionHistoryInput) (*SessionHistoryOutput, error) {
	if h.history == nil {
		return nil, huma.Error503ServiceUnavailable("session history is disabled")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	records, err := h.history.Recent(ctx, limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading session history", err)
	}
	total, err := h.history.Count(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("counting session history", err)
	}

	byReason, err := h.history.CountByReason(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("counting session history", err)
	}

	out := &SessionHistoryOutput{}
	out.Body.Sessions = records
	if out.Body.Sessions == nil {
		out.Body.Sessions = []*models.SessionRecord{}
	}
	out.Body.Total = total
	out.Body.ByReason = byReason
	if out.Body.ByReason == nil {
		out.Body.ByReason = map[string]int64{}
	}
	return out, nil
}

// Record returns one finished session.
func (h *SessionsHandler) Record(ctx context.Context, input *SessionRecordInput) (*SessionRecordOutput, error) {
	if h.history == nil {
		return nil, huma.Error503ServiceUnavailable("session history is disabled")
	}
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid session ID: " + input.ID)
	}
	rec, err := h.history.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading session record", err)
	}
	if rec == nil {
		return nil, huma.Error404NotFound("session record not found: " + input.ID)
	}
	return &SessionRecordOutput{Body: rec}, nil
}

// Close ends an active session.
func (h *SessionsHandler) Close(_ context.Context, input *CloseSessionInput) (*CloseSessionOutput, error) {
	if _, ok := h.manager.Session(input.ID); !ok {
		return nil, huma.Error404NotFound("session not found: " + input.ID)
	}
	if err := h.manager.CloseSession(input.ID); err != nil {
		return nil, huma.Error500InternalServerError("closing session", err)
	}
	return &CloseSessionOutput{}, nil
}

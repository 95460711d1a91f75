package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// StatusHandler serves the server summary on / and /status.
type StatusHandler struct {
	version string
	manager SessionManager
	catalog SourceCatalog
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(version string, manager SessionManager, catalog SourceCatalog) *StatusHandler {
	return &StatusHandler{version: version, manager: manager, catalog: catalog}
}

// RootInput is the input for GET /.
type RootInput struct{}

// RootOutput is the output for GET /. File details are flattened into the
// top level when the current file exists and can be inspected.
type RootOutput struct {
	Body struct {
		Server        string         `json:"server"`
		Version       string         `json:"version"`
		CurrentFile   *string        `json:"current_file"`
		ActiveClients int            `json:"active_clients"`
		Engine        string         `json:"engine"`
		Format        FormatResponse `json:"format"`
		Channels      int            `json:"channels,omitempty"`
		SampleRate    int            `json:"sample_rate,omitempty"`
		SampleWidth   int            `json:"sample_width,omitempty"`
		Frames        int64          `json:"frames,omitempty"`
		Duration      float64        `json:"duration,omitempty" doc:"Duration in seconds"`
	}
}

// StatusInput is the input for GET /status.
type StatusInput struct{}

// StatusOutput is the output for GET /status.
type StatusOutput struct {
	Body StatusResponse
}

// StatusResponse reports the current source and listener count.
type StatusResponse struct {
	Server        string             `json:"server"`
	CurrentFile   *string            `json:"current_file"`
	SourceKind    string             `json:"source_kind,omitempty"`
	ActiveClients int                `json:"active_clients"`
	FileExists    bool               `json:"file_exists"`
	FileInfo      *FileInfoResponse  `json:"file_info,omitempty"`
	Selection     *SelectionResponse `json:"selection,omitempty"`
}

// Register registers the status routes with the API.
func (h *StatusHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getRoot",
		Method:      http.MethodGet,
		Path:        "/",
		Summary:     "Server info",
		Tags:        []string{"Status"},
	}, h.GetRoot)

	huma.Register(api, huma.Operation{
		OperationID: "getStatus",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Server status",
		Description: "Returns the current source, whether it still exists and the number of active listeners",
		Tags:        []string{"Status"},
	}, h.GetStatus)
}

// GetRoot returns the server summary.
func (h *StatusHandler) GetRoot(_ context.Context, _ *RootInput) (*RootOutput, error) {
	out := &RootOutput{}
	out.Body.Server = ServerName
	out.Body.Version = h.version
	out.Body.ActiveClients = h.manager.Count()
	out.Body.Engine = h.manager.EngineName()
	out.Body.Format = formatFrom(h.manager.Format(), 0)

	cur := h.catalog.Current()
	if cur == nil {
		return out, nil
	}
	out.Body.CurrentFile = &cur.Identifier
	if cur.Info != nil && h.catalog.CurrentExists() {
		info := fileInfoFrom(cur.Info)
		out.Body.Channels = info.Channels
		out.Body.SampleRate = info.SampleRate
		out.Body.SampleWidth = info.SampleWidth
		out.Body.Frames = info.Frames
		out.Body.Duration = info.Duration
	}
	return out, nil
}

// GetStatus returns the server status.
func (h *StatusHandler) GetStatus(_ context.Context, _ *StatusInput) (*StatusOutput, error) {
	resp := StatusResponse{
		Server:        ServerName,
		ActiveClients: h.manager.Count(),
	}

	if cur := h.catalog.Current(); cur != nil {
		resp.CurrentFile = &cur.Identifier
		resp.SourceKind = cur.Kind
		resp.FileExists = h.catalog.CurrentExists()
		resp.Selection = selectionFrom(cur)
		if resp.FileExists {
			resp.FileInfo = fileInfoFrom(cur.Info)
		}
	}
	return &StatusOutput{Body: resp}, nil
}

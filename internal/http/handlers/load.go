package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ABHIRAMSHIBU/internetradio/internal/catalog"
)

// LoadHandler selects the source for subsequently opened streams. Streams
// already running keep their source.
type LoadHandler struct {
	catalog SourceCatalog
}

// NewLoadHandler creates a new load handler.
func NewLoadHandler(catalog SourceCatalog) *LoadHandler {
	return &LoadHandler{catalog: catalog}
}

// LoadInput is the input for GET /load/{filename}.
type LoadInput struct {
	Filename string `path:"filename" doc:"File name inside the media directory"`
}

// LoadOutput is the output for GET /load/{filename}.
type LoadOutput struct {
	Body LoadResponse
}

// LoadResponse confirms a selection.
type LoadResponse struct {
	Message  string            `json:"message"`
	FileInfo *FileInfoResponse `json:"file_info"`
}

// SetSourceInput is the input for PUT /api/v1/source.
type SetSourceInput struct {
	Body struct {
		Identifier string `json:"identifier,omitempty" doc:"File name inside the media directory"`
		URL        string `json:"url,omitempty" doc:"http(s) stream URL"`
	}
}

// SetSourceOutput is the output for PUT /api/v1/source.
type SetSourceOutput struct {
	Body SelectionResponse
}

// ListSourcesInput is the input for GET /api/v1/sources.
type ListSourcesInput struct{}

// ListSourcesOutput is the output for GET /api/v1/sources.
type ListSourcesOutput struct {
	Body struct {
		Current *SelectionResponse `json:"current"`
		Files   []catalog.Entry    `json:"files"`
		Count   int                `json:"count"`
	}
}

// Register registers the source selection routes with the API.
func (h *LoadHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "loadFile",
		Method:      http.MethodGet,
		Path:        "/load/{filename}",
		Summary:     "Load a file",
		Description: "Selects a file in the media directory for streams opened from now on",
		Tags:        []string{"Sources"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, h.Load)

	huma.Register(api, huma.Operation{
		OperationID: "setSource",
		Method:      http.MethodPut,
		Path:        "/api/v1/source",
		Summary:     "Set the source",
		Description: "Selects a media file by identifier or a remote http(s) stream by url. Exactly one must be set.",
		Tags:        []string{"Sources"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, h.SetSource)

	huma.Register(api, huma.Operation{
		OperationID: "listSources",
		Method:      http.MethodGet,
		Path:        "/api/v1/sources",
		Summary:     "List media files",
		Tags:        []string{"Sources"},
	}, h.ListSources)
}

// Load selects a file by name.
func (h *LoadHandler) Load(ctx context.Context, input *LoadInput) (*LoadOutput, error) {
	// Encoded separators such as %2F must not slip past validation.
	name := input.Filename
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}

	sel, err := h.catalog.Select(ctx, name)
	if err != nil {
		return nil, selectError(err, name)
	}

	return &LoadOutput{Body: LoadResponse{
		Message:  "Loaded " + sel.Identifier,
		FileInfo: fileInfoFrom(sel.Info),
	}}, nil
}

// SetSource selects a file or a URL.
func (h *LoadHandler) SetSource(ctx context.Context, input *SetSourceInput) (*SetSourceOutput, error) {
	id, rawURL := input.Body.Identifier, input.Body.URL
	if (id == "") == (rawURL == "") {
		return nil, huma.Error400BadRequest("exactly one of identifier or url is required")
	}

	var (
		sel *catalog.Selection
		err error
	)
	if rawURL != "" {
		sel, err = h.catalog.SelectURL(ctx, rawURL)
	} else {
		sel, err = h.catalog.Select(ctx, id)
	}
	if err != nil {
		return nil, selectError(err, id+rawURL)
	}
	return &SetSourceOutput{Body: *selectionFrom(sel)}, nil
}

// ListSources returns the scanned media files.
func (h *LoadHandler) ListSources(_ context.Context, _ *ListSourcesInput) (*ListSourcesOutput, error) {
	out := &ListSourcesOutput{}
	out.Body.Current = selectionFrom(h.catalog.Current())
	out.Body.Files = h.catalog.List()
	out.Body.Count = len(out.Body.Files)
	return out, nil
}

func selectError(err error, name string) error {
	switch {
	case errors.Is(err, catalog.ErrInvalidIdentifier):
		return huma.Error400BadRequest("Invalid filename")
	case errors.Is(err, catalog.ErrInvalidURL):
		return huma.Error400BadRequest("Invalid source URL")
	case errors.Is(err, catalog.ErrNotFound):
		return huma.Error404NotFound("File not found: " + name)
	default:
		return huma.Error500InternalServerError("selecting source", err)
	}
}

package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ABHIRAMSHIBU/internetradio/internal/scheduler"
)

// JobRunner lists and triggers scheduled jobs.
type JobRunner interface {
	JobReporter
	Trigger(ctx context.Context, name string) error
}

// JobsHandler exposes the background job scheduler.
type JobsHandler struct {
	jobs JobRunner
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(jobs JobRunner) *JobsHandler {
	return &JobsHandler{jobs: jobs}
}

// Register registers the job routes with the API.
func (h *JobsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listJobs",
		Method:      http.MethodGet,
		Path:        "/api/v1/jobs",
		Summary:     "List jobs",
		Tags:        []string{"Jobs"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "runJob",
		Method:      http.MethodPost,
		Path:        "/api/v1/jobs/{name}/run",
		Summary:     "Run a job now",
		Description: "Runs the job synchronously and returns its updated status",
		Tags:        []string{"Jobs"},
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, h.Run)

	huma.Register(api, huma.Operation{
		OperationID: "validateCron",
		Method:      http.MethodPost,
		Path:        "/api/v1/jobs/cron/validate",
		Summary:     "Validate cron expression",
		Tags:        []string{"Jobs"},
	}, h.ValidateCron)
}

// ListJobsInput is the input for GET /api/v1/jobs.
type ListJobsInput struct{}

// ListJobsOutput is the output for GET /api/v1/jobs.
type ListJobsOutput struct {
	Body struct {
		Jobs []scheduler.JobStatus `json:"jobs"`
	}
}

// List returns every registered job.
func (h *JobsHandler) List(_ context.Context, _ *ListJobsInput) (*ListJobsOutput, error) {
	out := &ListJobsOutput{}
	out.Body.Jobs = h.jobs.Status()
	if out.Body.Jobs == nil {
		out.Body.Jobs = []scheduler.JobStatus{}
	}
	return out, nil
}

// RunJobInput is the input for POST /api/v1/jobs/{name}/run.
type RunJobInput struct {
	Name string `path:"name" doc:"Job name"`
}

// RunJobOutput is the output for POST /api/v1/jobs/{name}/run.
type RunJobOutput struct {
	Body scheduler.JobStatus
}

// Run triggers a job and waits for it to finish.
func (h *JobsHandler) Run(ctx context.Context, input *RunJobInput) (*RunJobOutput, error) {
	err := h.jobs.Trigger(ctx, input.Name)
	if errors.Is(err, scheduler.ErrUnknownJob) {
		return nil, huma.Error404NotFound(fmt.Sprintf("job %s not found", input.Name))
	}
	if err != nil {
		return nil, huma.Error500InternalServerError(fmt.Sprintf("job %s failed", input.Name), err)
	}

	for _, st := range h.jobs.Status() {
		if st.Name == input.Name {
			return &RunJobOutput{Body: st}, nil
		}
	}
	return &RunJobOutput{Body: scheduler.JobStatus{Name: input.Name}}, nil
}

// ValidateCronInput is the input for POST /api/v1/jobs/cron/validate.
type ValidateCronInput struct {
	Body struct {
		Expression string `json:"expression" minLength:"1" doc:"Cron expression or descriptor such as @every 5m"`
	}
}

// ValidateCronOutput is the output for POST /api/v1/jobs/cron/validate.
type ValidateCronOutput struct {
	Body struct {
		Valid bool   `json:"valid"`
		Error string `json:"error,omitempty"`
	}
}

// ValidateCron checks a schedule expression without registering anything.
func (h *JobsHandler) ValidateCron(_ context.Context, input *ValidateCronInput) (*ValidateCronOutput, error) {
	out := &ValidateCronOutput{}
	if err := scheduler.ValidateSchedule(input.Body.Expression); err != nil {
		out.Body.Error = err.Error()
		return out, nil
	}
	out.Body.Valid = true
	return out, nil
}

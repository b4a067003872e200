package ports

import (
	"context"
	"io"
	"time"

	"leadpipe/internal/core/domain"
)

// StartRunInput is the payload for submitting a scrape run to the provider.
// FetchCount is the clamped count actually sent on the wire, which may
// differ from the caller-visible requested count on the job record.
type StartRunInput struct {
	QueryURL   string
	FetchCount int
	FileFormat domain.FileFormat
}

// RunState is a provider-reported run status. The provider vocabulary is
// open-ended; only the two terminal values matter to the orchestrator.
type RunState string

const (
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed"
)

// ExportResult is the result set of a completed run.
type ExportResult struct {
	Leads       []domain.Lead
	DownloadURL string
}

// ScrapeProvider is the contract for the external scraping service.
type ScrapeProvider interface {
	// StartRun submits a scrape run and returns the provider's run id.
	// An overloaded provider is reported as domain.ProviderOverloaded.
	StartRun(ctx context.Context, in StartRunInput) (runID string, err error)

	// RunStatus reports the current state of a run.
	RunStatus(ctx context.Context, runID string) (RunState, error)

	// Export fetches the result set of a completed run.
	Export(ctx context.Context, runID string) (*ExportResult, error)
}

// Verdict is the raw, loosely-shaped response of the verification
// provider. Several competing vocabularies are in the wild (code ok/ko/mb,
// boolean valid/is_valid, status strings, risk levels, flags); pointers
// distinguish absent booleans from explicit false.
type Verdict struct {
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	Valid      *bool  `json:"valid,omitempty"`
	IsValid    *bool  `json:"is_valid,omitempty"`
	Status     string `json:"status,omitempty"`
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	Risk       string `json:"risk,omitempty"`
	Disposable *bool  `json:"disposable,omitempty"`
	CatchAll   *bool  `json:"catch_all,omitempty"`
	Role       *bool  `json:"role,omitempty"`
}

// EmailVerifier is the contract for the external verification service.
type EmailVerifier interface {
	Verify(ctx context.Context, email, token string) (*Verdict, error)
}

// TokenSource yields a valid provider token, refreshing it as needed.
// Implementations coalesce concurrent refreshes.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// JobUpdate is a partial update applied to a persisted job. Nil fields are
// left untouched. Stores must refuse status transitions out of a terminal
// state; re-applying the same terminal status is a no-op, not an error.
type JobUpdate struct {
	Status        *domain.JobStatus
	ProviderRunID *string
	Extracted     *int
	DownloadLink  *string
	ErrorMessage  *string
	CompletedAt   *time.Time
}

// JobStore is the persistence contract for scrape jobs and their leads.
type JobStore interface {
	// CreateJob persists a new job, assigning its id and creation time.
	CreateJob(ctx context.Context, job *domain.ScrapeJob) error

	// UpdateJob applies a partial update to a job.
	UpdateJob(ctx context.Context, id string, update JobUpdate) error

	// GetJob fetches a single job by id.
	GetJob(ctx context.Context, id string) (*domain.ScrapeJob, error)

	// ListJobs returns all jobs ordered by creation time descending.
	ListJobs(ctx context.Context) ([]domain.ScrapeJob, error)

	// InsertLeads persists the extracted records for a job.
	InsertLeads(ctx context.Context, jobID string, leads []domain.Lead) error
}

// Downloader streams a remote file, used to proxy provider export
// downloads to callers.
type Downloader interface {
	Download(ctx context.Context, url string) (body io.ReadCloser, contentType string, err error)
}

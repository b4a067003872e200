package domain

import "time"

// JobStatus tracks a scrape job through its lifecycle.
// Transitions: pending -> processing -> completed | failed.
// failed is reachable from any non-terminal state.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are permitted.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// FileFormat is the export format requested from the provider.
type FileFormat string

const (
	FormatCSV  FileFormat = "csv"
	FormatXLSX FileFormat = "xlsx"
)

// ParseFileFormat maps arbitrary caller input to a supported format,
// defaulting to CSV the way the dashboard always has.
func ParseFileFormat(s string) FileFormat {
	if s == string(FormatXLSX) {
		return FormatXLSX
	}
	return FormatCSV
}

// ScrapeJob is one submitted unit of scraping work, tracked from
// submission to terminal state.
type ScrapeJob struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	SourceURL     string     `json:"url"`
	FileName      string     `json:"file_name"`
	FileFormat    FileFormat `json:"file_format"`
	Status        JobStatus  `json:"status"`
	Requested     int        `json:"requested"`
	Extracted     int        `json:"extracted"`
	Credits       int        `json:"credits"`
	DownloadLink  string     `json:"download_link,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	ProviderRunID string     `json:"provider_run_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Lead is one normalized record extracted by a completed scrape run.
// The provider emits both camelCase and snake_case payloads; field
// probing happens in the provider adapter, this struct is canonical.
type Lead struct {
	ID             string `json:"id,omitempty"`
	JobID          string `json:"job_id"`
	Name           string `json:"name,omitempty"`
	Title          string `json:"title,omitempty"`
	Company        string `json:"company,omitempty"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Location       string `json:"location,omitempty"`
	LinkedinURL    string `json:"linkedin_url,omitempty"`
	CompanyWebsite string `json:"company_website,omitempty"`
	Industry       string `json:"industry,omitempty"`
	CompanySize    string `json:"company_size,omitempty"`
}

// VerifyStatus is the three-valued outcome of a single email verification.
type VerifyStatus string

const (
	VerifyAccepted VerifyStatus = "accepted"
	VerifyRejected VerifyStatus = "rejected"
	VerifyUnknown  VerifyStatus = "unknown"
)

// VerificationRecord is the per-email result of a batch verification.
// Every unique input email yields exactly one record, even when the
// provider is unreachable.
type VerificationRecord struct {
	Email     string       `json:"email"`
	FirstName string       `json:"first_name"`
	Status    VerifyStatus `json:"status"`
	Details   string       `json:"details"`
}

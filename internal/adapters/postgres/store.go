// Package postgres implements ports.JobStore on PostgreSQL via pgx.
// The schema mirrors the dashboard's scraper_requests / scraper_leads
// tables.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leadpipe/internal/core/domain"
	"leadpipe/internal/core/ports"
)

//go:embed schema.sql
var schema string

// Store is a pgx-backed job store.
type Store struct {
	pool *pgxpool.Pool
}

// New connects a Store to the given database URL.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

var _ ports.JobStore = (*Store)(nil)

// Migrate applies the embedded schema. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const jobColumns = `id, user_id, url, file_name, file_format, status, requested,
	extracted, credits, download_link, error_message, provider_run_id,
	created_at, completed_at`

// CreateJob persists a new job, assigning its id and creation time.
func (s *Store) CreateJob(ctx context.Context, job *domain.ScrapeJob) error {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO scraper_requests
			(user_id, url, file_name, file_format, status, requested, extracted, credits, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL)
		RETURNING id, created_at`,
		job.UserID, job.SourceURL, job.FileName, string(job.FileFormat),
		string(job.Status), job.Requested, job.Extracted, job.Credits,
	)
	if err := row.Scan(&job.ID, &job.CreatedAt); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// UpdateJob applies a partial update. A status transition out of a
// terminal state is suppressed in SQL, so a late poll result can never
// resurrect a finished job.
func (s *Store) UpdateJob(ctx context.Context, id string, update ports.JobUpdate) error {
	sets := make([]string, 0, 6)
	args := make([]any, 0, 7)
	args = append(args, id)

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Status != nil {
		add("status", string(*update.Status))
	}
	if update.ProviderRunID != nil {
		// run ids are write-once
		args = append(args, *update.ProviderRunID)
		sets = append(sets, fmt.Sprintf("provider_run_id = COALESCE(provider_run_id, $%d)", len(args)))
	}
	if update.Extracted != nil {
		add("extracted", *update.Extracted)
	}
	if update.DownloadLink != nil {
		add("download_link", *update.DownloadLink)
	}
	if update.ErrorMessage != nil {
		add("error_message", *update.ErrorMessage)
	}
	if update.CompletedAt != nil {
		add("completed_at", *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}

	query := fmt.Sprintf(`UPDATE scraper_requests SET %s WHERE id = $1`, strings.Join(sets, ", "))
	if update.Status != nil {
		// terminal states are immutable; late updates fall through silently
		query += ` AND status NOT IN ('completed', 'failed')`
	}

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	return nil
}

// GetJob fetches a single job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*domain.ScrapeJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM scraper_requests WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("job not found: %s", id)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns all jobs ordered by creation time descending.
func (s *Store) ListJobs(ctx context.Context) ([]domain.ScrapeJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM scraper_requests ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.ScrapeJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// InsertLeads persists the extracted records for a job in one batch.
func (s *Store) InsertLeads(ctx context.Context, jobID string, leads []domain.Lead) error {
	if len(leads) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, lead := range leads {
		batch.Queue(`
			INSERT INTO scraper_leads
				(job_id, name, title, company, email, phone, location,
				 linkedin_url, company_website, industry, company_size)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			jobID, nullable(lead.Name), nullable(lead.Title), nullable(lead.Company),
			nullable(lead.Email), nullable(lead.Phone), nullable(lead.Location),
			nullable(lead.LinkedinURL), nullable(lead.CompanyWebsite),
			nullable(lead.Industry), nullable(lead.CompanySize),
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range leads {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert leads for job %s: %w", jobID, err)
		}
	}
	return nil
}

func scanJob(row pgx.Row) (*domain.ScrapeJob, error) {
	var (
		job           domain.ScrapeJob
		status        string
		format        string
		downloadLink  *string
		errorMessage  *string
		providerRunID *string
	)
	err := row.Scan(
		&job.ID, &job.UserID, &job.SourceURL, &job.FileName, &format,
		&status, &job.Requested, &job.Extracted, &job.Credits,
		&downloadLink, &errorMessage, &providerRunID,
		&job.CreatedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	job.FileFormat = domain.FileFormat(format)
	if downloadLink != nil {
		job.DownloadLink = *downloadLink
	}
	if errorMessage != nil {
		job.ErrorMessage = *errorMessage
	}
	if providerRunID != nil {
		job.ProviderRunID = *providerRunID
	}
	return &job, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

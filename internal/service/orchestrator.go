package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"leadpipe/internal/config"
	"leadpipe/internal/core/domain"
	"leadpipe/internal/core/ports"
	"leadpipe/internal/metrics"
	"leadpipe/internal/retry"
)

// overloadedMessage is the user-facing text when every submission attempt
// hit the provider's capacity ceiling. Raw provider detail is logged, not
// surfaced.
const overloadedMessage = "Apollo service is currently overloaded. Please try again in a few minutes."

// SubmitRequest is the caller input for a new scrape job.
type SubmitRequest struct {
	SourceURL  string
	LeadsCount int
	FileName   string
	FileFormat string
	UserID     string
}

// Orchestrator drives scrape jobs from submission to terminal state:
// validate, persist pending, then (detached from the submitting call)
// submit to the provider with backoff, poll the run, and finalize.
type Orchestrator struct {
	provider ports.ScrapeProvider
	store    ports.JobStore
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *metrics.Metrics

	// baseCtx bounds the detached workers, not the submitting HTTP call.
	baseCtx context.Context
	wg      sync.WaitGroup
}

// NewOrchestrator creates an Orchestrator whose background workers live
// until baseCtx is cancelled.
func NewOrchestrator(
	baseCtx context.Context,
	provider ports.ScrapeProvider,
	store ports.JobStore,
	cfg *config.Config,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Orchestrator {
	return &Orchestrator{
		provider: provider,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		baseCtx:  baseCtx,
	}
}

// Submit validates the request, persists a pending job and kicks off the
// submit-and-poll sequence in the background. It returns before any
// provider call is made.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*domain.ScrapeJob, error) {
	if err := o.validate(req); err != nil {
		return nil, err
	}

	format := domain.ParseFileFormat(req.FileFormat)
	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		fileName = fmt.Sprintf("apollo_leads_%d.%s", time.Now().Unix(), format)
	}

	job := &domain.ScrapeJob{
		UserID:     req.UserID,
		SourceURL:  req.SourceURL,
		FileName:   fileName,
		FileFormat: format,
		Status:     domain.JobPending,
		Requested:  req.LeadsCount,
		Credits:    req.LeadsCount,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	// The provider payload is clamped to the provider's range; the
	// persisted Requested keeps the caller's value.
	fetchCount := clamp(req.LeadsCount, o.cfg.ProviderMinCount, o.cfg.ProviderMaxCount)

	o.wg.Add(1)
	go o.run(*job, fetchCount)

	return job, nil
}

// Wait blocks until all background job workers have finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) validate(req SubmitRequest) error {
	if req.SourceURL == "" || req.LeadsCount == 0 {
		return domain.ValidationError{Msg: "Missing required fields: url or leadsCount"}
	}
	if !isApolloPeopleURL(req.SourceURL) {
		return domain.ValidationError{
			Msg: "Please provide a valid Apollo.io People search URL starting with: https://app.apollo.io/#/people",
		}
	}
	if req.LeadsCount < 1 || req.LeadsCount > o.cfg.ProviderMaxCount {
		return domain.ValidationError{
			Msg: fmt.Sprintf("Leads count must be between 1 and %d", o.cfg.ProviderMaxCount),
		}
	}
	return nil
}

// run is the detached job lifecycle. Whatever happens inside, the job
// record ends up in a terminal state: the deferred guard turns panics
// and unreported errors into a failed status.
func (o *Orchestrator) run(job domain.ScrapeJob, fetchCount int) {
	defer o.wg.Done()
	ctx := o.baseCtx
	log := o.logger.With(zap.String("job_id", job.ID))

	var terminalErr error
	defer func() {
		if r := recover(); r != nil {
			terminalErr = fmt.Errorf("job worker panic: %v", r)
			log.Error("job worker panicked", zap.Any("panic", r))
		}
		if terminalErr != nil {
			o.fail(ctx, job.ID, terminalErr, log)
		}
	}()

	runID, err := o.submitWithRetry(ctx, job, fetchCount, log)
	if err != nil {
		terminalErr = err
		return
	}

	if err := o.store.UpdateJob(ctx, job.ID, ports.JobUpdate{
		Status:        statusPtr(domain.JobProcessing),
		ProviderRunID: &runID,
	}); err != nil {
		terminalErr = fmt.Errorf("record run id: %w", err)
		return
	}
	log.Info("scrape run accepted", zap.String("run_id", runID))

	if err := o.pollUntilDone(ctx, runID, log); err != nil {
		terminalErr = err
		return
	}

	terminalErr = o.finalize(ctx, job, runID, log)
}

// submitWithRetry issues the start-run call, backing off on overload and
// transient failures up to the attempt ceiling.
func (o *Orchestrator) submitWithRetry(ctx context.Context, job domain.ScrapeJob, fetchCount int, log *zap.Logger) (string, error) {
	policy := retry.Policy{
		Base:   o.cfg.SubmitBaseDelay,
		Factor: 2,
		Max:    o.cfg.SubmitMaxDelay,
	}
	input := ports.StartRunInput{
		QueryURL:   job.SourceURL,
		FetchCount: fetchCount,
		FileFormat: job.FileFormat,
	}

	var lastErr error
	for attempt := 0; attempt < o.cfg.SubmitMaxAttempts; attempt++ {
		runID, err := o.provider.StartRun(ctx, input)
		if err == nil {
			return runID, nil
		}
		lastErr = err

		if !domain.IsRetryable(err) {
			return "", err
		}
		if attempt == o.cfg.SubmitMaxAttempts-1 {
			break
		}

		delay := policy.Delay(attempt)
		log.Warn("start run failed, backing off",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		o.metrics.IncSubmitRetry()
		if err := retry.Sleep(ctx, delay); err != nil {
			return "", err
		}
	}

	if domain.IsOverloaded(lastErr) {
		log.Error("submission ceiling exhausted while overloaded", zap.Error(lastErr))
		return "", fmt.Errorf("%s", overloadedMessage)
	}
	return "", fmt.Errorf("all %d scrape submission attempts failed: %w", o.cfg.SubmitMaxAttempts, lastErr)
}

// pollUntilDone queries run status with a growing, jittered interval.
// Transient poll errors consume attempts from the same budget instead of
// failing the job outright; only an explicit provider failure or budget
// exhaustion is terminal.
func (o *Orchestrator) pollUntilDone(ctx context.Context, runID string, log *zap.Logger) error {
	policy := retry.Policy{
		Base:   o.cfg.PollInterval,
		Factor: o.cfg.PollGrowth,
		Max:    o.cfg.PollMaxDelay,
	}

	for attempt := 0; attempt < o.cfg.PollMaxAttempts; attempt++ {
		state, err := o.provider.RunStatus(ctx, runID)
		switch {
		case err == nil && state == ports.RunCompleted:
			o.metrics.ObservePollAttempts(attempt + 1)
			return nil
		case err == nil && state == ports.RunFailed:
			return domain.ProviderRunFailed{RunID: runID, Status: string(state)}
		case err != nil:
			log.Warn("poll attempt failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
		}

		if attempt == o.cfg.PollMaxAttempts-1 {
			break
		}
		if err := retry.Sleep(ctx, policy.Delay(attempt)); err != nil {
			return err
		}
	}
	return domain.PollTimeout{RunID: runID, Attempts: o.cfg.PollMaxAttempts}
}

// finalize fetches the export, persists the normalized leads and marks
// the job completed. Any failure here is an ExportFailure: the scrape
// succeeded but delivering results did not.
func (o *Orchestrator) finalize(ctx context.Context, job domain.ScrapeJob, runID string, log *zap.Logger) error {
	export, err := o.provider.Export(ctx, runID)
	if err != nil {
		return domain.ExportFailure{Err: err}
	}

	if len(export.Leads) > 0 {
		if err := o.store.InsertLeads(ctx, job.ID, export.Leads); err != nil {
			// partial inserts are tolerable, a completed status is not
			return domain.ExportFailure{Err: fmt.Errorf("persist leads: %w", err)}
		}
	}

	now := time.Now().UTC()
	extracted := len(export.Leads)
	empty := ""
	if err := o.store.UpdateJob(ctx, job.ID, ports.JobUpdate{
		Status:       statusPtr(domain.JobCompleted),
		Extracted:    &extracted,
		DownloadLink: &export.DownloadURL,
		ErrorMessage: &empty,
		CompletedAt:  &now,
	}); err != nil {
		return domain.ExportFailure{Err: fmt.Errorf("mark completed: %w", err)}
	}

	o.metrics.IncJob(string(domain.JobCompleted))
	log.Info("job completed",
		zap.String("run_id", runID),
		zap.Int("extracted", extracted),
	)
	return nil
}

// fail lands the job in the failed state with a display message. Uses a
// fresh context so store writes survive baseCtx cancellation during
// shutdown.
func (o *Orchestrator) fail(ctx context.Context, jobID string, cause error, log *zap.Logger) {
	log.Error("job failed", zap.Error(cause))

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	message := cause.Error()
	now := time.Now().UTC()
	if err := o.store.UpdateJob(writeCtx, jobID, ports.JobUpdate{
		Status:       statusPtr(domain.JobFailed),
		ErrorMessage: &message,
		CompletedAt:  &now,
	}); err != nil {
		log.Error("failed to persist terminal state", zap.Error(err))
	}
	o.metrics.IncJob(string(domain.JobFailed))
}

// isApolloPeopleURL allow-lists the provider's people-search URLs.
func isApolloPeopleURL(url string) bool {
	return strings.HasPrefix(url, "https://app.apollo.io/#/people") ||
		strings.Contains(url, "apollo.io/#/people")
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func statusPtr(s domain.JobStatus) *domain.JobStatus {
	return &s
}

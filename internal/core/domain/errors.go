package domain

import (
	"errors"
	"fmt"
)

// ValidationError rejects malformed caller input. Never retried and never
// persisted as a job; surfaced directly as an HTTP 400.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string {
	return e.Msg
}

// ProviderOverloaded is the provider's structured capacity signal
// (apollo_scraper_overloaded, HTTP 429). Transient: retried with backoff
// up to a ceiling.
type ProviderOverloaded struct {
	Err error
}

func (e ProviderOverloaded) Error() string {
	return fmt.Errorf("provider overloaded: %w", e.Err).Error()
}

func (e ProviderOverloaded) Unwrap() error {
	return e.Err
}

// ProviderRunFailed means the provider explicitly reported the run as
// failed. Terminal, not retried.
type ProviderRunFailed struct {
	RunID  string
	Status string
}

func (e ProviderRunFailed) Error() string {
	return fmt.Sprintf("scrape run %s failed with provider status %q", e.RunID, e.Status)
}

// PollTimeout means the polling ceiling was exhausted without a terminal
// provider status. Terminal, treated as a job failure.
type PollTimeout struct {
	RunID    string
	Attempts int
}

func (e PollTimeout) Error() string {
	return fmt.Sprintf("run %s still not finished after %d polling attempts", e.RunID, e.Attempts)
}

// ExportFailure means the run succeeded but fetching or persisting its
// results did not. Terminal, distinct from a run failure.
type ExportFailure struct {
	Err error
}

func (e ExportFailure) Error() string {
	return fmt.Errorf("export failed: %w", e.Err).Error()
}

func (e ExportFailure) Unwrap() error {
	return e.Err
}

// TooManyRecords rejects an oversized verification batch before any
// processing begins.
type TooManyRecords struct {
	Count int
	Max   int
}

func (e TooManyRecords) Error() string {
	return fmt.Sprintf("batch of %d emails exceeds the maximum of %d per request", e.Count, e.Max)
}

// IsRetryable reports whether an error from a provider call may be retried
// with backoff. Validation and explicit run failures are not; everything
// else (overload, network, unexpected status) is, up to the attempt ceiling.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var validation ValidationError
	if errors.As(err, &validation) {
		return false
	}
	var runFailed ProviderRunFailed
	return !errors.As(err, &runFailed)
}

// IsOverloaded reports whether err carries the provider's capacity signal.
func IsOverloaded(err error) bool {
	var overloaded ProviderOverloaded
	return errors.As(err, &overloaded)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"leadpipe/internal/config"
	"leadpipe/internal/core/domain"
	"leadpipe/internal/core/ports"
	"leadpipe/internal/metrics"
	"leadpipe/internal/retry"
)

// Verifier runs bulk email verification: normalize and de-duplicate the
// input, split it into chunks, dispatch chunks with bounded concurrency
// and rate pacing, and aggregate one record per unique input no matter
// what the provider does.
type Verifier struct {
	client  ports.EmailVerifier
	tokens  ports.TokenSource
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	// limiter paces chunk starts; cache remembers recent verdicts so a
	// re-uploaded list skips the provider.
	limiter *rate.Limiter
	cache   *expirable.LRU[string, domain.VerificationRecord]

	chunk adaptiveChunk
}

// NewVerifier creates a Verifier.
func NewVerifier(
	client ports.EmailVerifier,
	tokens ports.TokenSource,
	cfg *config.Config,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Verifier {
	limit := rate.Inf
	if cfg.ChunkDelay > 0 {
		limit = rate.Every(cfg.ChunkDelay)
	}
	return &Verifier{
		client:  client,
		tokens:  tokens,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		limiter: rate.NewLimiter(limit, 1),
		cache:   expirable.NewLRU[string, domain.VerificationRecord](cfg.VerdictCacheSize, nil, cfg.VerdictCacheTTL),
		chunk:   adaptiveChunk{size: cfg.ChunkSize, min: cfg.MinChunkSize, max: cfg.ChunkSize},
	}
}

// VerifyBatch verifies a batch of emails and returns exactly one record
// per unique, sanitized input. Oversized batches and empty input are
// rejected before any provider work; once processing starts, provider
// failures degrade individual records to unknown instead of aborting.
func (v *Verifier) VerifyBatch(ctx context.Context, emails []string) ([]domain.VerificationRecord, error) {
	unique := sanitize(emails)
	if len(unique) == 0 {
		return nil, domain.ValidationError{Msg: "No emails provided"}
	}
	if len(unique) > v.cfg.MaxBatch {
		return nil, domain.TooManyRecords{Count: len(unique), Max: v.cfg.MaxBatch}
	}

	results := make([]domain.VerificationRecord, len(unique))

	// Invalid shapes and cache hits are settled without provider calls.
	var pending []int
	for i, email := range unique {
		switch {
		case !isValidEmail(email):
			results[i] = record(email, domain.VerifyRejected, "invalid_format")
		default:
			if cached, ok := v.cache.Get(email); ok {
				v.metrics.IncCacheHit()
				results[i] = cached
			} else {
				pending = append(pending, i)
			}
		}
	}

	if len(pending) > 0 {
		// A dead token endpoint fails the batch up front; mid-flight
		// failures degrade per record instead.
		token, err := v.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire verification token: %w", err)
		}
		v.dispatch(ctx, unique, pending, token, results)
	}

	for _, r := range results {
		v.metrics.IncVerifyResult(string(r.Status))
	}
	return results, nil
}

// dispatch processes the pending indexes chunk by chunk. Chunk starts are
// paced by the limiter and at most ChunkConcurrency chunks are in flight.
// A failing chunk fills its own records and never aborts its siblings.
func (v *Verifier) dispatch(ctx context.Context, emails []string, pending []int, token string, results []domain.VerificationRecord) {
	sem := make(chan struct{}, v.cfg.ChunkConcurrency)
	var wg sync.WaitGroup

	cursor := 0
	for cursor < len(pending) {
		size := v.chunk.current()
		v.metrics.SetChunkSize(size)
		end := cursor + size
		if end > len(pending) {
			end = len(pending)
		}
		chunk := pending[cursor:end]
		cursor = end

		if err := v.limiter.Wait(ctx); err != nil {
			v.fillCancelled(emails, pending[cursor-len(chunk):], results)
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			v.fillCancelled(emails, pending[cursor-len(chunk):], results)
			cursor = len(pending)
			continue
		}

		wg.Add(1)
		go func(chunk []int) {
			defer wg.Done()
			defer func() { <-sem }()
			rateLimited := v.verifyChunk(ctx, emails, chunk, token, results)
			v.chunk.observe(rateLimited)
		}(chunk)
	}

	wg.Wait()
}

// verifyChunk verifies each record of one chunk and reports whether the
// provider rate-limited any of them.
func (v *Verifier) verifyChunk(ctx context.Context, emails []string, chunk []int, token string, results []domain.VerificationRecord) bool {
	rateLimited := false
	for _, idx := range chunk {
		rec, limited := v.verifyOne(ctx, emails[idx], token)
		results[idx] = rec
		rateLimited = rateLimited || limited

		if rec.Status != domain.VerifyUnknown {
			v.cache.Add(rec.Email, rec)
		}
	}
	return rateLimited
}

// verifyOne verifies a single email with bounded retries and a per-call
// timeout, degrading to unknown instead of returning an error.
func (v *Verifier) verifyOne(ctx context.Context, email, token string) (domain.VerificationRecord, bool) {
	rateLimited := false

	for attempt := 1; attempt <= v.cfg.RecordAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, v.cfg.RecordTimeout)
		start := time.Now()
		verdict, err := v.client.Verify(callCtx, email, token)
		v.metrics.ObserveVerify(time.Since(start))
		cancel()

		if err == nil {
			status, details := normalizeVerdict(verdict)
			return record(email, status, details), rateLimited
		}

		if domain.IsOverloaded(err) {
			rateLimited = true
		}
		v.logger.Warn("verification attempt failed",
			zap.String("email", email),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if ctx.Err() != nil {
			return record(email, domain.VerifyUnknown, "canceled"), rateLimited
		}
		if attempt == v.cfg.RecordAttempts {
			detail := "api_error"
			if errors.Is(err, context.DeadlineExceeded) {
				detail = "timeout"
			}
			return record(email, domain.VerifyUnknown, detail), rateLimited
		}

		// Linear inter-attempt wait, matching the provider's guidance.
		if err := retry.Sleep(ctx, time.Duration(attempt)*500*time.Millisecond); err != nil {
			return record(email, domain.VerifyUnknown, "canceled"), rateLimited
		}
	}
	return record(email, domain.VerifyUnknown, "verification_failed"), rateLimited
}

func (v *Verifier) fillCancelled(emails []string, remaining []int, results []domain.VerificationRecord) {
	for _, idx := range remaining {
		if results[idx].Email == "" {
			results[idx] = record(emails[idx], domain.VerifyUnknown, "canceled")
		}
	}
}

// sanitize trims, lowercases, drops empties and de-duplicates while
// preserving first-seen order. Syntactically invalid entries survive so
// they can be reported as rejected rows.
func sanitize(emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, raw := range emails {
		email := normalizeEmail(raw)
		if email == "" {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		out = append(out, email)
	}
	return out
}

func normalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func record(email string, status domain.VerifyStatus, details string) domain.VerificationRecord {
	return domain.VerificationRecord{
		Email:     email,
		FirstName: firstNameFromEmail(email),
		Status:    status,
		Details:   details,
	}
}

// adaptiveChunk shrinks the chunk size while the provider is rate
// limiting and grows it back toward the ceiling on clean chunks.
type adaptiveChunk struct {
	mu   sync.Mutex
	size int
	min  int
	max  int
}

func (a *adaptiveChunk) current() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.size
}

func (a *adaptiveChunk) observe(rateLimited bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if rateLimited {
		a.size /= 2
		if a.size < a.min {
			a.size = a.min
		}
		return
	}
	if a.size < a.max {
		a.size++
	}
}

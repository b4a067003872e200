package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"leadpipe/internal/config"
	"leadpipe/internal/core/domain"
	"leadpipe/internal/core/ports"
	"leadpipe/internal/metrics"
)

type fakeVerifyClient struct {
	mu      sync.Mutex
	calls   map[string]int
	verdict func(email string, attempt int) (*ports.Verdict, error)
}

func newFakeVerifyClient(verdict func(email string, attempt int) (*ports.Verdict, error)) *fakeVerifyClient {
	return &fakeVerifyClient{calls: make(map[string]int), verdict: verdict}
}

func (f *fakeVerifyClient) Verify(ctx context.Context, email, token string) (*ports.Verdict, error) {
	f.mu.Lock()
	f.calls[email]++
	attempt := f.calls[email]
	f.mu.Unlock()
	return f.verdict(email, attempt)
}

func (f *fakeVerifyClient) callCount(email string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[email]
}

func (f *fakeVerifyClient) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) Token(ctx context.Context) (string, error) {
	return s.token, s.err
}

func verifierConfig() *config.Config {
	cfg := config.Default()
	cfg.ChunkSize = 3
	cfg.MinChunkSize = 2
	cfg.ChunkConcurrency = 2
	cfg.ChunkDelay = 0
	cfg.RecordAttempts = 1
	cfg.RecordTimeout = time.Second
	cfg.MaxBatch = 20
	return cfg
}

func newTestVerifier(cfg *config.Config, client ports.EmailVerifier) *Verifier {
	return NewVerifier(client, staticTokens{token: "tok"}, cfg, zap.NewNop(), metrics.New())
}

func okVerdict(string, int) (*ports.Verdict, error) {
	return &ports.Verdict{Code: "ok"}, nil
}

func TestVerifyBatchDeduplicates(t *testing.T) {
	client := newFakeVerifyClient(okVerdict)
	v := newTestVerifier(verifierConfig(), client)

	records, err := v.VerifyBatch(context.Background(), []string{"a@x.com", "A@X.com ", "a@x.com"})
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "a@x.com", records[0].Email)
	assert.Equal(t, domain.VerifyAccepted, records[0].Status)
	assert.Equal(t, 1, client.callCount("a@x.com"))
}

func TestVerifyBatchShortCircuitsInvalidFormat(t *testing.T) {
	client := newFakeVerifyClient(okVerdict)
	v := newTestVerifier(verifierConfig(), client)

	records, err := v.VerifyBatch(context.Background(), []string{"not-an-email", "b@x.com"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, domain.VerifyRejected, records[0].Status)
	assert.Equal(t, "invalid_format", records[0].Details)
	assert.Zero(t, client.callCount("not-an-email"))
	assert.Equal(t, domain.VerifyAccepted, records[1].Status)
}

func TestVerifyBatchTotalCoverageUnderPartialFailure(t *testing.T) {
	client := newFakeVerifyClient(func(email string, attempt int) (*ports.Verdict, error) {
		if email[len("user")]%2 == 0 {
			return nil, errors.New("connection reset")
		}
		return &ports.Verdict{Code: "ok"}, nil
	})
	v := newTestVerifier(verifierConfig(), client)

	var emails []string
	for i := 0; i < 10; i++ {
		emails = append(emails, fmt.Sprintf("user%d@x.com", i))
	}

	records, err := v.VerifyBatch(context.Background(), emails)
	require.NoError(t, err)
	require.Len(t, records, len(emails))

	for i, rec := range records {
		assert.Equal(t, emails[i], rec.Email, "order must be preserved")
		assert.NotEmpty(t, rec.Status)
		assert.NotEmpty(t, rec.Details)
	}
}

func TestVerifyBatchRetriesThenDegradesToUnknown(t *testing.T) {
	client := newFakeVerifyClient(func(email string, attempt int) (*ports.Verdict, error) {
		return nil, errors.New("boom")
	})
	cfg := verifierConfig()
	cfg.RecordAttempts = 2
	v := newTestVerifier(cfg, client)

	records, err := v.VerifyBatch(context.Background(), []string{"a@x.com"})
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, domain.VerifyUnknown, records[0].Status)
	assert.Equal(t, "api_error", records[0].Details)
	assert.Equal(t, 2, client.callCount("a@x.com"))
}

func TestVerifyBatchRejectsOversizedBatch(t *testing.T) {
	cfg := verifierConfig()
	cfg.MaxBatch = 2
	v := newTestVerifier(cfg, newFakeVerifyClient(okVerdict))

	_, err := v.VerifyBatch(context.Background(), []string{"a@x.com", "b@x.com", "c@x.com"})

	var tooMany domain.TooManyRecords
	require.ErrorAs(t, err, &tooMany)
	assert.Equal(t, 3, tooMany.Count)
}

func TestVerifyBatchRejectsEmptyInput(t *testing.T) {
	v := newTestVerifier(verifierConfig(), newFakeVerifyClient(okVerdict))

	_, err := v.VerifyBatch(context.Background(), []string{"", "   "})

	var validation domain.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestVerifyBatchFailsUpFrontWithoutToken(t *testing.T) {
	client := newFakeVerifyClient(okVerdict)
	cfg := verifierConfig()
	v := NewVerifier(client, staticTokens{err: errors.New("token endpoint down")}, cfg, zap.NewNop(), metrics.New())

	_, err := v.VerifyBatch(context.Background(), []string{"a@x.com"})
	require.Error(t, err)
	assert.Zero(t, client.totalCalls())
}

func TestVerifyBatchUsesVerdictCache(t *testing.T) {
	client := newFakeVerifyClient(okVerdict)
	v := newTestVerifier(verifierConfig(), client)

	_, err := v.VerifyBatch(context.Background(), []string{"a@x.com"})
	require.NoError(t, err)
	records, err := v.VerifyBatch(context.Background(), []string{"a@x.com"})
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, domain.VerifyAccepted, records[0].Status)
	assert.Equal(t, 1, client.callCount("a@x.com"), "second batch should be a cache hit")
}

func TestVerifyBatchDoesNotCacheUnknown(t *testing.T) {
	failures := 0
	client := newFakeVerifyClient(func(email string, attempt int) (*ports.Verdict, error) {
		failures++
		if failures == 1 {
			return nil, errors.New("blip")
		}
		return &ports.Verdict{Code: "ok"}, nil
	})
	v := newTestVerifier(verifierConfig(), client)

	first, err := v.VerifyBatch(context.Background(), []string{"a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.VerifyUnknown, first[0].Status)

	second, err := v.VerifyBatch(context.Background(), []string{"a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.VerifyAccepted, second[0].Status)
}

func TestAdaptiveChunkShrinksAndRecovers(t *testing.T) {
	chunk := adaptiveChunk{size: 8, min: 2, max: 8}

	chunk.observe(true)
	assert.Equal(t, 4, chunk.current())
	chunk.observe(true)
	chunk.observe(true)
	assert.Equal(t, 2, chunk.current(), "never shrinks below the floor")

	chunk.observe(false)
	assert.Equal(t, 3, chunk.current())
}

func TestReportQuotesPerRFC4180(t *testing.T) {
	records := []domain.VerificationRecord{
		{Email: "a@x.com", FirstName: "a", Status: domain.VerifyAccepted, Details: "valid"},
		{Email: "b@x.com", FirstName: "b", Status: domain.VerifyRejected, Details: `smtp said "no", twice`},
	}

	out, err := Report(records)
	require.NoError(t, err)

	assert.Contains(t, string(out), "email,firstName,status,details\n")
	assert.Contains(t, string(out), `"smtp said ""no"", twice"`)
}

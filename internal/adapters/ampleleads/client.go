// Package ampleleads implements ports.ScrapeProvider against the
// AmpleLeads Apollo scraping API.
package ampleleads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"leadpipe/internal/core/domain"
	"leadpipe/internal/core/ports"
	"leadpipe/internal/metrics"
)

// overloadedCode is the structured error code the provider returns when
// its scraper pool has no capacity. Distinguishable from every other
// error and the only one the orchestrator treats as a pure capacity
// signal.
const overloadedCode = "apollo_scraper_overloaded"

// Client calls the AmpleLeads REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	metrics *metrics.Metrics
}

// NewClient creates a Client for the given base URL and API key.
func NewClient(baseURL, apiKey string, timeout time.Duration, m *metrics.Metrics) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		metrics: m,
	}
}

var _ ports.ScrapeProvider = (*Client)(nil)

type providerError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

// StartRun submits a scrape run. An overloaded provider surfaces as
// domain.ProviderOverloaded so the caller can back off and retry.
func (c *Client) StartRun(ctx context.Context, in ports.StartRunInput) (string, error) {
	payload := map[string]any{
		"apollo_url":  in.QueryURL,
		"fetch_count": in.FetchCount,
		"file_format": string(in.FileFormat),
	}
	body, _ := json.Marshal(payload)

	url := fmt.Sprintf("%s/scrape?api_key=%s", c.baseURL, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	c.metrics.ObserveProvider("start_run", time.Since(start))
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		var perr providerError
		if json.Unmarshal(raw, &perr) != nil {
			perr = providerError{Code: "unknown", Message: string(raw)}
		}
		if perr.Code == overloadedCode || resp.StatusCode == http.StatusTooManyRequests {
			return "", domain.ProviderOverloaded{
				Err: fmt.Errorf("status %d: %s", resp.StatusCode, perr.Message),
			}
		}
		return "", fmt.Errorf("start run: HTTP %d: %s", resp.StatusCode, string(raw))
	}

	var result struct {
		RunID string `json:"run_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode start response: %w", err)
	}
	if result.RunID == "" {
		return "", fmt.Errorf("no run id received from provider")
	}
	return result.RunID, nil
}

// RunStatus reports the provider-side state of a run.
func (c *Client) RunStatus(ctx context.Context, runID string) (ports.RunState, error) {
	url := fmt.Sprintf("%s/status/%s?api_key=%s", c.baseURL, runID, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	c.metrics.ObserveProvider("run_status", time.Since(start))
	if err != nil {
		return "", fmt.Errorf("run status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("run status: HTTP %d: %s", resp.StatusCode, string(raw))
	}

	var result struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode status response: %w", err)
	}
	return ports.RunState(result.Status), nil
}

// Export fetches the result set of a completed run and normalizes each
// lead into the canonical shape.
func (c *Client) Export(ctx context.Context, runID string) (*ports.ExportResult, error) {
	url := fmt.Sprintf("%s/export/%s?api_key=%s", c.baseURL, runID, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	c.metrics.ObserveProvider("export", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("export: HTTP %d: %s", resp.StatusCode, string(raw))
	}

	var result struct {
		Leads       []map[string]any `json:"leads"`
		DownloadURL string           `json:"download_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode export response: %w", err)
	}

	leads := make([]domain.Lead, 0, len(result.Leads))
	for _, raw := range result.Leads {
		leads = append(leads, normalizeLead(raw))
	}
	return &ports.ExportResult{Leads: leads, DownloadURL: result.DownloadURL}, nil
}

// normalizeLead tolerates the provider's mixed camelCase / snake_case
// field vocabulary.
func normalizeLead(raw map[string]any) domain.Lead {
	return domain.Lead{
		Name:           firstString(raw, "name"),
		Title:          firstString(raw, "title"),
		Company:        firstString(raw, "company"),
		Email:          firstString(raw, "email"),
		Phone:          firstString(raw, "phone"),
		Location:       firstString(raw, "location"),
		LinkedinURL:    firstString(raw, "linkedinUrl", "linkedin_url"),
		CompanyWebsite: firstString(raw, "companyWebsite", "company_website"),
		Industry:       firstString(raw, "industry"),
		CompanySize:    firstString(raw, "companySize", "company_size"),
	}
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if val, ok := m[key].(string); ok && val != "" {
			return val
		}
	}
	return ""
}

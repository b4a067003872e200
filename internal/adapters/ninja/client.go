// Package ninja implements ports.EmailVerifier and ports.TokenSource
// against the Ninja email verification API.
package ninja

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"leadpipe/internal/core/domain"
	"leadpipe/internal/core/ports"
)

const userAgent = "leadpipe-verifier/1.0"

// Client calls the verification endpoint for a single email.
type Client struct {
	verifyURL string
	http      *http.Client
}

// NewClient creates a verification client. The per-request timeout is
// enforced by the caller's context, not by this client, so one slow
// record cannot stall its whole chunk budget.
func NewClient(verifyURL string) *Client {
	return &Client{
		verifyURL: verifyURL,
		http:      &http.Client{},
	}
}

var _ ports.EmailVerifier = (*Client)(nil)

// Verify asks the provider for a verdict on one email. A 429 surfaces as
// domain.ProviderOverloaded so the verifier can shrink its chunks.
func (c *Client) Verify(ctx context.Context, email, token string) (*ports.Verdict, error) {
	u := fmt.Sprintf("%s?email=%s&token=%s", c.verifyURL, url.QueryEscape(email), url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify %s: %w", email, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, domain.ProviderOverloaded{Err: fmt.Errorf("verify: HTTP 429")}
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("verify: HTTP %d: %s", resp.StatusCode, string(raw))
	}

	var verdict ports.Verdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	return &verdict, nil
}

// fetchToken exchanges the API key for a short-lived bearer token.
func fetchToken(ctx context.Context, client *http.Client, tokenURL, apiKey string) (string, error) {
	u := fmt.Sprintf("%s?key=%s", tokenURL, url.QueryEscape(apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token fetch: HTTP %d", resp.StatusCode)
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if result.Token == "" {
		return "", fmt.Errorf("no token received from provider")
	}
	return result.Token, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

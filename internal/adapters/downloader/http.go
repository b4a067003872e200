// Package downloader streams provider export files so completed jobs can
// be downloaded through the API without handing the provider URL (and
// its embedded credentials) to the caller.
package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"leadpipe/internal/core/ports"
)

// HTTPDownloader implements ports.Downloader over a plain HTTP client.
type HTTPDownloader struct {
	client *http.Client
}

// New creates an HTTPDownloader. Export files can be large, so the
// timeout covers connection setup only; reads are bounded by the
// request context.
func New() *HTTPDownloader {
	return &HTTPDownloader{
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}
}

var _ ports.Downloader = (*HTTPDownloader)(nil)

// Download fetches the file at url. The caller must close the body.
func (d *HTTPDownloader) Download(ctx context.Context, url string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", fmt.Errorf("download: HTTP %d", resp.StatusCode)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxBodyBytes caps how much of a response is read. Defaced pages are
// rarely large; the cap protects against payload bombs.
const maxBodyBytes = 5 << 20

// HTTPBrowser is the default Browser: a plain HTTP GET. Sites that need
// JavaScript rendering plug in a headless implementation instead.
type HTTPBrowser struct {
	client    *http.Client
	userAgent string
}

// NewHTTPBrowser builds a browser with the given request timeout.
func NewHTTPBrowser(timeout time.Duration) *HTTPBrowser {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPBrowser{
		client:    &http.Client{Timeout: timeout},
		userAgent: "defacewatch/1.0",
	}
}

// Capture fetches the page. Non-2xx statuses are returned in the result,
// not as errors; the caller decides how to treat them.
func (b *HTTPBrowser) Capture(ctx context.Context, url string) (*CaptureResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", b.userAgent)

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", url, err)
	}

	return &CaptureResult{
		HTML:         body,
		StatusCode:   resp.StatusCode,
		ResponseTime: time.Since(start),
		ContentType:  resp.Header.Get("Content-Type"),
	}, nil
}

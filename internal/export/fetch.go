package export

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"docvault/internal/service"
)

// Fetcher downloads the bytes behind a signed URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches signed URLs over HTTP with a per-call timeout.
type HTTPFetcher struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
}

// NewHTTPFetcher returns a traced fetcher. timeout bounds each call;
// maxBytes <= 0 means no limit on a single body.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	return &HTTPFetcher{
		client:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		timeout:  timeout,
		maxBytes: maxBytes,
	}
}

// Fetch returns the body of a 200 response. Failures wrap service.ErrStorageRead.
// The URL is kept out of errors since it carries a credential.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", service.ErrStorageRead, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: fetch: %w", service.ErrStorageRead, ctxErr)
		}
		return nil, fmt.Errorf("%w: fetch failed", service.ErrStorageRead)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetch: unexpected status %d", service.ErrStorageRead, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", service.ErrStorageRead, err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", service.ErrStorageRead, f.maxBytes)
	}
	return data, nil
}

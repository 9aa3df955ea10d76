package export

import (
	"context"
	"sync"
	"time"

	"docvault/internal/service"
)

// Transferer starts one client-side download in the sequential fallback.
// The orchestrator waits FallbackDelay between consecutive calls.
type Transferer interface {
	Transfer(ctx context.Context, link service.DownloadLink) error
}

// DeferredTransferer is a Transferer that only hands links to a client which
// performs the downloads itself. The orchestrator does not wait between
// calls; it passes each link's start offset instead, and signs the link to
// stay valid for its full lifetime counted from that offset.
type DeferredTransferer interface {
	Transferer
	TransferAfter(ctx context.Context, link service.DownloadLink, after time.Duration) error
}

// TransferFunc adapts a function to Transferer.
type TransferFunc func(ctx context.Context, link service.DownloadLink) error

func (f TransferFunc) Transfer(ctx context.Context, link service.DownloadLink) error {
	return f(ctx, link)
}

// ScheduledLink is a download link and when the client should start it,
// relative to receiving the response.
type ScheduledLink struct {
	service.DownloadLink
	TransferAfterMS int64 `json:"transfer_after_ms"`
}

// LinkCollector records the links it is asked to transfer so an HTTP
// response can hand them to the client, which performs the downloads.
type LinkCollector struct {
	mu    sync.Mutex
	links []ScheduledLink
}

var _ DeferredTransferer = (*LinkCollector)(nil)

// Transfer records link for immediate download.
func (c *LinkCollector) Transfer(ctx context.Context, link service.DownloadLink) error {
	return c.TransferAfter(ctx, link, 0)
}

// TransferAfter records link to be started after the given offset.
func (c *LinkCollector) TransferAfter(ctx context.Context, link service.DownloadLink, after time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.links = append(c.links, ScheduledLink{DownloadLink: link, TransferAfterMS: after.Milliseconds()})
	c.mu.Unlock()
	return nil
}

// Links returns the collected links in transfer order.
func (c *LinkCollector) Links() []ScheduledLink {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ScheduledLink, len(c.links))
	copy(out, c.links)
	return out
}

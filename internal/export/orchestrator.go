package export

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"docvault/internal/logging"
	"docvault/internal/service"
)

const (
	defaultWorkers  = 4
	defaultPageSize = service.MaxPageLimit
)

// Config tunes an Orchestrator.
type Config struct {
	// Workers bounds concurrent fetches while building an archive.
	Workers int
	// FallbackDelay is the minimum gap between sequential transfers.
	FallbackDelay time.Duration
	// PageSize bounds how many documents an export without explicit ids covers.
	PageSize int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator's logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Orchestrator) { o.log = logging.Component(l, "export") }
}

// Orchestrator runs batch exports. It holds no per-export state and is safe
// for concurrent use.
type Orchestrator struct {
	src      DocumentSource
	archiver Archiver
	fetcher  Fetcher
	cfg      Config
	log      logrus.FieldLogger
	tracer   trace.Tracer
}

var _ Exporter = (*Orchestrator)(nil)

// NewOrchestrator wires an export pipeline over src.
func NewOrchestrator(src DocumentSource, archiver Archiver, fetcher Fetcher, cfg Config, opts ...Option) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.PageSize <= 0 || cfg.PageSize > service.MaxPageLimit {
		cfg.PageSize = defaultPageSize
	}
	if cfg.FallbackDelay < 0 {
		cfg.FallbackDelay = 0
	}
	o := &Orchestrator{
		src:      src,
		archiver: archiver,
		fetcher:  fetcher,
		cfg:      cfg,
		log:      logging.Component(nil, "export"),
		tracer:   otel.Tracer("docvault/export"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// item is one document to export. name is empty until its link is resolved.
type item struct {
	id   string
	name string
}

func (it item) label() string {
	if it.name != "" {
		return it.name
	}
	return it.id
}

// job is the input every strategy receives. counted is shared across
// strategies so a download is counted once per export.
type job struct {
	ownerID    string
	items      []item
	transferer Transferer
	counted    *countedSet
}

type countedSet struct {
	mu  sync.Mutex
	ids map[string]bool
}

func (c *countedSet) has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ids[id]
}

func (c *countedSet) add(id string) {
	c.mu.Lock()
	c.ids[id] = true
	c.mu.Unlock()
}

// strategy is one way of delivering a batch. Returning an error wrapping
// ErrArchiveUnavailable hands the batch to the next strategy; any other
// error ends the export.
type strategy struct {
	mode Mode
	run  func(ctx context.Context, j job) (*Result, error)
}

func (o *Orchestrator) strategies() []strategy {
	return []strategy{
		{mode: ModeArchive, run: o.exportArchive},
		{mode: ModeSequential, run: o.exportSequential},
	}
}

// BatchExport exports documentIDs, or every active document of the owner
// when documentIDs is empty. Per-file failures are reported in the Result;
// only a failure to enumerate the documents, or cancellation, is an error.
// On cancellation in the sequential fallback the partial Result is returned
// alongside ctx.Err().
func (o *Orchestrator) BatchExport(ctx context.Context, ownerID string, documentIDs []string, t Transferer) (res *Result, err error) {
	ctx, span := o.tracer.Start(ctx, "Export.BatchExport",
		trace.WithAttributes(attribute.Int("export.requested", len(documentIDs))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if res != nil {
			span.SetAttributes(
				attribute.String("export.mode", string(res.Mode)),
				attribute.Int("export.succeeded", res.SucceededCount),
				attribute.Int("export.failed", res.FailedCount),
			)
		}
		span.End()
	}()

	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner is required", service.ErrValidation)
	}
	if t == nil {
		return nil, errors.New("export: nil transferer")
	}

	items, err := o.enumerate(ctx, ownerID, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("enumerate documents: %w", err)
	}
	if len(items) == 0 {
		exportRuns.WithLabelValues(string(ModeEmpty)).Inc()
		return &Result{Mode: ModeEmpty, Errors: []string{}}, nil
	}

	j := job{ownerID: ownerID, items: items, transferer: t, counted: &countedSet{ids: make(map[string]bool)}}
	for _, s := range o.strategies() {
		res, err = s.run(ctx, j)
		if errors.Is(err, ErrArchiveUnavailable) {
			o.log.WithFields(logrus.Fields{
				"event":    "export_strategy_unavailable",
				"mode":     s.mode,
				"owner_id": ownerID,
				"reason":   err.Error(),
			}).Warn("falling back to next export strategy")
			continue
		}
		if res != nil {
			exportRuns.WithLabelValues(string(res.Mode)).Inc()
			o.log.WithFields(logrus.Fields{
				"event":     "export_completed",
				"mode":      res.Mode,
				"owner_id":  ownerID,
				"succeeded": res.SucceededCount,
				"failed":    res.FailedCount,
			}).Info("batch export finished")
		}
		return res, err
	}
	return nil, ErrArchiveUnavailable
}

// enumerate resolves the document set. Explicit ids are de-duplicated in
// order and resolved lazily, so an unknown id becomes a per-file failure.
func (o *Orchestrator) enumerate(ctx context.Context, ownerID string, ids []string) ([]item, error) {
	if len(ids) > 0 {
		seen := make(map[string]bool, len(ids))
		items := make([]item, 0, len(ids))
		for _, id := range ids {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			items = append(items, item{id: id})
		}
		return items, nil
	}

	page, err := o.src.List(ctx, ownerID, service.ListQuery{Page: 1, Limit: o.cfg.PageSize})
	if err != nil {
		return nil, err
	}
	if page.Total > len(page.Items) {
		o.log.WithFields(logrus.Fields{
			"event":    "export_truncated",
			"owner_id": ownerID,
			"total":    page.Total,
			"exported": len(page.Items),
		}).Warn("export limited to one page of documents")
	}
	items := make([]item, 0, len(page.Items))
	for _, d := range page.Items {
		items = append(items, item{id: d.ID, name: d.OriginalFileName})
	}
	return items, nil
}

// issueLink signs a link for id that is first used after delay. A document
// whose download this export already counted gets an uncounted link.
func (o *Orchestrator) issueLink(ctx context.Context, j job, id string, delay time.Duration) (*service.DownloadLink, error) {
	link, err := o.src.IssueDownloadLink(ctx, id, j.ownerID, service.LinkOptions{
		Delay:     delay,
		Uncounted: j.counted.has(id),
	})
	if err != nil {
		return nil, err
	}
	j.counted.add(id)
	return link, nil
}

type fetched struct {
	name string
	data []byte
	err  error
}

// exportArchive fetches through a bounded worker pool, then writes the
// successful files into one archive in document order. Fetched bytes are
// reserved against the archive's size cap as they arrive; the first
// reservation that does not fit stops the remaining fetches.
func (o *Orchestrator) exportArchive(ctx context.Context, j job) (*Result, error) {
	archive, err := o.archiver.NewArchive()
	if err != nil {
		return nil, err
	}

	results := make([]fetched, len(j.items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for i, it := range j.items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			link, err := o.issueLink(gctx, j, it.id, 0)
			if err != nil {
				results[i] = fetched{name: it.label(), err: err}
				return nil
			}
			name := entryName(link.FileName, it.id)
			data, err := o.fetcher.Fetch(gctx, link.URL)
			if err != nil {
				results[i] = fetched{name: name, err: err}
				return nil
			}
			if err := archive.Reserve(int64(len(data))); err != nil {
				return err
			}
			results[i] = fetched{name: name, data: data}
			return nil
		})
	}
	werr := g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if werr != nil {
		return nil, werr
	}

	res := &Result{Mode: ModeArchive, Errors: []string{}}
	for i, f := range results {
		if f.err != nil {
			res.fail(ModeArchive, f.name, f.err)
			continue
		}
		if err := archive.Add(f.name, f.data); err != nil {
			if errors.Is(err, ErrArchiveUnavailable) {
				return nil, err
			}
			res.fail(ModeArchive, f.name, err)
			continue
		}
		results[i].data = nil
		res.succeed(ModeArchive)
	}
	if res.SucceededCount == 0 {
		return res, nil
	}

	blob, err := archive.Bytes()
	if err != nil {
		return nil, err
	}
	res.Archive = blob
	return res, nil
}

// exportSequential hands each file to the transferer, one at a time, with
// at least FallbackDelay between consecutive transfers. A DeferredTransferer
// gets the spacing as per-link offsets instead of the orchestrator waiting,
// and each link is signed to outlive its offset.
func (o *Orchestrator) exportSequential(ctx context.Context, j job) (*Result, error) {
	limit := rate.Inf
	if o.cfg.FallbackDelay > 0 {
		limit = rate.Every(o.cfg.FallbackDelay)
	}
	limiter := rate.NewLimiter(limit, 1)
	deferred, isDeferred := j.transferer.(DeferredTransferer)

	res := &Result{Mode: ModeSequential, Errors: []string{}}
	started := 0
	for _, it := range j.items {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var after time.Duration
		if isDeferred {
			after = time.Duration(started) * o.cfg.FallbackDelay
		} else if err := limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			return res, err
		}

		link, err := o.issueLink(ctx, j, it.id, after)
		if err != nil {
			res.fail(ModeSequential, it.label(), err)
			continue
		}
		if isDeferred {
			err = deferred.TransferAfter(ctx, *link, after)
		} else {
			err = j.transferer.Transfer(ctx, *link)
		}
		if err != nil {
			res.fail(ModeSequential, entryName(link.FileName, it.id), err)
			continue
		}
		started++
		res.succeed(ModeSequential)
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func (r *Result) succeed(mode Mode) {
	r.SucceededCount++
	exportFiles.WithLabelValues(string(mode), "success").Inc()
}

func (r *Result) fail(mode Mode, name string, err error) {
	r.FailedCount++
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", name, err))
	exportFiles.WithLabelValues(string(mode), "failure").Inc()
}

package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"docvault/internal/classify"
	"docvault/internal/keygen"
	"docvault/internal/logging"
	"docvault/internal/model"
	"docvault/internal/repository"
	"docvault/internal/storage"
)

const (
	defaultSignedURLTTL = 10 * time.Minute
	defaultPageLimit    = 10
	// MaxPageLimit bounds a single List page; export enumerates with it.
	MaxPageLimit = 1000
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docvault_uploads_total",
		Help: "Document uploads by outcome.",
	}, []string{"status"})

	downloadLinksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docvault_download_links_total",
		Help: "Signed download links issued, by outcome.",
	}, []string{"status"})

	deletesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docvault_deletes_total",
		Help: "Document deletions by outcome.",
	}, []string{"status"})

	bestEffortFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docvault_best_effort_failures_total",
		Help: "Swallowed failures of best-effort steps.",
	}, []string{"step"})
)

// UploadInput carries one file and the metadata the uploader supplied.
type UploadInput struct {
	OwnerID          string
	Content          []byte
	OriginalFileName string
	MimeType         string
	Title            string
	Description      string
	Tags             []string
	FolderName       string
}

// ListQuery filters and paginates ListDocuments. Page is 1-based.
type ListQuery struct {
	Category string
	DateFrom *time.Time
	DateTo   *time.Time
	Page     int
	Limit    int
}

// DocumentListResult is the service-level DTO for paginated documents.
type DocumentListResult struct {
	Items []model.Document `json:"data"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

// DownloadLink is a signed URL and the name the file should be saved under.
type DownloadLink struct {
	DocumentID string    `json:"document_id"`
	URL        string    `json:"url"`
	FileName   string    `json:"file_name"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// LinkOptions adjust how IssueDownloadLink signs and counts a link.
type LinkOptions struct {
	// Delay is how long after issuing the link is first used. The URL stays
	// valid for the usual lifetime counted from then.
	Delay time.Duration
	// Uncounted re-issues a link without counting another download.
	Uncounted bool
}

// DocumentService defines the use cases for handling documents.
type DocumentService interface {
	// Upload classifies and digests the content, stores the bytes, then persists metadata.
	// No record is created unless the bytes were stored.
	Upload(ctx context.Context, in UploadInput) (*model.Document, error)

	// List returns the owner's active documents, newest first.
	List(ctx context.Context, ownerID string, q ListQuery) (*DocumentListResult, error)

	// GetDownloadLink returns a signed URL for an active document owned by ownerID.
	GetDownloadLink(ctx context.Context, id, ownerID string) (*DownloadLink, error)

	// IssueDownloadLink is GetDownloadLink with explicit signing options.
	IssueDownloadLink(ctx context.Context, id, ownerID string, opt LinkOptions) (*DownloadLink, error)

	// Delete soft-deletes a document, then removes its bytes on a best-effort basis.
	Delete(ctx context.Context, id, ownerID string) error
}

// Option configures a documentService.
type Option func(*documentService)

// WithSignedURLTTL sets the lifetime of issued download links.
func WithSignedURLTTL(d time.Duration) Option {
	return func(s *documentService) {
		if d > 0 {
			s.urlTTL = d
		}
	}
}

// WithMaxUploadBytes rejects uploads larger than n bytes.
func WithMaxUploadBytes(n int64) Option {
	return func(s *documentService) { s.maxBytes = n }
}

// WithLogger sets the logger used for best-effort failures.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *documentService) { s.log = logging.Component(l, "document_service") }
}

// documentService is a concrete implementation of DocumentService.
type documentService struct {
	store    storage.Storage
	repo     repository.DocumentRepository
	log      logrus.FieldLogger
	tracer   trace.Tracer
	urlTTL   time.Duration
	maxBytes int64
	now      func() time.Time
}

// NewDocumentService constructs a new DocumentService.
func NewDocumentService(store storage.Storage, repo repository.DocumentRepository, opts ...Option) DocumentService {
	s := &documentService{
		store:  store,
		repo:   repo,
		log:    logging.Component(nil, "document_service"),
		tracer: otel.Tracer("docvault/service"),
		urlTTL: defaultSignedURLTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *documentService) Upload(ctx context.Context, in UploadInput) (doc *model.Document, err error) {
	ctx, span := s.tracer.Start(ctx, "DocumentService.Upload")
	defer func() {
		status := "success"
		switch {
		case errors.Is(err, ErrValidation):
			status = "invalid"
		case err != nil:
			status = "error"
		}
		uploadsTotal.WithLabelValues(status).Inc()
		endSpan(span, err)
	}()

	if err := s.validateUpload(in); err != nil {
		return nil, err
	}

	// classifying
	category := classify.Classify(in.OriginalFileName)
	// digesting
	digest := keygen.ComputeDigest(in.Content)
	key := keygen.GenerateStorageKey(in.OriginalFileName)
	span.SetAttributes(
		attribute.String("document.category", string(category)),
		attribute.Int("document.size", len(in.Content)),
	)

	mimeType := in.MimeType
	if mimeType == "" {
		mimeType = mime.TypeByExtension(strings.ToLower(filepath.Ext(in.OriginalFileName)))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	// storing
	if _, err := s.store.Put(ctx, key, bytes.NewReader(in.Content), storage.PutObjectOptions{
		Size:        int64(len(in.Content)),
		ContentType: mimeType,
		Metadata:    map[string]string{"content-sha256": digest},
	}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}

	// persisting metadata
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = in.OriginalFileName
	}
	now := s.now().UTC()
	record := &model.Document{
		ID:               uuid.NewString(),
		OwnerID:          in.OwnerID,
		Title:            title,
		Description:      in.Description,
		FolderName:       in.FolderName,
		Tags:             normalizeTags(in.Tags),
		OriginalFileName: in.OriginalFileName,
		StorageKey:       key,
		SizeBytes:        int64(len(in.Content)),
		MimeType:         mimeType,
		Category:         category,
		ContentDigest:    digest,
		Status:           model.StatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	stored, err := s.repo.Create(ctx, record)
	if err != nil {
		// Orphaned object: remove it, but the upload fails either way.
		if delErr := s.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			bestEffortFailures.WithLabelValues("orphan_cleanup").Inc()
			s.log.WithFields(logrus.Fields{
				"event":       "orphan_cleanup_failed",
				"storage_key": key,
				"error":       delErr.Error(),
			}).Warn("could not remove object after metadata failure")
		}
		return nil, fmt.Errorf("persist metadata: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"event":       "document_uploaded",
		"document_id": stored.ID,
		"owner_id":    stored.OwnerID,
		"category":    stored.Category,
		"size_bytes":  stored.SizeBytes,
	}).Info("document uploaded")
	return stored, nil
}

func (s *documentService) validateUpload(in UploadInput) error {
	switch {
	case in.OwnerID == "":
		return fmt.Errorf("%w: owner is required", ErrValidation)
	case strings.TrimSpace(in.OriginalFileName) == "":
		return fmt.Errorf("%w: file name is required", ErrValidation)
	case len(in.Content) == 0:
		return fmt.Errorf("%w: file is empty", ErrValidation)
	case s.maxBytes > 0 && int64(len(in.Content)) > s.maxBytes:
		return fmt.Errorf("%w: file exceeds %d bytes", ErrValidation, s.maxBytes)
	}
	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// List returns paginated documents without exposing repository types.
func (s *documentService) List(ctx context.Context, ownerID string, q ListQuery) (*DocumentListResult, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrValidation)
	}
	var category model.Category
	if q.Category != "" {
		c, err := model.ParseCategory(q.Category)
		if err != nil {
			return nil, err
		}
		category = c
	}
	if q.DateFrom != nil && q.DateTo != nil && q.DateTo.Before(*q.DateFrom) {
		return nil, fmt.Errorf("%w: date_to is before date_from", ErrValidation)
	}
	if q.Limit <= 0 {
		q.Limit = defaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	if q.Page < 1 {
		q.Page = 1
	}

	res, err := s.repo.List(ctx, ownerID,
		repository.ListFilter{Category: category, DateFrom: q.DateFrom, DateTo: q.DateTo},
		repository.PageQuery{Limit: q.Limit, Offset: (q.Page - 1) * q.Limit},
	)
	if err != nil {
		return nil, err
	}
	return &DocumentListResult{Items: res.Items, Total: res.Total, Page: q.Page, Limit: q.Limit}, nil
}

// GetDownloadLink checks ownership, signs a URL and counts the download.
func (s *documentService) GetDownloadLink(ctx context.Context, id, ownerID string) (*DownloadLink, error) {
	return s.IssueDownloadLink(ctx, id, ownerID, LinkOptions{})
}

// IssueDownloadLink signs a URL valid for opt.Delay plus the configured
// lifetime and, unless opt.Uncounted, counts the download.
func (s *documentService) IssueDownloadLink(ctx context.Context, id, ownerID string, opt LinkOptions) (link *DownloadLink, err error) {
	ctx, span := s.tracer.Start(ctx, "DocumentService.IssueDownloadLink",
		trace.WithAttributes(
			attribute.String("document.id", id),
			attribute.Bool("download.uncounted", opt.Uncounted),
		))
	defer func() {
		status := "success"
		switch {
		case errors.Is(err, ErrNotFound):
			status = "not_found"
		case err != nil:
			status = "error"
		}
		downloadLinksTotal.WithLabelValues(status).Inc()
		endSpan(span, err)
	}()

	if id == "" || ownerID == "" {
		return nil, ErrNotFound
	}
	doc, err := s.repo.GetByID(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	delay := max(opt.Delay, 0)
	signed, err := s.store.PresignGet(ctx, doc.StorageKey, s.urlTTL+delay, storage.PresignOptions{FileName: doc.OriginalFileName})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageRead, err)
	}

	if opt.Uncounted {
		return &DownloadLink{
			DocumentID: doc.ID,
			URL:        signed.URL,
			FileName:   doc.OriginalFileName,
			ExpiresAt:  signed.ExpiresAt.UTC(),
		}, nil
	}
	if err := s.repo.IncrementDownloadCount(ctx, doc.ID); err != nil {
		bestEffortFailures.WithLabelValues("download_count").Inc()
		s.log.WithFields(logrus.Fields{
			"event":       "download_count_failed",
			"document_id": doc.ID,
			"error":       err.Error(),
		}).Warn("could not increment download count")
	}

	return &DownloadLink{
		DocumentID: doc.ID,
		URL:        signed.URL,
		FileName:   doc.OriginalFileName,
		ExpiresAt:  signed.ExpiresAt.UTC(),
	}, nil
}

// Delete soft-deletes the record first so the document disappears from
// listings even if the object removal below never succeeds.
func (s *documentService) Delete(ctx context.Context, id, ownerID string) (err error) {
	ctx, span := s.tracer.Start(ctx, "DocumentService.Delete",
		trace.WithAttributes(attribute.String("document.id", id)))
	defer func() {
		status := "success"
		switch {
		case errors.Is(err, ErrNotFound):
			status = "not_found"
		case err != nil:
			status = "error"
		}
		deletesTotal.WithLabelValues(status).Inc()
		endSpan(span, err)
	}()

	if id == "" || ownerID == "" {
		return ErrNotFound
	}
	doc, err := s.repo.GetByID(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id, ownerID); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, doc.StorageKey); err != nil {
		bestEffortFailures.WithLabelValues("object_remove").Inc()
		s.log.WithFields(logrus.Fields{
			"event":       "object_remove_failed",
			"document_id": doc.ID,
			"storage_key": doc.StorageKey,
			"error":       fmt.Errorf("%w: %w", ErrStorageDelete, err).Error(),
		}).Warn("document deleted but object removal failed")
	}
	return nil
}

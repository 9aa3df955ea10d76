package repository

import (
	"context"
	"errors"
	"time"

	"docvault/internal/model"
)

// ErrNotFound is returned when a document does not exist, is deleted, or is
// owned by someone else. Callers cannot tell these cases apart.
var ErrNotFound = errors.New("document not found")

// DocumentRepository defines data access for documents.
// No business logic here, only persistence.
type DocumentRepository interface {
	// Create inserts a new document record and returns the stored row.
	// It fails with model.ErrValidation when required fields are missing.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// GetByID returns an active document owned by ownerID.
	GetByID(ctx context.Context, id, ownerID string) (*model.Document, error)

	// List returns a page of the owner's active documents, newest first,
	// together with the total count of rows matching the filter.
	List(ctx context.Context, ownerID string, f ListFilter, pq PageQuery) (*PageResult[model.Document], error)

	// SoftDelete marks an active document as deleted. Deleting a missing or
	// already deleted document returns ErrNotFound.
	SoftDelete(ctx context.Context, id, ownerID string) error

	// IncrementDownloadCount adds one to the document's download counter.
	IncrementDownloadCount(ctx context.Context, id string) error
}

// ListFilter narrows List. Zero values mean "no constraint".
// DateFrom is inclusive, DateTo exclusive.
type ListFilter struct {
	Category model.Category
	DateFrom *time.Time
	DateTo   *time.Time
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}

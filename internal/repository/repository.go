// Package repository contains data access layer abstractions.
// Implementations live in subpackages (postgres, memory) inside this directory.
package repository

import (
	"context"
	"time"

	"docvault/internal/model"
)

// timeoutRepository bounds every call to the wrapped repository.
type timeoutRepository struct {
	next    DocumentRepository
	timeout time.Duration
}

// WithTimeout wraps next so that no single call can outlive d.
// A non-positive d returns next unchanged.
func WithTimeout(next DocumentRepository, d time.Duration) DocumentRepository {
	if d <= 0 {
		return next
	}
	return &timeoutRepository{next: next, timeout: d}
}

func (r *timeoutRepository) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.next.Create(ctx, doc)
}

func (r *timeoutRepository) GetByID(ctx context.Context, id, ownerID string) (*model.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.next.GetByID(ctx, id, ownerID)
}

func (r *timeoutRepository) List(ctx context.Context, ownerID string, f ListFilter, pq PageQuery) (*PageResult[model.Document], error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.next.List(ctx, ownerID, f, pq)
}

func (r *timeoutRepository) SoftDelete(ctx context.Context, id, ownerID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.next.SoftDelete(ctx, id, ownerID)
}

func (r *timeoutRepository) IncrementDownloadCount(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.next.IncrementDownloadCount(ctx, id)
}

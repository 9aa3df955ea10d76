// Package memory is an in-process repository.DocumentRepository with the same
// visibility rules as the PostgreSQL implementation.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// DocumentMemory keeps documents in a map guarded by a RWMutex.
type DocumentMemory struct {
	mu   sync.RWMutex
	docs map[string]model.Document
	now  func() time.Time
}

var _ repository.DocumentRepository = (*DocumentMemory)(nil)

// NewDocumentMemory returns an empty repository.
func NewDocumentMemory() *DocumentMemory {
	return &DocumentMemory{docs: make(map[string]model.Document), now: time.Now}
}

func clone(d model.Document) *model.Document {
	d.Tags = append([]string{}, d.Tags...)
	return &d
}

// Create stores a copy of doc. Reusing an ID or storage key is rejected.
func (r *DocumentMemory) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", model.ErrValidation)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[doc.ID]; ok {
		return nil, fmt.Errorf("duplicate document id %s", doc.ID)
	}
	for _, d := range r.docs {
		if d.StorageKey == doc.StorageKey {
			return nil, fmt.Errorf("duplicate storage key %s", doc.StorageKey)
		}
	}
	stored := clone(*doc)
	r.docs[doc.ID] = *stored
	return clone(*stored), nil
}

// GetByID returns an active document owned by ownerID.
func (r *DocumentMemory) GetByID(ctx context.Context, id, ownerID string) (*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.docs[id]
	if !ok || d.OwnerID != ownerID || d.Status != model.StatusActive {
		return nil, repository.ErrNotFound
	}
	return clone(d), nil
}

// List returns the owner's active documents, newest first.
func (r *DocumentMemory) List(ctx context.Context, ownerID string, f repository.ListFilter, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	matched := make([]model.Document, 0)
	for _, d := range r.docs {
		if d.OwnerID != ownerID || d.Status != model.StatusActive {
			continue
		}
		if f.Category != "" && d.Category != f.Category {
			continue
		}
		if f.DateFrom != nil && d.CreatedAt.Before(*f.DateFrom) {
			continue
		}
		if f.DateTo != nil && !d.CreatedAt.Before(*f.DateTo) {
			continue
		}
		matched = append(matched, *clone(d))
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	start := min(max(pq.Offset, 0), total)
	end := total
	if pq.Limit > 0 {
		end = min(start+pq.Limit, total)
	}
	return &repository.PageResult[model.Document]{Items: matched[start:end], Total: total}, nil
}

// SoftDelete marks an active document owned by ownerID as deleted.
func (r *DocumentMemory) SoftDelete(ctx context.Context, id, ownerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok || d.OwnerID != ownerID || d.Status != model.StatusActive {
		return repository.ErrNotFound
	}
	d.Status = model.StatusDeleted
	d.UpdatedAt = r.now().UTC()
	r.docs[id] = d
	return nil
}

// IncrementDownloadCount bumps the counter of an active document.
func (r *DocumentMemory) IncrementDownloadCount(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok || d.Status != model.StatusActive {
		return repository.ErrNotFound
	}
	d.DownloadCount++
	d.UpdatedAt = r.now().UTC()
	r.docs[id] = d
	return nil
}

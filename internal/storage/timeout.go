package storage

import (
	"context"
	"io"
	"time"
)

// timeoutStorage bounds every call to the wrapped Storage.
type timeoutStorage struct {
	next    Storage
	timeout time.Duration
}

// WithTimeout wraps next so that no single call can outlive d.
// A non-positive d returns next unchanged.
func WithTimeout(next Storage, d time.Duration) Storage {
	if d <= 0 {
		return next
	}
	return &timeoutStorage{next: next, timeout: d}
}

func (s *timeoutStorage) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.Put(ctx, key, r, opt)
}

func (s *timeoutStorage) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.Delete(ctx, key)
}

func (s *timeoutStorage) PresignGet(ctx context.Context, key string, expiry time.Duration, opt PresignOptions) (SignedURL, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.PresignGet(ctx, key, expiry, opt)
}

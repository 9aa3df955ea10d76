package storage

import (
	"context"
	"io"
	"time"
)

// Package storage is the only layer that talks to the object store.
// Implementations must be safe for concurrent use and rely on streaming I/O.

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1 and the implementation
// will buffer/chunk as supported by the backend.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// PresignOptions tune a signed GET URL.
// FileName, when set, is offered to the client as the download name.
type PresignOptions struct {
	FileName string
}

// SignedURL is a time-limited download URL and the instant it stops working.
type SignedURL struct {
	URL       string
	ExpiresAt time.Time
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key         string
	Size        int64
	ETag        string
	ContentType string
	Metadata    map[string]string
}

// Storage is the object store gateway.
type Storage interface {
	// Put uploads an object under the given key. Overwriting an existing key is allowed.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Delete removes an object by key. Callers treat failures as best-effort.
	Delete(ctx context.Context, key string) error
	// PresignGet returns a time-limited URL that can be used to download the object without credentials.
	PresignGet(ctx context.Context, key string, expiry time.Duration, opt PresignOptions) (SignedURL, error)
}

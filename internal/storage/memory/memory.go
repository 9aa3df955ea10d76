// Package memory is an in-process object store for local development and tests.
// Signed URLs carry an HS256 token naming the object key and its expiry;
// the Store serves those URLs itself through ServeHTTP.
package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"docvault/internal/storage"
)

// ErrObjectNotFound is returned for keys that were never stored or were removed.
var ErrObjectNotFound = errors.New("object not found")

type object struct {
	data        []byte
	contentType string
	metadata    map[string]string
}

type claims struct {
	FileName string `json:"fn,omitempty"`
	jwt.RegisteredClaims
}

// Store keeps objects in a map guarded by a RWMutex.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
	secret  []byte
	baseURL string
	now     func() time.Time
}

var _ storage.Storage = (*Store)(nil)

// New returns a Store whose signed URLs point at baseURL/<key>.
func New(baseURL string, secret []byte) *Store {
	return &Store{
		objects: make(map[string]object),
		secret:  secret,
		baseURL: baseURL,
		now:     time.Now,
	}
}

// SetBaseURL changes the prefix used for signed URLs, e.g. once a test server
// address is known.
func (s *Store) SetBaseURL(u string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseURL = u
}

// Put stores a copy of r's content.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opt storage.PutObjectOptions) (storage.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return storage.ObjectInfo{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("read object: %w", err)
	}
	if opt.Size >= 0 && int64(len(data)) != opt.Size {
		return storage.ObjectInfo{}, fmt.Errorf("size mismatch: want %d, got %d", opt.Size, len(data))
	}

	s.mu.Lock()
	s.objects[key] = object{data: data, contentType: opt.ContentType, metadata: opt.Metadata}
	s.mu.Unlock()

	return storage.ObjectInfo{
		Key:         key,
		Size:        int64(len(data)),
		ContentType: opt.ContentType,
		Metadata:    opt.Metadata,
	}, nil
}

// Delete removes key. Removing a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

// PresignGet signs a URL for key valid for expiry.
func (s *Store) PresignGet(ctx context.Context, key string, expiry time.Duration, opt storage.PresignOptions) (storage.SignedURL, error) {
	if err := ctx.Err(); err != nil {
		return storage.SignedURL{}, err
	}
	s.mu.RLock()
	_, ok := s.objects[key]
	base := s.baseURL
	s.mu.RUnlock()
	if !ok {
		return storage.SignedURL{}, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}

	now := s.now()
	exp := jwt.NewNumericDate(now.Add(expiry))
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		FileName: opt.FileName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   key,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: exp,
		},
	}).SignedString(s.secret)
	if err != nil {
		return storage.SignedURL{}, fmt.Errorf("sign url: %w", err)
	}

	return storage.SignedURL{
		URL:       base + "/" + url.PathEscape(key) + "?token=" + url.QueryEscape(tok),
		ExpiresAt: exp.Time,
	}, nil
}

// Len reports how many objects are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Has reports whether key is stored.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok
}

// ServeHTTP serves GET <anything>/<key>?token=<jwt>.
func (s *Store) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	key, err := url.PathUnescape(path.Base(r.URL.EscapedPath()))
	if err != nil {
		http.Error(w, "bad key", http.StatusBadRequest)
		return
	}

	var c claims
	_, err = jwt.ParseWithClaims(r.URL.Query().Get("token"), &c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || c.Subject != key {
		http.Error(w, "invalid or expired signature", http.StatusForbidden)
		return
	}

	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	if obj.contentType != "" {
		w.Header().Set("Content-Type", obj.contentType)
	}
	if c.FileName != "" {
		w.Header().Set("Content-Disposition", storage.ContentDisposition(c.FileName))
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.data)))
	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.Copy(w, bytes.NewReader(obj.data))
}

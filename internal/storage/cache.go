package storage

import (
	"context"
	"io"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// presignCache memoizes signed URLs. Entries are kept for at most ttl, and a
// hit is served only while the URL has at least expiry-ttl of its life left,
// so a caller always gets a URL that is no more than ttl older than asked for.
type presignCache struct {
	next  Storage
	cache *expirable.LRU[string, SignedURL]
	ttl   time.Duration
	now   func() time.Time
}

// NewPresignCache wraps next with an LRU cache of signed URLs.
// maxTTL bounds how long any entry is kept; size <= 0 disables caching.
func NewPresignCache(next Storage, size int, maxTTL time.Duration) Storage {
	if size <= 0 || maxTTL <= 0 {
		return next
	}
	return &presignCache{
		next:  next,
		cache: expirable.NewLRU[string, SignedURL](size, nil, maxTTL),
		ttl:   maxTTL,
		now:   time.Now,
	}
}

func cacheKey(key, fileName string) string {
	return key + "\x00" + fileName
}

func (c *presignCache) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	return c.next.Put(ctx, key, r, opt)
}

func (c *presignCache) Delete(ctx context.Context, key string) error {
	for _, k := range c.cache.Keys() {
		if len(k) > len(key) && k[:len(key)+1] == key+"\x00" {
			c.cache.Remove(k)
		}
	}
	return c.next.Delete(ctx, key)
}

func (c *presignCache) PresignGet(ctx context.Context, key string, expiry time.Duration, opt PresignOptions) (SignedURL, error) {
	// Caching only pays off when half the lifetime still fits the cache window.
	if expiry/2 < c.ttl {
		return c.next.PresignGet(ctx, key, expiry, opt)
	}
	ck := cacheKey(key, opt.FileName)
	if u, ok := c.cache.Get(ck); ok && u.ExpiresAt.Sub(c.now()) >= expiry-c.ttl {
		return u, nil
	}
	u, err := c.next.PresignGet(ctx, key, expiry, opt)
	if err != nil {
		return SignedURL{}, err
	}
	c.cache.Add(ck, u)
	return u, nil
}

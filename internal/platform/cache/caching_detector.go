// Package cache provides caching implementations for inference interfaces.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"smartsort_backend/internal/feature/sorting/domain/entity"
	"smartsort_backend/internal/feature/sorting/usecase"
)

// CachingDetector decorates a Detector with a cache keyed by the image
// content. Redis is used when configured, an in-process cache otherwise.
// Only successful results are cached.
type CachingDetector struct {
	inner     usecase.Detector
	rdb       *redis.Client
	local     *gocache.Cache
	ttl       time.Duration
	namespace string
}

var _ usecase.Detector = (*CachingDetector)(nil)

// NewCachingDetector decorates a Detector with caching.
// If ttl is 0, it defaults to 10 minutes. If namespace is empty, it uses "detections".
// A nil rdb selects the in-process cache.
func NewCachingDetector(rdb *redis.Client, ttl time.Duration, inner usecase.Detector, namespace string) *CachingDetector {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if namespace == "" {
		namespace = "detections"
	}
	c := &CachingDetector{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
	}
	if rdb == nil {
		c.local = gocache.New(ttl, 2*ttl)
	}
	return c
}

// Detect returns cached detections for identical image bytes, running the
// inner detector on a miss.
func (c *CachingDetector) Detect(ctx context.Context, imageData []byte) ([]entity.Detection, error) {
	key := contentKey(c.namespace, imageData)

	// 1) Check cache
	if ds, ok := c.get(ctx, key); ok {
		return ds, nil
	}

	// 2) Fallback to the detector
	ds, err := c.inner.Detect(ctx, imageData)
	if err != nil {
		return nil, err
	}

	// 3) Store in cache (best effort)
	c.set(ctx, key, ds)
	return ds, nil
}

func (c *CachingDetector) get(ctx context.Context, key string) ([]entity.Detection, bool) {
	if c.rdb == nil {
		v, ok := c.local.Get(key)
		if !ok {
			return nil, false
		}
		ds, ok := v.([]entity.Detection)
		return clone(ds), ok
	}

	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("detection cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var ds []entity.Detection
	if err := json.Unmarshal(b, &ds); err != nil {
		// Delete corrupted cache entry
		_ = c.rdb.Del(ctx, key).Err()
		return nil, false
	}
	return ds, true
}

func (c *CachingDetector) set(ctx context.Context, key string, ds []entity.Detection) {
	if c.rdb == nil {
		c.local.Set(key, clone(ds), c.ttl)
		return
	}

	b, err := json.Marshal(ds)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
		slog.Warn("detection cache write failed", "key", key, "error", err)
	}
}

// clone keeps callers from mutating the cached slice.
func clone(ds []entity.Detection) []entity.Detection {
	out := make([]entity.Detection, len(ds))
	copy(out, ds)
	return out
}

package di

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"smartsort_backend/internal/feature/sorting/usecase"
	"smartsort_backend/internal/platform/cache"
)

// LoadCacheTTL reads CACHE_TTL. 0 disables the detection cache.
func LoadCacheTTL() (time.Duration, error) {
	v := os.Getenv("CACHE_TTL")
	if v == "" {
		return 10 * time.Minute, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid CACHE_TTL %q", v)
	}
	return d, nil
}

// NewDetectionCache wraps a Detector with a content-keyed cache.
// If Redis is available, entries are shared through Redis.
// Otherwise, it falls back to an in-process cache. A ttl of 0 returns inner unchanged.
func NewDetectionCache(rdb *redis.Client, ttl time.Duration, inner usecase.Detector) usecase.Detector {
	if ttl == 0 {
		slog.Info("detection cache disabled")
		return inner
	}
	backend := "memory"
	if rdb != nil {
		backend = "redis"
	}
	slog.Info("detection cache enabled", "backend", backend, "ttl", ttl)
	return cache.NewCachingDetector(rdb, ttl, inner, "detections")
}

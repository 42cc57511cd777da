package cache

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// contentKey derives a cache key from the raw image bytes. Identical uploads
// share a key regardless of their filename.
func contentKey(namespace string, data []byte) string {
	sum := blake2b.Sum256(data)
	return safe(namespace) + ":" + hex.EncodeToString(sum[:])
}

// safe escapes characters that are problematic for Redis keys.
func safe(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache is a byte-value TTL store. Implementations back the judgment
// cache and the robots cache; callers own serialization.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key builds a stable cache key from its parts. The version prefix lets
// a format change invalidate old entries wholesale.
func Key(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return "datahound:v1:" + hex.EncodeToString(hash[:])
}

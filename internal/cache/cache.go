package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// KeyPrefix namespaces report cache entries. Bump the version when the
// report layout changes so stale entries are never served.
const KeyPrefix = "concord:v1:"

// Cache stores serialized reports
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// ReportKey derives the cache key for a fact store and the analysis options
// applied to it. Option order does not matter.
func ReportKey(input []byte, options ...string) string {
	opts := append([]string(nil), options...)
	sort.Strings(opts)

	h := sha256.New()
	h.Write(input)
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(opts, "\x1f")))
	return KeyPrefix + hex.EncodeToString(h.Sum(nil))
}

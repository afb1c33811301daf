// Package cache implements the Inference Cache: a content-addressed
// lookup keyed by a fingerprint of the normalized provider request, with
// freshness checked at read time against a caller-supplied max age rather
// than an insert-time expiry.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/tensorzero/tensorzero-sub023/providers"
)

// Entry is one cached response plus the instant it was written.
type Entry struct {
	Response  *providers.Response
	WrittenAt time.Time
}

// Cache is the read/write interface backing the inference cache. Lookup
// takes maxAge so freshness is evaluated per read rather than baked into
// the stored entry, letting two callers with different freshness
// requirements share one cache.
type Cache interface {
	Lookup(ctx context.Context, key string, maxAge time.Duration) (*Entry, bool, error)
	Write(ctx context.Context, key string, entry *Entry) error
}

// Fingerprint computes the cache key for a request: a sha256 digest over
// a canonical JSON encoding so that key-order differences in the original
// request never cause a cache miss.
func Fingerprint(functionName, variantName string, req providers.Request) string {
	canon := canonicalize(req)
	h := sha256.New()
	h.Write([]byte(functionName))
	h.Write([]byte{0})
	h.Write([]byte(variantName))
	h.Write([]byte{0})
	h.Write(canon)
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalize produces a deterministic JSON encoding of req: the request
// is decoded into a generic map and re-encoded, relying on encoding/json's
// map-key sorting so field order in the original struct literal never
// affects the digest.
func canonicalize(req providers.Request) []byte {
	b, err := json.Marshal(req)
	if err != nil {
		return nil
	}
	var generic map[string]interface{}
	if err := json.Unmarshal(b, &generic); err != nil {
		return b
	}
	out, _ := json.Marshal(generic)
	return out
}

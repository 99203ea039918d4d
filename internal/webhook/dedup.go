package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// DedupCache remembers recently seen deliveries by a fingerprint of
// (timestamp, payload hash). It is process-local: after a restart one extra
// duplicate may slip through, which the insert-time uniqueness check absorbs.
type DedupCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

// NewDedupCache constructs a cache whose entries expire after ttl.
func NewDedupCache(ttl time.Duration) *DedupCache {
	return &DedupCache{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Seen reports whether this delivery was already observed within the TTL
// window, recording it otherwise. Expired fingerprints are swept lazily on
// each call.
func (c *DedupCache) Seen(timestamp string, body []byte) bool {
	sum := sha256.Sum256(body)
	fingerprint := timestamp + ":" + hex.EncodeToString(sum[:])

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, recorded := range c.entries {
		if now.Sub(recorded) > c.ttl {
			delete(c.entries, key)
		}
	}

	if recorded, ok := c.entries[fingerprint]; ok && now.Sub(recorded) <= c.ttl {
		return true
	}
	c.entries[fingerprint] = now
	return false
}

// Forget drops the fingerprint for a delivery so the provider's retry is not
// answered as a duplicate. Used when persisting the event failed after the
// fingerprint was recorded.
func (c *DedupCache) Forget(timestamp string, body []byte) {
	sum := sha256.Sum256(body)
	fingerprint := timestamp + ":" + hex.EncodeToString(sum[:])

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, fingerprint)
}

// Len returns the number of live fingerprints, for tests and status output.
func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

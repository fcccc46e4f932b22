package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// DefaultDedupeTTL is how long a body hash is remembered.
const DefaultDedupeTTL = time.Hour

// sweepThreshold triggers an inline sweep when the table grows past it.
const sweepThreshold = 5000

// Deduper remembers sha256 hashes of recently seen bodies.
type Deduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewDeduper creates a deduper. A zero ttl uses DefaultDedupeTTL.
func NewDeduper(ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &Deduper{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Seen records body and reports whether an identical body arrived within
// the TTL.
func (d *Deduper) Seen(body []byte) bool {
	sum := sha256.Sum256(body)
	key := hex.EncodeToString(sum[:])

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if len(d.seen) > sweepThreshold {
		d.sweepLocked(now)
	}
	if at, ok := d.seen[key]; ok && now.Sub(at) <= d.ttl {
		return true
	}
	d.seen[key] = now
	return false
}

// Sweep drops expired hashes and returns how many were removed.
func (d *Deduper) Sweep() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sweepLocked(d.now())
}

func (d *Deduper) sweepLocked(now time.Time) int {
	removed := 0
	for k, at := range d.seen {
		if now.Sub(at) > d.ttl {
			delete(d.seen, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of remembered hashes.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

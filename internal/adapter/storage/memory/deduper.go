package memory

import (
	"context"
	"sync"
	"time"
)

// Deduper is an in-memory ports.EventDeduper with per-key expiry.
type Deduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewDeduper creates an empty deduper.
func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[string]time.Time)}
}

// FirstSeen returns true the first time key is seen within ttl.
func (d *Deduper) FirstSeen(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if exp, ok := d.seen[key]; ok && now.Before(exp) {
		return false, nil
	}
	d.seen[key] = now.Add(ttl)

	// opportunistic sweep keeps the map bounded by live keys
	if len(d.seen) > 1024 {
		for k, exp := range d.seen {
			if !now.Before(exp) {
				delete(d.seen, k)
			}
		}
	}
	return true, nil
}

package utils

import (
	"sync"
	"time"
)

// Deduplicator remembers message ids for a window so retried commands run
// once
type Deduplicator struct {
	window time.Duration

	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewDeduplicator creates a deduplicator remembering ids for window
func NewDeduplicator(window time.Duration) *Deduplicator {
	return &Deduplicator{window: window, seen: make(map[string]time.Time), now: time.Now}
}

// IsDuplicate records id and reports whether it was already seen within the
// window. Empty ids are never duplicates.
func (d *Deduplicator) IsDuplicate(id string) bool {
	if id == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if at, ok := d.seen[id]; ok && now.Sub(at) < d.window {
		return true
	}
	d.seen[id] = now

	// lazy cleanup
	if len(d.seen) > 1000 {
		for k, at := range d.seen {
			if now.Sub(at) >= d.window {
				delete(d.seen, k)
			}
		}
	}
	return false
}

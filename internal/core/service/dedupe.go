package service

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Deduper remembers recently claimed event IDs so a redelivered event executes at most once.
// Entries outlive any single connection and only leave through TTL or capacity eviction.
type Deduper struct {
	mutex  sync.Mutex
	claims *expirable.LRU[string, time.Time]
}

func NewDeduper(capacity int, ttl time.Duration) *Deduper {
	return &Deduper{
		claims: expirable.NewLRU[string, time.Time](capacity, nil, ttl),
	}
}

// Claim records id and reports whether this is its first sighting within the retention window.
// The check and the insert happen atomically. An empty id cannot be tracked and is always fresh.
func (d *Deduper) Claim(id string) bool {
	if id == "" {
		return true
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if _, seen := d.claims.Get(id); seen {
		duplicateEvents.Inc()
		return false
	}

	d.claims.Add(id, time.Now())
	return true
}

// Release forgets a claim for an event that was never executed, so a redelivery can run it.
func (d *Deduper) Release(id string) {
	if id == "" {
		return
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.claims.Remove(id)
}

func (d *Deduper) Len() int {
	return d.claims.Len()
}

package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DedupIndex holds fingerprints of recently completed events. It is owned by
// one orchestrator, rebuilt at the start of every cycle, and bounded to a
// trailing window so memory does not grow with the full event history.
type DedupIndex struct {
	store EventStore

	mu   sync.RWMutex
	seen map[string]struct{}
}

func NewDedupIndex(store EventStore) *DedupIndex {
	return &DedupIndex{
		store: store,
		seen:  make(map[string]struct{}),
	}
}

// Load resets the index and repopulates it from events completed within the
// trailing window. On a query failure the index stays empty and the error is
// returned for logging; the cycle proceeds in degraded mode rather than abort.
func (d *DedupIndex) Load(ctx context.Context, windowDays int) error {
	d.mu.Lock()
	d.seen = make(map[string]struct{})
	d.mu.Unlock()

	windowStart := time.Now().UTC().AddDate(0, 0, -windowDays)
	completed, err := d.store.FetchCompletedSince(ctx, windowStart)
	if err != nil {
		return fmt.Errorf("load dedup index: %w", err)
	}

	d.mu.Lock()
	for _, event := range completed {
		d.seen[Fingerprint(event)] = struct{}{}
	}
	d.mu.Unlock()
	return nil
}

func (d *DedupIndex) Contains(fingerprint string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.seen[fingerprint]
	return ok
}

func (d *DedupIndex) Add(fingerprint string) {
	d.mu.Lock()
	d.seen[fingerprint] = struct{}{}
	d.mu.Unlock()
}

func (d *DedupIndex) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.seen)
}

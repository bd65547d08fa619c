package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"phoenix-insight-engine/internal/models"
)

func completedEvent(streamID string, eventType string, ts time.Time, payload string, completedAt time.Time) models.Event {
	event := pendingEvent(streamID, eventType, ts, payload)
	event.ProcessingStatus = models.StatusCompleted
	event.CompletedAt = &completedAt
	return event
}

func TestDedupIndexLoad(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()

	inWindow := store.add(completedEvent("s1", "cv.generated", now.Add(-time.Hour), `{"n":1}`, now.Add(-time.Hour)))
	outOfWindow := store.add(completedEvent("s2", "cv.generated", now.AddDate(0, 0, -30), `{"n":2}`, now.AddDate(0, 0, -30)))

	index := NewDedupIndex(store)
	if err := index.Load(context.Background(), 7); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if !index.Contains(Fingerprint(inWindow)) {
		t.Fatalf("expected in-window fingerprint to be indexed")
	}
	if index.Contains(Fingerprint(outOfWindow)) {
		t.Fatalf("expected out-of-window fingerprint to be excluded")
	}
	if index.Size() != 1 {
		t.Fatalf("expected 1 indexed fingerprint, got %d", index.Size())
	}
}

func TestDedupIndexLoadResetsPreviousCycle(t *testing.T) {
	store := newFakeStore()
	index := NewDedupIndex(store)
	index.Add("stale-fingerprint")

	if err := index.Load(context.Background(), 7); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if index.Contains("stale-fingerprint") {
		t.Fatalf("load must reset fingerprints from previous cycles")
	}
}

func TestDedupIndexDegradedOnLoadFailure(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	store.add(completedEvent("s1", "cv.generated", now, `{"n":1}`, now))
	store.completedErr = errors.New("connection refused")

	index := NewDedupIndex(store)
	index.Add("leftover")
	err := index.Load(context.Background(), 7)
	if err == nil {
		t.Fatalf("expected load error")
	}
	if index.Size() != 0 {
		t.Fatalf("expected empty index in degraded mode, got %d entries", index.Size())
	}
}

func TestDedupIndexAddContains(t *testing.T) {
	index := NewDedupIndex(newFakeStore())
	if index.Contains("fp") {
		t.Fatalf("empty index must not contain anything")
	}
	index.Add("fp")
	if !index.Contains("fp") {
		t.Fatalf("expected added fingerprint to be found")
	}
}

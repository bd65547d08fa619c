package engine

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"phoenix-insight-engine/internal/models"
	"phoenix-insight-engine/shared/clients/insight"
	"phoenix-insight-engine/shared/logx"
)

var testLogger = logx.New("engine-test", "test", "", "error")

type fakeStore struct {
	mu sync.Mutex

	events map[uuid.UUID]*models.Event

	fetchErr     error
	completedErr error
	claimErr     error
	finalizeErr  error

	claimCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{events: make(map[uuid.UUID]*models.Event)}
}

func (s *fakeStore) add(event models.Event) models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.ProcessingStatus == "" {
		event.ProcessingStatus = models.StatusPending
	}
	copied := event
	s.events[event.EventID] = &copied
	return copied
}

func (s *fakeStore) get(eventID uuid.UUID) models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.events[eventID]
}

func (s *fakeStore) FetchUnprocessed(ctx context.Context, limit int) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	out := make([]models.Event, 0, limit)
	for _, event := range s.events {
		if event.ProcessingStatus == models.StatusPending && event.FailureReason == nil {
			out = append(out, *event)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) FetchCompletedSince(ctx context.Context, windowStart time.Time) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completedErr != nil {
		return nil, s.completedErr
	}
	var out []models.Event
	for _, event := range s.events {
		if event.ProcessingStatus == models.StatusCompleted && event.CompletedAt != nil && !event.CompletedAt.Before(windowStart) {
			out = append(out, *event)
		}
	}
	return out, nil
}

func (s *fakeStore) ConditionalClaim(ctx context.Context, eventID uuid.UUID, instanceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimCalls++
	if s.claimErr != nil {
		return false, s.claimErr
	}
	event, ok := s.events[eventID]
	if !ok || event.ClaimedAt != nil {
		return false, nil
	}
	now := time.Now().UTC()
	event.ClaimedAt = &now
	event.ClaimedBy = &instanceID
	event.ProcessingStatus = models.StatusClaimed
	return true, nil
}

func (s *fakeStore) Finalize(ctx context.Context, eventID uuid.UUID, status models.Status, insightPayload []byte, failureReason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalizeErr != nil {
		return s.finalizeErr
	}
	event, ok := s.events[eventID]
	if !ok {
		return ErrFakeNotFound
	}
	if !models.CanTransition(event.ProcessingStatus, status) {
		return ErrFakeTransition
	}
	now := time.Now().UTC()
	event.ProcessingStatus = status
	event.CompletedAt = &now
	if status == models.StatusCompleted {
		event.InsightPayload = insightPayload
	}
	if status == models.StatusFailed {
		event.FailureReason = &failureReason
	}
	return nil
}

func (s *fakeStore) countByStatus(status models.Status) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, event := range s.events {
		if event.ProcessingStatus == status {
			n++
		}
	}
	return n
}

var ErrFakeNotFound = errFakeNotFound{}

type errFakeNotFound struct{}

func (errFakeNotFound) Error() string { return "event not found" }

var ErrFakeTransition = errFakeTransition{}

type errFakeTransition struct{}

func (errFakeTransition) Error() string { return "invalid status transition" }

type fakeGenerator struct {
	mu       sync.Mutex
	calls    int
	generate func(ctx context.Context, req insight.GenerateRequest) (insight.GenerateResponse, error)
}

func (g *fakeGenerator) Generate(ctx context.Context, req insight.GenerateRequest) (insight.GenerateResponse, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.generate != nil {
		return g.generate(ctx, req)
	}
	return insight.GenerateResponse{Insight: json.RawMessage(`{"summary":"ok"}`)}, nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func pendingEvent(streamID string, eventType string, ts time.Time, payload string) models.Event {
	return models.Event{
		EventID:          uuid.New(),
		StreamID:         streamID,
		EventType:        eventType,
		AppSource:        "phoenix-cv",
		Timestamp:        ts,
		Payload:          json.RawMessage(payload),
		ProcessingStatus: models.StatusPending,
	}
}

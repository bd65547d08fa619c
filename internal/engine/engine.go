package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"phoenix-insight-engine/internal/models"
	"phoenix-insight-engine/shared/clients/insight"
)

// EventStore is the durable backlog the engine drains. All mutations are
// single-record writes; ConditionalClaim must be atomic at the store level.
type EventStore interface {
	FetchUnprocessed(ctx context.Context, limit int) ([]models.Event, error)
	FetchCompletedSince(ctx context.Context, windowStart time.Time) ([]models.Event, error)
	ConditionalClaim(ctx context.Context, eventID uuid.UUID, instanceID string) (bool, error)
	Finalize(ctx context.Context, eventID uuid.UUID, status models.Status, insightPayload []byte, failureReason string) error
}

type Generator interface {
	Generate(ctx context.Context, req insight.GenerateRequest) (insight.GenerateResponse, error)
}

type OutcomeKind int

const (
	OutcomeCompleted OutcomeKind = iota
	OutcomeSkipped
	OutcomeFailed
)

const (
	ReasonDuplicate      = "duplicate"
	ReasonAlreadyClaimed = "already-claimed"
	ReasonClaimError     = "claim-error"
	ReasonCancelled      = "cancelled"
)

// Outcome is the per-event result. Skips are expected coordination outcomes,
// not errors; failures are terminal and already persisted when returned.
type Outcome struct {
	Kind        OutcomeKind
	Reason      string
	Fingerprint string
	Insight     json.RawMessage
}

func Completed(fingerprint string, payload json.RawMessage) Outcome {
	return Outcome{Kind: OutcomeCompleted, Fingerprint: fingerprint, Insight: payload}
}

func Skipped(reason string) Outcome {
	return Outcome{Kind: OutcomeSkipped, Reason: reason}
}

func Failed(reason string) Outcome {
	return Outcome{Kind: OutcomeFailed, Reason: reason}
}

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Event struct {
	EventID   uuid.UUID
	StreamID  string
	EventType string
	AppSource string
	Timestamp time.Time
	Payload   json.RawMessage

	ProcessingStatus Status
	ClaimedAt        *time.Time
	ClaimedBy        *string
	CompletedAt      *time.Time
	InsightPayload   json.RawMessage
	FailureReason    *string
}

type BatchStats struct {
	Total             int
	Processed         int
	Skipped           int
	Failed            int
	DuplicatesAvoided int
	ProcessingTime    time.Duration
}

type InsightEnvelope struct {
	EventID     uuid.UUID       `json:"event_id"`
	StreamID    string          `json:"stream_id"`
	EventType   string          `json:"event_type"`
	Fingerprint string          `json:"fingerprint"`
	GeneratedAt time.Time       `json:"generated_at"`
	Insight     json.RawMessage `json:"insight"`
}

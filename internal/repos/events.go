package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"phoenix-insight-engine/internal/models"
)

var (
	ErrEventNotFound     = errors.New("event not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

const eventColumns = `
	event_id, stream_id, event_type, app_source, timestamp, payload,
	processing_status, claimed_at, claimed_by, completed_at, insight_payload, failure_reason
`

type EventsRepo struct {
	pool *pgxpool.Pool
}

func NewEventsRepo(pool *pgxpool.Pool) *EventsRepo {
	return &EventsRepo{pool: pool}
}

func (r *EventsRepo) Insert(ctx context.Context, db DBTX, event models.Event) (models.Event, error) {
	if db == nil {
		db = r.pool
	}
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.ProcessingStatus == "" {
		event.ProcessingStatus = models.StatusPending
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	err := db.QueryRow(ctx, `
		INSERT INTO insight_events (
			event_id, stream_id, event_type, app_source, timestamp, payload, processing_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+eventColumns+`
	`, event.EventID, event.StreamID, event.EventType, event.AppSource, event.Timestamp, event.Payload, string(event.ProcessingStatus)).
		Scan(scanTargets(&event)...)
	if err != nil {
		return models.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return event, nil
}

func (r *EventsRepo) FetchUnprocessed(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM insight_events
		WHERE processing_status = $1 AND failure_reason IS NULL
		ORDER BY timestamp ASC
		LIMIT $2
	`, string(models.StatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows, limit)
}

func (r *EventsRepo) FetchCompletedSince(ctx context.Context, windowStart time.Time) ([]models.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM insight_events
		WHERE processing_status = $1 AND completed_at >= $2
	`, string(models.StatusCompleted), windowStart)
	if err != nil {
		return nil, fmt.Errorf("query completed events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows, 0)
}

// ConditionalClaim is the only coordination point between concurrent workers
// and instances: the claimed_at IS NULL guard makes the claim a single-row CAS.
func (r *EventsRepo) ConditionalClaim(ctx context.Context, eventID uuid.UUID, instanceID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE insight_events
		SET processing_status = $2, claimed_at = now(), claimed_by = $3
		WHERE event_id = $1 AND claimed_at IS NULL
	`, eventID, string(models.StatusClaimed), instanceID)
	if err != nil {
		return false, fmt.Errorf("claim event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Finalize enforces the status machine at the store level: only a CLAIMED row
// can reach a terminal state, so the terminal fields are written exactly once.
func (r *EventsRepo) Finalize(ctx context.Context, eventID uuid.UUID, status models.Status, insightPayload []byte, failureReason string) error {
	if !status.Terminal() {
		return fmt.Errorf("finalize event: %s is not a terminal status", status)
	}
	var tag pgconn.CommandTag
	var err error
	switch status {
	case models.StatusCompleted:
		tag, err = r.pool.Exec(ctx, `
			UPDATE insight_events
			SET processing_status = $2, insight_payload = $3, completed_at = now()
			WHERE event_id = $1 AND processing_status = $4
		`, eventID, string(status), insightPayload, string(models.StatusClaimed))
	case models.StatusFailed:
		tag, err = r.pool.Exec(ctx, `
			UPDATE insight_events
			SET processing_status = $2, failure_reason = $3, completed_at = now()
			WHERE event_id = $1 AND processing_status = $4
		`, eventID, string(status), failureReason, string(models.StatusClaimed))
	}
	if err != nil {
		return fmt.Errorf("finalize event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		current, getErr := r.GetByID(ctx, eventID)
		if getErr != nil {
			return getErr
		}
		if models.CanTransition(current.ProcessingStatus, status) {
			return fmt.Errorf("finalize event %s: concurrent update", eventID)
		}
		return fmt.Errorf("finalize event %s from %s to %s: %w", eventID, current.ProcessingStatus, status, ErrInvalidTransition)
	}
	return nil
}

func (r *EventsRepo) GetByID(ctx context.Context, eventID uuid.UUID) (models.Event, error) {
	var event models.Event
	err := r.pool.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM insight_events
		WHERE event_id = $1
	`, eventID).Scan(scanTargets(&event)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Event{}, ErrEventNotFound
	}
	if err != nil {
		return models.Event{}, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

func collectEvents(rows pgx.Rows, capacity int) ([]models.Event, error) {
	events := make([]models.Event, 0, capacity)
	for rows.Next() {
		var event models.Event
		if err := rows.Scan(scanTargets(&event)...); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanTargets(event *models.Event) []any {
	return []any{
		&event.EventID, &event.StreamID, &event.EventType, &event.AppSource, &event.Timestamp, &event.Payload,
		&event.ProcessingStatus, &event.ClaimedAt, &event.ClaimedBy, &event.CompletedAt, &event.InsightPayload, &event.FailureReason,
	}
}

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"phoenix-insight-engine/internal/models"
	"phoenix-insight-engine/shared/cachex"
	"phoenix-insight-engine/shared/clients/insight"
	"phoenix-insight-engine/shared/logx"
)

// Processor runs the per-event pipeline: dedup check, exclusive claim,
// insight generation under a timeout, terminal finalize. Every error it can
// encounter is converted into an Outcome; nothing propagates to the caller,
// so one event can never abort its batch siblings.
type Processor struct {
	store      EventStore
	generator  Generator
	dedup      *DedupIndex
	cache      *cachex.Client
	timeout    time.Duration
	cacheTTL   time.Duration
	instanceID string
	logger     logx.Logger
}

func NewProcessor(store EventStore, generator Generator, dedup *DedupIndex, cache *cachex.Client, timeout time.Duration, cacheTTL time.Duration, instanceID string, logger logx.Logger) *Processor {
	return &Processor{
		store:      store,
		generator:  generator,
		dedup:      dedup,
		cache:      cache,
		timeout:    timeout,
		cacheTTL:   cacheTTL,
		instanceID: instanceID,
		logger:     logger,
	}
}

func (p *Processor) Process(ctx context.Context, event models.Event) Outcome {
	fingerprint := Fingerprint(event)

	if p.dedup.Contains(fingerprint) {
		return Skipped(ReasonDuplicate)
	}

	if ctx.Err() != nil {
		return Skipped(ReasonCancelled)
	}

	claimed, err := p.store.ConditionalClaim(ctx, event.EventID, p.instanceID)
	if err != nil {
		// The claim did not go through, so the event is still PENDING and a
		// later cycle retries it. Not a terminal failure.
		p.logger.Warn(ctx, "claim_failed", "conditional claim errored",
			slog.String("event_id", event.EventID.String()),
			slog.String("error", err.Error()),
		)
		return Skipped(ReasonClaimError)
	}
	if !claimed {
		return Skipped(ReasonAlreadyClaimed)
	}

	// The claim is won: the event must reach a terminal state even if a
	// shutdown starts, so the remaining work ignores parent cancellation and
	// is bounded by the processing timeout alone.
	workCtx := context.WithoutCancel(ctx)

	if reason := malformedReason(event); reason != "" {
		p.finalizeFailed(workCtx, event, reason)
		return Failed(reason)
	}

	if payload, ok := p.cachedInsight(workCtx, fingerprint); ok {
		return p.finalizeCompleted(workCtx, event, fingerprint, payload)
	}

	genCtx, cancel := context.WithTimeout(workCtx, p.timeout)
	genCtx, span := otel.Tracer("engine").Start(genCtx, "insight.generate")
	span.SetAttributes(
		attribute.String("event.id", event.EventID.String()),
		attribute.String("event.type", event.EventType),
	)
	resp, err := p.generator.Generate(genCtx, insight.GenerateRequest{
		EventID:   event.EventID.String(),
		StreamID:  event.StreamID,
		EventType: event.EventType,
		AppSource: event.AppSource,
		Timestamp: event.Timestamp,
		Payload:   event.Payload,
	})
	span.End()
	cancel()
	if err != nil {
		reason := "generation error: " + err.Error()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			reason = "generation timeout after " + p.timeout.String()
		}
		p.finalizeFailed(workCtx, event, reason)
		return Failed(reason)
	}

	if p.cache != nil {
		if err := p.cache.SetJSON(workCtx, cacheKey(fingerprint), resp.Insight, p.cacheTTL); err != nil {
			p.logger.Debug(ctx, "insight_cache_write_failed", "cache write failed",
				slog.String("error", err.Error()),
			)
		}
	}

	return p.finalizeCompleted(workCtx, event, fingerprint, resp.Insight)
}

func (p *Processor) finalizeCompleted(ctx context.Context, event models.Event, fingerprint string, payload json.RawMessage) Outcome {
	if err := p.store.Finalize(ctx, event.EventID, models.StatusCompleted, payload, ""); err != nil {
		// The insight exists but the terminal write failed; the event stays
		// CLAIMED for operator attention instead of being silently lost.
		reason := "finalize completed: " + err.Error()
		p.logger.Error(ctx, "finalize_failed", "terminal status write failed",
			slog.String("event_id", event.EventID.String()),
			slog.String("error", err.Error()),
		)
		return Failed(reason)
	}
	p.dedup.Add(fingerprint)
	return Completed(fingerprint, payload)
}

func (p *Processor) finalizeFailed(ctx context.Context, event models.Event, reason string) {
	if err := p.store.Finalize(ctx, event.EventID, models.StatusFailed, nil, reason); err != nil {
		p.logger.Error(ctx, "finalize_failed", "terminal status write failed",
			slog.String("event_id", event.EventID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Processor) cachedInsight(ctx context.Context, fingerprint string) (json.RawMessage, bool) {
	if p.cache == nil {
		return nil, false
	}
	var payload json.RawMessage
	hit, err := p.cache.GetJSON(ctx, cacheKey(fingerprint), &payload)
	if err != nil {
		p.logger.Debug(ctx, "insight_cache_read_failed", "cache read failed",
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if !hit || len(payload) == 0 {
		return nil, false
	}
	return payload, true
}

func malformedReason(event models.Event) string {
	if event.StreamID == "" {
		return "malformed event: missing stream_id"
	}
	if event.EventType == "" {
		return "malformed event: missing event_type"
	}
	if event.Timestamp.IsZero() {
		return "malformed event: missing timestamp"
	}
	return ""
}

func cacheKey(fingerprint string) string {
	return "insight:fp:" + fingerprint
}

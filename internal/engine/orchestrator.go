package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"phoenix-insight-engine/internal/models"
	"phoenix-insight-engine/shared/cachex"
	"phoenix-insight-engine/shared/influxx"
	"phoenix-insight-engine/shared/logx"
	"phoenix-insight-engine/shared/metricsx"
	"phoenix-insight-engine/shared/mqx"
)

type OrchestratorOptions struct {
	Store             EventStore
	Generator         Generator
	Logger            logx.Logger
	InstanceID        string
	BatchSize         int
	MaxConcurrency    int
	ProcessingTimeout time.Duration
	DedupWindowDays   int

	// Optional collaborators; the engine runs without any of them.
	Cache    *cachex.Client
	Producer *mqx.Producer
	Influx   *influxx.Client
	Topic    string
}

// Orchestrator runs one batch cycle: reload the dedup index, fetch a bounded
// time-ordered slice of the backlog, fan the events out through the limiter,
// and fold the outcomes into BatchStats.
type Orchestrator struct {
	store           EventStore
	processor       *Processor
	limiter         *Limiter
	dedup           *DedupIndex
	producer        *mqx.Producer
	influx          *influxx.Client
	topic           string
	batchSize       int
	dedupWindowDays int
	logger          logx.Logger
}

func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 5
	}
	if opts.ProcessingTimeout <= 0 {
		opts.ProcessingTimeout = 30 * time.Second
	}
	if opts.DedupWindowDays <= 0 {
		opts.DedupWindowDays = 7
	}

	dedup := NewDedupIndex(opts.Store)
	cacheTTL := time.Duration(opts.DedupWindowDays) * 24 * time.Hour
	processor := NewProcessor(opts.Store, opts.Generator, dedup, opts.Cache, opts.ProcessingTimeout, cacheTTL, opts.InstanceID, opts.Logger)

	return &Orchestrator{
		store:           opts.Store,
		processor:       processor,
		limiter:         NewLimiter(opts.MaxConcurrency),
		dedup:           dedup,
		producer:        opts.Producer,
		influx:          opts.Influx,
		topic:           opts.Topic,
		batchSize:       opts.BatchSize,
		dedupWindowDays: opts.DedupWindowDays,
		logger:          opts.Logger,
	}
}

func (o *Orchestrator) RunCycle(ctx context.Context) (models.BatchStats, error) {
	ctx, span := otel.Tracer("engine").Start(ctx, "engine.cycle")
	defer span.End()

	start := time.Now()
	var stats models.BatchStats

	if err := o.dedup.Load(ctx, o.dedupWindowDays); err != nil {
		// Degraded mode: duplicates may slip through this cycle, which beats
		// halting the whole pipeline.
		o.logger.Warn(ctx, "dedup_load_failed", "dedup index load failed, starting empty",
			slog.String("error", err.Error()),
		)
	}

	events, err := o.store.FetchUnprocessed(ctx, o.batchSize)
	if err != nil {
		metricsx.IncCycleFailure()
		return stats, fmt.Errorf("fetch unprocessed: %w", err)
	}

	stats.Total = len(events)
	span.SetAttributes(attribute.Int("batch.size", len(events)))
	if len(events) == 0 {
		stats.ProcessingTime = time.Since(start)
		return stats, nil
	}

	outcomes := make([]Outcome, len(events))
	var wg sync.WaitGroup
	for i, event := range events {
		// Slots are acquired in fetch order, so dispatch stays oldest-first
		// and the loop blocks here whenever the pool is saturated.
		if err := o.limiter.Acquire(ctx); err != nil {
			outcomes[i] = Skipped(ReasonCancelled)
			continue
		}
		wg.Add(1)
		go func(i int, event models.Event) {
			defer wg.Done()
			defer o.limiter.Release()
			outcome := o.processor.Process(ctx, event)
			outcomes[i] = outcome
			if outcome.Kind == OutcomeCompleted {
				o.publish(ctx, event, outcome)
			}
		}(i, event)
	}
	wg.Wait()

	for _, outcome := range outcomes {
		switch outcome.Kind {
		case OutcomeCompleted:
			stats.Processed++
			metricsx.IncEventProcessed()
		case OutcomeSkipped:
			stats.Skipped++
			metricsx.IncEventSkipped(outcome.Reason)
			if outcome.Reason == ReasonDuplicate {
				stats.DuplicatesAvoided++
				metricsx.IncDuplicateAvoided()
			}
		case OutcomeFailed:
			stats.Failed++
			metricsx.IncEventFailed()
		}
	}

	stats.ProcessingTime = time.Since(start)
	metricsx.ObserveCycleDuration(stats.ProcessingTime)
	o.recordStats(ctx, stats)

	o.logger.Info(ctx, "cycle_done", "batch cycle finished",
		slog.Int("total", stats.Total),
		slog.Int("processed", stats.Processed),
		slog.Int("skipped", stats.Skipped),
		slog.Int("failed", stats.Failed),
		slog.Int("duplicates_avoided", stats.DuplicatesAvoided),
		slog.Duration("processing_time", stats.ProcessingTime),
	)
	return stats, nil
}

func (o *Orchestrator) publish(ctx context.Context, event models.Event, outcome Outcome) {
	if o.producer == nil || o.topic == "" {
		return
	}
	// The event is already finalized; don't drop the announcement on shutdown.
	ctx = context.WithoutCancel(ctx)
	envelope := models.InsightEnvelope{
		EventID:     event.EventID,
		StreamID:    event.StreamID,
		EventType:   event.EventType,
		Fingerprint: outcome.Fingerprint,
		GeneratedAt: time.Now().UTC(),
		Insight:     outcome.Insight,
	}
	value, err := json.Marshal(envelope)
	if err != nil {
		return
	}
	if err := o.producer.Publish(ctx, o.topic, []byte(event.StreamID), value, map[string]string{
		"event_id":   event.EventID.String(),
		"event_type": event.EventType,
	}); err != nil {
		o.logger.Warn(ctx, "insight_publish_failed", "failed to publish insight envelope",
			slog.String("event_id", event.EventID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) recordStats(ctx context.Context, stats models.BatchStats) {
	if o.influx == nil {
		return
	}
	err := o.influx.WritePoint(ctx, "engine_cycle", nil, map[string]any{
		"total":              stats.Total,
		"processed":          stats.Processed,
		"skipped":            stats.Skipped,
		"failed":             stats.Failed,
		"duplicates_avoided": stats.DuplicatesAvoided,
		"processing_time_ms": stats.ProcessingTime.Milliseconds(),
	}, time.Now().UTC())
	if err != nil {
		o.logger.Warn(ctx, "influx_write_failed", "failed to record cycle stats",
			slog.String("error", err.Error()),
		)
	}
}

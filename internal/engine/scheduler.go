package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"phoenix-insight-engine/internal/models"
	"phoenix-insight-engine/shared/lockx"
	"phoenix-insight-engine/shared/logx"
)

const leaseKey = "insight-engine:cycle-lease"

type CycleRunner interface {
	RunCycle(ctx context.Context) (models.BatchStats, error)
}

// Scheduler drives the orchestrator on a fixed interval. A failed cycle is
// logged and the next run is delayed by twice the interval; the loop never
// terminates on a transient failure. Cancellation is honored between cycles
// and during the inter-cycle sleep, letting an in-flight batch finish.
type Scheduler struct {
	runner     CycleRunner
	interval   time.Duration
	logger     logx.Logger
	redis      *redis.Client
	instanceID string
}

func NewScheduler(runner CycleRunner, interval time.Duration, logger logx.Logger, redisClient *redis.Client, instanceID string) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		logger:     logger,
		redis:      redisClient,
		instanceID: instanceID,
	}
}

func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info(ctx, "scheduler_start", "continuous scheduler started",
		slog.Duration("interval", s.interval),
	)

	for {
		if ctx.Err() != nil {
			s.logger.Info(context.Background(), "scheduler_stop", "continuous scheduler stopped")
			return nil
		}

		delay := s.interval
		if lease, acquired := s.acquireLease(ctx); acquired {
			if _, err := s.runner.RunCycle(ctx); err != nil {
				delay = s.interval * 2
				s.logger.Error(ctx, "cycle_failed", "batch cycle failed, backing off",
					slog.String("error", err.Error()),
					slog.Duration("backoff", delay),
				)
			}
			s.releaseLease(ctx, lease)
		} else {
			s.logger.Debug(ctx, "cycle_lease_held", "cycle lease held by another instance")
		}

		select {
		case <-ctx.Done():
			s.logger.Info(context.Background(), "scheduler_stop", "continuous scheduler stopped")
			return nil
		case <-time.After(delay):
		}
	}
}

// acquireLease is an efficiency guard only: co-scheduled instances skip
// overlapping cycles when Redis is available. Exclusive processing is still
// enforced per event by the store-level conditional claim.
func (s *Scheduler) acquireLease(ctx context.Context) (*lockx.Lease, bool) {
	if s.redis == nil {
		return nil, true
	}
	lease, acquired, err := lockx.Acquire(ctx, s.redis, leaseKey, s.instanceID, s.interval)
	if err != nil {
		s.logger.Warn(ctx, "cycle_lease_failed", "lease acquire failed, running anyway",
			slog.String("error", err.Error()),
		)
		return nil, true
	}
	return lease, acquired
}

func (s *Scheduler) releaseLease(ctx context.Context, lease *lockx.Lease) {
	if s.redis == nil || lease == nil {
		return
	}
	if err := lockx.Release(ctx, s.redis, lease); err != nil {
		s.logger.Debug(ctx, "cycle_lease_release_failed", "lease release failed",
			slog.String("error", err.Error()),
		)
	}
}

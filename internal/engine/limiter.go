package engine

import (
	"context"

	"phoenix-insight-engine/shared/metricsx"
)

// Limiter bounds the number of event processors running at once. Its only
// state is the occupancy of the slot channel; Acquire blocks past the bound
// until a slot frees or the context is cancelled, and every successful
// Acquire must be paired with a Release.
type Limiter struct {
	slots chan struct{}
}

func NewLimiter(maxConcurrency int) *Limiter {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Limiter{slots: make(chan struct{}, maxConcurrency)}
}

func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	metricsx.IncWorkersInFlight()
	return nil
}

func (l *Limiter) Release() {
	metricsx.DecWorkersInFlight()
	<-l.slots
}

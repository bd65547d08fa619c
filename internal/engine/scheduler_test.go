package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"phoenix-insight-engine/internal/models"
)

type fakeRunner struct {
	mu      sync.Mutex
	cycles  []time.Time
	results []error
}

func (r *fakeRunner) RunCycle(ctx context.Context) (models.BatchStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles = append(r.cycles, time.Now())
	if len(r.results) > 0 {
		err := r.results[0]
		r.results = r.results[1:]
		return models.BatchStats{}, err
	}
	return models.BatchStats{}, nil
}

func (r *fakeRunner) cycleTimes() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Time, len(r.cycles))
	copy(out, r.cycles)
	return out
}

func TestSchedulerRepeatsCycles(t *testing.T) {
	runner := &fakeRunner{}
	scheduler := NewScheduler(runner, 20*time.Millisecond, testLogger, nil, "worker-1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scheduler.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(runner.cycleTimes()) < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 cycles, got %d", len(runner.cycleTimes()))
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("cancelled scheduler must exit cleanly, got %v", err)
	}
}

func TestSchedulerBacksOffOnCycleFailure(t *testing.T) {
	interval := 30 * time.Millisecond
	runner := &fakeRunner{results: []error{errors.New("store unreachable"), nil}}
	scheduler := NewScheduler(runner, interval, testLogger, nil, "worker-1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scheduler.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(runner.cycleTimes()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("scheduler must survive a failed cycle")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	times := runner.cycleTimes()
	gap := times[1].Sub(times[0])
	if gap < 2*interval {
		t.Fatalf("expected backoff of at least %s after failure, got %s", 2*interval, gap)
	}
}

func TestSchedulerStopsDuringSleep(t *testing.T) {
	runner := &fakeRunner{}
	scheduler := NewScheduler(runner, time.Hour, testLogger, nil, "worker-1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scheduler.Run(ctx) }()

	// Let the first cycle run, then cancel mid-sleep.
	deadline := time.After(2 * time.Second)
	for len(runner.cycleTimes()) < 1 {
		select {
		case <-deadline:
			t.Fatalf("first cycle never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean exit, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("scheduler did not stop during the inter-cycle sleep")
	}
}

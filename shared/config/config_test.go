package config

import "testing"

func TestParseCSV(t *testing.T) {
	got := parseCSV("a, b, ,c,,")
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected values: %#v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, _ := Load("insight-worker", 8090)
	if cfg.BatchSize != 50 {
		t.Fatalf("expected default batch size 50, got %d", cfg.BatchSize)
	}
	if cfg.MaxConcurrency != 5 {
		t.Fatalf("expected default max concurrency 5, got %d", cfg.MaxConcurrency)
	}
	if cfg.ProcessingTimeoutSec != 30 {
		t.Fatalf("expected default processing timeout 30s, got %d", cfg.ProcessingTimeoutSec)
	}
	if cfg.PollIntervalSec != 60 {
		t.Fatalf("expected default poll interval 60s, got %d", cfg.PollIntervalSec)
	}
	if cfg.DedupWindowDays != 7 {
		t.Fatalf("expected default dedup window 7 days, got %d", cfg.DedupWindowDays)
	}
}

func TestLoadRejectsInvalidInts(t *testing.T) {
	t.Setenv("BATCH_SIZE", "-1")
	t.Setenv("MAX_CONCURRENCY", "nope")
	cfg, problems := Load("insight-worker", 8090)
	if cfg.BatchSize != 50 {
		t.Fatalf("expected fallback batch size 50, got %d", cfg.BatchSize)
	}
	if cfg.MaxConcurrency != 5 {
		t.Fatalf("expected fallback max concurrency 5, got %d", cfg.MaxConcurrency)
	}
	if len(problems) < 2 {
		t.Fatalf("expected problems for invalid values, got %#v", problems)
	}
}

package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestEventKeyAppearsOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "insight-worker", "test", "", "info")
	logger.Info(context.Background(), "cycle_done", "batch cycle finished", slog.Int("total", 3))

	line := buf.String()
	if got := strings.Count(line, `"event":`); got != 1 {
		t.Fatalf("expected exactly one event key per line, got %d in %s", got, line)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not valid JSON: %v", err)
	}
	if entry["event"] != "cycle_done" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["detail"] != "batch cycle finished" {
		t.Fatalf("unexpected detail: %v", entry["detail"])
	}
	if entry["service"] != "insight-worker" {
		t.Fatalf("unexpected service: %v", entry["service"])
	}
}

func TestWithCarriesAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "insight-worker", "test", "", "info").
		With(slog.String("instance_id", "insight-worker-abc12345"))
	logger.Warn(context.Background(), "claim_failed", "conditional claim errored")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not valid JSON: %v", err)
	}
	if entry["instance_id"] != "insight-worker-abc12345" {
		t.Fatalf("expected instance_id on every line, got %v", entry["instance_id"])
	}
}

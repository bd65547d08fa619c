package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"phoenix-insight-engine/internal/models"
)

// Fingerprint derives the duplicate-detection hash from an event's identity
// fields. Missing optional fields normalize to "" so that absent and empty
// values collide. The payload is hashed through a canonical serialization
// first, so key order in the raw JSON does not change the fingerprint.
func Fingerprint(event models.Event) string {
	payloadHash := hashPayload(event.Payload)

	ts := ""
	if !event.Timestamp.IsZero() {
		ts = event.Timestamp.UTC().Format(time.RFC3339Nano)
	}

	identity := strings.Join([]string{
		event.StreamID,
		event.EventType,
		ts,
		event.AppSource,
		payloadHash,
	}, "|")

	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])
}

func hashPayload(raw json.RawMessage) string {
	if len(raw) == 0 {
		sum := sha256.Sum256([]byte(""))
		return hex.EncodeToString(sum[:])
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err == nil {
		// encoding/json sorts map keys, giving a stable byte form.
		if canonical, err := json.Marshal(decoded); err == nil {
			sum := sha256.Sum256(canonical)
			return hex.EncodeToString(sum[:])
		}
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

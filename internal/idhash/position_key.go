package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"perp-signal-engine/internal/domain"
)

// minuteMs is the idempotency-key time granularity in milliseconds.
// Entry timestamps are truncated to the minute so the same open event
// observed twice within a minute maps to the same key.
const minuteMs = 60_000

// ComputePositionKey computes a deterministic idempotency key using SHA256.
// Formula: SHA256(wallet|instrument|direction|entry_minute)
// Returns hex-encoded hash (64 characters).
func ComputePositionKey(
	wallet string,
	instrument string,
	direction domain.Direction,
	entryTime int64,
) string {
	entryMinute := entryTime / minuteMs

	data := fmt.Sprintf("%s|%s|%s|%d",
		wallet,
		instrument,
		string(direction),
		entryMinute,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

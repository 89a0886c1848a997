package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeSignalID computes a deterministic signal_id using SHA256.
// Formula: SHA256(orchestrator|ticker|timestamp|seq)
// Returns hex-encoded hash (64 characters). Used as the dedup key for
// enhanced_signals rows.
func ComputeSignalID(orchestratorID, ticker string, timestampMs, seq int64) string {
	data := fmt.Sprintf("%s|%s|%d|%d", orchestratorID, ticker, timestampMs, seq)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeTaskID computes a deterministic task id.
// Formula: SHA256(ticker|type|enqueuedAt|seq), hex-encoded.
func ComputeTaskID(ticker, taskType string, enqueuedAtMs, seq int64) string {
	data := fmt.Sprintf("%s|%s|%d|%d", ticker, taskType, enqueuedAtMs, seq)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeSnapshotID computes a deterministic snapshot_id using SHA256.
// Formula: SHA256(taken_at|min_deposit|min_volume|record_count)
// Returns hex-encoded hash (64 characters).
func ComputeSnapshotID(
	takenAt int64,
	minDeposit float64,
	minVolume float64,
	recordCount int,
) string {
	data := fmt.Sprintf("%d|%g|%g|%d",
		takenAt,
		minDeposit,
		minVolume,
		recordCount,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"affiliate-vault/internal/domain"
)

// ComputeAuditID computes a deterministic audit_id using SHA256.
// Formula: SHA256(chain|vault|kind|tx_id|block)
// Returns hex-encoded hash (64 characters).
//
// The kind participates because payout and fee sequences number
// independently; tx_id 0 exists in both logs.
func ComputeAuditID(
	chain domain.ChainID,
	vault domain.Address,
	kind domain.TxKind,
	txID uint64,
	block uint64,
) string {
	data := fmt.Sprintf("%d|%s|%s|%d|%d",
		uint64(chain),
		string(vault),
		string(kind),
		txID,
		block,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

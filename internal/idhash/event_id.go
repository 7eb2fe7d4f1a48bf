package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTxSignature computes a deterministic ledger transaction id using SHA256.
// Formula: SHA256(slot|instruction|signer|payload_hex)
// Returns hex-encoded hash (64 characters).
func ComputeTxSignature(
	slot uint64,
	instruction string,
	signer string,
	payload []byte,
) string {
	data := fmt.Sprintf("%d|%s|%s|%s",
		slot,
		instruction,
		signer,
		hex.EncodeToString(payload),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeEventID computes a deterministic event_id using SHA256.
// Formula: SHA256(tx_signature|event_index)
// Returns hex-encoded hash (64 characters).
func ComputeEventID(txSignature string, eventIndex int) string {
	data := fmt.Sprintf("%s|%d", txSignature, eventIndex)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

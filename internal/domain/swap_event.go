package domain

// SwapEvent is an escrow state change emitted by the atomic swap program.
// Corresponds to swap_events table in PostgreSQL and ClickHouse.
type SwapEvent struct {
	ID          int64     `json:"id"`                    // BIGSERIAL primary key (PostgreSQL only)
	EventID     string    `json:"event_id"`              // deterministic hash of (tx_signature, event_index)
	Type        EventType `json:"type"`                  // what happened
	TxSignature string    `json:"tx_signature"`          // ledger transaction id
	EventIndex  int       `json:"event_index"`           // index of event within transaction
	Slot        uint64    `json:"slot"`                  // ledger slot the transaction committed in
	Timestamp   int64     `json:"timestamp"`             // ledger clock, Unix seconds
	Pool        string    `json:"pool"`                  // pool address (base58)
	Mint        string    `json:"mint"`                  // token mint (base58)
	SwapID      string    `json:"swap_id,omitempty"`     // hex-encoded 32-byte swap id, empty for pool events
	Actor       string    `json:"actor"`                 // signer of the transaction
	Depositor   string    `json:"depositor,omitempty"`   // swap depositor, empty for pool events
	Buyer       string    `json:"buyer,omitempty"`       // swap buyer, empty for pool events
	Amount      uint64    `json:"amount"`                // amount escrowed or withdrawn
	Fee         uint64    `json:"fee"`                   // fee charged on redeem
	Payout      uint64    `json:"payout"`                // amount delivered to the receiving party
	SecretHash  string    `json:"secret_hash,omitempty"` // hex sha256 digest of the secret
	Secret      string    `json:"secret,omitempty"`      // hex preimage, set on REDEEMED only
	LockExpiry  int64     `json:"lock_expiry,omitempty"` // swap lock expiry, Unix seconds
	CreatedAt   int64     `json:"created_at,omitempty"`  // record creation timestamp (ms)
}

// EventType identifies a swap or pool state change.
type EventType string

const (
	EventPoolInitialized EventType = "POOL_INITIALIZED"
	EventDeposited       EventType = "DEPOSITED"
	EventRedeemed        EventType = "REDEEMED"
	EventRefunded        EventType = "REFUNDED"
	EventFeesWithdrawn   EventType = "FEES_WITHDRAWN"
)

// String returns the string representation of EventType.
func (t EventType) String() string {
	return string(t)
}

// IsValid checks if the event type is a known value.
func (t EventType) IsValid() bool {
	switch t {
	case EventPoolInitialized, EventDeposited, EventRedeemed, EventRefunded, EventFeesWithdrawn:
		return true
	}
	return false
}

// IsSettlement reports whether the event closes a swap.
func (t EventType) IsSettlement() bool {
	return t == EventRedeemed || t == EventRefunded
}

package domain

// AccountRecord is the persisted form of a ledger account.
// Corresponds to accounts table in PostgreSQL.
type AccountRecord struct {
	Address  string // base58 address (PK)
	Owner    string // owning program (base58)
	Lamports uint64 // native balance
	Data     []byte // program-defined layout
	Closed   bool   // retired address; never reused
	Slot     uint64 // slot of last modification
}

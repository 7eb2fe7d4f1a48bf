// Package ledger is an in-process account ledger with Solana-style semantics:
// durable keyed accounts mutated only by their owning program, PDA signing,
// rent, a token program and a clock. Transactions are serialized and apply
// atomically.
package ledger

import (
	"errors"

	"solana-atomic-swap/internal/solana"
)

// Ledger errors.
var (
	// ErrAccountNotFound is returned when an address holds no live account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountInUse is returned when creating an account at an address that is
	// live or was closed earlier. Closed addresses are never reused.
	ErrAccountInUse = errors.New("account address already in use")

	// ErrInsufficientLamports is returned when a payer cannot cover rent.
	ErrInsufficientLamports = errors.New("insufficient lamports")

	// ErrIllegalOwner is returned when a program touches an account it does not own.
	ErrIllegalOwner = errors.New("account not owned by executing program")

	// ErrMissingSigner is returned when a required signature is absent.
	ErrMissingSigner = errors.New("missing required signature")

	// ErrInvalidAccountData is returned when account data does not decode.
	ErrInvalidAccountData = errors.New("invalid account data")

	// ErrInsufficientFunds is returned by token transfers exceeding the source balance.
	ErrInsufficientFunds = errors.New("insufficient token funds")

	// ErrOwnerMismatch is returned when a token authority does not own the source account.
	ErrOwnerMismatch = errors.New("token account owner mismatch")

	// ErrMintMismatch is returned when token accounts belong to different mints.
	ErrMintMismatch = errors.New("token mint mismatch")

	// ErrOverflow is returned when a balance would overflow uint64.
	ErrOverflow = errors.New("arithmetic overflow")
)

// Rent parameters, matching the default cluster configuration.
const (
	AccountStorageOverhead = 128
	LamportsPerByteYear    = 3480
	ExemptionYears         = 2
)

// MinimumBalance returns the rent-exempt lamports for an account of space bytes.
func MinimumBalance(space int) uint64 {
	return uint64(AccountStorageOverhead+space) * LamportsPerByteYear * ExemptionYears
}

// Account is a ledger account.
type Account struct {
	Address  solana.PublicKey
	Owner    solana.PublicKey
	Lamports uint64
	Data     []byte
}

func (a *Account) clone() *Account {
	c := *a
	if a.Data != nil {
		c.Data = append([]byte(nil), a.Data...)
	}
	return &c
}

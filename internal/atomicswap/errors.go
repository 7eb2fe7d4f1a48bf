package atomicswap

import (
	"errors"
	"fmt"

	"solana-atomic-swap/internal/ledger"
)

// Error is a program error with a stable numeric code. Two errors are equal
// under errors.Is when their codes match, so an error decoded from a remote
// response compares equal to the local sentinel.
type Error struct {
	Code    int
	Name    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// errorCodeOffset is where custom program error codes start.
const errorCodeOffset = 6000

// Program errors.
var (
	ErrAlreadyInitialized = newError(0, "AlreadyInitialized", "pool already initialized for mint")
	ErrInvalidFee         = newError(1, "InvalidFee", "fee exceeds maximum")
	ErrDuplicateSwap      = newError(2, "DuplicateSwap", "swap id already used in pool")
	ErrInvalidAmount      = newError(3, "InvalidAmount", "amount must be positive")
	ErrInsufficientFunds  = newError(4, "InsufficientFunds", "insufficient token balance")
	ErrLockTooSoon        = newError(5, "LockTooSoon", "lock expiry too close to current time")
	ErrExpired            = newError(6, "Expired", "swap lock expired")
	ErrTooEarly           = newError(7, "TooEarly", "swap lock not yet expired")
	ErrWrongSecret        = newError(8, "WrongSecret", "secret does not match hash")
	ErrNotBuyer           = newError(9, "NotBuyer", "signer is not the swap buyer")
	ErrNotDepositor       = newError(10, "NotDepositor", "signer is not the swap depositor")
	ErrAlreadySettled     = newError(11, "AlreadySettled", "swap already settled")
	ErrPoolNotFound       = newError(12, "PoolNotFound", "pool not initialized for mint")
	ErrSwapNotFound       = newError(13, "SwapNotFound", "swap not found")
	ErrUnauthorized       = newError(14, "Unauthorized", "signer is not the pool authority")
	ErrInvalidMint        = newError(15, "InvalidMint", "mint account is not a valid token mint")
	ErrRentUnfunded       = newError(16, "RentUnfunded", "signer cannot pay rent for a new account")
)

var errorsByCode = map[int]*Error{}

func newError(n int, name, msg string) *Error {
	e := &Error{Code: errorCodeOffset + n, Name: name, Message: msg}
	errorsByCode[e.Code] = e
	return e
}

// ErrorByCode returns the program error with the given code, or nil.
func ErrorByCode(code int) *Error {
	return errorsByCode[code]
}

// AsError extracts the program error from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ErrorName returns the program error name of err, or "Internal".
func ErrorName(err error) string {
	if e, ok := AsError(err); ok {
		return e.Name
	}
	return "Internal"
}

// fromLedger translates runtime failures that have a program-level meaning.
func fromLedger(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	case errors.Is(err, ledger.ErrInsufficientLamports):
		return fmt.Errorf("%w: %w", ErrRentUnfunded, err)
	default:
		return err
	}
}

package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"solana-atomic-swap/internal/atomicswap"
	"solana-atomic-swap/internal/ledger"
)

// Standard JSON-RPC error codes, plus CodeTransactionFailed for ledger-level
// rejections. Program errors use their own codes (6000 and up).
const (
	CodeParseError        = -32700
	CodeInvalidRequest    = -32600
	CodeMethodNotFound    = -32601
	CodeInvalidParams     = -32602
	CodeInternal          = -32603
	CodeTransactionFailed = -32002
	CodeUnavailable       = -32004
)

// Error is a JSON-RPC error object.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData carries the symbolic error name.
type ErrorData struct {
	Name string `json:"name"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

var ledgerErrors = map[string]error{
	"AccountNotFound":      ledger.ErrAccountNotFound,
	"AccountInUse":         ledger.ErrAccountInUse,
	"InsufficientLamports": ledger.ErrInsufficientLamports,
	"IllegalOwner":         ledger.ErrIllegalOwner,
	"MissingSigner":        ledger.ErrMissingSigner,
	"InvalidAccountData":   ledger.ErrInvalidAccountData,
	"TokenInsufficient":    ledger.ErrInsufficientFunds,
	"OwnerMismatch":        ledger.ErrOwnerMismatch,
	"MintMismatch":         ledger.ErrMintMismatch,
	"Overflow":             ledger.ErrOverflow,
}

// toRPCError converts a program or ledger error into its wire form.
func toRPCError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	if perr, ok := atomicswap.AsError(err); ok {
		return &Error{Code: perr.Code, Message: perr.Message, Data: &ErrorData{Name: perr.Name}}
	}
	for name, sentinel := range ledgerErrors {
		if errors.Is(err, sentinel) {
			return &Error{Code: CodeTransactionFailed, Message: err.Error(), Data: &ErrorData{Name: name}}
		}
	}
	return &Error{Code: CodeInternal, Message: err.Error(), Data: &ErrorData{Name: "Internal"}}
}

// FromError maps a wire error back to the matching sentinel so callers can
// use errors.Is on remote results. Unknown codes are returned as-is.
func FromError(e *Error) error {
	if e == nil {
		return nil
	}
	if perr := atomicswap.ErrorByCode(e.Code); perr != nil {
		return perr
	}
	if e.Code == CodeTransactionFailed && e.Data != nil {
		if sentinel, ok := ledgerErrors[e.Data.Name]; ok {
			return fmt.Errorf("%s: %w", e.Message, sentinel)
		}
	}
	return e
}

func invalidParams(err error) *Error {
	return &Error{Code: CodeInvalidParams, Message: err.Error(), Data: &ErrorData{Name: "InvalidParams"}}
}

func decodeParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return invalidParams(err)
	}
	return nil
}

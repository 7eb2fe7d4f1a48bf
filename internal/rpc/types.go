package rpc

import (
	"encoding/json"

	"solana-atomic-swap/internal/atomicswap"
	"solana-atomic-swap/internal/domain"
	"solana-atomic-swap/internal/solana"
)

// Version is the JSON-RPC protocol version.
const Version = "2.0"

// Request is a JSON-RPC 2.0 request. Params is always a named-argument object.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Method names.
const (
	MethodInitialize       = "initialize"
	MethodDeposit          = "deposit"
	MethodRedeem           = "redeem"
	MethodRefund           = "refund"
	MethodWithdrawFees     = "withdrawFees"
	MethodGetPool          = "getPool"
	MethodGetSwap          = "getSwap"
	MethodGetBalance       = "getBalance"
	MethodGetTokenBalance  = "getTokenBalance"
	MethodGetCustody       = "getCustodyBalance"
	MethodGetClock         = "getClock"
	MethodAdvanceClock     = "advanceClock"
	MethodAirdrop          = "airdrop"
	MethodCreateMint       = "createMint"
	MethodMintTo           = "mintTo"
	MethodCreateATA        = "createAssociatedTokenAccount"
	MethodGetSwapHistory   = "getSwapHistory"
	MethodVerifyPool       = "verifyPool"
	MethodSwapSubscribe    = "swapSubscribe"
	MethodSwapUnsubscribe  = "swapUnsubscribe"
	MethodSwapNotification = "swapNotification"
)

// MintParams selects a pool by mint.
type MintParams struct {
	Mint solana.PublicKey `json:"mint"`
}

// SwapParams selects a swap by mint and id.
type SwapParams struct {
	Mint   solana.PublicKey   `json:"mint"`
	SwapID atomicswap.Bytes32 `json:"swap_id"`
}

// AddressParams selects an account.
type AddressParams struct {
	Address solana.PublicKey `json:"address"`
}

// TokenBalanceParams selects the associated token account of owner for mint.
type TokenBalanceParams struct {
	Owner solana.PublicKey `json:"owner"`
	Mint  solana.PublicKey `json:"mint"`
}

// BalanceResult is the lamport balance of an account.
type BalanceResult struct {
	Lamports uint64 `json:"lamports"`
}

// TokenBalanceResult is the balance of a token account.
type TokenBalanceResult struct {
	Address solana.PublicKey `json:"address"`
	Amount  uint64           `json:"amount"`
}

// CustodyResult holds the token balances a pool controls.
type CustodyResult struct {
	Custody  solana.PublicKey `json:"custody"`
	Amount   uint64           `json:"amount"`
	FeeVault solana.PublicKey `json:"fee_vault"`
	Fees     uint64           `json:"fees"`
}

// ClockResult is the ledger clock.
type ClockResult struct {
	Slot          uint64 `json:"slot"`
	UnixTimestamp int64  `json:"unix_timestamp"`
}

// AdvanceClockParams moves a manual clock forward.
type AdvanceClockParams struct {
	Seconds int64 `json:"seconds"`
}

// AirdropParams credits lamports to an account.
type AirdropParams struct {
	Address  solana.PublicKey `json:"address"`
	Lamports uint64           `json:"lamports"`
}

// CreateMintParams creates a new token mint. The server generates the mint
// address; authority pays rent.
type CreateMintParams struct {
	Authority solana.PublicKey `json:"authority"`
	Decimals  uint8            `json:"decimals"`
}

// CreateMintResult is the address of a created mint.
type CreateMintResult struct {
	Mint      solana.PublicKey `json:"mint"`
	Signature string           `json:"signature"`
}

// MintToParams mints tokens into the associated token account of owner,
// creating it when missing. Authority signs and pays.
type MintToParams struct {
	Mint      solana.PublicKey `json:"mint"`
	Owner     solana.PublicKey `json:"owner"`
	Authority solana.PublicKey `json:"authority"`
	Amount    uint64           `json:"amount"`
}

// CreateATAParams creates the associated token account of owner for mint.
type CreateATAParams struct {
	Owner solana.PublicKey `json:"owner"`
	Mint  solana.PublicKey `json:"mint"`
	Payer solana.PublicKey `json:"payer"`
}

// AccountResult names a token account touched by a transaction.
type AccountResult struct {
	Address   solana.PublicKey `json:"address"`
	Signature string           `json:"signature"`
}

// HistoryParams filters swap events of a pool. SwapID narrows to one swap;
// From and To (Unix seconds, inclusive) narrow by time when To is set.
type HistoryParams struct {
	Mint   solana.PublicKey   `json:"mint"`
	SwapID atomicswap.Bytes32 `json:"swap_id,omitzero"`
	From   int64              `json:"from,omitempty"`
	To     int64              `json:"to,omitempty"`
}

// SubscribeParams filters websocket notifications. Zero fields match all.
type SubscribeParams struct {
	Pool   solana.PublicKey   `json:"pool,omitzero"`
	SwapID atomicswap.Bytes32 `json:"swap_id,omitzero"`
}

// UnsubscribeParams cancels a subscription.
type UnsubscribeParams struct {
	Subscription int64 `json:"subscription"`
}

// Notification is pushed to websocket subscribers.
type Notification struct {
	JSONRPC string              `json:"jsonrpc"`
	Method  string              `json:"method"`
	Params  NotificationPayload `json:"params"`
}

// NotificationPayload carries one event for one subscription.
type NotificationPayload struct {
	Subscription int64             `json:"subscription"`
	Result       *domain.SwapEvent `json:"result"`
}

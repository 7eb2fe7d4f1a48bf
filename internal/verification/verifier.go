// Package verification reconciles a pool's recorded swap history with the
// balances and swap accounts held by the ledger.
package verification

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"solana-atomic-swap/internal/atomicswap"
	"solana-atomic-swap/internal/domain"
	"solana-atomic-swap/internal/solana"
	"solana-atomic-swap/internal/storage"
)

// Check names reported in divergences.
const (
	CheckInitialized      = "pool_initialized"
	CheckDuplicateDeposit = "duplicate_deposit"
	CheckSettlement       = "settlement"
	CheckSettledAmount    = "settled_amount"
	CheckConservation     = "conservation"
	CheckRefundFee        = "refund_fee"
	CheckFeeWithdrawal    = "fee_withdrawal"
	CheckEventType        = "event_type"
	CheckCustody          = "custody_balance"
	CheckFeeVault         = "fee_vault_balance"
	CheckOpenSwap         = "open_swap"
	CheckSettledSwap      = "settled_swap"
	CheckUnrecordedSwap   = "unrecorded_swap"
)

// Divergence is a mismatch between the history and the ledger.
type Divergence struct {
	Check    string `json:"check"`
	SwapID   string `json:"swap_id,omitempty"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
}

// Report is the outcome of verifying one pool.
type Report struct {
	Pool            string       `json:"pool"`
	Mint            string       `json:"mint"`
	Slot            uint64       `json:"slot"`
	Events          int          `json:"events"`
	OpenSwaps       int          `json:"open_swaps"`
	SettledSwaps    int          `json:"settled_swaps"`
	ReplayedCustody uint64       `json:"replayed_custody"`
	LedgerCustody   uint64       `json:"ledger_custody"`
	ReplayedFees    uint64       `json:"replayed_fees"`
	LedgerFees      uint64       `json:"ledger_fees"`
	Match           bool         `json:"match"`
	Divergences     []Divergence `json:"divergences"`
}

// PoolReader reads live pool state. *atomicswap.Program implements it.
type PoolReader interface {
	Snapshot(mint solana.PublicKey) (*atomicswap.PoolSnapshot, error)
	GetSwap(mint solana.PublicKey, swapID atomicswap.Bytes32) (*atomicswap.Swap, error)
}

var _ PoolReader = (*atomicswap.Program)(nil)

// Verifier replays stored history against the ledger.
type Verifier struct {
	events storage.SwapEventStore
	pools  PoolReader
}

// NewVerifier creates a Verifier.
func NewVerifier(events storage.SwapEventStore, pools PoolReader) *Verifier {
	return &Verifier{events: events, pools: pools}
}

// VerifyPool compares the ledger state of mint's pool at one slot with the
// history recorded up to that slot. Events are published before the ledger
// releases a commit, so every event of a slot already visible to the
// snapshot is in the store.
func (v *Verifier) VerifyPool(ctx context.Context, mint solana.PublicKey) (*Report, error) {
	snap, err := v.pools.Snapshot(mint)
	if err != nil {
		return nil, err
	}

	history, err := v.events.GetByPool(ctx, snap.Pool.Address.String())
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	events := slices.DeleteFunc(history, func(e *domain.SwapEvent) bool {
		return e.Slot > snap.Slot
	})

	replayed, divergences := Replay(events)

	if snap.Custody != replayed.Custody {
		divergences = append(divergences, Divergence{Check: CheckCustody, Expected: replayed.Custody, Actual: snap.Custody})
	}
	if snap.FeeVault != replayed.Fees {
		divergences = append(divergences, Divergence{Check: CheckFeeVault, Expected: replayed.Fees, Actual: snap.FeeVault})
	}

	for _, id := range slices.Sorted(maps.Keys(replayed.Open)) {
		divergences = append(divergences, v.checkOpen(snap, id, replayed.Open[id])...)
	}
	for _, id := range slices.Sorted(maps.Keys(replayed.Settled)) {
		divergences = append(divergences, v.checkSettled(snap, id)...)
	}
	var unrecorded []Divergence
	for _, swap := range snap.Open {
		id := swap.SwapID.String()
		_, open := replayed.Open[id]
		_, settled := replayed.Settled[id]
		if !open && !settled {
			unrecorded = append(unrecorded, Divergence{Check: CheckUnrecordedSwap, SwapID: id, Expected: "no swap", Actual: swap.Amount})
		}
	}
	slices.SortFunc(unrecorded, func(a, b Divergence) int {
		return strings.Compare(a.SwapID, b.SwapID)
	})
	divergences = append(divergences, unrecorded...)

	if divergences == nil {
		divergences = []Divergence{}
	}

	return &Report{
		Pool:            snap.Pool.Address.String(),
		Mint:            mint.String(),
		Slot:            snap.Slot,
		Events:          replayed.Events,
		OpenSwaps:       len(replayed.Open),
		SettledSwaps:    len(replayed.Settled),
		ReplayedCustody: replayed.Custody,
		LedgerCustody:   snap.Custody,
		ReplayedFees:    replayed.Fees,
		LedgerFees:      snap.FeeVault,
		Match:           len(divergences) == 0,
		Divergences:     divergences,
	}, nil
}

func (v *Verifier) checkOpen(snap *atomicswap.PoolSnapshot, id string, amount uint64) []Divergence {
	swapID, err := atomicswap.ParseBytes32(id)
	if err != nil {
		return []Divergence{{Check: CheckOpenSwap, SwapID: id, Expected: "valid id", Actual: err.Error()}}
	}
	swap, ok := snap.Open[swapID]
	if !ok {
		return []Divergence{{Check: CheckOpenSwap, SwapID: id, Expected: "open", Actual: v.missingReason(snap, swapID)}}
	}
	if swap.Amount != amount {
		return []Divergence{{Check: CheckOpenSwap, SwapID: id, Expected: amount, Actual: swap.Amount}}
	}
	return nil
}

func (v *Verifier) checkSettled(snap *atomicswap.PoolSnapshot, id string) []Divergence {
	swapID, err := atomicswap.ParseBytes32(id)
	if err != nil {
		return []Divergence{{Check: CheckSettledSwap, SwapID: id, Expected: "closed", Actual: err.Error()}}
	}
	if _, open := snap.Open[swapID]; open {
		return []Divergence{{Check: CheckSettledSwap, SwapID: id, Expected: "closed", Actual: "open"}}
	}
	if reason := v.missingReason(snap, swapID); reason != atomicswap.ErrAlreadySettled.Name {
		return []Divergence{{Check: CheckSettledSwap, SwapID: id, Expected: "closed", Actual: reason}}
	}
	return nil
}

// missingReason names why a swap absent from the snapshot is not open.
// Closed addresses stay retired, so a swap settled by the snapshot slot still
// reads as settled afterwards.
func (v *Verifier) missingReason(snap *atomicswap.PoolSnapshot, swapID atomicswap.Bytes32) string {
	_, err := v.pools.GetSwap(snap.Pool.Mint, swapID)
	switch {
	case err == nil:
		return atomicswap.ErrSwapNotFound.Name
	case errors.Is(err, atomicswap.ErrAlreadySettled):
		return atomicswap.ErrAlreadySettled.Name
	default:
		return atomicswap.ErrorName(err)
	}
}

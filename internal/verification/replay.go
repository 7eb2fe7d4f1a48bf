package verification

import (
	"fmt"

	"solana-atomic-swap/internal/domain"
)

// Replayed is the pool state implied by its event history.
type Replayed struct {
	Events  int
	Custody uint64
	Fees    uint64
	// Open maps hex swap id to the escrowed amount.
	Open map[string]uint64
	// Settled maps hex swap id to the event that closed it.
	Settled map[string]domain.EventType
}

// Replay folds the events of one pool, sorted by (slot, event_index), into
// the balances they imply. Inconsistencies found along the way are returned
// as divergences; the fold continues past them.
func Replay(events []*domain.SwapEvent) (*Replayed, []Divergence) {
	r := &Replayed{
		Events:  len(events),
		Open:    make(map[string]uint64),
		Settled: make(map[string]domain.EventType),
	}
	var divergences []Divergence
	initialized := 0

	for _, e := range events {
		switch e.Type {
		case domain.EventPoolInitialized:
			initialized++

		case domain.EventDeposited:
			if _, ok := r.Open[e.SwapID]; ok {
				divergences = append(divergences, Divergence{
					Check: CheckDuplicateDeposit, SwapID: e.SwapID, Expected: "unused", Actual: "open",
				})
				continue
			}
			if settled, ok := r.Settled[e.SwapID]; ok {
				divergences = append(divergences, Divergence{
					Check: CheckDuplicateDeposit, SwapID: e.SwapID, Expected: "unused", Actual: settled.String(),
				})
				continue
			}
			r.Open[e.SwapID] = e.Amount
			r.Custody += e.Amount

		case domain.EventRedeemed, domain.EventRefunded:
			escrowed, ok := r.Open[e.SwapID]
			if !ok {
				actual := "missing"
				if settled, done := r.Settled[e.SwapID]; done {
					actual = settled.String()
				}
				divergences = append(divergences, Divergence{
					Check: CheckSettlement, SwapID: e.SwapID, Expected: "open", Actual: actual,
				})
				continue
			}
			if e.Amount != escrowed {
				divergences = append(divergences, Divergence{
					Check: CheckSettledAmount, SwapID: e.SwapID, Expected: escrowed, Actual: e.Amount,
				})
			}
			if e.Fee+e.Payout != escrowed {
				divergences = append(divergences, Divergence{
					Check: CheckConservation, SwapID: e.SwapID, Expected: escrowed, Actual: e.Fee + e.Payout,
				})
			}
			if e.Type == domain.EventRefunded && e.Fee != 0 {
				divergences = append(divergences, Divergence{
					Check: CheckRefundFee, SwapID: e.SwapID, Expected: uint64(0), Actual: e.Fee,
				})
			}
			delete(r.Open, e.SwapID)
			r.Settled[e.SwapID] = e.Type
			r.Custody -= escrowed
			r.Fees += e.Fee

		case domain.EventFeesWithdrawn:
			if e.Amount > r.Fees {
				divergences = append(divergences, Divergence{
					Check: CheckFeeWithdrawal, Expected: r.Fees, Actual: e.Amount,
				})
				r.Fees = 0
				continue
			}
			r.Fees -= e.Amount

		default:
			divergences = append(divergences, Divergence{
				Check: CheckEventType, Expected: "known type", Actual: fmt.Sprintf("%s (%s)", e.Type, e.EventID),
			})
		}
	}

	if initialized != 1 {
		divergences = append(divergences, Divergence{
			Check: CheckInitialized, Expected: 1, Actual: initialized,
		})
	}

	return r, divergences
}

package calculator

import (
	"errors"
	"fmt"
)

// ErrBalanceInvariantViolation signals a net-position set that does not sum
// to zero. Balances are conserved by construction, so this is a fatal
// internal-consistency failure in whatever produced the input, never a user
// error, and it is never silently rounded away.
var ErrBalanceInvariantViolation = errors.New("balance invariant violation")

// Settlement is a suggested transfer: Debtor pays Creditor Amount minor
// units. Suggestions never touch the ledger; executing one means recording a
// real transfer transaction, which then flows back through allocation and
// aggregation.
type Settlement struct {
	Debtor   string `json:"debtor"`
	Creditor string `json:"creditor"`
	Amount   int64  `json:"amount"`
}

// Settle reduces per-user net positions to a minimal ordered list of
// transfers that would zero every balance.
//
// Greedy matching: repeatedly pair the largest-magnitude debtor with the
// largest-magnitude creditor and move min(|debt|, |credit|) between them;
// whoever reaches zero drops out. Ties on magnitude break by ascending user
// ID, so the suggestion list is deterministic. Each round retires at least
// one party, so k unsettled members need at most k-1 transfers.
func Settle(positions map[string]int64) ([]Settlement, error) {
	var sum int64
	nonzero := 0
	for _, pos := range positions {
		sum += pos
		if pos != 0 {
			nonzero++
		}
	}
	if sum != 0 || nonzero == 1 {
		return nil, fmt.Errorf("%w: positions sum to %d with %d unsettled members",
			ErrBalanceInvariantViolation, sum, nonzero)
	}

	debtors := make(map[string]int64)   // owes, positive magnitude
	creditors := make(map[string]int64) // owed, positive magnitude
	for id, pos := range positions {
		switch {
		case pos < 0:
			debtors[id] = -pos
		case pos > 0:
			creditors[id] = pos
		}
	}

	var settlements []Settlement
	for len(debtors) > 0 && len(creditors) > 0 {
		debtor := pickLargest(debtors)
		creditor := pickLargest(creditors)

		amount := debtors[debtor]
		if creditors[creditor] < amount {
			amount = creditors[creditor]
		}
		settlements = append(settlements, Settlement{Debtor: debtor, Creditor: creditor, Amount: amount})

		debtors[debtor] -= amount
		creditors[creditor] -= amount
		if debtors[debtor] == 0 {
			delete(debtors, debtor)
		}
		if creditors[creditor] == 0 {
			delete(creditors, creditor)
		}
	}
	return settlements, nil
}

// pickLargest returns the key with the largest value, ties broken by
// ascending key.
func pickLargest(m map[string]int64) string {
	var best string
	var bestVal int64 = -1
	for id, val := range m {
		if val > bestVal || (val == bestVal && id < best) {
			best = id
			bestVal = val
		}
	}
	return best
}

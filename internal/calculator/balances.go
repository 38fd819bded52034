package calculator

import (
	"fmt"
	"sort"
)

// EntryKind mirrors the two transaction kinds the aggregator consumes.
type EntryKind string

const (
	EntryExpense  EntryKind = "expense"
	EntryTransfer EntryKind = "transfer"
)

// Entry is a transaction reduced to what balance aggregation needs: who the
// shares are owed to and the live share amounts, already normalized into the
// reporting currency.
//
// For an expense, CounterpartyID is the payer and each share is what that
// participant owes the payer. For a transfer, CounterpartyID is the sender
// and each share is the amount delivered to a recipient, which offsets that
// recipient's claim symmetrically to an expense paid by the sender.
type Entry struct {
	Kind           EntryKind
	CounterpartyID string
	Shares         []Allocation
}

// Pair identifies an unordered pair of members, ordered so Low < High.
type Pair struct {
	Low  string
	High string
}

// PairOf builds the canonical pair for two user IDs.
func PairOf(a, b string) Pair {
	if a < b {
		return Pair{Low: a, High: b}
	}
	return Pair{Low: b, High: a}
}

// AggregateBalances folds ledger entries into the pairwise net-debt map.
// A positive value means the High member owes the Low member; negative means
// the reverse. Accumulation is plain integer addition per pair, so the result
// is independent of entry order and of how the entry set was batched.
//
// Shares held by the counterparty itself are skipped: self-debt is a no-op.
// Pairs that net out to zero are dropped from the map.
func AggregateBalances(entries []Entry) map[Pair]int64 {
	nets := make(map[Pair]int64)
	for _, e := range entries {
		for _, share := range e.Shares {
			if share.UserID == e.CounterpartyID || share.Amount == 0 {
				continue
			}
			// share.UserID owes e.CounterpartyID share.Amount.
			pair := PairOf(share.UserID, e.CounterpartyID)
			if pair.Low == e.CounterpartyID {
				nets[pair] += share.Amount
			} else {
				nets[pair] -= share.Amount
			}
		}
	}
	for pair, net := range nets {
		if net == 0 {
			delete(nets, pair)
		}
	}
	return nets
}

// NetPositions collapses the pairwise map into a per-user net balance:
// positive means the user is owed money overall, negative means the user
// owes. The values always sum to zero by construction.
func NetPositions(nets map[Pair]int64) map[string]int64 {
	positions := make(map[string]int64)
	for pair, net := range nets {
		positions[pair.Low] += net
		positions[pair.High] -= net
	}
	for id, pos := range positions {
		if pos == 0 {
			delete(positions, id)
		}
	}
	return positions
}

// BalanceLine is one row of a pairwise balance report.
type BalanceLine struct {
	Debtor   string `json:"debtor"`
	Creditor string `json:"creditor"`
	Amount   int64  `json:"amount"`
}

// BalanceLines renders the net-debt map as debtor/creditor rows sorted by
// (debtor, creditor) for stable output.
func BalanceLines(nets map[Pair]int64) []BalanceLine {
	lines := make([]BalanceLine, 0, len(nets))
	for pair, net := range nets {
		switch {
		case net > 0:
			lines = append(lines, BalanceLine{Debtor: pair.High, Creditor: pair.Low, Amount: net})
		case net < 0:
			lines = append(lines, BalanceLine{Debtor: pair.Low, Creditor: pair.High, Amount: -net})
		}
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].Debtor != lines[j].Debtor {
			return lines[i].Debtor < lines[j].Debtor
		}
		return lines[i].Creditor < lines[j].Creditor
	})
	return lines
}

// String implements fmt.Stringer for debug logging.
func (p Pair) String() string {
	return fmt.Sprintf("%s<->%s", p.Low, p.High)
}

// Package calculator holds the pure computation core of the ledger: split
// allocation, balance aggregation, and settlement optimization. Everything
// here is deterministic over fixed-point int64 minor units; identical inputs
// always produce identical outputs, which is what makes recomputation after
// edits idempotent.
package calculator

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrInvalidParticipantSet is returned for an empty participant list, a
	// duplicate participant, or a party that is not a group member.
	ErrInvalidParticipantSet = errors.New("invalid participant set")

	// ErrInvalidWeight is returned when a shares-split weight is not a
	// positive integer.
	ErrInvalidWeight = errors.New("invalid shares weight")

	// ErrAllocationMismatch is returned when custom amounts do not sum
	// exactly to the transaction amount. Never auto-corrected.
	ErrAllocationMismatch = errors.New("allocation mismatch")

	// ErrInvalidAmount is returned for a negative transaction amount.
	ErrInvalidAmount = errors.New("invalid amount")
)

// SplitType selects the allocation policy.
type SplitType string

const (
	SplitEqual  SplitType = "equal"
	SplitShares SplitType = "shares"
	SplitCustom SplitType = "custom"
)

// Participant is one party of a split. Weight is consulted only for
// SplitShares, Amount only for SplitCustom.
type Participant struct {
	UserID string
	Weight int64
	Amount int64
}

// Allocation is the derived slice of one participant, in minor units.
type Allocation struct {
	UserID string
	Amount int64
	Weight int64
}

// Allocate divides amount (minor units) among the participants according to
// the split type. The returned allocations are ordered by ascending user ID
// and always sum exactly to amount.
//
// Remainder handling:
//   - equal: amount/N each, the first amount%N participants (ascending user
//     ID) get one extra minor unit;
//   - shares: floor(amount*w/Σw) each, leftover minor units go one at a time
//     to the largest fractional remainders, ties broken by ascending user ID;
//   - custom: caller-supplied amounts, validated to sum exactly.
func Allocate(amount int64, split SplitType, participants []Participant) ([]Allocation, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	if len(participants) == 0 {
		return nil, fmt.Errorf("%w: no participants", ErrInvalidParticipantSet)
	}

	sorted := make([]Participant, len(participants))
	copy(sorted, participants)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UserID < sorted[j].UserID })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].UserID == sorted[i-1].UserID {
			return nil, fmt.Errorf("%w: duplicate participant %s", ErrInvalidParticipantSet, sorted[i].UserID)
		}
	}

	switch split {
	case SplitEqual:
		return allocateEqual(amount, sorted), nil
	case SplitShares:
		return allocateShares(amount, sorted)
	case SplitCustom:
		return allocateCustom(amount, sorted)
	default:
		return nil, fmt.Errorf("unknown split type %q", split)
	}
}

func allocateEqual(amount int64, sorted []Participant) []Allocation {
	n := int64(len(sorted))
	base := amount / n
	rem := amount % n

	out := make([]Allocation, len(sorted))
	for i, p := range sorted {
		share := base
		if int64(i) < rem {
			share++
		}
		out[i] = Allocation{UserID: p.UserID, Amount: share}
	}
	return out
}

// maxShareWeight bounds individual shares weights. Weights are ratios, not
// amounts; anything above this is a data-entry error, and the bound keeps
// weight sums well inside int64.
const maxShareWeight = 1_000_000

func allocateShares(amount int64, sorted []Participant) ([]Allocation, error) {
	var totalWeight int64
	for _, p := range sorted {
		if p.Weight <= 0 {
			return nil, fmt.Errorf("%w: user %s has weight %d", ErrInvalidWeight, p.UserID, p.Weight)
		}
		if p.Weight > maxShareWeight {
			return nil, fmt.Errorf("%w: user %s has weight %d, max %d", ErrInvalidWeight, p.UserID, p.Weight, maxShareWeight)
		}
		totalWeight += p.Weight
	}
	// Every product below is at most amount*totalWeight, so this single check
	// rules out int64 overflow for the whole loop.
	if amount > math.MaxInt64/totalWeight {
		return nil, fmt.Errorf("%w: %d cannot be split over total weight %d", ErrInvalidAmount, amount, totalWeight)
	}

	out := make([]Allocation, len(sorted))
	remainders := make([]int64, len(sorted))
	var allocated int64
	for i, p := range sorted {
		product := amount * p.Weight
		out[i] = Allocation{UserID: p.UserID, Amount: product / totalWeight, Weight: p.Weight}
		remainders[i] = product % totalWeight
		allocated += out[i].Amount
	}

	// Leftover minor units go to the largest fractional remainders first;
	// ties fall back to ascending user ID (the slice is already sorted).
	order := make([]int, len(sorted))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]] > remainders[order[b]]
	})
	leftover := amount - allocated
	for i := int64(0); i < leftover; i++ {
		out[order[i]].Amount++
	}

	return out, nil
}

func allocateCustom(amount int64, sorted []Participant) ([]Allocation, error) {
	var sum int64
	for _, p := range sorted {
		if p.Amount < 0 {
			return nil, fmt.Errorf("%w: user %s has negative amount %d", ErrAllocationMismatch, p.UserID, p.Amount)
		}
		sum += p.Amount
	}
	if sum != amount {
		return nil, fmt.Errorf("%w: shares sum to %d, want %d", ErrAllocationMismatch, sum, amount)
	}

	out := make([]Allocation, len(sorted))
	for i, p := range sorted {
		out[i] = Allocation{UserID: p.UserID, Amount: p.Amount}
	}
	return out, nil
}

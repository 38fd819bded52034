package calculator

import (
	"errors"
	"testing"
)

func TestSettle(t *testing.T) {
	tests := []struct {
		name      string
		positions map[string]int64
		want      []Settlement
		wantErr   error
	}{
		{
			name:      "empty positions",
			positions: map[string]int64{},
			want:      nil,
		},
		{
			name:      "all zero",
			positions: map[string]int64{"a": 0, "b": 0},
			want:      nil,
		},
		{
			name:      "single pair",
			positions: map[string]int64{"a": 5000, "b": -5000},
			want:      []Settlement{{Debtor: "b", Creditor: "a", Amount: 5000}},
		},
		{
			name:      "chain collapses to two transfers",
			positions: map[string]int64{"a": 6667, "b": -3334, "c": -3333},
			want: []Settlement{
				{Debtor: "b", Creditor: "a", Amount: 3334},
				{Debtor: "c", Creditor: "a", Amount: 3333},
			},
		},
		{
			name:      "largest magnitudes matched first",
			positions: map[string]int64{"a": 100, "b": 900, "c": -400, "d": -600},
			want: []Settlement{
				{Debtor: "d", Creditor: "b", Amount: 600},
				{Debtor: "c", Creditor: "b", Amount: 300},
				{Debtor: "c", Creditor: "a", Amount: 100},
			},
		},
		{
			name:      "magnitude ties break by ascending id",
			positions: map[string]int64{"b": 100, "a": 100, "d": -100, "c": -100},
			want: []Settlement{
				{Debtor: "c", Creditor: "a", Amount: 100},
				{Debtor: "d", Creditor: "b", Amount: 100},
			},
		},
		{
			name:      "non-conserving positions rejected",
			positions: map[string]int64{"a": 100, "b": -50},
			wantErr:   ErrBalanceInvariantViolation,
		},
		{
			name:      "settled members are ignored",
			positions: map[string]int64{"a": 0, "b": 0, "c": 0, "lonely": 0, "x": 1, "y": -1},
			want:      []Settlement{{Debtor: "y", Creditor: "x", Amount: 1}},
		},
		{
			name:      "single nonzero member is an invariant violation",
			positions: map[string]int64{"a": 100},
			wantErr:   ErrBalanceInvariantViolation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Settle(tt.positions)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Settle() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Settle() unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d settlements, want %d: %v", len(got), len(tt.want), got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("settlement %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSettleZeroesEveryBalance(t *testing.T) {
	positions := map[string]int64{
		"a": 123456, "b": -99999, "c": 4543, "d": -28000, "e": 0, "f": 0,
	}

	settlements, err := Settle(positions)
	if err != nil {
		t.Fatalf("Settle() failed: %v", err)
	}

	remaining := make(map[string]int64, len(positions))
	for id, pos := range positions {
		remaining[id] = pos
	}
	for _, s := range settlements {
		remaining[s.Debtor] += s.Amount
		remaining[s.Creditor] -= s.Amount
	}
	for id, pos := range remaining {
		if pos != 0 {
			t.Errorf("user %s left with balance %d after applying settlements", id, pos)
		}
	}
}

func TestSettleTransferBound(t *testing.T) {
	// k nonzero-balance members settle in at most k-1 transfers.
	positions := map[string]int64{
		"u1": 500, "u2": 300, "u3": 200, "u4": -400, "u5": -350, "u6": -250,
	}

	settlements, err := Settle(positions)
	if err != nil {
		t.Fatalf("Settle() failed: %v", err)
	}
	if len(settlements) > len(positions)-1 {
		t.Errorf("got %d transfers for %d members, want at most %d",
			len(settlements), len(positions), len(positions)-1)
	}
}

package calculator

import (
	"errors"
	"math"
	"testing"
)

func TestAllocate(t *testing.T) {
	tests := []struct {
		name         string
		amount       int64
		split        SplitType
		participants []Participant
		wantErr      error
		want         map[string]int64
	}{
		{
			name:   "equal split with remainder",
			amount: 10000, // 100.00
			split:  SplitEqual,
			participants: []Participant{
				{UserID: "carol"}, {UserID: "alice"}, {UserID: "bob"},
			},
			// remainder of 1 minor unit goes to the first participant by id
			want: map[string]int64{"alice": 3334, "bob": 3333, "carol": 3333},
		},
		{
			name:   "equal split exact",
			amount: 9000,
			split:  SplitEqual,
			participants: []Participant{
				{UserID: "alice"}, {UserID: "bob"}, {UserID: "carol"},
			},
			want: map[string]int64{"alice": 3000, "bob": 3000, "carol": 3000},
		},
		{
			name:         "equal split single participant",
			amount:       555,
			split:        SplitEqual,
			participants: []Participant{{UserID: "alice"}},
			want:         map[string]int64{"alice": 555},
		},
		{
			name:   "shares split proportional",
			amount: 10000,
			split:  SplitShares,
			participants: []Participant{
				{UserID: "alice", Weight: 2},
				{UserID: "bob", Weight: 1},
				{UserID: "carol", Weight: 1},
			},
			want: map[string]int64{"alice": 5000, "bob": 2500, "carol": 2500},
		},
		{
			name:   "shares split remainder goes to largest fraction",
			amount: 100,
			split:  SplitShares,
			participants: []Participant{
				{UserID: "alice", Weight: 1},
				{UserID: "bob", Weight: 1},
				{UserID: "carol", Weight: 1},
			},
			// 33 each, remainders all equal, extra unit by ascending id
			want: map[string]int64{"alice": 34, "bob": 33, "carol": 33},
		},
		{
			name:   "shares split uneven weights",
			amount: 1000,
			split:  SplitShares,
			participants: []Participant{
				{UserID: "alice", Weight: 1},
				{UserID: "bob", Weight: 2},
			},
			// floor: 333 + 666 = 999, leftover unit to bob (remainder 2/3 > 1/3)
			want: map[string]int64{"alice": 333, "bob": 667},
		},
		{
			name:   "custom split exact",
			amount: 5000,
			split:  SplitCustom,
			participants: []Participant{
				{UserID: "alice", Amount: 1250},
				{UserID: "bob", Amount: 3750},
			},
			want: map[string]int64{"alice": 1250, "bob": 3750},
		},
		{
			name:   "custom split mismatch",
			amount: 5000,
			split:  SplitCustom,
			participants: []Participant{
				{UserID: "alice", Amount: 1250},
				{UserID: "bob", Amount: 3751},
			},
			wantErr: ErrAllocationMismatch,
		},
		{
			name:         "empty participants",
			amount:       100,
			split:        SplitEqual,
			participants: nil,
			wantErr:      ErrInvalidParticipantSet,
		},
		{
			name:   "duplicate participant",
			amount: 100,
			split:  SplitEqual,
			participants: []Participant{
				{UserID: "alice"}, {UserID: "alice"},
			},
			wantErr: ErrInvalidParticipantSet,
		},
		{
			name:   "zero weight",
			amount: 100,
			split:  SplitShares,
			participants: []Participant{
				{UserID: "alice", Weight: 0},
				{UserID: "bob", Weight: 1},
			},
			wantErr: ErrInvalidWeight,
		},
		{
			name:   "weight above limit",
			amount: 100,
			split:  SplitShares,
			participants: []Participant{
				{UserID: "alice", Weight: 1},
				{UserID: "bob", Weight: maxShareWeight + 1},
			},
			wantErr: ErrInvalidWeight,
		},
		{
			name:   "amount times weight overflows",
			amount: math.MaxInt64 / 2,
			split:  SplitShares,
			participants: []Participant{
				{UserID: "alice", Weight: 2},
				{UserID: "bob", Weight: 1},
			},
			wantErr: ErrInvalidAmount,
		},
		{
			name:         "negative amount",
			amount:       -1,
			split:        SplitEqual,
			participants: []Participant{{UserID: "alice"}},
			wantErr:      ErrInvalidAmount,
		},
		{
			name:   "zero amount equal split",
			amount: 0,
			split:  SplitEqual,
			participants: []Participant{
				{UserID: "alice"}, {UserID: "bob"},
			},
			want: map[string]int64{"alice": 0, "bob": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Allocate(tt.amount, tt.split, tt.participants)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Allocate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Allocate() unexpected error: %v", err)
			}

			var sum int64
			for _, a := range got {
				sum += a.Amount
				if want, ok := tt.want[a.UserID]; !ok || want != a.Amount {
					t.Errorf("user %s allocated %d, want %d", a.UserID, a.Amount, want)
				}
			}
			if sum != tt.amount {
				t.Errorf("allocations sum to %d, want %d", sum, tt.amount)
			}
			if len(got) != len(tt.want) {
				t.Errorf("got %d allocations, want %d", len(got), len(tt.want))
			}
		})
	}
}

func TestAllocateDeterministic(t *testing.T) {
	participants := []Participant{
		{UserID: "u3", Weight: 3},
		{UserID: "u1", Weight: 5},
		{UserID: "u2", Weight: 7},
		{UserID: "u4", Weight: 11},
	}

	first, err := Allocate(99999, SplitShares, participants)
	if err != nil {
		t.Fatalf("Allocate() failed: %v", err)
	}
	for i := 0; i < 50; i++ {
		again, err := Allocate(99999, SplitShares, participants)
		if err != nil {
			t.Fatalf("Allocate() failed on run %d: %v", i, err)
		}
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("run %d diverged: got %+v, want %+v", i, again[j], first[j])
			}
		}
	}
}

func TestAllocateEqualSumsExactly(t *testing.T) {
	// Every participant count against an awkward amount must sum exactly.
	for n := 1; n <= 13; n++ {
		participants := make([]Participant, n)
		for i := range participants {
			participants[i] = Participant{UserID: string(rune('a' + i))}
		}
		got, err := Allocate(10007, SplitEqual, participants)
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		var sum int64
		for _, a := range got {
			sum += a.Amount
		}
		if sum != 10007 {
			t.Errorf("n=%d: allocations sum to %d, want 10007", n, sum)
		}
	}
}

package currency

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrMissingRate is returned when a conversion is requested for a pair the
// rate provider does not cover. Rates are supplied by an external
// collaborator; this package never fetches or invents them.
var ErrMissingRate = errors.New("missing exchange rate")

// RateProvider supplies the conversion rate from one currency to another,
// expressed in major units (1 FROM = rate TO).
type RateProvider interface {
	Rate(from, to string) (decimal.Decimal, error)
}

// StaticRates is a RateProvider over a fixed rate set, keyed "FROM/TO".
// The zero map is a valid provider that knows no rates.
//
// A pair with no entry of its own is served from the reciprocal of the
// reverse entry, rounded to 12 decimal places. That rounding means a derived
// rate can differ in the last minor unit from an explicitly supplied reverse
// rate; supply both directions when exact round-trips matter.
type StaticRates map[string]decimal.Decimal

// Rate implements RateProvider.
func (r StaticRates) Rate(from, to string) (decimal.Decimal, error) {
	if rate, ok := r[from+"/"+to]; ok {
		return rate, nil
	}
	// A known inverse still serves the pair.
	if inv, ok := r[to+"/"+from]; ok && !inv.IsZero() {
		return decimal.NewFromInt(1).DivRound(inv, 12), nil
	}
	return decimal.Decimal{}, fmt.Errorf("%w: %s/%s", ErrMissingRate, from, to)
}

// Normalizer converts minor-unit amounts between currencies with a single
// canonical rounding policy: half away from zero, to the target currency's
// decimal precision.
type Normalizer struct {
	table *Table
	rates RateProvider
}

// NewNormalizer builds a normalizer over the reference table and a supplied
// rate source.
func NewNormalizer(table *Table, rates RateProvider) *Normalizer {
	return &Normalizer{table: table, rates: rates}
}

// Normalize converts amount from minor units of `from` into minor units of
// `to`. A matching pair returns the amount untouched so single-currency
// groups never accumulate rounding drift. Unknown codes yield ErrUnknown;
// an uncovered pair yields ErrMissingRate.
func (n *Normalizer) Normalize(amount int64, from, to string) (int64, error) {
	src, err := n.table.Get(from)
	if err != nil {
		return 0, err
	}
	dst, err := n.table.Get(to)
	if err != nil {
		return 0, err
	}
	if src.Code == dst.Code {
		return amount, nil
	}
	if n.rates == nil {
		return 0, fmt.Errorf("%w: %s/%s", ErrMissingRate, src.Code, dst.Code)
	}

	rate, err := n.rates.Rate(src.Code, dst.Code)
	if err != nil {
		return 0, err
	}

	major := decimal.New(amount, -int32(src.Decimals))
	converted := major.Mul(rate).Shift(int32(dst.Decimals))
	// decimal.Round rounds half away from zero, the ledger-wide policy.
	return converted.Round(0).IntPart(), nil
}

package currency

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableGet(t *testing.T) {
	table := DefaultTable()

	rub, err := table.Get("RUB")
	require.NoError(t, err)
	assert.Equal(t, 2, rub.Decimals)
	assert.Equal(t, 643, rub.NumericCode)

	jpy, err := table.Get("jpy")
	require.NoError(t, err, "lookup is case-insensitive")
	assert.Equal(t, 0, jpy.Decimals)

	_, err = table.Get("XXX")
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestTableAllPopularFirst(t *testing.T) {
	rows := DefaultTable().All()
	require.NotEmpty(t, rows)

	seenRegular := false
	for _, c := range rows {
		if !c.Popular {
			seenRegular = true
		} else {
			assert.False(t, seenRegular, "popular currency %s listed after regular ones", c.Code)
		}
	}
}

func TestNormalizeSameCurrency(t *testing.T) {
	n := NewNormalizer(DefaultTable(), StaticRates{})

	got, err := n.Normalize(12345, "RUB", "RUB")
	require.NoError(t, err)
	assert.Equal(t, int64(12345), got, "matching pair must pass through untouched")
}

func TestNormalizeConverts(t *testing.T) {
	rates := StaticRates{
		"USD/RUB": decimal.RequireFromString("92.5"),
		"EUR/JPY": decimal.RequireFromString("161.37"),
		"RUB/BHD": decimal.RequireFromString("0.00408"),
	}
	n := NewNormalizer(DefaultTable(), rates)

	// 10.00 USD * 92.5 = 925.00 RUB
	got, err := n.Normalize(1000, "USD", "RUB")
	require.NoError(t, err)
	assert.Equal(t, int64(92500), got)

	// 1.00 EUR = 161.37 JPY -> 161 yen (0 decimals, half away from zero)
	got, err = n.Normalize(100, "EUR", "JPY")
	require.NoError(t, err)
	assert.Equal(t, int64(161), got)

	// 100.00 RUB * 0.00408 = 0.408 BHD -> 408 fils (3 decimals)
	got, err = n.Normalize(10000, "RUB", "BHD")
	require.NoError(t, err)
	assert.Equal(t, int64(408), got)
}

func TestNormalizeRoundsHalfAwayFromZero(t *testing.T) {
	rates := StaticRates{"USD/JPY": decimal.RequireFromString("0.5")}
	n := NewNormalizer(DefaultTable(), rates)

	// 1.01 USD * 0.5 = 0.505 JPY -> 1, not 0
	got, err := n.Normalize(101, "USD", "JPY")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	// -1.01 USD * 0.5 = -0.505 JPY -> -1
	got, err = n.Normalize(-101, "USD", "JPY")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), got)
}

func TestNormalizeInverseRate(t *testing.T) {
	rates := StaticRates{"USD/RUB": decimal.RequireFromString("100")}
	n := NewNormalizer(DefaultTable(), rates)

	// Only USD/RUB is supplied; RUB/USD is derived as the inverse.
	got, err := n.Normalize(10000, "RUB", "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got, "100.00 RUB at 100 RUB/USD is 1.00 USD")

	// A derived inverse is the reciprocal rounded to 12 places, which may
	// differ in the last place from an explicitly supplied reverse rate.
	rates = StaticRates{"EUR/USD": decimal.RequireFromString("3")}
	rate, err := rates.Rate("USD", "EUR")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.333333333333")), "derived rate %s", rate)
}

func TestNormalizeMissingRate(t *testing.T) {
	n := NewNormalizer(DefaultTable(), StaticRates{})

	_, err := n.Normalize(100, "USD", "RUB")
	assert.ErrorIs(t, err, ErrMissingRate)

	n = NewNormalizer(DefaultTable(), nil)
	_, err = n.Normalize(100, "USD", "RUB")
	assert.ErrorIs(t, err, ErrMissingRate)
}

func TestNormalizeUnknownCurrency(t *testing.T) {
	n := NewNormalizer(DefaultTable(), StaticRates{})

	_, err := n.Normalize(100, "ZZZ", "RUB")
	assert.ErrorIs(t, err, ErrUnknown)

	_, err = n.Normalize(100, "RUB", "ZZZ")
	assert.ErrorIs(t, err, ErrUnknown)
}

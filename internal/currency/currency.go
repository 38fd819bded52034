// Package currency carries the ISO-4217 reference table and the rate-based
// normalizer used when a group's transactions mix currencies.
package currency

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknown is returned when a currency code is absent from the reference
// table. Transactions must never be recorded in a currency the table does
// not know, since its decimal precision drives all rounding.
var ErrUnknown = errors.New("unknown currency")

// Currency is one reference row: an ISO-4217 currency and its display
// metadata. Decimals is the number of minor-unit digits (2 for USD, 0 for
// JPY) and defines the fixed-point scale of every amount in that currency.
type Currency struct {
	Code        string
	NumericCode int
	Decimals    int
	Symbol      string
	NameEN      string
	NameRU      string
	Popular     bool
}

// Table is the in-memory currency reference, keyed by uppercase code.
type Table struct {
	byCode map[string]Currency
}

// NewTable builds a table from the given rows.
func NewTable(rows []Currency) *Table {
	byCode := make(map[string]Currency, len(rows))
	for _, c := range rows {
		byCode[strings.ToUpper(c.Code)] = c
	}
	return &Table{byCode: byCode}
}

// DefaultTable returns the seeded reference set.
func DefaultTable() *Table {
	return NewTable(seed)
}

// Get looks up a currency by code (case-insensitive).
func (t *Table) Get(code string) (Currency, error) {
	c, ok := t.byCode[strings.ToUpper(code)]
	if !ok {
		return Currency{}, fmt.Errorf("%w: %q", ErrUnknown, code)
	}
	return c, nil
}

// Decimals returns the minor-unit precision for code.
func (t *Table) Decimals(code string) (int, error) {
	c, err := t.Get(code)
	if err != nil {
		return 0, err
	}
	return c.Decimals, nil
}

// All returns every row sorted by code, popular currencies first.
func (t *Table) All() []Currency {
	rows := make([]Currency, 0, len(t.byCode))
	for _, c := range t.byCode {
		rows = append(rows, c)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Popular != rows[j].Popular {
			return rows[i].Popular
		}
		return rows[i].Code < rows[j].Code
	})
	return rows
}

// seed mirrors the production reference data: the popular set first, then
// the zero- and three-decimal currencies that make rounding interesting.
var seed = []Currency{
	{Code: "RUB", NumericCode: 643, Decimals: 2, Symbol: "₽", NameEN: "Russian Ruble", NameRU: "Российский рубль", Popular: true},
	{Code: "USD", NumericCode: 840, Decimals: 2, Symbol: "$", NameEN: "US Dollar", NameRU: "Доллар США", Popular: true},
	{Code: "EUR", NumericCode: 978, Decimals: 2, Symbol: "€", NameEN: "Euro", NameRU: "Евро", Popular: true},
	{Code: "GBP", NumericCode: 826, Decimals: 2, Symbol: "£", NameEN: "British Pound", NameRU: "Британский фунт", Popular: true},
	{Code: "UAH", NumericCode: 980, Decimals: 2, Symbol: "₴", NameEN: "Ukrainian Hryvnia", NameRU: "Украинская гривна", Popular: true},
	{Code: "KZT", NumericCode: 398, Decimals: 2, Symbol: "₸", NameEN: "Kazakhstani Tenge", NameRU: "Казахстанский тенге", Popular: true},
	{Code: "TRY", NumericCode: 949, Decimals: 2, Symbol: "₺", NameEN: "Turkish Lira", NameRU: "Турецкая лира", Popular: true},
	{Code: "AED", NumericCode: 784, Decimals: 2, Symbol: "د.إ", NameEN: "UAE Dirham", NameRU: "Дирхам ОАЭ"},
	{Code: "AMD", NumericCode: 51, Decimals: 2, Symbol: "֏", NameEN: "Armenian Dram", NameRU: "Армянский драм"},
	{Code: "GEL", NumericCode: 981, Decimals: 2, Symbol: "₾", NameEN: "Georgian Lari", NameRU: "Грузинский лари"},
	{Code: "RSD", NumericCode: 941, Decimals: 2, Symbol: "дин.", NameEN: "Serbian Dinar", NameRU: "Сербский динар"},
	{Code: "THB", NumericCode: 764, Decimals: 2, Symbol: "฿", NameEN: "Thai Baht", NameRU: "Таиландский бат"},
	{Code: "CNY", NumericCode: 156, Decimals: 2, Symbol: "¥", NameEN: "Chinese Yuan", NameRU: "Китайский юань"},
	{Code: "CHF", NumericCode: 756, Decimals: 2, Symbol: "Fr", NameEN: "Swiss Franc", NameRU: "Швейцарский франк"},
	{Code: "JPY", NumericCode: 392, Decimals: 0, Symbol: "¥", NameEN: "Japanese Yen", NameRU: "Японская иена"},
	{Code: "KRW", NumericCode: 410, Decimals: 0, Symbol: "₩", NameEN: "South Korean Won", NameRU: "Южнокорейская вона"},
	{Code: "VND", NumericCode: 704, Decimals: 0, Symbol: "₫", NameEN: "Vietnamese Dong", NameRU: "Вьетнамский донг"},
	{Code: "BHD", NumericCode: 48, Decimals: 3, Symbol: ".د.ب", NameEN: "Bahraini Dinar", NameRU: "Бахрейнский динар"},
	{Code: "KWD", NumericCode: 414, Decimals: 3, Symbol: "د.ك", NameEN: "Kuwaiti Dinar", NameRU: "Кувейтский динар"},
	{Code: "OMR", NumericCode: 512, Decimals: 3, Symbol: "ر.ع.", NameEN: "Omani Rial", NameRU: "Оманский риал"},
}

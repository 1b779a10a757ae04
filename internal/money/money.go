// Package money provides a fixed-point monetary value.
//
// Amounts are held as int64 counts of the currency's minor unit (cents for
// EUR/USD, whole yen for JPY). Arithmetic never touches floating point.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount    = errors.New("money: invalid amount")
	ErrTooManyDecimals  = errors.New("money: more decimals than the currency allows")
	ErrCurrencyRequired = errors.New("money: currency required")
	ErrOverflow         = errors.New("money: amount out of range")
)

// MaxMinor bounds the magnitude of any amount accepted from outside and of
// every checked sum.
const MaxMinor int64 = 1_000_000_000_000_000_000

// Money is an amount in the smallest unit of Currency.
type Money struct {
	Amount   int64
	Currency string // ISO 4217, lowercase
}

// New returns a Money of minor units in currency.
func New(minor int64, currency string) Money {
	return Money{Amount: minor, Currency: normalize(currency)}
}

// Zero returns a zero amount in currency.
func Zero(currency string) Money {
	return New(0, currency)
}

// Parse reads a decimal major-unit string such as "10.01".
func Parse(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromDecimal(d, currency)
}

// FromDecimal converts a major-unit decimal into minor units. It refuses
// values that cannot be represented exactly.
func FromDecimal(d decimal.Decimal, currency string) (Money, error) {
	if strings.TrimSpace(currency) == "" {
		return Money{}, ErrCurrencyRequired
	}
	shifted := d.Shift(int32(Decimals(currency)))
	if !shifted.Equal(shifted.Truncate(0)) {
		return Money{}, fmt.Errorf("%w: %s %s", ErrTooManyDecimals, d.String(), currency)
	}
	if shifted.Abs().GreaterThan(decimal.NewFromInt(MaxMinor)) {
		return Money{}, fmt.Errorf("%w: %s out of range", ErrInvalidAmount, d.String())
	}
	return New(shifted.IntPart(), currency), nil
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -int32(Decimals(m.Currency)))
}

// Add returns m + other. Panics on currency mismatch.
func (m Money) Add(other Money) Money {
	m.mustMatch(other)
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}
}

// CheckedAdd returns m + other, or ErrOverflow if the result would leave
// [-MaxMinor, MaxMinor]. Panics on currency mismatch.
func (m Money) CheckedAdd(other Money) (Money, error) {
	m.mustMatch(other)
	a, b := m.Amount, other.Amount
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) || sum > MaxMinor || sum < -MaxMinor {
		return Money{}, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return Money{Amount: sum, Currency: m.Currency}, nil
}

// CheckedSub returns m - other with the same bounds as CheckedAdd.
func (m Money) CheckedSub(other Money) (Money, error) {
	if other.Amount < -MaxMinor || other.Amount > MaxMinor {
		return Money{}, fmt.Errorf("%w: %d", ErrOverflow, other.Amount)
	}
	return m.CheckedAdd(other.Neg())
}

// Sub returns m - other. Panics on currency mismatch.
func (m Money) Sub(other Money) Money {
	m.mustMatch(other)
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}
}

func (m Money) Neg() Money {
	return Money{Amount: -m.Amount, Currency: m.Currency}
}

func (m Money) Abs() Money {
	if m.Amount < 0 {
		return m.Neg()
	}
	return m
}

// Min returns the smaller of m and other. Panics on currency mismatch.
func (m Money) Min(other Money) Money {
	m.mustMatch(other)
	if other.Amount < m.Amount {
		return other
	}
	return m
}

// Cmp compares amounts: -1 if m < other, 0 if equal, +1 if m > other.
func (m Money) Cmp(other Money) int {
	m.mustMatch(other)
	switch {
	case m.Amount < other.Amount:
		return -1
	case m.Amount > other.Amount:
		return 1
	default:
		return 0
	}
}

func (m Money) IsZero() bool     { return m.Amount == 0 }
func (m Money) IsPositive() bool { return m.Amount > 0 }
func (m Money) IsNegative() bool { return m.Amount < 0 }

// SameCurrency reports whether m and other can be combined.
func (m Money) SameCurrency(other Money) bool {
	return m.Currency == other.Currency
}

// Split divides m into n parts whose sum is exactly m. Every part gets
// floor(m/n) minor units and the remainder is handed out one unit at a time
// starting with the first part.
func (m Money) Split(n int) ([]Money, error) {
	if n <= 0 {
		return nil, fmt.Errorf("money: cannot split into %d parts", n)
	}
	if m.Amount < 0 {
		return nil, fmt.Errorf("%w: cannot split negative amount", ErrInvalidAmount)
	}
	base := m.Amount / int64(n)
	rem := m.Amount % int64(n)
	parts := make([]Money, n)
	for i := range parts {
		parts[i] = Money{Amount: base, Currency: m.Currency}
		if int64(i) < rem {
			parts[i].Amount++
		}
	}
	return parts, nil
}

// FormatMajor renders the amount in major units without a symbol, e.g. "10.01".
func (m Money) FormatMajor() string {
	return m.Decimal().StringFixed(int32(Decimals(m.Currency)))
}

// String renders "10.01 EUR".
func (m Money) String() string {
	return m.FormatMajor() + " " + strings.ToUpper(m.Currency)
}

type wireMoney struct {
	Amount   string `json:"amount"`
	Minor    *int64 `json:"minor,omitempty"`
	Currency string `json:"currency"`
}

// MarshalJSON encodes both the decimal and the minor-unit representation.
func (m Money) MarshalJSON() ([]byte, error) {
	minor := m.Amount
	return json.Marshal(wireMoney{
		Amount:   m.FormatMajor(),
		Minor:    &minor,
		Currency: m.Currency,
	})
}

// UnmarshalJSON accepts {"amount": "10.01", "currency": "eur"} or
// {"minor": 1001, "currency": "eur"}. When both are present they must agree.
func (m *Money) UnmarshalJSON(data []byte) error {
	var w wireMoney
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Currency == "" {
		return ErrCurrencyRequired
	}
	switch {
	case w.Amount != "":
		parsed, err := Parse(w.Amount, w.Currency)
		if err != nil {
			return err
		}
		if w.Minor != nil && *w.Minor != parsed.Amount {
			return fmt.Errorf("%w: amount %s disagrees with minor %d", ErrInvalidAmount, w.Amount, *w.Minor)
		}
		*m = parsed
	case w.Minor != nil:
		if *w.Minor > MaxMinor || *w.Minor < -MaxMinor {
			return fmt.Errorf("%w: minor %d out of range", ErrInvalidAmount, *w.Minor)
		}
		*m = New(*w.Minor, w.Currency)
	default:
		return fmt.Errorf("%w: missing amount", ErrInvalidAmount)
	}
	return nil
}

func (m Money) mustMatch(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
}

func normalize(currency string) string {
	return strings.ToLower(strings.TrimSpace(currency))
}

// zeroDecimal lists currencies without a minor unit.
var zeroDecimal = map[string]bool{
	"jpy": true,
	"krw": true,
	"vnd": true,
	"clp": true,
	"pyg": true,
	"isk": true,
}

// Decimals returns the number of minor-unit digits of currency.
func Decimals(currency string) int {
	if zeroDecimal[normalize(currency)] {
		return 0
	}
	return 2
}

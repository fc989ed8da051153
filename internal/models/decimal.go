package models

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

const (
	// MoneyIntDigits and MoneyScale describe numeric(27,9): on-chain precision.
	MoneyIntDigits = 18
	MoneyScale     = 9

	// RatioIntDigits and RatioScale describe numeric(9,4).
	RatioIntDigits = 5
	RatioScale     = 4
)

var (
	ErrMoneyOverflow = errors.New("amount exceeds 18 integer digits")
	ErrRatioOverflow = errors.New("ratio exceeds 5 integer digits")

	moneyLimit = decimal.New(1, MoneyIntDigits)
	ratioLimit = decimal.New(1, RatioIntDigits)
)

// Money is a fixed-point amount with 18 integer and 9 fractional digits.
// It is encoded on the wire as a string with exactly 9 fractional digits.
type Money struct {
	decimal.Decimal
}

// NewMoney rounds d to 9 fractional digits.
func NewMoney(d decimal.Decimal) Money {
	return Money{Decimal: d.Round(MoneyScale)}
}

// ParseMoney parses a decimal string.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	m := NewMoney(d)
	return m, m.Check()
}

// MustMoney is ParseMoney for constants and fixtures.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(fmt.Sprintf("models: bad money literal %q: %v", s, err))
	}
	return m
}

// MoneyPtr returns a pointer to a copy of m.
func MoneyPtr(m Money) *Money {
	return &m
}

// Check reports whether the integer part fits 18 digits.
func (m Money) Check() error {
	if m.Abs().GreaterThanOrEqual(moneyLimit) {
		return ErrMoneyOverflow
	}
	return nil
}

// MarshalJSON writes the fixed 9-digit string form.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.StringFixed(MoneyScale) + `"`), nil
}

// UnmarshalJSON accepts a JSON string or number and rounds to 9 digits.
func (m *Money) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	*m = NewMoney(d)
	return nil
}

// Ratio is a fixed-point value with 5 integer and 4 fractional digits,
// used for confidences, scores and fractions.
type Ratio struct {
	decimal.Decimal
}

// NewRatio rounds d to 4 fractional digits.
func NewRatio(d decimal.Decimal) Ratio {
	return Ratio{Decimal: d.Round(RatioScale)}
}

// RatioFromFloat converts a computed statistic. NaN and infinities become zero.
func RatioFromFloat(f float64) Ratio {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Ratio{}
	}
	return NewRatio(decimal.NewFromFloat(f))
}

// ParseRatio parses a decimal string.
func ParseRatio(s string) (Ratio, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Ratio{}, err
	}
	r := NewRatio(d)
	return r, r.Check()
}

// MustRatio is ParseRatio for constants and fixtures.
func MustRatio(s string) Ratio {
	r, err := ParseRatio(s)
	if err != nil {
		panic(fmt.Sprintf("models: bad ratio literal %q: %v", s, err))
	}
	return r
}

// RatioPtr returns a pointer to a copy of r.
func RatioPtr(r Ratio) *Ratio {
	return &r
}

// Check reports whether the integer part fits 5 digits.
func (r Ratio) Check() error {
	if r.Abs().GreaterThanOrEqual(ratioLimit) {
		return ErrRatioOverflow
	}
	return nil
}

// InUnitInterval reports whether 0 <= r <= 1.
func (r Ratio) InUnitInterval() bool {
	return !r.IsNegative() && r.LessThanOrEqual(decimal.NewFromInt(1))
}

// MarshalJSON writes the fixed 4-digit string form.
func (r Ratio) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.StringFixed(RatioScale) + `"`), nil
}

// UnmarshalJSON accepts a JSON string or number and rounds to 4 digits.
func (r *Ratio) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	*r = NewRatio(d)
	return nil
}

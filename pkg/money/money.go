// Package money provides currency-safe totals for import previews using
// integer minor units and ISO-4217 currency codes.
package money

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// MXN is the default reporting currency.
const MXN = "MXN"

// Money represents a monetary value with currency.
type Money struct {
	m *money.Money
}

// ValidCurrency reports whether code is a known ISO-4217 currency.
func ValidCurrency(code string) bool {
	return money.GetCurrency(strings.ToUpper(code)) != nil
}

// New creates a Money value from minor units.
func New(amountCents int64, currencyCode string) *Money {
	return &Money{m: money.New(amountCents, strings.ToUpper(currencyCode))}
}

// NewFromDecimal rounds amount half-away-from-zero to the currency's minor
// unit. Unknown currencies are treated as MXN.
func NewFromDecimal(amount decimal.Decimal, currencyCode string) *Money {
	code := strings.ToUpper(currencyCode)
	currency := money.GetCurrency(code)
	if currency == nil {
		code = MXN
		currency = money.GetCurrency(MXN)
	}

	multiplier := decimal.New(1, int32(currency.Fraction))
	cents := amount.Mul(multiplier).Round(0).IntPart()
	return New(cents, code)
}

// Sum totals amounts in one currency.
func Sum(amounts []decimal.Decimal, currencyCode string) *Money {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return NewFromDecimal(total, currencyCode)
}

// Amount returns the amount in minor units (cents)
func (m *Money) Amount() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Currency returns the ISO-4217 currency code
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Currency().Code
}

// IsZero returns true if the amount is zero
func (m *Money) IsZero() bool {
	return m == nil || m.m == nil || m.m.IsZero()
}

// Display returns a formatted string for display (e.g., "$1,234.56")
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return "$0.00"
	}
	return m.m.Display()
}

// String returns the amount as a decimal string (e.g., "1234.56")
func (m *Money) String() string {
	if m == nil || m.m == nil {
		return "0.00"
	}
	return m.ToDecimal().StringFixed(int32(m.m.Currency().Fraction))
}

// ToDecimal converts to decimal.Decimal for precise calculations
func (m *Money) ToDecimal() decimal.Decimal {
	if m == nil || m.m == nil {
		return decimal.Zero
	}
	currency := m.m.Currency()
	d := decimal.NewFromInt(m.m.Amount())
	divisor := decimal.New(1, int32(currency.Fraction))
	return d.Div(divisor)
}

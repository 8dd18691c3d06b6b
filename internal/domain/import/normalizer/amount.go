// Package normalizer turns raw spreadsheet cells into canonical invoice and
// external payment records.
package normalizer

import (
	"errors"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyAmount   = errors.New("empty amount")
	ErrInvalidAmount = errors.New("invalid amount")
)

// currencyTokens are removed before separators are resolved. Longer tokens
// come first so "US$" is not left as "US".
var currencyTokens = []string{"MX$", "US$", "R$", "MXN", "USD", "EUR", "$", "€", "£"}

// ParseAmount converts a money cell to a decimal. It never fails: empty or
// unparseable text yields zero.
func ParseAmount(text string) decimal.Decimal {
	d, err := ParseAmountStrict(text)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseAmountStrict is ParseAmount with failures reported.
//
// Separator roles: when both '.' and ',' appear, the right-most one is the
// decimal separator and the other is grouping. A separator repeated with no
// other kind present is grouping. A single '.' or ',' is the decimal point.
// A leading or trailing '-', or surrounding parentheses, negate the value.
func ParseAmountStrict(text string) (decimal.Decimal, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return decimal.Zero, ErrEmptyAmount
	}

	upper := strings.ToUpper(s)
	for _, tok := range currencyTokens {
		upper = strings.ReplaceAll(upper, tok, "")
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, upper)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	} else if strings.HasSuffix(s, "-") {
		negative = !negative
		s = s[:len(s)-1]
	}
	s = strings.TrimPrefix(s, "+")

	canonical, ok := resolveSeparators(s)
	if !ok {
		return decimal.Zero, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(canonical)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// resolveSeparators rewrites s to a plain "1234.56" form. It rejects
// anything other than digits and separators.
func resolveSeparators(s string) (string, bool) {
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.' || r == ',':
		default:
			return "", false
		}
	}
	if digits == 0 {
		return "", false
	}

	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")

	switch {
	case dots > 0 && commas > 0:
		decimalSep, groupSep := ",", "."
		if strings.LastIndex(s, ".") > strings.LastIndex(s, ",") {
			decimalSep, groupSep = ".", ","
		}
		if strings.Count(s, decimalSep) > 1 {
			return "", false
		}
		s = strings.ReplaceAll(s, groupSep, "")
		s = strings.Replace(s, decimalSep, ".", 1)
	case commas > 1:
		s = strings.ReplaceAll(s, ",", "")
	case dots > 1:
		s = strings.ReplaceAll(s, ".", "")
	case commas == 1:
		s = strings.Replace(s, ",", ".", 1)
	}

	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	s = strings.TrimSuffix(s, ".")
	return s, true
}

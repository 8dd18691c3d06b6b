package normalizer

import (
	"errors"
	"fmt"
	"strings"
)

// ParseFailurePolicy decides what happens to a row when one of its cells
// cannot be parsed.
type ParseFailurePolicy int

const (
	// SubstituteDefault keeps the row with a zero amount or today's date
	// and records a RowWarning.
	SubstituteDefault ParseFailurePolicy = iota
	// RejectRow drops the row and records a DroppedRow.
	RejectRow
)

func (p ParseFailurePolicy) String() string {
	if p == RejectRow {
		return "reject_row"
	}
	return "substitute_default"
}

// ParseParseFailurePolicy reads the config spelling of a policy.
func ParseParseFailurePolicy(s string) (ParseFailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "substitute_default", "substitute":
		return SubstituteDefault, nil
	case "reject_row", "reject":
		return RejectRow, nil
	}
	return SubstituteDefault, fmt.Errorf("unknown parse failure policy %q", s)
}

// DeduplicationPolicy decides how rows sharing a business key collapse.
type DeduplicationPolicy int

const (
	// FirstWins keeps the first row seen for a key and drops later ones.
	FirstWins DeduplicationPolicy = iota
	// KeepAll keeps every row; used when there is no business key.
	KeepAll
)

func (p DeduplicationPolicy) String() string {
	if p == KeepAll {
		return "keep_all"
	}
	return "first_wins"
}

var (
	// ErrRowRejected wraps cell failures under RejectRow.
	ErrRowRejected = errors.New("row rejected")
	// ErrMinimalShape marks Unknown-layout rows whose amount column is not a
	// usable amount.
	ErrMinimalShape = errors.New("row does not match the fallback layout")
	// ErrNoDeposit marks bank statement rows that only carry a withdrawal.
	ErrNoDeposit = errors.New("row has no deposit")
	// ErrMissingPayer marks payments with neither payer name nor client.
	ErrMissingPayer = errors.New("row has no payer or client number")
)

package normalizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RowWarning records a substitution made while normalizing a row so the
// person confirming the import can see it.
type RowWarning struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

func (w RowWarning) String() string {
	return fmt.Sprintf("row %d: %s %q: %s", w.Row, w.Field, w.Value, w.Message)
}

// DroppedRow is a source row that produced no record.
type DroppedRow struct {
	Row    int      `json:"row"`
	Reason string   `json:"reason"`
	Cells  []string `json:"cells"`
}

// Field names used in warnings.
const (
	FieldAmount        = "amount"
	FieldBalance       = "balance"
	FieldBranch        = "branch"
	FieldClientNumber  = "client_number"
	FieldConcept       = "concept"
	FieldDate          = "date"
	FieldDaysToDue     = "days_to_due"
	FieldDueDate       = "due_date"
	FieldInterest      = "interest"
	FieldInvoiceNumber = "invoice_number"
	FieldIssueDate     = "issue_date"
	FieldPayer         = "payer"
	FieldPenalty       = "penalty"
)

// cellReader applies a ParseFailurePolicy to the cells of a single row and
// accumulates warnings.
type cellReader struct {
	row      int
	policy   ParseFailurePolicy
	warnings []RowWarning
}

func (c *cellReader) warn(field, value, message string) {
	c.warnings = append(c.warnings, RowWarning{Row: c.row, Field: field, Value: value, Message: message})
}

// fail either records a warning and lets the caller substitute a default,
// or returns ErrRowRejected.
func (c *cellReader) fail(field, value, message string) error {
	if c.policy == RejectRow {
		return fmt.Errorf("%w: %s %q: %s", ErrRowRejected, field, value, message)
	}
	c.warn(field, value, message)
	return nil
}

// amount parses an optional money cell. Blank cells are zero without a
// warning.
func (c *cellReader) amount(field, raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	d, err := ParseAmountStrict(raw)
	if err != nil {
		return decimal.Zero, c.fail(field, raw, "unparseable amount, using 0")
	}
	return d, nil
}

func (c *cellReader) date(field, raw string, now time.Time, parse func(string, time.Time) (time.Time, bool)) (time.Time, error) {
	t, ok := parse(raw, now)
	if !ok {
		return t, c.fail(field, raw, "unparseable date, using today")
	}
	return t, nil
}

package normalizer

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/collections-import/internal/domain/import/parser"
	"github.com/FACorreiaa/collections-import/internal/domain/import/sniffer"
)

// InvoiceStatus is the coarse collection status derived at import time.
type InvoiceStatus string

const (
	StatusPendiente InvoiceStatus = "Pendiente"
	StatusVencida   InvoiceStatus = "Vencida"
)

const (
	// MissingInvoicePrefix starts the placeholder given to rows without an
	// invoice number; a timestamp follows it.
	MissingInvoicePrefix = "Sin número de factura "
	// MissingConcept replaces an empty concept.
	MissingConcept = "Sin concepto"

	placeholderLayout = "2006-01-02T15:04:05.000000000Z"
)

// InvoiceRecord is the canonical invoice shape.
type InvoiceRecord struct {
	ClientNumber  int             `json:"client_number"`
	InvoiceNumber string          `json:"invoice_number"`
	IssueDate     time.Time       `json:"issue_date"`
	DueDate       time.Time       `json:"due_date"`
	Balance       decimal.Decimal `json:"balance"`
	Concept       string          `json:"concept"`
	Status        InvoiceStatus   `json:"status"`
	SourceRow     int             `json:"source_row"`
}

// InvoiceNormalizer maps invoice sheet rows to InvoiceRecords. One
// normalizer serves one import run.
type InvoiceNormalizer struct {
	policy ParseFailurePolicy
	now    func() time.Time

	mu        sync.Mutex
	lastStamp time.Time
}

// NewInvoiceNormalizer creates a normalizer. now defaults to time.Now.
func NewInvoiceNormalizer(policy ParseFailurePolicy, now func() time.Time) *InvoiceNormalizer {
	if now == nil {
		now = time.Now
	}
	return &InvoiceNormalizer{policy: policy, now: now}
}

// Normalize converts one data row. A non-nil error means the row was
// rejected under RejectRow; warnings describe every default substituted.
func (n *InvoiceNormalizer) Normalize(row parser.RawRow, layout sniffer.InvoiceLayout) (*InvoiceRecord, []RowWarning, error) {
	cells := &cellReader{row: row.Line, policy: n.policy}
	now := n.now()
	rec := &InvoiceRecord{SourceRow: row.Line}

	clientRaw := layout.ClientNumber.Value(row.Cells)
	client, ok := parseClientNumber(clientRaw)
	if !ok {
		if err := cells.fail(FieldClientNumber, clientRaw, "client number is not an integer, using 0"); err != nil {
			return nil, nil, err
		}
	}
	rec.ClientNumber = client

	rec.InvoiceNumber = layout.InvoiceNumber.Value(row.Cells)
	if rec.InvoiceNumber == "" {
		rec.InvoiceNumber = MissingInvoicePrefix + n.placeholderStamp(now)
		cells.warn(FieldInvoiceNumber, "", "missing invoice number, placeholder assigned")
	}

	var err error
	if rec.IssueDate, err = cells.date(FieldIssueDate, layout.IssueDate.Value(row.Cells), now, ParseFlexibleDate); err != nil {
		return nil, nil, err
	}
	if rec.DueDate, err = cells.date(FieldDueDate, layout.DueDate.Value(row.Cells), now, ParseFlexibleDate); err != nil {
		return nil, nil, err
	}

	saldo, err := cells.amount(FieldBalance, layout.Balance.Value(row.Cells))
	if err != nil {
		return nil, nil, err
	}
	interest, err := cells.amount(FieldInterest, layout.Interest.Value(row.Cells))
	if err != nil {
		return nil, nil, err
	}
	penalty, err := cells.amount(FieldPenalty, layout.Penalty.Value(row.Cells))
	if err != nil {
		return nil, nil, err
	}
	rec.Balance = decimal.Max(saldo, interest.Add(penalty))
	if rec.Balance.IsNegative() {
		cells.warn(FieldBalance, rec.Balance.String(), "negative balance clamped to 0")
		rec.Balance = decimal.Zero
	}

	rec.Concept = layout.Concept.Value(row.Cells)
	if rec.Concept == "" {
		rec.Concept = MissingConcept
	}

	daysRaw := layout.DaysToDue.Value(row.Cells)
	days, err := cells.amount(FieldDaysToDue, daysRaw)
	if err != nil {
		return nil, nil, err
	}
	// The auxiliary days column decides the status; the due date is not
	// consulted even when the two disagree.
	if days.IsPositive() {
		rec.Status = StatusPendiente
	} else {
		rec.Status = StatusVencida
	}

	return rec, cells.warnings, nil
}

// placeholderStamp returns a UTC timestamp strictly later than any stamp
// previously issued by n, so placeholders never collide within a run.
func (n *InvoiceNormalizer) placeholderStamp(now time.Time) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	stamp := now.UTC()
	if !stamp.After(n.lastStamp) {
		stamp = n.lastStamp.Add(time.Nanosecond)
	}
	n.lastStamp = stamp
	return stamp.Format(placeholderLayout)
}

// parseClientNumber accepts plain integers and workbook renderings such as
// "1024.0". A blank cell is 0 and not an error.
func parseClientNumber(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n, true
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || !d.Equal(d.Truncate(0)) {
		return 0, false
	}
	return int(d.IntPart()), true
}

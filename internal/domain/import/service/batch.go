package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/collections-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/collections-import/internal/domain/import/sniffer"
	"github.com/FACorreiaa/collections-import/pkg/money"
)

var ErrUnknownKind = errors.New("unknown import kind")

// Kind selects the importer.
type Kind string

const (
	KindInvoices Kind = "invoices"
	KindPayments Kind = "payments"
)

// ParseKind accepts "invoices" or "payments" in any case.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindInvoices:
		return KindInvoices, nil
	case KindPayments:
		return KindPayments, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// ImportBatch is the normalized content of one file. It is built once by
// the pipeline and never modified; accessors return copies.
type ImportBatch struct {
	kind        Kind
	format      sniffer.Format
	fingerprint string
	rowsRead    int

	invoices []normalizer.InvoiceRecord
	payments []normalizer.ExternalPaymentRecord

	warnings   []normalizer.RowWarning
	dropped    []normalizer.DroppedRow
	duplicates []normalizer.InvoiceRecord
	aliases    []uuid.UUID
}

func (b *ImportBatch) Kind() Kind { return b.kind }
func (b *ImportBatch) Format() sniffer.Format { return b.format }
func (b *ImportBatch) Fingerprint() string { return b.fingerprint }
func (b *ImportBatch) RowsRead() int { return b.rowsRead }
func (b *ImportBatch) DuplicatesDropped() int { return len(b.duplicates) }

// Len is the number of records that would be submitted.
func (b *ImportBatch) Len() int {
	if b.kind == KindInvoices {
		return len(b.invoices)
	}
	return len(b.payments)
}

func (b *ImportBatch) Invoices() []normalizer.InvoiceRecord {
	return append([]normalizer.InvoiceRecord(nil), b.invoices...)
}

func (b *ImportBatch) Payments() []normalizer.ExternalPaymentRecord {
	return append([]normalizer.ExternalPaymentRecord(nil), b.payments...)
}

func (b *ImportBatch) Warnings() []normalizer.RowWarning {
	return append([]normalizer.RowWarning(nil), b.warnings...)
}

func (b *ImportBatch) Dropped() []normalizer.DroppedRow {
	return append([]normalizer.DroppedRow(nil), b.dropped...)
}

// Duplicates returns the invoices discarded because an earlier row had
// the same invoice number.
func (b *ImportBatch) Duplicates() []normalizer.InvoiceRecord {
	return append([]normalizer.InvoiceRecord(nil), b.duplicates...)
}

// MatchedAliases lists the client aliases used to fill client numbers.
func (b *ImportBatch) MatchedAliases() []uuid.UUID {
	return append([]uuid.UUID(nil), b.aliases...)
}

// BatchWindow is one page of a batch.
type BatchWindow struct {
	Offset   int                                `json:"offset"`
	Limit    int                                `json:"limit"`
	Total    int                                `json:"total"`
	Invoices []normalizer.InvoiceRecord         `json:"invoices,omitempty"`
	Payments []normalizer.ExternalPaymentRecord `json:"payments,omitempty"`
}

// Window returns records [offset, offset+limit). limit <= 0 means to the
// end. The slices are copies.
func (b *ImportBatch) Window(offset, limit int) BatchWindow {
	w := BatchWindow{Offset: offset, Limit: limit, Total: b.Len()}
	if b.kind == KindInvoices {
		w.Invoices = window(b.invoices, offset, limit)
	} else {
		w.Payments = window(b.payments, offset, limit)
	}
	return w
}

func window[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return append([]T(nil), items[offset:end]...)
}

// Total sums balances (invoices) or amounts converted at each payment's
// exchange rate (payments) in currency.
func (b *ImportBatch) Total(currency string) *money.Money {
	amounts := make([]decimal.Decimal, 0, b.Len())
	if b.kind == KindInvoices {
		for _, r := range b.invoices {
			amounts = append(amounts, r.Balance)
		}
	} else {
		for _, r := range b.payments {
			amounts = append(amounts, r.Amount.Mul(r.ExchangeRate))
		}
	}
	return money.Sum(amounts, currency)
}

package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/collections-import/internal/domain/import/normalizer"
)

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Invoices ")
	require.NoError(t, err)
	assert.Equal(t, KindInvoices, k)

	k, err = ParseKind("payments")
	require.NoError(t, err)
	assert.Equal(t, KindPayments, k)

	_, err = ParseKind("receipts")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestImportBatch_Window(t *testing.T) {
	b := &ImportBatch{kind: KindInvoices, invoices: []normalizer.InvoiceRecord{
		{InvoiceNumber: "A1"}, {InvoiceNumber: "A2"}, {InvoiceNumber: "A3"},
	}}

	tests := []struct {
		name          string
		offset, limit int
		want          []string
	}{
		{"all", 0, 0, []string{"A1", "A2", "A3"}},
		{"first page", 0, 2, []string{"A1", "A2"}},
		{"last page", 2, 2, []string{"A3"}},
		{"past the end", 5, 2, []string{}},
		{"negative offset", -1, 1, []string{"A1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := b.Window(tt.offset, tt.limit)
			assert.Equal(t, 3, w.Total)
			assert.Nil(t, w.Payments)
			got := make([]string, 0, len(w.Invoices))
			for _, r := range w.Invoices {
				got = append(got, r.InvoiceNumber)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestImportBatch_Immutable(t *testing.T) {
	b := &ImportBatch{
		kind:     KindInvoices,
		invoices: []normalizer.InvoiceRecord{{InvoiceNumber: "A1"}},
		warnings: []normalizer.RowWarning{{Row: 2}},
	}

	b.Invoices()[0].InvoiceNumber = "changed"
	b.Window(0, 0).Invoices[0].InvoiceNumber = "changed"
	b.Warnings()[0].Row = 99

	assert.Equal(t, "A1", b.invoices[0].InvoiceNumber)
	assert.Equal(t, 2, b.warnings[0].Row)
}

func TestImportBatch_Total(t *testing.T) {
	invoices := &ImportBatch{kind: KindInvoices, invoices: []normalizer.InvoiceRecord{
		{Balance: decimal.RequireFromString("1500")},
		{Balance: decimal.RequireFromString("0.505")},
	}}
	assert.Equal(t, "1500.51", invoices.Total("MXN").String())

	payments := &ImportBatch{kind: KindPayments, payments: []normalizer.ExternalPaymentRecord{
		{Amount: decimal.RequireFromString("100"), ExchangeRate: decimal.RequireFromString("17.25")},
		{Amount: decimal.RequireFromString("10"), ExchangeRate: decimal.NewFromInt(1)},
	}}
	total := payments.Total("MXN")
	assert.Equal(t, "1735.00", total.String())
	assert.Equal(t, "MXN", total.Currency())
	assert.Equal(t, 2, payments.Len())
}

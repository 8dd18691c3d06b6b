package normalizer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/collections-import/internal/domain/import/parser"
	"github.com/FACorreiaa/collections-import/internal/domain/import/sniffer"
)

func detect(t *testing.T, header ...string) sniffer.DetectedFormat {
	t.Helper()
	return sniffer.DetectFormat([][]string{header})
}

func newPaymentNormalizer(policy ParseFailurePolicy) *PaymentNormalizer {
	catalog := DefaultCatalog()
	return NewPaymentNormalizer(
		PaymentOptions{Policy: policy},
		catalog.BranchCatalog(),
		catalog.MethodDetector(),
		func() time.Time { return fixedNow },
	)
}

func payRow(line int, cells ...string) parser.RawRow {
	return parser.RawRow{Line: line, Cells: cells}
}

func TestPaymentNormalizer_HeaderedWithBranch(t *testing.T) {
	format := detect(t, "FECHA", "CLIENTE", "TOTAL", "SUCURSAL")
	require.Equal(t, sniffer.HeaderedWithBranch, format.Format)
	n := newPaymentNormalizer(SubstituteDefault)

	t.Run("valid row round trips", func(t *testing.T) {
		rec, warnings, err := n.Normalize(payRow(2, "01/03/2024", "Juan Perez", "1,234.56", "NORTE"), format)

		require.NoError(t, err)
		assert.Empty(t, warnings)
		assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), rec.PaymentDate)
		assert.True(t, rec.Amount.Equal(decimal.RequireFromString("1234.56")))
		assert.Equal(t, "Juan Perez", rec.PayerName)
		assert.Nil(t, rec.ClientNumber)
		assert.Equal(t, Branch("NORTE"), rec.Branch)
		assert.True(t, rec.ExchangeRate.Equal(decimal.NewFromInt(1)))
		assert.Equal(t, MethodTransfer, rec.PaymentMethod)
		assert.Equal(t, 2, rec.SourceRow)
	})

	t.Run("invalid branch is dropped to empty", func(t *testing.T) {
		rec, warnings, err := n.Normalize(payRow(3, "01/03/2024", "Juan Perez", "1,234.56", "MARTE"), format)

		require.NoError(t, err)
		assert.Equal(t, Branch(""), rec.Branch)
		assert.Equal(t, "Juan Perez", rec.PayerName)
		assert.True(t, rec.Amount.Equal(decimal.RequireFromString("1234.56")))
		require.Len(t, warnings, 1)
		assert.Equal(t, FieldBranch, warnings[0].Field)
		assert.Equal(t, "MARTE", warnings[0].Value)
	})

	t.Run("branch matching ignores case and accents", func(t *testing.T) {
		rec, _, err := n.Normalize(payRow(4, "01/03/2024", "Juan Perez", "10", " centro "), format)

		require.NoError(t, err)
		assert.Equal(t, Branch("CENTRO"), rec.Branch)
	})

	t.Run("numeric payer is a client number", func(t *testing.T) {
		rec, _, err := n.Normalize(payRow(5, "01/03/2024", "1024", "10", ""), format)

		require.NoError(t, err)
		require.NotNil(t, rec.ClientNumber)
		assert.Equal(t, 1024, *rec.ClientNumber)
		assert.Empty(t, rec.PayerName)
	})

	t.Run("missing payer drops the row", func(t *testing.T) {
		_, _, err := n.Normalize(payRow(6, "01/03/2024", "  ", "10", "SUR"), format)
		assert.ErrorIs(t, err, ErrMissingPayer)
	})

	t.Run("bad date and amount substitute defaults", func(t *testing.T) {
		rec, warnings, err := n.Normalize(payRow(7, "2024-03-01", "Ana", "mil", "SUR"), format)

		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), rec.PaymentDate)
		assert.True(t, rec.Amount.IsZero())
		require.Len(t, warnings, 2)
		assert.Equal(t, FieldAmount, warnings[0].Field)
		assert.Equal(t, FieldDate, warnings[1].Field)
	})
}

func TestPaymentNormalizer_RejectRow(t *testing.T) {
	format := detect(t, "FECHA", "CLIENTE", "TOTAL")
	require.Equal(t, sniffer.HeaderedNoBranch, format.Format)
	n := newPaymentNormalizer(RejectRow)

	_, _, err := n.Normalize(payRow(2, "ayer", "Ana", "10"), format)
	assert.ErrorIs(t, err, ErrRowRejected)

	rec, _, err := n.Normalize(payRow(3, "02/03/2024", "Ana", "10"), format)
	require.NoError(t, err)
	assert.Equal(t, Branch(""), rec.Branch)
}

func TestPaymentNormalizer_MovementLedger(t *testing.T) {
	format := detect(t, "id_movimiento", "f_elaboracion", "monto_importe", "id_cliente", "referencia", "concepto")
	require.Equal(t, sniffer.MovementLedger, format.Format)
	n := newPaymentNormalizer(SubstituteDefault)

	rec, warnings, err := n.Normalize(payRow(2, "MV-991", "2024-03-05", "15000.00", "1024", "REF77", "DEPOSITO CHEQUE 4411"), format)

	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "MV-991", rec.TransferCode)
	assert.Equal(t, "REF77", rec.ReferenceCode)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), rec.PaymentDate)
	assert.True(t, rec.Amount.Equal(decimal.NewFromInt(15000)))
	require.NotNil(t, rec.ClientNumber)
	assert.Equal(t, 1024, *rec.ClientNumber)
	assert.Equal(t, "DEPOSITO CHEQUE 4411", rec.Concept)
	assert.Equal(t, MethodCheck, rec.PaymentMethod)

	_, warnings, err = n.Normalize(payRow(3, "MV-992", "2024-03-05", "10", "1024", "", ""), format)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, FieldConcept, warnings[0].Field)
}

func TestPaymentNormalizer_BankStatement(t *testing.T) {
	format := detect(t, "Fecha", "Movimiento", "Cód. Trans.", "Retiros", "Depósitos", "Saldo")
	require.Equal(t, sniffer.BankStatement, format.Format)
	n := newPaymentNormalizer(SubstituteDefault)

	movement := "SPEI RECIBIDO ACME SA DE CV REF 123456"
	rec, _, err := n.Normalize(payRow(2, "05/03/2024", movement, "T-1", "", "2.500,00", "10.000,00"), format)

	require.NoError(t, err)
	assert.Equal(t, "Acme Sa De Cv", rec.PayerName)
	assert.Equal(t, "T-1", rec.TransferCode)
	assert.True(t, rec.Amount.Equal(decimal.NewFromInt(2500)))
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), rec.PaymentDate)
	assert.Equal(t, movement, rec.Concept)
	assert.Equal(t, MethodTransfer, rec.PaymentMethod)

	rec, _, err = n.Normalize(payRow(3, "06/03/2024", "DEPOSITO EN EFECTIVO JUAN PEREZ", "T-2", "", "300", ""), format)
	require.NoError(t, err)
	assert.Equal(t, "Juan Perez", rec.PayerName)
	assert.Equal(t, MethodCash, rec.PaymentMethod)

	_, _, err = n.Normalize(payRow(4, "06/03/2024", "COMISION", "T-3", "50,00", "", ""), format)
	assert.ErrorIs(t, err, ErrNoDeposit)
}

func TestPaymentNormalizer_Unknown(t *testing.T) {
	format := sniffer.DetectFormat([][]string{
		{"2024-03-01", "Acme", "1500"},
	})
	require.Equal(t, sniffer.Unknown, format.Format)
	require.Equal(t, -1, format.HeaderRow)
	n := newPaymentNormalizer(SubstituteDefault)

	rec, _, err := n.Normalize(payRow(1, "2024-03-01", "Acme", "1500"), format)
	require.NoError(t, err)
	assert.Equal(t, "Acme", rec.PayerName)
	assert.True(t, rec.Amount.Equal(decimal.NewFromInt(1500)))

	tests := []struct {
		name  string
		cells []string
	}{
		{"header text", []string{"fecha", "nombre", "importe"}},
		{"zero amount", []string{"2024-03-01", "Acme", "0,00"}},
		{"short row", []string{"2024-03-01", "Acme"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := n.Normalize(payRow(2, tt.cells...), format)
			assert.ErrorIs(t, err, ErrMinimalShape)
		})
	}
}

func TestPaymentNormalizer_Defaults(t *testing.T) {
	format := detect(t, "FECHA", "CLIENTE", "TOTAL")
	n := NewPaymentNormalizer(PaymentOptions{
		DefaultExchangeRate: decimal.RequireFromString("17.25"),
		DefaultMethod:       MethodDeposit,
	}, nil, nil, func() time.Time { return fixedNow })

	rec, _, err := n.Normalize(payRow(2, "01/03/2024", "Ana", "10"), format)

	require.NoError(t, err)
	assert.True(t, rec.ExchangeRate.Equal(decimal.RequireFromString("17.25")))
	assert.Equal(t, MethodDeposit, rec.PaymentMethod)
}

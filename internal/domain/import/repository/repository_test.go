package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/collections-import/internal/domain/import/normalizer"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func invoice(number string, row int) normalizer.InvoiceRecord {
	return normalizer.InvoiceRecord{
		ClientNumber:  1024,
		InvoiceNumber: number,
		IssueDate:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		DueDate:       time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Balance:       decimal.RequireFromString("1500.50"),
		Concept:       "Servicio",
		Status:        normalizer.StatusPendiente,
		SourceRow:     row,
	}
}

func TestCreateInvoices(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runID := uuid.New()
	first := invoice("A100", 2)

	mock.ExpectExec(`INSERT INTO invoices`).
		WithArgs(first.ClientNumber, "A100", first.IssueDate, first.DueDate,
			first.Balance, "Servicio", "Pendiente", runID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO invoices`).
		WithArgs(pgxmock.AnyArg(), "A101", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), runID).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec(`INSERT INTO invoices`).
		WithArgs(pgxmock.AnyArg(), "A102", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), runID).
		WillReturnError(&pgconn.PgError{
			Code:           "23514",
			Message:        "new row violates check constraint",
			ConstraintName: "invoices_balance_check",
		})

	repo := NewPostgresBulkRepository(mock, testLogger())
	result, err := repo.CreateInvoices(context.Background(), runID,
		[]normalizer.InvoiceRecord{first, invoice("A101", 3), invoice("A102", 4)})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Rejected)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 3, result.Total())
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "row 4: new row violates check constraint (invoices_balance_check)", result.Errors[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInvoices_ContextCancelled(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := NewPostgresBulkRepository(mock, testLogger())
	result, err := repo.CreateInvoices(ctx, uuid.New(), []normalizer.InvoiceRecord{invoice("A100", 2)})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, result.Total())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateExternalPayments(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runID := uuid.New()
	client := 1024
	withClient := normalizer.ExternalPaymentRecord{
		PaymentDate:   time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		Amount:        decimal.NewFromInt(15000),
		ExchangeRate:  decimal.NewFromInt(1),
		ClientNumber:  &client,
		Concept:       "Pago",
		TransferCode:  "MV-991",
		PaymentMethod: normalizer.MethodTransfer,
		SourceRow:     2,
	}
	named := normalizer.ExternalPaymentRecord{
		PaymentDate:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Amount:        decimal.RequireFromString("1234.56"),
		ExchangeRate:  decimal.NewFromInt(1),
		PayerName:     "Juan Perez",
		Branch:        "NORTE",
		Concept:       normalizer.MissingConcept,
		PaymentMethod: normalizer.MethodTransfer,
		SourceRow:     3,
	}

	code := "MV-991"
	mock.ExpectExec(`INSERT INTO external_payments`).
		WithArgs(withClient.PaymentDate, withClient.Amount, withClient.ExchangeRate,
			(*string)(nil), &client, (*string)(nil), "Pago", &code, (*string)(nil),
			"Transferencia", runID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	payer, branch := "Juan Perez", "NORTE"
	mock.ExpectExec(`INSERT INTO external_payments`).
		WithArgs(named.PaymentDate, named.Amount, named.ExchangeRate,
			&payer, (*int)(nil), &branch, "Sin concepto", (*string)(nil), (*string)(nil),
			"Transferencia", runID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	// Same transfer code again: ON CONFLICT DO NOTHING affects no rows.
	mock.ExpectExec(`INSERT INTO external_payments`).
		WithArgs(withClient.PaymentDate, withClient.Amount, withClient.ExchangeRate,
			(*string)(nil), &client, (*string)(nil), "Pago", &code, (*string)(nil),
			"Transferencia", runID).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	mock.ExpectExec(`INSERT INTO external_payments`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("conn closed"))

	repo := NewPostgresBulkRepository(mock, testLogger())
	result, err := repo.CreateExternalPayments(context.Background(), runID,
		[]normalizer.ExternalPaymentRecord{withClient, named, withClient, named})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Rejected)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []string{"row 3: conn closed"}, result.Errors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkResult_ErrorCap(t *testing.T) {
	var r BulkResult
	for i := 0; i < maxReportedErrors+10; i++ {
		r.fail(i, errors.New("boom"))
	}
	assert.Equal(t, maxReportedErrors+10, r.Failed)
	assert.Len(t, r.Errors, maxReportedErrors)
}

// Package repository persists confirmed import batches.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/FACorreiaa/collections-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/collections-import/pkg/db"
)

// BulkResult is the aggregate outcome of one bulk create call.
type BulkResult struct {
	Created int `json:"created"`
	// Rejected rows collided with an existing business key.
	Rejected int `json:"rejected"`
	// Failed rows were refused by the database for another reason.
	Failed int      `json:"failed"`
	Errors []string `json:"errors,omitempty"`
}

// Total is the number of records submitted.
func (r BulkResult) Total() int {
	return r.Created + r.Rejected + r.Failed
}

// maxReportedErrors caps BulkResult.Errors; the counters stay exact.
const maxReportedErrors = 50

func (r *BulkResult) fail(row int, err error) {
	r.Failed++
	if len(r.Errors) < maxReportedErrors {
		r.Errors = append(r.Errors, fmt.Sprintf("row %d: %s", row, describe(err)))
	}
}

// describe prefers the Postgres message and constraint over the wrapped
// driver text.
func describe(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.ConstraintName != "" {
			return fmt.Sprintf("%s (%s)", pgErr.Message, pgErr.ConstraintName)
		}
		return pgErr.Message
	}
	return err.Error()
}

// PostgresBulkRepository inserts records one statement at a time so a bad
// row never takes the rest of the batch down with it.
type PostgresBulkRepository struct {
	db     db.DBTX
	logger *slog.Logger
}

// NewPostgresBulkRepository creates a repository on conn.
func NewPostgresBulkRepository(conn db.DBTX, logger *slog.Logger) *PostgresBulkRepository {
	return &PostgresBulkRepository{db: conn, logger: logger}
}

const insertInvoiceSQL = `
	INSERT INTO invoices (
		client_number, invoice_number, issue_date, due_date,
		balance, concept, status, import_run_id
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT DO NOTHING
`

// CreateInvoices inserts invoices. An invoice number already on file is
// counted as Rejected and left untouched.
func (r *PostgresBulkRepository) CreateInvoices(ctx context.Context, runID uuid.UUID, records []normalizer.InvoiceRecord) (*BulkResult, error) {
	result := &BulkResult{}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		tag, err := r.db.Exec(ctx, insertInvoiceSQL,
			rec.ClientNumber, rec.InvoiceNumber, rec.IssueDate, rec.DueDate,
			rec.Balance, rec.Concept, string(rec.Status), runID,
		)
		switch {
		case err != nil:
			result.fail(rec.SourceRow, err)
		case tag.RowsAffected() == 0:
			result.Rejected++
		default:
			result.Created++
		}
	}

	r.logger.Info("invoices stored",
		slog.String("run_id", runID.String()),
		slog.Int("created", result.Created),
		slog.Int("rejected", result.Rejected),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

const insertPaymentSQL = `
	INSERT INTO external_payments (
		payment_date, amount, exchange_rate, payer_name, client_number,
		branch, concept, transfer_code, reference_code, payment_method,
		import_run_id
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT DO NOTHING
`

// CreateExternalPayments inserts payments. A transfer code already on file
// is counted as Rejected.
func (r *PostgresBulkRepository) CreateExternalPayments(ctx context.Context, runID uuid.UUID, records []normalizer.ExternalPaymentRecord) (*BulkResult, error) {
	result := &BulkResult{}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		tag, err := r.db.Exec(ctx, insertPaymentSQL,
			rec.PaymentDate, rec.Amount, rec.ExchangeRate,
			nullable(rec.PayerName), rec.ClientNumber, nullable(string(rec.Branch)),
			rec.Concept, nullable(rec.TransferCode), nullable(rec.ReferenceCode),
			string(rec.PaymentMethod), runID,
		)
		switch {
		case err != nil:
			result.fail(rec.SourceRow, err)
		case tag.RowsAffected() == 0:
			result.Rejected++
		default:
			result.Created++
		}
	}

	r.logger.Info("external payments stored",
		slog.String("run_id", runID.String()),
		slog.Int("created", result.Created),
		slog.Int("rejected", result.Rejected),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

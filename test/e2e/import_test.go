// Package e2etest runs the import flows against a real Postgres database.
// Set COLLECTIONS_TEST_DSN to enable it.
package e2etest

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/collections-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/collections-import/internal/domain/import/repository"
	"github.com/FACorreiaa/collections-import/internal/domain/import/service"
	"github.com/FACorreiaa/collections-import/internal/domain/import/sniffer"
	"github.com/FACorreiaa/collections-import/internal/fixtures"
	"github.com/FACorreiaa/collections-import/pkg/db"
	"github.com/FACorreiaa/collections-import/pkg/storage"
)

type env struct {
	db      *db.DB
	aliases *normalizer.ClientAliasStore
	matcher *normalizer.ClientMatcher
	svc     *service.ImportService
}

func setup(t *testing.T) *env {
	t.Helper()
	dsn := os.Getenv("COLLECTIONS_TEST_DSN")
	if dsn == "" {
		t.Skip("COLLECTIONS_TEST_DSN not set")
	}

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	database, err := db.New(ctx, db.Config{DSN: dsn}, logger)
	require.NoError(t, err)
	t.Cleanup(database.Close)

	require.NoError(t, database.RunMigrations(ctx))
	_, err = database.Pool.Exec(ctx, "TRUNCATE invoices, external_payments, client_aliases")
	require.NoError(t, err)

	files, err := storage.New(&storage.Config{LocalPath: t.TempDir()})
	require.NoError(t, err)

	aliases := normalizer.NewClientAliasStore(database.Pool)
	matcher := normalizer.NewClientMatcher(nil, 0)
	svc := service.NewImportService(
		repository.NewPostgresBulkRepository(database.Pool, logger),
		service.Config{},
		logger,
		service.WithClientResolver(matcher),
		service.WithAliasRecorder(aliases),
		service.WithStorage(files),
	)

	return &env{db: database, aliases: aliases, matcher: matcher, svc: svc}
}

func (e *env) importFile(t *testing.T, kind service.Kind, content []byte) (*service.Preview, *service.ConfirmResult, error) {
	t.Helper()
	ctx := context.Background()
	preview, err := e.svc.Preview(ctx, kind, "fixture.csv", bytes.NewReader(content))
	require.NoError(t, err)
	res, err := e.svc.Confirm(ctx, preview.RunID)
	return preview, res, err
}

func TestInvoiceImport(t *testing.T) {
	e := setup(t)
	file, err := fixtures.NewGeneratorWithSeed(11).InvoiceCSV(fixtures.InvoiceOptions{
		Rows: 25, Duplicates: 2, Preamble: true, LatinAmounts: true,
	})
	require.NoError(t, err)

	t.Run("FirstImport", func(t *testing.T) {
		preview, res, err := e.importFile(t, service.KindInvoices, file.Content)
		require.NoError(t, err)

		assert.Equal(t, 2, preview.DuplicatesDropped)
		assert.Equal(t, "succeeded", res.State)
		assert.Equal(t, 25, res.Result.Created)

		var count int
		require.NoError(t, e.db.Pool.QueryRow(context.Background(),
			"SELECT count(*) FROM invoices WHERE import_run_id = $1", preview.RunID).Scan(&count))
		assert.Equal(t, 25, count)
	})

	t.Run("ReimportIsRejected", func(t *testing.T) {
		_, res, err := e.importFile(t, service.KindInvoices, file.Content)
		require.NoError(t, err)

		assert.Equal(t, "partially_failed", res.State)
		assert.Equal(t, 0, res.Result.Created)
		assert.Equal(t, 25, res.Result.Rejected)
	})
}

func TestPaymentImport(t *testing.T) {
	e := setup(t)

	for _, format := range []sniffer.Format{
		sniffer.HeaderedWithBranch,
		sniffer.HeaderedNoBranch,
		sniffer.MovementLedger,
		sniffer.BankStatement,
	} {
		t.Run(format.String(), func(t *testing.T) {
			file, err := fixtures.NewGeneratorWithSeed(int64(format)).PaymentCSV(fixtures.PaymentOptions{
				Format: format, Rows: 10, InvalidBranches: 1,
			})
			require.NoError(t, err)

			preview, res, err := e.importFile(t, service.KindPayments, file.Content)
			require.NoError(t, err)

			assert.Equal(t, format.String(), preview.Format)
			assert.Equal(t, "succeeded", res.State)
			assert.Equal(t, file.Rows, res.Result.Created)
		})
	}
}

func TestAliasResolution(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	alias, err := e.aliases.SaveAlias(ctx, "Comercial del Norte SA de CV", 4321)
	require.NoError(t, err)
	_, err = e.matcher.Refresh(ctx, e.aliases)
	require.NoError(t, err)

	content := "FECHA;CLIENTE;TOTAL\n" +
		"01/03/2024;COMERCIAL DEL NORTE S.A. DE C.V.;1.500,00\n" +
		"02/03/2024;Comercial del Norte SA de CV;250\n"
	_, res, err := e.importFile(t, service.KindPayments, []byte(content))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Result.Created)

	var withClient int
	require.NoError(t, e.db.Pool.QueryRow(ctx,
		"SELECT count(*) FROM external_payments WHERE client_number = 4321").Scan(&withClient))
	assert.Equal(t, 2, withClient)

	stored, err := e.aliases.ListAliases(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, alias.ID, stored[0].ID)
	assert.Equal(t, 1, stored[0].MatchCount, "one bump per confirmed run")
}

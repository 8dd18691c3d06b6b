// Package service provides the import orchestration logic.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/collections-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/collections-import/internal/domain/import/repository"
	"github.com/FACorreiaa/collections-import/pkg/metrics"
	"github.com/FACorreiaa/collections-import/pkg/money"
	"github.com/FACorreiaa/collections-import/pkg/notify"
	"github.com/FACorreiaa/collections-import/pkg/storage"
)

var ErrRunNotFound = errors.New("import run not found")

const defaultPreviewLimit = 100

// AliasRecorder bumps the usage counters of the client aliases a batch
// relied on.
type AliasRecorder interface {
	RecordMatches(ctx context.Context, ids []uuid.UUID) error
}

// Notifier is told about every confirmed run.
type Notifier interface {
	NotifyImport(ctx context.Context, summary notify.Summary) error
}

// StatusRefresher recomputes business status for the records an import
// touched. Keys are invoice numbers for invoices and client numbers for
// payments. Its failures never change the import outcome.
type StatusRefresher interface {
	RefreshStatuses(ctx context.Context, kind Kind, keys []string) error
}

// Config holds the per-deployment import defaults.
type Config struct {
	DefaultExchangeRate decimal.Decimal
	DefaultMethod       normalizer.PaymentMethod
	Currency            string
	Policy              normalizer.ParseFailurePolicy
	MaxFileBytes        int64
	Catalog             *normalizer.Catalog
}

// Preview is what the operator reviews before confirming a run.
type Preview struct {
	RunID             uuid.UUID                  `json:"run_id"`
	Kind              Kind                       `json:"kind"`
	FileName          string                     `json:"file_name"`
	Format            string                     `json:"format"`
	Fingerprint       string                     `json:"fingerprint"`
	State             string                     `json:"state"`
	RowsRead          int                        `json:"rows_read"`
	DuplicatesDropped int                        `json:"duplicates_dropped"`
	TotalAmount       string                     `json:"total_amount"`
	Warnings          []normalizer.RowWarning    `json:"warnings"`
	Dropped           []normalizer.DroppedRow    `json:"dropped"`
	Duplicates        []normalizer.InvoiceRecord `json:"duplicates,omitempty"`
	CreatedAt         time.Time                  `json:"created_at"`
	BatchWindow
}

// ConfirmResult reports a submitted run.
type ConfirmResult struct {
	RunID  uuid.UUID              `json:"run_id"`
	State  string                 `json:"state"`
	Result *repository.BulkResult `json:"result,omitempty"`
}

// RunInfo describes a run awaiting confirmation.
type RunInfo struct {
	RunID     uuid.UUID `json:"run_id"`
	Kind      Kind      `json:"kind"`
	FileName  string    `json:"file_name"`
	Records   int       `json:"records"`
	CreatedAt time.Time `json:"created_at"`
}

type run struct {
	id        uuid.UUID
	kind      Kind
	pipeline  *Pipeline
	batch     *ImportBatch
	createdAt time.Time
	stored    bool
}

// ImportService keeps pending runs between preview and confirmation. A
// run is removed from the pending set before it is submitted or
// cancelled, so a batch can only be handed off once.
type ImportService struct {
	creator  BulkCreator
	cfg      Config
	clients  ClientResolver
	aliases  AliasRecorder
	notifier Notifier
	status   StatusRefresher
	files    storage.Storage
	metrics  *metrics.ImportMetrics
	tracer   trace.Tracer
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	runs map[uuid.UUID]*run
}

// Option configures optional collaborators.
type Option func(*ImportService)

// WithClientResolver fills missing client numbers from payer names.
func WithClientResolver(c ClientResolver) Option {
	return func(s *ImportService) { s.clients = c }
}

func WithAliasRecorder(a AliasRecorder) Option {
	return func(s *ImportService) { s.aliases = a }
}

func WithNotifier(n Notifier) Option {
	return func(s *ImportService) { s.notifier = n }
}

func WithStatusRefresher(r StatusRefresher) Option {
	return func(s *ImportService) { s.status = r }
}

// WithStorage keeps each uploaded file until its run ends.
func WithStorage(st storage.Storage) Option {
	return func(s *ImportService) { s.files = st }
}

func WithMetrics(m *metrics.ImportMetrics) Option {
	return func(s *ImportService) { s.metrics = m }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(s *ImportService) { s.now = now } }

// NewImportService creates a new import service
func NewImportService(creator BulkCreator, cfg Config, logger *slog.Logger, opts ...Option) *ImportService {
	if cfg.Currency == "" {
		cfg.Currency = money.MXN
	}
	if cfg.DefaultMethod == "" {
		cfg.DefaultMethod = normalizer.MethodDeposit
	}
	if cfg.DefaultExchangeRate.IsZero() {
		cfg.DefaultExchangeRate = decimal.NewFromInt(1)
	}
	s := &ImportService{
		creator: creator,
		cfg:     cfg,
		tracer:  otel.Tracer("github.com/FACorreiaa/collections-import/service"),
		logger:  logger,
		now:     time.Now,
		runs:    make(map[uuid.UUID]*run),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Preview runs a file up to confirmation and keeps the run pending.
func (s *ImportService) Preview(ctx context.Context, kind Kind, name string, r io.Reader) (*Preview, error) {
	ctx, span := s.tracer.Start(ctx, "ImportService.Preview", trace.WithAttributes(
		attribute.String("import.kind", string(kind)),
		attribute.String("import.file", name),
	))
	defer span.End()

	p := NewPipeline(PipelineOptions{
		Kind:                kind,
		MaxFileBytes:        s.cfg.MaxFileBytes,
		DefaultExchangeRate: s.cfg.DefaultExchangeRate,
		DefaultMethod:       s.cfg.DefaultMethod,
		Policy:              s.cfg.Policy,
		Catalog:             s.cfg.Catalog,
		Clients:             s.clients,
		Progress: func(read int64) {
			s.logger.Debug("reading upload",
				slog.String("kind", string(kind)),
				slog.String("file", name),
				slog.Int64("bytes_read", read),
			)
		},
		Now: s.now,
	})

	var raw bytes.Buffer
	if s.files != nil && r != nil {
		r = io.TeeReader(r, &raw)
	}

	batch, err := p.Run(ctx, name, r)
	if err != nil {
		s.metrics.ObserveRun(string(kind), p.State().String())
		span.RecordError(err)
		span.SetStatus(codes.Error, "preview failed")
		s.logger.Warn("import preview failed",
			slog.String("kind", string(kind)),
			slog.String("file", name),
			slog.String("state", p.State().String()),
			slog.Any("error", err),
		)
		return nil, err
	}

	rn := &run{id: uuid.New(), kind: kind, pipeline: p, batch: batch, createdAt: s.now()}
	if s.files != nil {
		if _, err := s.files.Upload(ctx, rn.id, name, mime.TypeByExtension(filepath.Ext(name)), &raw); err != nil {
			s.logger.Warn("failed to keep uploaded file", slog.String("run_id", rn.id.String()), slog.Any("error", err))
		} else {
			rn.stored = true
		}
	}

	s.mu.Lock()
	s.runs[rn.id] = rn
	pending := len(s.runs)
	s.mu.Unlock()

	format := batch.Format().String()
	s.metrics.ObservePreview(string(kind), format, batch.RowsRead(), len(batch.dropped), len(batch.warnings), batch.DuplicatesDropped())
	s.metrics.SetPending(pending)

	span.SetAttributes(
		attribute.String("import.run_id", rn.id.String()),
		attribute.String("import.format", format),
		attribute.Int("import.records", batch.Len()),
	)
	s.logger.Info("import preview ready",
		slog.String("run_id", rn.id.String()),
		slog.String("kind", string(kind)),
		slog.String("file", name),
		slog.String("format", format),
		slog.String("fingerprint", batch.Fingerprint()),
		slog.Int("rows_read", batch.RowsRead()),
		slog.Int("records", batch.Len()),
		slog.Int("warnings", len(batch.warnings)),
		slog.Int("dropped", len(batch.dropped)),
		slog.Int("duplicates", batch.DuplicatesDropped()),
	)

	return s.preview(rn, batch, 0, defaultPreviewLimit), nil
}

// GetPreview returns one window of a pending run.
func (s *ImportService) GetPreview(id uuid.UUID, offset, limit int) (*Preview, error) {
	rn, batch, err := s.pending(id)
	if err != nil {
		return nil, err
	}
	return s.preview(rn, batch, offset, limit), nil
}

// Batch returns the whole batch of a pending run.
func (s *ImportService) Batch(id uuid.UUID) (*ImportBatch, error) {
	_, batch, err := s.pending(id)
	return batch, err
}

func (s *ImportService) pending(id uuid.UUID) (*run, *ImportBatch, error) {
	s.mu.Lock()
	rn, ok := s.runs[id]
	s.mu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return rn, rn.batch, nil
}

func (s *ImportService) preview(rn *run, batch *ImportBatch, offset, limit int) *Preview {
	return &Preview{
		RunID:             rn.id,
		Kind:              rn.kind,
		FileName:          rn.pipeline.FileName(),
		Format:            batch.Format().String(),
		Fingerprint:       batch.Fingerprint(),
		State:             StateAwaitingConfirmation.String(),
		RowsRead:          batch.RowsRead(),
		DuplicatesDropped: batch.DuplicatesDropped(),
		TotalAmount:       batch.Total(s.cfg.Currency).Display(),
		Warnings:          batch.Warnings(),
		Dropped:           batch.Dropped(),
		Duplicates:        batch.Duplicates(),
		CreatedAt:         rn.createdAt,
		BatchWindow:       batch.Window(offset, limit),
	}
}

// take removes a run from the pending set.
func (s *ImportService) take(id uuid.UUID) (*run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rn, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	delete(s.runs, id)
	s.metrics.SetPending(len(s.runs))
	return rn, nil
}

// Confirm submits a pending run. The returned result is non-nil whenever
// the run existed; err is set when the bulk create call itself failed.
func (s *ImportService) Confirm(ctx context.Context, id uuid.UUID) (*ConfirmResult, error) {
	rn, err := s.take(id)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "ImportService.Confirm", trace.WithAttributes(
		attribute.String("import.run_id", id.String()),
		attribute.String("import.kind", string(rn.kind)),
	))
	defer span.End()

	batch := rn.batch
	start := s.now()
	outcome := rn.pipeline.Submit(ctx, id, s.creator)
	s.metrics.ObserveSubmit(string(rn.kind), s.now().Sub(start))
	s.metrics.ObserveRun(string(rn.kind), outcome.State.String())

	res := &ConfirmResult{RunID: id, State: outcome.State.String(), Result: outcome.Result}
	attrs := []any{
		slog.String("run_id", id.String()),
		slog.String("kind", string(rn.kind)),
		slog.String("state", res.State),
	}
	if outcome.Result != nil {
		attrs = append(attrs,
			slog.Int("created", outcome.Result.Created),
			slog.Int("rejected", outcome.Result.Rejected),
			slog.Int("failed", outcome.Result.Failed),
		)
	}

	if outcome.Err != nil {
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, "bulk create failed")
		s.logger.Error("import submit failed", append(attrs, slog.Any("error", outcome.Err))...)
	} else {
		s.logger.Info("import submitted", attrs...)
		s.afterSubmit(ctx, rn.kind, batch)
	}

	s.notify(ctx, rn, batch, res)
	s.discardFile(ctx, rn)
	return res, outcome.Err
}

func (s *ImportService) afterSubmit(ctx context.Context, kind Kind, batch *ImportBatch) {
	if s.aliases != nil {
		if ids := batch.MatchedAliases(); len(ids) > 0 {
			if err := s.aliases.RecordMatches(ctx, ids); err != nil {
				s.logger.Warn("failed to record alias matches", slog.Any("error", err))
			}
		}
	}
	if s.status != nil {
		if keys := statusKeys(batch); len(keys) > 0 {
			if err := s.status.RefreshStatuses(ctx, kind, keys); err != nil {
				s.logger.Warn("failed to refresh statuses", slog.String("kind", string(kind)), slog.Any("error", err))
			}
		}
	}
}

// statusKeys lists the distinct invoice numbers or client numbers of a
// batch, sorted.
func statusKeys(batch *ImportBatch) []string {
	seen := make(map[string]bool)
	if batch.Kind() == KindInvoices {
		for _, r := range batch.invoices {
			seen[r.InvoiceNumber] = true
		}
	} else {
		for _, r := range batch.payments {
			if r.ClientNumber != nil {
				seen[strconv.Itoa(*r.ClientNumber)] = true
			}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *ImportService) notify(ctx context.Context, rn *run, batch *ImportBatch, res *ConfirmResult) {
	if s.notifier == nil {
		return
	}
	summary := notify.Summary{
		RunID:     rn.id,
		Kind:      string(rn.kind),
		FileName:  rn.pipeline.FileName(),
		State:     res.State,
		Warnings:  len(batch.warnings),
		Dropped:   len(batch.dropped),
		Total:     batch.Total(s.cfg.Currency).Display(),
		Submitted: s.now(),
	}
	if res.Result != nil {
		summary.Created = res.Result.Created
		summary.Rejected = res.Result.Rejected
		summary.Failed = res.Result.Failed
		summary.Errors = res.Result.Errors
	}
	if err := s.notifier.NotifyImport(ctx, summary); err != nil {
		s.logger.Warn("failed to send import summary", slog.String("run_id", rn.id.String()), slog.Any("error", err))
	}
}

func (s *ImportService) discardFile(ctx context.Context, rn *run) {
	if s.files == nil || !rn.stored {
		return
	}
	if err := s.files.Delete(ctx, rn.id); err != nil {
		s.logger.Warn("failed to delete uploaded file", slog.String("run_id", rn.id.String()), slog.Any("error", err))
	}
}

// Cancel discards a pending run.
func (s *ImportService) Cancel(ctx context.Context, id uuid.UUID) error {
	rn, err := s.take(id)
	if err != nil {
		return err
	}
	if err := rn.pipeline.Cancel(); err != nil {
		return err
	}
	s.metrics.ObserveRun(string(rn.kind), "cancelled")
	s.discardFile(ctx, rn)
	s.logger.Info("import cancelled", slog.String("run_id", id.String()))
	return nil
}

// ExpireStale cancels runs that have been pending longer than ttl and
// returns how many were dropped.
func (s *ImportService) ExpireStale(ctx context.Context, ttl time.Duration) int {
	cutoff := s.now().Add(-ttl)

	s.mu.Lock()
	var stale []uuid.UUID
	for id, rn := range s.runs {
		if rn.createdAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	expired := 0
	for _, id := range stale {
		if err := s.Cancel(ctx, id); err != nil {
			// confirmed or cancelled concurrently
			continue
		}
		expired++
	}
	if expired > 0 {
		s.logger.Info("expired stale import runs", slog.Int("count", expired), slog.Duration("ttl", ttl))
	}
	s.purgeOrphanFiles(ctx, cutoff)
	return expired
}

// purgeOrphanFiles deletes uploads older than cutoff that belong to no
// pending run, e.g. files left behind by a restart.
func (s *ImportService) purgeOrphanFiles(ctx context.Context, cutoff time.Time) {
	if s.files == nil {
		return
	}
	files, err := s.files.List(ctx)
	if err != nil {
		s.logger.Warn("failed to list uploaded files", slog.Any("error", err))
		return
	}

	purged := 0
	for _, f := range files {
		s.mu.Lock()
		_, pending := s.runs[f.RunID]
		s.mu.Unlock()
		if pending || !f.CreatedAt.Before(cutoff) {
			continue
		}
		if err := s.files.Delete(ctx, f.RunID); err != nil {
			s.logger.Warn("failed to delete orphaned upload", slog.String("run_id", f.RunID.String()), slog.Any("error", err))
			continue
		}
		purged++
	}
	if purged > 0 {
		s.logger.Info("purged orphaned uploads", slog.Int("count", purged))
	}
}

// Source opens the uploaded file of a pending run.
func (s *ImportService) Source(ctx context.Context, id uuid.UUID) (io.ReadCloser, *storage.FileInfo, error) {
	s.mu.Lock()
	rn, ok := s.runs[id]
	s.mu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if s.files == nil || !rn.stored {
		return nil, nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return s.files.Download(ctx, id)
}

// Pending lists runs awaiting confirmation, oldest first.
func (s *ImportService) Pending() []RunInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RunInfo, 0, len(s.runs))
	for _, rn := range s.runs {
		out = append(out, RunInfo{
			RunID:     rn.id,
			Kind:      rn.kind,
			FileName:  rn.pipeline.FileName(),
			Records:   rn.batch.Len(),
			CreatedAt: rn.createdAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

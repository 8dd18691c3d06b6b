package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/collections-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/collections-import/internal/domain/import/parser"
	"github.com/FACorreiaa/collections-import/internal/domain/import/repository"
	"github.com/FACorreiaa/collections-import/internal/domain/import/sniffer"
)

var (
	ErrInvalidTransition = errors.New("invalid pipeline transition")
	ErrEmptyFile         = errors.New("file is empty")
	ErrNoFileSelected    = errors.New("no file selected")
	ErrNoHeader          = errors.New("no header row found")
	ErrNotCancellable    = errors.New("run can only be cancelled while awaiting confirmation")
	ErrNoBulkCreator     = errors.New("no bulk creator configured")
)

// State is a step of the ingestion pipeline. Transitions only move forward;
// the terminal states go back to Idle through Reset.
type State int

const (
	StateIdle State = iota
	StateFileSelected
	StateParsed
	StateClassified
	StateNormalized
	StateAwaitingConfirmation
	StateSubmitting
	StateSucceeded
	StatePartiallyFailed
	StateFailed
)

var stateNames = [...]string{
	"idle", "file_selected", "parsed", "classified", "normalized",
	"awaiting_confirmation", "submitting", "succeeded", "partially_failed", "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StatePartiallyFailed || s == StateFailed
}

// BulkCreator persists a confirmed batch in one call. Retries and
// partial-failure recovery belong to the implementation.
type BulkCreator interface {
	CreateInvoices(ctx context.Context, runID uuid.UUID, records []normalizer.InvoiceRecord) (*repository.BulkResult, error)
	CreateExternalPayments(ctx context.Context, runID uuid.UUID, records []normalizer.ExternalPaymentRecord) (*repository.BulkResult, error)
}

// ClientResolver maps a payer name to a client number.
type ClientResolver interface {
	Match(payer string) (normalizer.ClientMatch, bool)
}

// PipelineOptions configure one run.
type PipelineOptions struct {
	Kind Kind
	// Delimiter for CSV input; zero auto-detects for invoices and uses ';'
	// for payments.
	Delimiter rune
	// MaxFileBytes caps the upload; zero means no limit.
	MaxFileBytes        int64
	DefaultExchangeRate decimal.Decimal
	DefaultMethod       normalizer.PaymentMethod
	Policy              normalizer.ParseFailurePolicy
	Catalog             *normalizer.Catalog
	Clients             ClientResolver
	// Progress, when set, is told how many bytes of the upload have been
	// read so far.
	Progress parser.ProgressFunc
	Now      func() time.Time
}

// Outcome is what Submit reports to the caller.
type Outcome struct {
	State  State
	Result *repository.BulkResult
	Err    error
}

// Pipeline runs one file through read, parse, classify, normalize,
// confirmation and submit. It is not safe for concurrent use; a run is
// owned by a single caller.
type Pipeline struct {
	opts  PipelineOptions
	state State
	err   error

	name     string
	data     []byte
	parsed   *parser.ParseResult
	detected sniffer.DetectedFormat
	invoice  sniffer.InvoiceLayout
	batch    *ImportBatch
}

// NewPipeline creates an idle pipeline.
func NewPipeline(opts PipelineOptions) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Catalog == nil {
		opts.Catalog = normalizer.DefaultCatalog()
	}
	if opts.Delimiter == 0 && opts.Kind == KindPayments {
		opts.Delimiter = ';'
	}
	return &Pipeline{opts: opts}
}

// State returns the current state.
func (p *Pipeline) State() State { return p.state }

// Err returns the error that moved the run to Failed, if any.
func (p *Pipeline) Err() error { return p.err }

// FileName returns the name given to SelectFile.
func (p *Pipeline) FileName() string { return p.name }

func (p *Pipeline) expect(want State) error {
	if p.state != want {
		return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, want, p.state)
	}
	return nil
}

// fail is the fatal-to-run exit; the error is kept for Err.
func (p *Pipeline) fail(err error) error {
	p.state = StateFailed
	p.err = err
	p.data = nil
	p.parsed = nil
	p.batch = nil
	return err
}

// SelectFile reads the whole upload. A nil reader, a read error or an
// empty file fails the run.
func (p *Pipeline) SelectFile(ctx context.Context, name string, r io.Reader) error {
	if err := p.expect(StateIdle); err != nil {
		return err
	}
	if r == nil {
		return p.fail(ErrNoFileSelected)
	}

	var readOpts []parser.ReadOption
	if p.opts.Progress != nil {
		readOpts = append(readOpts, parser.WithProgress(0, p.opts.Progress))
	}
	data, err := parser.ReadAll(ctx, r, p.opts.MaxFileBytes, readOpts...)
	if err != nil {
		return p.fail(err)
	}
	if len(data) == 0 {
		return p.fail(ErrEmptyFile)
	}

	p.name = name
	p.data = data
	p.state = StateFileSelected
	return nil
}

// Parse splits the file into rows, skipping blank ones.
func (p *Pipeline) Parse() error {
	if err := p.expect(StateFileSelected); err != nil {
		return err
	}

	result, err := parser.NewParser(parser.ParserConfig{Delimiter: p.opts.Delimiter}).Parse(p.name, p.data)
	switch {
	case errors.Is(err, sniffer.ErrEmptyFile):
		return p.fail(ErrEmptyFile)
	case err != nil:
		return p.fail(fmt.Errorf("parse %s: %w", p.name, err))
	case len(result.Rows) == 0:
		return p.fail(ErrEmptyFile)
	}

	p.data = nil
	p.parsed = result
	p.state = StateParsed
	return nil
}

// Classify detects the layout. Invoices look for the first row with a
// non-blank first cell; payments run the format rules.
func (p *Pipeline) Classify() error {
	if err := p.expect(StateParsed); err != nil {
		return err
	}

	cells := p.parsed.Cells()
	if p.opts.Kind == KindInvoices {
		idx, ok := sniffer.FindInvoiceHeader(cells)
		if !ok {
			return p.fail(ErrNoHeader)
		}
		p.invoice = sniffer.ResolveInvoiceLayout(cells[idx])
		p.detected = sniffer.DetectedFormat{
			Format:      sniffer.InvoiceSheet,
			HeaderRow:   idx,
			Header:      cells[idx],
			Fingerprint: sniffer.Fingerprint(cells[idx]),
		}
	} else {
		p.detected = sniffer.DetectFormat(cells)
	}

	p.state = StateClassified
	return nil
}

// Detected returns the classification. Valid from Classified on.
func (p *Pipeline) Detected() sniffer.DetectedFormat { return p.detected }

// Normalize builds the ImportBatch.
func (p *Pipeline) Normalize() error {
	if err := p.expect(StateClassified); err != nil {
		return err
	}

	batch := &ImportBatch{
		kind:        p.opts.Kind,
		format:      p.detected.Format,
		fingerprint: p.detected.Fingerprint,
	}
	if p.opts.Kind == KindInvoices {
		p.normalizeInvoices(batch)
	} else {
		p.normalizePayments(batch)
	}

	p.parsed = nil
	p.batch = batch
	p.state = StateNormalized
	return nil
}

// AwaitConfirmation exposes the batch for preview. From here the caller
// either submits or cancels.
func (p *Pipeline) AwaitConfirmation() error {
	if err := p.expect(StateNormalized); err != nil {
		return err
	}
	p.state = StateAwaitingConfirmation
	return nil
}

func (p *Pipeline) dataRows() []parser.RawRow {
	if p.detected.HeaderRow < 0 {
		return p.parsed.Rows
	}
	return p.parsed.Rows[p.detected.HeaderRow+1:]
}

func (p *Pipeline) normalizeInvoices(batch *ImportBatch) {
	n := normalizer.NewInvoiceNormalizer(p.opts.Policy, p.opts.Now)

	records := make([]normalizer.InvoiceRecord, 0, len(p.parsed.Rows))
	for _, row := range p.dataRows() {
		batch.rowsRead++
		if sniffer.IsSheetSentinel(row.Cells) {
			batch.dropped = append(batch.dropped, droppedRow(row, "blank first cell"))
			continue
		}
		rec, warnings, err := n.Normalize(row, p.invoice)
		if err != nil {
			batch.dropped = append(batch.dropped, droppedRow(row, err.Error()))
			continue
		}
		batch.warnings = append(batch.warnings, warnings...)
		records = append(records, *rec)
	}

	batch.invoices, batch.duplicates = normalizer.Dedupe(records, normalizer.InvoiceKey, normalizer.FirstWins)
}

func (p *Pipeline) normalizePayments(batch *ImportBatch) {
	n := normalizer.NewPaymentNormalizer(normalizer.PaymentOptions{
		DefaultExchangeRate: p.opts.DefaultExchangeRate,
		DefaultMethod:       p.opts.DefaultMethod,
		Policy:              p.opts.Policy,
	}, p.opts.Catalog.BranchCatalog(), p.opts.Catalog.MethodDetector(), p.opts.Now)

	seen := make(map[uuid.UUID]bool)
	records := make([]normalizer.ExternalPaymentRecord, 0, len(p.parsed.Rows))
	for _, row := range p.dataRows() {
		batch.rowsRead++
		rec, warnings, err := n.Normalize(row, p.detected)
		if err != nil {
			batch.dropped = append(batch.dropped, droppedRow(row, err.Error()))
			continue
		}
		if match, ok := p.resolveClient(rec); ok {
			warnings = append(warnings, normalizer.RowWarning{
				Row:     row.Line,
				Field:   normalizer.FieldClientNumber,
				Value:   rec.PayerName,
				Message: fmt.Sprintf("client %d matched by alias %q (score %d)", match.ClientNumber, match.Pattern, match.Score),
			})
			if !seen[match.AliasID] {
				seen[match.AliasID] = true
				batch.aliases = append(batch.aliases, match.AliasID)
			}
		}
		batch.warnings = append(batch.warnings, warnings...)
		records = append(records, *rec)
	}

	// payments have no business key
	batch.payments, _ = normalizer.Dedupe(records, nil, normalizer.KeepAll)
}

// resolveClient fills ClientNumber from the alias table when the row only
// carries a payer name.
func (p *Pipeline) resolveClient(rec *normalizer.ExternalPaymentRecord) (normalizer.ClientMatch, bool) {
	if p.opts.Clients == nil || rec.ClientNumber != nil || rec.PayerName == "" {
		return normalizer.ClientMatch{}, false
	}
	match, ok := p.opts.Clients.Match(rec.PayerName)
	if !ok {
		return normalizer.ClientMatch{}, false
	}
	client := match.ClientNumber
	rec.ClientNumber = &client
	return match, true
}

func droppedRow(row parser.RawRow, reason string) normalizer.DroppedRow {
	return normalizer.DroppedRow{
		Row:    row.Line,
		Reason: reason,
		Cells:  append([]string(nil), row.Cells...),
	}
}

// Preview returns the batch awaiting confirmation.
func (p *Pipeline) Preview() (*ImportBatch, error) {
	if err := p.expect(StateAwaitingConfirmation); err != nil {
		return nil, err
	}
	return p.batch, nil
}

// Submit hands the batch to creator in a single call. The pipeline keeps
// no records afterwards and never retries.
func (p *Pipeline) Submit(ctx context.Context, runID uuid.UUID, creator BulkCreator) Outcome {
	if err := p.expect(StateAwaitingConfirmation); err != nil {
		return Outcome{State: p.state, Err: err}
	}
	if creator == nil {
		return Outcome{State: StateFailed, Err: p.fail(ErrNoBulkCreator)}
	}
	p.state = StateSubmitting
	batch := p.batch
	p.batch = nil

	var (
		result *repository.BulkResult
		err    error
	)
	if batch.kind == KindInvoices {
		result, err = creator.CreateInvoices(ctx, runID, batch.invoices)
	} else {
		result, err = creator.CreateExternalPayments(ctx, runID, batch.payments)
	}

	switch {
	case err != nil:
		p.state = StateFailed
		p.err = fmt.Errorf("bulk create: %w", err)
	case result != nil && (result.Failed > 0 || result.Rejected > 0):
		p.state = StatePartiallyFailed
	default:
		p.state = StateSucceeded
	}
	return Outcome{State: p.state, Result: result, Err: p.err}
}

// Cancel discards the batch. Only a run awaiting confirmation can be
// cancelled.
func (p *Pipeline) Cancel() error {
	if p.state != StateAwaitingConfirmation {
		return fmt.Errorf("%w: run is %s", ErrNotCancellable, p.state)
	}
	p.batch = nil
	p.state = StateIdle
	return nil
}

// Reset returns a finished run to Idle so the pipeline can take another
// file.
func (p *Pipeline) Reset() error {
	if !p.state.Terminal() && p.state != StateIdle {
		return fmt.Errorf("%w: reset while %s", ErrInvalidTransition, p.state)
	}
	*p = Pipeline{opts: p.opts}
	return nil
}

// Run drives a fresh pipeline from SelectFile to AwaitingConfirmation and
// returns the preview batch.
func (p *Pipeline) Run(ctx context.Context, name string, r io.Reader) (*ImportBatch, error) {
	if err := p.SelectFile(ctx, name, r); err != nil {
		return nil, err
	}
	for _, step := range []func() error{p.Parse, p.Classify, p.Normalize, p.AwaitConfirmation} {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return p.Preview()
}

package normalizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/collections-import/internal/domain/import/parser"
	"github.com/FACorreiaa/collections-import/internal/domain/import/sniffer"
)

// ExternalPaymentRecord is the canonical shape of a payment received
// outside the billing system.
type ExternalPaymentRecord struct {
	PaymentDate   time.Time       `json:"payment_date"`
	Amount        decimal.Decimal `json:"amount"`
	ExchangeRate  decimal.Decimal `json:"exchange_rate"`
	PayerName     string          `json:"payer_name,omitempty"`
	ClientNumber  *int            `json:"client_number,omitempty"`
	Branch        Branch          `json:"branch,omitempty"`
	Concept       string          `json:"concept"`
	TransferCode  string          `json:"transfer_code,omitempty"`
	ReferenceCode string          `json:"reference_code,omitempty"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	SourceRow     int             `json:"source_row"`
}

// PaymentOptions are the caller-supplied defaults for payment rows.
type PaymentOptions struct {
	DefaultExchangeRate decimal.Decimal
	DefaultMethod       PaymentMethod
	Policy              ParseFailurePolicy
}

// PaymentNormalizer maps payment export rows to ExternalPaymentRecords.
type PaymentNormalizer struct {
	opts     PaymentOptions
	branches *BranchCatalog
	methods  *MethodDetector
	payers   *PayerSanitizer
	now      func() time.Time
}

// NewPaymentNormalizer creates a normalizer. A zero exchange rate becomes 1
// and an empty default method becomes MethodTransfer.
func NewPaymentNormalizer(opts PaymentOptions, branches *BranchCatalog, methods *MethodDetector, now func() time.Time) *PaymentNormalizer {
	if opts.DefaultExchangeRate.IsZero() {
		opts.DefaultExchangeRate = decimal.NewFromInt(1)
	}
	if opts.DefaultMethod == "" {
		opts.DefaultMethod = MethodTransfer
	}
	if branches == nil {
		branches = NewBranchCatalog(DefaultBranches)
	}
	if now == nil {
		now = time.Now
	}
	return &PaymentNormalizer{
		opts:     opts,
		branches: branches,
		methods:  methods,
		payers:   NewPayerSanitizer(),
		now:      now,
	}
}

// Normalize converts one data row of a file classified as format. The
// returned error explains why the row produced no record: ErrMinimalShape,
// ErrNoDeposit, ErrMissingPayer or ErrRowRejected.
func (n *PaymentNormalizer) Normalize(row parser.RawRow, format sniffer.DetectedFormat) (*ExternalPaymentRecord, []RowWarning, error) {
	l := format.Layout
	cells := &cellReader{row: row.Line, policy: n.opts.Policy}
	now := n.now()
	rec := &ExternalPaymentRecord{
		ExchangeRate:  n.opts.DefaultExchangeRate,
		TransferCode:  l.TransferCode.Value(row.Cells),
		ReferenceCode: l.Reference.Value(row.Cells),
		SourceRow:     row.Line,
	}

	var err error
	switch format.Format {
	case sniffer.Unknown:
		raw := l.Amount.Value(row.Cells)
		amount, perr := ParseAmountStrict(raw)
		if perr != nil || amount.IsZero() {
			return nil, nil, fmt.Errorf("%w: amount %q", ErrMinimalShape, raw)
		}
		rec.Amount = amount
	case sniffer.BankStatement:
		raw := l.Deposits.Value(row.Cells)
		rec.Amount = ParseAmount(raw)
		if !rec.Amount.IsPositive() {
			return nil, nil, fmt.Errorf("%w: deposits %q", ErrNoDeposit, raw)
		}
	default:
		if rec.Amount, err = cells.amount(FieldAmount, l.Amount.Value(row.Cells)); err != nil {
			return nil, nil, err
		}
	}

	dateParser := ParseFlexibleDate
	if format.Format == sniffer.HeaderedWithBranch || format.Format == sniffer.HeaderedNoBranch || format.Format == sniffer.BankStatement {
		dateParser = ParseLatinDate
	}
	if rec.PaymentDate, err = cells.date(FieldDate, l.Date.Value(row.Cells), now, dateParser); err != nil {
		return nil, nil, err
	}

	if err := n.resolvePayer(rec, row, format, cells); err != nil {
		return nil, nil, err
	}
	if rec.PayerName == "" && rec.ClientNumber == nil {
		return nil, nil, ErrMissingPayer
	}

	if l.Branch.Present() {
		raw := l.Branch.Value(row.Cells)
		b, ok := n.branches.Parse(raw)
		if !ok {
			cells.warn(FieldBranch, raw, "unrecognised branch, left empty")
		}
		rec.Branch = b
	}

	concept := l.Concept.Value(row.Cells)
	movement := l.Movement.Value(row.Cells)
	switch {
	case concept != "":
		rec.Concept = concept
	case movement != "":
		rec.Concept = CleanName(movement)
	default:
		rec.Concept = MissingConcept
		if l.Concept.Present() {
			cells.warn(FieldConcept, "", "missing concept, placeholder assigned")
		}
	}

	rec.PaymentMethod = n.opts.DefaultMethod
	if m, ok := n.methods.Detect(concept + " " + movement); ok {
		rec.PaymentMethod = m
	}

	return rec, cells.warnings, nil
}

// resolvePayer fills PayerName and ClientNumber from whichever columns the
// format carries. A payer cell made only of digits is a client number.
func (n *PaymentNormalizer) resolvePayer(rec *ExternalPaymentRecord, row parser.RawRow, format sniffer.DetectedFormat, cells *cellReader) error {
	l := format.Layout

	if l.ClientID.Present() {
		raw := l.ClientID.Value(row.Cells)
		if raw != "" {
			id, ok := parseClientNumber(raw)
			if ok {
				rec.ClientNumber = &id
			} else if err := cells.fail(FieldClientNumber, raw, "client id is not an integer, ignored"); err != nil {
				return err
			}
		}
	}

	if format.Format == sniffer.BankStatement {
		rec.PayerName = n.payers.Clean(l.Movement.Value(row.Cells))
		return nil
	}

	payer := CleanName(l.Payer.Value(row.Cells))
	if payer != "" && isDigits(payer) && rec.ClientNumber == nil {
		if id, ok := parseClientNumber(payer); ok {
			rec.ClientNumber = &id
			return nil
		}
	}
	rec.PayerName = payer
	return nil
}

func isDigits(s string) bool {
	return s != "" && strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) < 0
}

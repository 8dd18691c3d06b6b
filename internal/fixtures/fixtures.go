// Package fixtures generates realistic invoice and payment exports for
// tests and local demos.
package fixtures

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/FACorreiaa/collections-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/collections-import/internal/domain/import/sniffer"
)

const dateLayout = "02/01/2006"

// Generator generates export files using gofakeit.
type Generator struct {
	faker    *gofakeit.Faker
	now      time.Time
	branches []string
}

// NewGenerator creates a generator with a random seed.
func NewGenerator() *Generator {
	return NewGeneratorWithSeed(0)
}

// NewGeneratorWithSeed creates a generator with a specific seed for
// reproducibility.
func NewGeneratorWithSeed(seed int64) *Generator {
	return &Generator{
		faker:    gofakeit.New(seed),
		now:      time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC),
		branches: normalizer.DefaultBranches,
	}
}

// ============================================================================
// Invoices
// ============================================================================

type invoiceRow struct {
	ClientNumber  string `csv:"noCliente"`
	InvoiceNumber string `csv:"noFactura"`
	IssueDate     string `csv:"fechaEmision"`
	DueDate       string `csv:"fechaVencimiento"`
	DaysToDue     string `csv:"dias"`
	Balance       string `csv:"saldo"`
	Interest      string `csv:"intereses"`
	Penalty       string `csv:"moratorios"`
	Concept       string `csv:"concepto"`
}

// InvoiceOptions shapes an invoice sheet.
type InvoiceOptions struct {
	Rows       int
	Duplicates int
	// Preamble adds a report title above the header and a totals row
	// after the data, both of which the importer must skip.
	Preamble     bool
	LatinAmounts bool
}

// InvoiceFile is a generated invoice sheet plus what the importer should
// make of it.
type InvoiceFile struct {
	Content    []byte
	Numbers    []string
	Pending    int
	Duplicates int
	Total      decimal.Decimal
}

// InvoiceCSV writes a semicolon separated invoice sheet. Duplicates repeat
// earlier invoice numbers with a different balance, so first-wins can be
// checked against Total.
func (g *Generator) InvoiceCSV(opts InvoiceOptions) (*InvoiceFile, error) {
	if opts.Duplicates > opts.Rows {
		return nil, fmt.Errorf("fixtures: %d duplicates for %d rows", opts.Duplicates, opts.Rows)
	}

	out := &InvoiceFile{Total: decimal.Zero}
	rows := make([]invoiceRow, 0, opts.Rows+opts.Duplicates)
	seen := make(map[string]bool, opts.Rows)

	for len(rows) < opts.Rows {
		number := fmt.Sprintf("F-%06d", g.faker.Number(1, 999999))
		if seen[number] {
			continue
		}
		seen[number] = true

		issued := g.faker.DateRange(g.now.AddDate(0, -6, 0), g.now)
		due := issued.AddDate(0, 0, 30)
		days := int(due.Sub(g.now).Hours() / 24)
		balance := g.amount(100, 250000)
		interest := g.amount(0, 5000)
		penalty := g.amount(0, 5000)

		if days > 0 {
			out.Pending++
		}
		out.Total = out.Total.Add(decimal.Max(balance, interest.Add(penalty)))
		out.Numbers = append(out.Numbers, number)

		rows = append(rows, invoiceRow{
			ClientNumber:  strconv.Itoa(g.faker.Number(1000, 9999)),
			InvoiceNumber: number,
			IssueDate:     issued.Format(dateLayout),
			DueDate:       due.Format(dateLayout),
			DaysToDue:     strconv.Itoa(days),
			Balance:       formatAmount(balance, opts.LatinAmounts),
			Interest:      formatAmount(interest, opts.LatinAmounts),
			Penalty:       formatAmount(penalty, opts.LatinAmounts),
			Concept:       g.faker.BuzzWord() + " " + g.faker.MonthString(),
		})
	}

	for i := 0; i < opts.Duplicates; i++ {
		dup := rows[i]
		dup.Balance = formatAmount(g.amount(1, 99), opts.LatinAmounts)
		dup.Concept = "Duplicada"
		rows = append(rows, dup)
	}
	out.Duplicates = opts.Duplicates

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'
	if opts.Preamble {
		if err := w.Write([]string{"", "Reporte de cartera", "", "", "", "", "", "", ""}); err != nil {
			return nil, err
		}
	}
	if err := gocsv.MarshalCSV(&rows, gocsv.NewSafeCSVWriter(w)); err != nil {
		return nil, fmt.Errorf("fixtures: marshal invoices: %w", err)
	}
	if opts.Preamble {
		if err := w.Write([]string{"", "Total", "", "", "", formatAmount(out.Total, opts.LatinAmounts), "", "", ""}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	out.Content = buf.Bytes()
	return out, nil
}

// ============================================================================
// External payments
// ============================================================================

type branchRow struct {
	Date    string `csv:"FECHA"`
	Payer   string `csv:"CLIENTE"`
	Amount  string `csv:"TOTAL"`
	Branch  string `csv:"SUCURSAL"`
	Concept string `csv:"CONCEPTO"`
}

type noBranchRow struct {
	Date      string `csv:"FECHA"`
	Payer     string `csv:"CLIENTE"`
	Amount    string `csv:"TOTAL"`
	Reference string `csv:"REFERENCIA"`
}

type ledgerRow struct {
	MovementID string `csv:"id_movimiento"`
	Date       string `csv:"f_elaboracion"`
	Amount     string `csv:"monto_importe"`
	ClientID   string `csv:"id_cliente"`
	Reference  string `csv:"referencia"`
	Concept    string `csv:"concepto"`
}

type statementRow struct {
	Date         string `csv:"Fecha"`
	Movement     string `csv:"Movimiento"`
	TransferCode string `csv:"Cód. Trans."`
	Withdrawals  string `csv:"Retiros"`
	Deposits     string `csv:"Depósitos"`
}

// PaymentOptions shapes a payment export.
type PaymentOptions struct {
	Format sniffer.Format
	Rows   int
	// InvalidBranches is how many rows carry a branch outside the catalog.
	// Only HeaderedWithBranch files use it.
	InvalidBranches int
	LatinAmounts    bool
}

// PaymentFile is a generated payment export plus its expected totals.
type PaymentFile struct {
	Content []byte
	Rows    int
	Total   decimal.Decimal
}

// PaymentCSV writes a semicolon separated payment export in the requested
// layout.
func (g *Generator) PaymentCSV(opts PaymentOptions) (*PaymentFile, error) {
	out := &PaymentFile{Rows: opts.Rows, Total: decimal.Zero}
	amounts := make([]decimal.Decimal, opts.Rows)
	for i := range amounts {
		amounts[i] = g.amount(50, 500000)
		out.Total = out.Total.Add(amounts[i])
	}
	fmtAmount := func(i int) string { return formatAmount(amounts[i], opts.LatinAmounts) }

	var rows any
	switch opts.Format {
	case sniffer.HeaderedWithBranch:
		rs := make([]branchRow, opts.Rows)
		for i := range rs {
			branch := g.faker.RandomString(g.branches)
			if i < opts.InvalidBranches {
				branch = "MARTE"
			}
			rs[i] = branchRow{
				Date:    g.date(),
				Payer:   g.faker.Company(),
				Amount:  fmtAmount(i),
				Branch:  branch,
				Concept: "Pago " + g.faker.MonthString(),
			}
		}
		rows = &rs
	case sniffer.HeaderedNoBranch:
		rs := make([]noBranchRow, opts.Rows)
		for i := range rs {
			rs[i] = noBranchRow{
				Date:      g.date(),
				Payer:     g.faker.Name(),
				Amount:    fmtAmount(i),
				Reference: g.faker.Numerify("REF-#######"),
			}
		}
		rows = &rs
	case sniffer.MovementLedger:
		rs := make([]ledgerRow, opts.Rows)
		for i := range rs {
			rs[i] = ledgerRow{
				MovementID: g.faker.Numerify("MOV##########"),
				Date:       g.faker.DateRange(g.now.AddDate(0, -1, 0), g.now).Format("2006-01-02"),
				Amount:     fmtAmount(i),
				ClientID:   strconv.Itoa(g.faker.Number(1000, 9999)),
				Reference:  g.faker.Numerify("########"),
				Concept:    "Abono " + g.faker.BuzzWord(),
			}
		}
		rows = &rs
	case sniffer.BankStatement:
		rs := make([]statementRow, opts.Rows)
		for i := range rs {
			rs[i] = statementRow{
				Date:         g.date(),
				Movement:     "SPEI RECIBIDO " + g.faker.Company(),
				TransferCode: g.faker.Numerify("TR#########"),
				Deposits:     fmtAmount(i),
			}
		}
		rows = &rs
	default:
		return nil, fmt.Errorf("fixtures: no generator for format %s", opts.Format)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'
	if err := gocsv.MarshalCSV(rows, gocsv.NewSafeCSVWriter(w)); err != nil {
		return nil, fmt.Errorf("fixtures: marshal payments: %w", err)
	}

	out.Content = buf.Bytes()
	return out, nil
}

func (g *Generator) date() string {
	return g.faker.DateRange(g.now.AddDate(0, -1, 0), g.now).Format(dateLayout)
}

// amount returns a random value with cents between lo and hi units.
func (g *Generator) amount(lo, hi int) decimal.Decimal {
	return decimal.New(int64(g.faker.Number(lo*100, hi*100)), -2)
}

var (
	englishPrinter = message.NewPrinter(language.English)
	latinPrinter   = message.NewPrinter(language.German)
)

// formatAmount renders d with thousands grouping, either 1,234.56 or
// 1.234,56.
func formatAmount(d decimal.Decimal, latin bool) string {
	f, _ := d.Float64()
	if latin {
		return latinPrinter.Sprintf("%.2f", f)
	}
	return englishPrinter.Sprintf("%.2f", f)
}

package sniffer

import "strings"

// Format is the closed set of payment export layouts the importer knows.
type Format int

const (
	Unknown Format = iota
	HeaderedWithBranch
	HeaderedNoBranch
	MovementLedger
	BankStatement
	InvoiceSheet
)

func (f Format) String() string {
	switch f {
	case HeaderedWithBranch:
		return "headered_with_branch"
	case HeaderedNoBranch:
		return "headered_no_branch"
	case MovementLedger:
		return "movement_ledger"
	case BankStatement:
		return "bank_statement"
	case InvoiceSheet:
		return "invoice_sheet"
	default:
		return "unknown"
	}
}

// Column is a resolved position inside a row. Index is -1 when the layout
// does not carry the field.
type Column struct {
	Token string
	Index int
}

// Present reports whether the layout carries this column.
func (c Column) Present() bool { return c.Index >= 0 }

// Value returns the trimmed cell for this column, or "" when the row is
// too short or the column is absent.
func (c Column) Value(cells []string) string {
	if c.Index < 0 || c.Index >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[c.Index])
}

var absent = Column{Index: -1}

// Layout is the named field accessor for a payment format. Each format
// declares its columns exactly once in layoutSpecs.
type Layout struct {
	Date         Column
	Payer        Column
	Amount       Column
	Branch       Column
	ClientID     Column
	Reference    Column
	Concept      Column
	TransferCode Column
	Movement     Column
	Deposits     Column
}

// DetectedFormat is the classification of one file. It is computed once
// and not modified afterwards.
type DetectedFormat struct {
	Format Format
	Layout Layout
	// HeaderRow is the index of the header inside the classified rows, or -1
	// when no header was consumed.
	HeaderRow   int
	Header      []string
	Fingerprint string
}

type columnSpec struct {
	field    func(*Layout) *Column
	token    string
	fallback int
}

func date(l *Layout) *Column         { return &l.Date }
func payer(l *Layout) *Column        { return &l.Payer }
func amount(l *Layout) *Column       { return &l.Amount }
func branch(l *Layout) *Column       { return &l.Branch }
func clientID(l *Layout) *Column     { return &l.ClientID }
func reference(l *Layout) *Column    { return &l.Reference }
func concept(l *Layout) *Column      { return &l.Concept }
func transferCode(l *Layout) *Column { return &l.TransferCode }
func movement(l *Layout) *Column     { return &l.Movement }
func deposits(l *Layout) *Column     { return &l.Deposits }

// layoutSpecs maps every known format to its header tokens and the column
// index assumed when the token is missing (-1 means "not carried").
var layoutSpecs = map[Format][]columnSpec{
	HeaderedWithBranch: {
		{date, "FECHA", 0},
		{payer, "CLIENTE", 1},
		{amount, "TOTAL", 2},
		{branch, "SUCURSAL", 3},
		{concept, "CONCEPTO", -1},
		{reference, "REFERENCIA", -1},
	},
	HeaderedNoBranch: {
		{date, "FECHA", 0},
		{payer, "CLIENTE", 1},
		{amount, "TOTAL", 2},
		{concept, "CONCEPTO", -1},
		{reference, "REFERENCIA", -1},
	},
	MovementLedger: {
		{transferCode, "id_movimiento", 0},
		{date, "f_elaboracion", 1},
		{amount, "monto_importe", 2},
		{clientID, "id_cliente", 3},
		{reference, "referencia", 4},
		{concept, "concepto", 5},
		{payer, "nombre_cliente", -1},
	},
	BankStatement: {
		{date, "Fecha", 0},
		{movement, "Movimiento", 1},
		{transferCode, "Cód. Trans.", 2},
		{deposits, "Depósitos", 4},
		{reference, "Referencia", -1},
		{concept, "Descripción", -1},
	},
	Unknown: {
		{date, "", 0},
		{payer, "", 1},
		{amount, "", 2},
	},
}

// formatRules is evaluated in order; the first rule whose tokens are all
// present in the header wins.
var formatRules = []struct {
	format Format
	tokens []string
}{
	{HeaderedWithBranch, []string{"FECHA", "CLIENTE", "TOTAL", "SUCURSAL"}},
	{HeaderedNoBranch, []string{"FECHA", "CLIENTE", "TOTAL"}},
	{MovementLedger, []string{"id_movimiento", "f_elaboracion", "monto_importe"}},
	{BankStatement, []string{"Fecha", "Movimiento", "Cód. Trans."}},
}

// DetectFormat classifies rows by the tokens of their first non-empty row.
// Unknown files keep every row as a data candidate; the caller applies the
// minimal-shape check before accepting any of them.
func DetectFormat(rows [][]string) DetectedFormat {
	headerIdx := -1
	for i, row := range rows {
		if !blank(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return unknownFormat()
	}

	header := rows[headerIdx]
	keys := indexHeader(header)
	for _, rule := range formatRules {
		if !hasAll(keys, rule.tokens) {
			continue
		}
		return DetectedFormat{
			Format:      rule.format,
			Layout:      resolveLayout(layoutSpecs[rule.format], keys),
			HeaderRow:   headerIdx,
			Header:      trimCells(header),
			Fingerprint: Fingerprint(header),
		}
	}

	return unknownFormat()
}

// LayoutFor returns the layout of f assuming the default column positions.
func LayoutFor(f Format) Layout {
	return resolveLayout(layoutSpecs[f], nil)
}

func unknownFormat() DetectedFormat {
	return DetectedFormat{
		Format:    Unknown,
		Layout:    LayoutFor(Unknown),
		HeaderRow: -1,
	}
}

func resolveLayout(specs []columnSpec, keys map[string]int) Layout {
	l := Layout{
		Date: absent, Payer: absent, Amount: absent, Branch: absent,
		ClientID: absent, Reference: absent, Concept: absent,
		TransferCode: absent, Movement: absent, Deposits: absent,
	}
	for _, s := range specs {
		col := Column{Token: s.token, Index: s.fallback}
		if idx, ok := keys[HeaderKey(s.token)]; ok && s.token != "" {
			col.Index = idx
		}
		*s.field(&l) = col
	}
	return l
}

// indexHeader maps folded header keys to their first position.
func indexHeader(header []string) map[string]int {
	keys := make(map[string]int, len(header))
	for i, cell := range header {
		k := HeaderKey(cell)
		if k == "" {
			continue
		}
		if _, seen := keys[k]; !seen {
			keys[k] = i
		}
	}
	return keys
}

func hasAll(keys map[string]int, tokens []string) bool {
	for _, t := range tokens {
		if _, ok := keys[HeaderKey(t)]; !ok {
			return false
		}
	}
	return true
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func trimCells(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

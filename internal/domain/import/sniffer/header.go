package sniffer

import "strings"

// InvoiceLayout is the named field accessor for invoice sheets.
type InvoiceLayout struct {
	ClientNumber  Column
	InvoiceNumber Column
	IssueDate     Column
	DueDate       Column
	DaysToDue     Column
	Balance       Column
	Interest      Column
	Penalty       Column
	Concept       Column
}

type invoiceColumn struct {
	field    func(*InvoiceLayout) *Column
	aliases  []string
	fallback int
}

// invoiceColumns lists accepted header spellings; the first alias is the
// canonical token.
var invoiceColumns = []invoiceColumn{
	{func(l *InvoiceLayout) *Column { return &l.ClientNumber }, []string{"noCliente", "cliente", "num cliente", "id_cliente"}, 0},
	{func(l *InvoiceLayout) *Column { return &l.InvoiceNumber }, []string{"noFactura", "factura", "folio"}, 1},
	{func(l *InvoiceLayout) *Column { return &l.IssueDate }, []string{"fechaEmision", "fecha", "emision"}, 2},
	{func(l *InvoiceLayout) *Column { return &l.DueDate }, []string{"fechaVencimiento", "vencimiento"}, 3},
	{func(l *InvoiceLayout) *Column { return &l.DaysToDue }, []string{"dias", "diasVencimiento", "dias por vencer"}, 4},
	{func(l *InvoiceLayout) *Column { return &l.Balance }, []string{"saldo", "importe"}, 5},
	{func(l *InvoiceLayout) *Column { return &l.Interest }, []string{"intereses", "interes"}, 6},
	{func(l *InvoiceLayout) *Column { return &l.Penalty }, []string{"moratorios", "moratorio"}, 7},
	{func(l *InvoiceLayout) *Column { return &l.Concept }, []string{"concepto", "descripcion"}, 8},
}

// FindInvoiceHeader returns the index of the first row whose first cell is
// not blank. Rows before it are preamble.
func FindInvoiceHeader(rows [][]string) (int, bool) {
	for i, row := range rows {
		if len(row) > 0 && strings.TrimSpace(row[0]) != "" {
			return i, true
		}
	}
	return -1, false
}

// IsSheetSentinel reports whether a row after the header closes a block:
// invoice exports mark subtotal and footer lines with a blank first cell.
func IsSheetSentinel(row []string) bool {
	return len(row) == 0 || strings.TrimSpace(row[0]) == ""
}

// ResolveInvoiceLayout matches header cells by name, falling back to the
// conventional column order when a header is missing or unrecognised.
func ResolveInvoiceLayout(header []string) InvoiceLayout {
	keys := indexHeader(header)
	var l InvoiceLayout
	for _, c := range invoiceColumns {
		col := Column{Token: c.aliases[0], Index: c.fallback}
		for _, alias := range c.aliases {
			if idx, ok := keys[HeaderKey(alias)]; ok {
				col.Index = idx
				break
			}
		}
		*c.field(&l) = col
	}
	return l
}

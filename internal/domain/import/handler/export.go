package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gocarina/gocsv"

	"github.com/FACorreiaa/collections-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/collections-import/internal/domain/import/service"
)

const exportDateLayout = "02/01/2006"

type invoiceExportRow struct {
	Row           int    `csv:"fila"`
	ClientNumber  int    `csv:"noCliente"`
	InvoiceNumber string `csv:"noFactura"`
	IssueDate     string `csv:"fechaEmision"`
	DueDate       string `csv:"fechaVencimiento"`
	Balance       string `csv:"saldo"`
	Status        string `csv:"estatus"`
	Concept       string `csv:"concepto"`
}

type paymentExportRow struct {
	Row           int    `csv:"fila"`
	Date          string `csv:"fecha"`
	Amount        string `csv:"monto"`
	ExchangeRate  string `csv:"tipo_cambio"`
	PayerName     string `csv:"pagador"`
	ClientNumber  string `csv:"noCliente"`
	Branch        string `csv:"sucursal"`
	Method        string `csv:"forma_pago"`
	Concept       string `csv:"concepto"`
	TransferCode  string `csv:"cod_transferencia"`
	ReferenceCode string `csv:"referencia"`
}

// Export writes the whole normalized batch of a pending run as CSV so it
// can be reviewed in a spreadsheet before confirming.
func (h *ImportHandler) Export(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}
	batch, err := h.importSvc.Batch(id)
	if err != nil {
		h.respondError(w, statusFor(err), err)
		return
	}

	var rows any
	if batch.Kind() == service.KindInvoices {
		rows = invoiceRows(batch.Invoices())
	} else {
		rows = paymentRows(batch.Payments())
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s-%s.csv", batch.Kind(), id)))
	if err := gocsv.Marshal(rows, w); err != nil {
		h.logger.Error("failed to write export", slog.String("run_id", id.String()), slog.Any("error", err))
	}
}

func invoiceRows(records []normalizer.InvoiceRecord) []*invoiceExportRow {
	rows := make([]*invoiceExportRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, &invoiceExportRow{
			Row:           r.SourceRow,
			ClientNumber:  r.ClientNumber,
			InvoiceNumber: r.InvoiceNumber,
			IssueDate:     r.IssueDate.Format(exportDateLayout),
			DueDate:       r.DueDate.Format(exportDateLayout),
			Balance:       r.Balance.StringFixed(2),
			Status:        string(r.Status),
			Concept:       r.Concept,
		})
	}
	return rows
}

func paymentRows(records []normalizer.ExternalPaymentRecord) []*paymentExportRow {
	rows := make([]*paymentExportRow, 0, len(records))
	for _, r := range records {
		row := &paymentExportRow{
			Row:           r.SourceRow,
			Date:          r.PaymentDate.Format(exportDateLayout),
			Amount:        r.Amount.StringFixed(2),
			ExchangeRate:  r.ExchangeRate.String(),
			PayerName:     r.PayerName,
			Branch:        string(r.Branch),
			Method:        string(r.PaymentMethod),
			Concept:       r.Concept,
			TransferCode:  r.TransferCode,
			ReferenceCode: r.ReferenceCode,
		}
		if r.ClientNumber != nil {
			row.ClientNumber = strconv.Itoa(*r.ClientNumber)
		}
		rows = append(rows, row)
	}
	return rows
}

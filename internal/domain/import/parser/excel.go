package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/collections-import/internal/domain/import/sniffer"
)

// ExcelParser reads XLSX workbooks.
type ExcelParser struct{}

// NewExcelParser creates a new Excel parser
func NewExcelParser() *ExcelParser {
	return &ExcelParser{}
}

// Parse reads every row of the data sheet as formatted cell text.
func (p *ExcelParser) Parse(reader io.Reader) (*ParseResult, error) {
	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheetName := findDataSheet(f.GetSheetList())
	if sheetName == "" {
		return nil, fmt.Errorf("no suitable sheet found")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheetName, err)
	}
	if len(rows) == 0 {
		return nil, sniffer.ErrEmptyFile
	}

	result := &ParseResult{Rows: make([]RawRow, 0, len(rows))}
	for i, row := range rows {
		result.add(i+1, row)
	}
	if len(result.Rows) == 0 {
		return nil, sniffer.ErrEmptyFile
	}
	return result, nil
}

// preferredSheets are matched case-insensitively before falling back to
// the first sheet.
var preferredSheets = []string{
	"facturas", "cartera", "pagos", "depositos", "movimientos",
	"estado de cuenta", "sheet1", "hoja1",
}

func findDataSheet(sheets []string) string {
	if len(sheets) == 0 {
		return ""
	}
	for _, preferred := range preferredSheets {
		for _, sheet := range sheets {
			if strings.EqualFold(sniffer.Fold(sheet), sniffer.Fold(preferred)) {
				return sheet
			}
		}
	}
	return sheets[0]
}

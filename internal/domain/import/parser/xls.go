package parser

import (
	"bytes"
	"fmt"

	"github.com/extrame/xls"

	"github.com/FACorreiaa/collections-import/internal/domain/import/sniffer"
)

// XLSParser reads legacy BIFF (.xls) workbooks, which several bank portals
// still emit.
type XLSParser struct {
	charset string
}

// NewXLSParser creates a parser for legacy workbooks.
func NewXLSParser() *XLSParser {
	return &XLSParser{charset: "utf-8"}
}

// Parse reads the first sheet.
func (p *XLSParser) Parse(data []byte) (*ParseResult, error) {
	book, err := xls.OpenReader(bytes.NewReader(data), p.charset)
	if err != nil {
		return nil, fmt.Errorf("failed to open xls file: %w", err)
	}
	if book.NumSheets() == 0 {
		return nil, fmt.Errorf("no sheets found")
	}
	sheet := book.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("no sheets found")
	}

	result := &ParseResult{}
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			continue
		}
		cells := make([]string, 0, row.LastCol())
		for j := 0; j < row.LastCol(); j++ {
			cells = append(cells, row.Col(j))
		}
		result.add(i+1, cells)
	}
	if len(result.Rows) == 0 {
		return nil, sniffer.ErrEmptyFile
	}
	return result, nil
}

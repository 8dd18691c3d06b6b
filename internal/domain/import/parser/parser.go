// Package parser reads uploaded CSV and spreadsheet files into positional
// rows. It does not interpret cells; see the sniffer and normalizer packages.
package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/FACorreiaa/collections-import/internal/domain/import/sniffer"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

// RawRow is one non-blank source row. Line is 1-based and refers to the
// physical line (CSV) or sheet row (workbooks) so warnings can point back
// to the file.
type RawRow struct {
	Line  int
	Cells []string
}

// Cell returns the trimmed cell at i, or "" past the end of the row.
func (r RawRow) Cell(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return strings.TrimSpace(r.Cells[i])
}

// ParseError represents a row the reader could not tokenise.
type ParseError struct {
	Row     int
	Message string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// ParseResult is the output of reading one file.
type ParseResult struct {
	Rows      []RawRow
	Errors    []ParseError
	Delimiter rune
	// BlankRows counts rows skipped because every cell was empty.
	BlankRows int
}

// Cells returns the row cells, in order, for format detection.
func (r *ParseResult) Cells() [][]string {
	out := make([][]string, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = row.Cells
	}
	return out
}

// ParserConfig configures file reading.
type ParserConfig struct {
	// Delimiter for CSV input. Zero means auto-detect.
	Delimiter rune
}

// DefaultConfig auto-detects the delimiter.
func DefaultConfig() ParserConfig {
	return ParserConfig{}
}

// Parser reads a file into rows, choosing the reader by file extension.
type Parser struct {
	config ParserConfig
}

// NewParser creates a new parser with the given configuration.
func NewParser(config ParserConfig) *Parser {
	return &Parser{config: config}
}

// Parse reads data named name. Workbooks (.xlsx, .xls) are read from
// their first data sheet; anything else is treated as delimited text.
func (p *Parser) Parse(name string, data []byte) (*ParseResult, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return NewExcelParser().Parse(bytes.NewReader(data))
	case ".xls":
		return NewXLSParser().Parse(data)
	case ".pdf", ".zip":
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(name))
	}
	return p.ParseCSV(data)
}

// ParseCSV reads delimited text. Rows with a tokenising error are recorded
// in Errors and skipped.
func (p *Parser) ParseCSV(data []byte) (*ParseResult, error) {
	data = NormalizeBytes(data)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, sniffer.ErrEmptyFile
	}

	delimiter := p.config.Delimiter
	if delimiter == 0 {
		detected, err := sniffer.DetectDelimiter(data)
		switch {
		case errors.Is(err, sniffer.ErrInvalidDelimiter):
			// single column file
			detected = ','
		case err != nil:
			return nil, err
		}
		delimiter = detected
	}

	result := &ParseResult{
		Rows:      make([]RawRow, 0, 256),
		Delimiter: delimiter,
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			row := 0
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				row = perr.Line
			}
			result.Errors = append(result.Errors, ParseError{Row: row, Message: err.Error()})
			continue
		}
		line, _ := reader.FieldPos(0)
		result.add(line, record)
	}

	return result, nil
}

func (r *ParseResult) add(line int, cells []string) {
	if isBlank(cells) {
		r.BlankRows++
		return
	}
	r.Rows = append(r.Rows, RawRow{Line: line, Cells: cells})
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// NormalizeBytes strips a UTF-8 byte order mark and decodes non-UTF-8
// input as Windows-1252, the usual encoding of spreadsheet CSV exports.
func NormalizeBytes(data []byte) []byte {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(data) {
		return data
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return data
	}
	return decoded
}

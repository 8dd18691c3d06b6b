package parser

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/collections-import/internal/domain/import/sniffer"
)

func TestParser_ParseCSV(t *testing.T) {
	t.Run("semicolon file with blank rows", func(t *testing.T) {
		data := "FECHA;CLIENTE;TOTAL;SUCURSAL\n01/03/2024;Juan Perez;1,234.56;NORTE\n;;;\n\n02/03/2024;Ana;10;SUR\n"

		result, err := NewParser(DefaultConfig()).ParseCSV([]byte(data))

		require.NoError(t, err)
		assert.Equal(t, ';', result.Delimiter)
		require.Len(t, result.Rows, 3)
		assert.Equal(t, []string{"01/03/2024", "Juan Perez", "1,234.56", "NORTE"}, result.Rows[1].Cells)
		assert.Equal(t, 1, result.Rows[0].Line)
		assert.Equal(t, 2, result.Rows[1].Line)
		assert.Equal(t, 5, result.Rows[2].Line)
		assert.Equal(t, 1, result.BlankRows)
		assert.Empty(t, result.Errors)
	})

	t.Run("fixed delimiter overrides detection", func(t *testing.T) {
		data := "a,b;c\n1,2;3\n"

		result, err := NewParser(ParserConfig{Delimiter: ';'}).ParseCSV([]byte(data))

		require.NoError(t, err)
		assert.Equal(t, ';', result.Delimiter)
		assert.Equal(t, []string{"1,2", "3"}, result.Rows[1].Cells)
	})

	t.Run("quoted comma amounts", func(t *testing.T) {
		data := "noFactura,saldo\nA100,\"1,500.00\"\nA101,\"2,000.00\"\n"

		result, err := NewParser(DefaultConfig()).ParseCSV([]byte(data))

		require.NoError(t, err)
		assert.Equal(t, ',', result.Delimiter)
		assert.Equal(t, "1,500.00", result.Rows[1].Cell(1))
	})

	t.Run("single column falls back to comma", func(t *testing.T) {
		result, err := NewParser(DefaultConfig()).ParseCSV([]byte("uno\ndos\n"))

		require.NoError(t, err)
		assert.Equal(t, ',', result.Delimiter)
		assert.Len(t, result.Rows, 2)
	})

	t.Run("ragged rows are kept", func(t *testing.T) {
		result, err := NewParser(ParserConfig{Delimiter: ';'}).ParseCSV([]byte("a;b;c\n1;2\n1;2;3;4\n"))

		require.NoError(t, err)
		require.Len(t, result.Rows, 3)
		assert.Len(t, result.Rows[1].Cells, 2)
		assert.Equal(t, "", result.Rows[1].Cell(2))
	})

	t.Run("BOM and CRLF", func(t *testing.T) {
		data := "\ufeffFecha;Movimiento;Cód. Trans.\r\n05/03/2024;SPEI;T-1\r\n"

		result, err := NewParser(DefaultConfig()).ParseCSV([]byte(data))

		require.NoError(t, err)
		assert.Equal(t, "Fecha", result.Rows[0].Cells[0])
		assert.Equal(t, "T-1", result.Rows[1].Cells[2])
	})

	t.Run("windows-1252 input is decoded", func(t *testing.T) {
		data := []byte("Fecha;Dep\xf3sitos\n05/03/2024;100\n")

		result, err := NewParser(DefaultConfig()).ParseCSV(data)

		require.NoError(t, err)
		assert.Equal(t, "Depósitos", result.Rows[0].Cells[1])
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := NewParser(DefaultConfig()).ParseCSV([]byte(" \n\n"))
		assert.ErrorIs(t, err, sniffer.ErrEmptyFile)
	})
}

func TestParser_Parse_Dispatch(t *testing.T) {
	p := NewParser(DefaultConfig())

	_, err := p.Parse("estado.pdf", []byte("%PDF-1.4"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = p.Parse("cartera.xls", []byte("not a workbook"))
	assert.Error(t, err)

	result, err := p.Parse("pagos.CSV", []byte("a;b\n1;2\n"))
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
}

func TestExcelParser_Parse(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	_, err := f.NewSheet("Facturas")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Facturas", "A1", &[]any{"Reporte de cartera"}))
	require.NoError(t, f.SetSheetRow("Facturas", "A3", &[]any{"noCliente", "noFactura", "saldo"}))
	require.NoError(t, f.SetSheetRow("Facturas", "A4", &[]any{1024, "A100", "1500.50"}))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	result, err := NewParser(DefaultConfig()).Parse("cartera.xlsx", buf.Bytes())

	require.NoError(t, err)
	require.Len(t, result.Rows, 3, "preamble, header and one data row")
	assert.Equal(t, 3, result.Rows[1].Line)
	assert.Equal(t, []string{"1024", "A100", "1500.50"}, result.Rows[2].Cells)
}

func TestFindDataSheet(t *testing.T) {
	assert.Equal(t, "Pagos", findDataSheet([]string{"Resumen", "Pagos"}))
	assert.Equal(t, "Estado de Cuenta", findDataSheet([]string{"Notas", "Estado de Cuenta"}))
	assert.Equal(t, "Resumen", findDataSheet([]string{"Resumen", "Notas"}))
	assert.Equal(t, "", findDataSheet(nil))
}

func TestReadAll(t *testing.T) {
	data, err := ReadAll(context.Background(), strings.NewReader("abc"), 3)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	_, err = ReadAll(context.Background(), strings.NewReader("abcd"), 3)
	assert.ErrorIs(t, err, ErrFileTooLarge)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ReadAll(ctx, strings.NewReader("abc"), 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadAll_Progress(t *testing.T) {
	var reports []int64
	onProgress := func(read int64) { reports = append(reports, read) }

	data, err := ReadAll(context.Background(), iotest.OneByteReader(strings.NewReader("0123456789")), 0,
		WithProgress(4, onProgress))
	require.NoError(t, err)
	assert.Len(t, data, 10)
	assert.Equal(t, []int64{4, 8, 10}, reports, "every 4 bytes plus the final count")

	reports = nil
	_, err = ReadAll(context.Background(), strings.NewReader("0123456789"), 5, WithProgress(100, onProgress))
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Equal(t, []int64{6}, reports, "reading stops one byte past the limit")

	reports = nil
	_, err = ReadAll(context.Background(), strings.NewReader(""), 0, WithProgress(1, onProgress))
	require.NoError(t, err)
	assert.Empty(t, reports)
}

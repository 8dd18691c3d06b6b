package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"testing"
	"time"
)

// generateCSVData creates a layout A payments file with the given row count.
func generateCSVData(rows int) []byte {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	writer.Comma = ';'

	_ = writer.Write([]string{"FECHA", "CLIENTE", "TOTAL", "SUCURSAL"})
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < rows; i++ {
		_ = writer.Write([]string{
			base.AddDate(0, 0, i%365).Format("02/01/2006"),
			fmt.Sprintf("Cliente %d", i%500),
			fmt.Sprintf("%d.%03d,%02d", 1+i%90, i%1000, i%100),
			[]string{"NORTE", "SUR", "CENTRO"}[i%3],
		})
	}

	writer.Flush()
	return buf.Bytes()
}

func BenchmarkParseCSV(b *testing.B) {
	for _, size := range []int{100, 1000, 10000} {
		data := generateCSVData(size)
		p := NewParser(DefaultConfig())

		b.Run(fmt.Sprintf("%d_rows", size), func(b *testing.B) {
			b.SetBytes(int64(len(data)))
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := p.ParseCSV(data); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkNormalizeBytes(b *testing.B) {
	utf := generateCSVData(1000)
	latin := bytes.ReplaceAll(utf, []byte("Cliente"), []byte("Cami\xf3n"))

	b.Run("utf8", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			NormalizeBytes(utf)
		}
	})
	b.Run("windows1252", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			NormalizeBytes(latin)
		}
	})
}

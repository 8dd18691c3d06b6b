package sniffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		name string
		data string
		want rune
	}{
		{"semicolon", "FECHA;CLIENTE;TOTAL\n01/03/2024;Juan;10,50\n", ';'},
		{"comma", "noCliente,noFactura,saldo\n1,A1,10\n2,A2,20\n", ','},
		{"tab", "a\tb\tc\n1\t2\t3\n", '\t'},
		{"pipe", "a|b|c\n1|2|3\n", '|'},
		{"bom and crlf", "\uFEFFa;b;c\r\n1;2;3\r\n", ';'},
		{"commas inside decimals lose to semicolons", "FECHA;TOTAL\n01/03/2024;1,5\n02/03/2024;2,5\n", ';'},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectDelimiter([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("empty input", func(t *testing.T) {
		_, err := DetectDelimiter(nil)
		assert.ErrorIs(t, err, ErrEmptyFile)

		_, err = DetectDelimiter([]byte("\n \n"))
		assert.ErrorIs(t, err, ErrEmptyFile)
	})

	t.Run("single column", func(t *testing.T) {
		_, err := DetectDelimiter([]byte("only\nvalues\n"))
		assert.ErrorIs(t, err, ErrInvalidDelimiter)
	})
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]string{"Fecha", "Movimiento", "Cód. Trans."})
	b := Fingerprint([]string{" FECHA ", "movimiento", "cod trans"})
	c := Fingerprint([]string{"FECHA", "CLIENTE", "TOTAL"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestFold(t *testing.T) {
	assert.Equal(t, "COD. TRANS.", Fold("  Cód.   Trans. "))
	assert.Equal(t, "DEPOSITOS", Fold("Depósitos"))
	assert.Equal(t, "CODTRANS", HeaderKey("Cód. Trans."))
	assert.Equal(t, "IDMOVIMIENTO", HeaderKey("id_movimiento"))
}

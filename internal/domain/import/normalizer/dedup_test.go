package normalizer

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupe_FirstWins(t *testing.T) {
	records := []InvoiceRecord{
		{InvoiceNumber: "A100", Balance: decimal.NewFromInt(10), Concept: "first"},
		{InvoiceNumber: "A200", Balance: decimal.NewFromInt(20)},
		{InvoiceNumber: "A100", Balance: decimal.NewFromInt(99), Concept: "second"},
		{InvoiceNumber: "A300", Balance: decimal.NewFromInt(30)},
		{InvoiceNumber: "A100", Balance: decimal.NewFromInt(77), Concept: "third"},
	}

	kept, dropped := Dedupe(records, InvoiceKey, FirstWins)

	require.Len(t, kept, 3)
	assert.Equal(t, []string{"A100", "A200", "A300"}, []string{kept[0].InvoiceNumber, kept[1].InvoiceNumber, kept[2].InvoiceNumber})
	assert.Equal(t, "first", kept[0].Concept)
	assert.True(t, kept[0].Balance.Equal(decimal.NewFromInt(10)))

	require.Len(t, dropped, 2)
	assert.Equal(t, "second", dropped[0].Concept)
	assert.Equal(t, "third", dropped[1].Concept)
}

func TestDedupe_KeepAll(t *testing.T) {
	items := []string{"a", "b", "a"}

	kept, dropped := Dedupe(items, func(s string) string { return s }, KeepAll)

	assert.Equal(t, items, kept)
	assert.Empty(t, dropped)

	// the result must not alias the input
	kept[0] = "z"
	assert.Equal(t, "a", items[0])
}

func TestDedupe_Empty(t *testing.T) {
	kept, dropped := Dedupe(nil, InvoiceKey, FirstWins)
	assert.Empty(t, kept)
	assert.Empty(t, dropped)
}

func TestPolicyNames(t *testing.T) {
	assert.Equal(t, "first_wins", FirstWins.String())
	assert.Equal(t, "keep_all", KeepAll.String())
	assert.Equal(t, "substitute_default", SubstituteDefault.String())
	assert.Equal(t, "reject_row", RejectRow.String())

	p, err := ParseParseFailurePolicy("reject_row")
	require.NoError(t, err)
	assert.Equal(t, RejectRow, p)

	p, err = ParseParseFailurePolicy("")
	require.NoError(t, err)
	assert.Equal(t, SubstituteDefault, p)

	_, err = ParseParseFailurePolicy("guess")
	assert.Error(t, err)
}

package sniffer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold upper-cases s, strips diacritics and collapses inner whitespace.
// "  Cód.  Trans. " folds to "COD. TRANS.".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToUpper(strings.Join(strings.Fields(out), " "))
}

// HeaderKey reduces a header cell to its folded letters and digits, so
// "Cód. Trans.", "COD TRANS" and "cod_trans" compare equal.
func HeaderKey(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, Fold(s))
}

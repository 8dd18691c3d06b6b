package normalizer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cloudflare/ahocorasick"

	"github.com/FACorreiaa/collections-import/internal/domain/import/sniffer"
)

// PaymentMethod is how an external payment reached the bank.
type PaymentMethod string

const (
	MethodTransfer PaymentMethod = "Transferencia"
	MethodCash     PaymentMethod = "Efectivo"
	MethodCheck    PaymentMethod = "Cheque"
	MethodCard     PaymentMethod = "Tarjeta"
	MethodDeposit  PaymentMethod = "Deposito"
	MethodOther    PaymentMethod = "Otro"
)

// methodPriority breaks ties when a text mentions several methods:
// "DEPOSITO EN EFECTIVO" is cash, not a generic deposit.
var methodPriority = []PaymentMethod{MethodCheck, MethodCard, MethodCash, MethodTransfer, MethodDeposit, MethodOther}

// ParsePaymentMethod accepts the method name in any case or accent form.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	key := sniffer.Fold(s)
	for _, m := range methodPriority {
		if sniffer.Fold(string(m)) == key {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

// MethodDetector finds payment method keywords in free text with a single
// Aho-Corasick pass.
type MethodDetector struct {
	matcher  *ahocorasick.Matcher
	patterns []PaymentMethod
}

// NewMethodDetector compiles keyword lists per method.
func NewMethodDetector(keywords map[PaymentMethod][]string) *MethodDetector {
	var (
		dict    [][]byte
		methods []PaymentMethod
	)
	for _, m := range methodPriority {
		for _, kw := range keywords[m] {
			kw = sniffer.Fold(kw)
			if kw == "" {
				continue
			}
			dict = append(dict, []byte(kw))
			methods = append(methods, m)
		}
	}
	return &MethodDetector{
		matcher:  ahocorasick.NewMatcher(dict),
		patterns: methods,
	}
}

// Detect returns the highest priority method mentioned in text.
func (d *MethodDetector) Detect(text string) (PaymentMethod, bool) {
	if d == nil || len(d.patterns) == 0 {
		return "", false
	}
	hits := d.matcher.Match([]byte(sniffer.Fold(text)))
	if len(hits) == 0 {
		return "", false
	}
	best := hits[0]
	for _, h := range hits[1:] {
		if h < best {
			best = h
		}
	}
	return d.patterns[best], true
}

// PayerSanitizer turns bank movement descriptions into a payer name.
type PayerSanitizer struct {
	prefixes []string
}

// NewPayerSanitizer creates a sanitizer with the usual Mexican bank prefixes.
func NewPayerSanitizer() *PayerSanitizer {
	return &PayerSanitizer{
		prefixes: []string{
			"SPEI RECIBIDO ", "SPEI ", "TRANSFERENCIA DE ", "TRANSFERENCIA ", "TRANSF ",
			"DEPOSITO EN EFECTIVO ", "DEPOSITO DE ", "DEPOSITO ", "DEP EFECTIVO ", "DEP ",
			"ABONO ", "PAGO DE ", "PAGO ", "CHEQUE ",
		},
	}
}

var (
	refPattern   = regexp.MustCompile(`\s+(REF\.?\s*)?\d{4,}$`)
	datePattern  = regexp.MustCompile(`\s+\d{1,2}/\d{1,2}(/\d{2,4})?$`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// Clean strips the movement prefix and trailing reference or date noise,
// then title-cases what is left. Bank statements are upper-case without
// accents, so the result is folded as well.
func (s *PayerSanitizer) Clean(movement string) string {
	result := sniffer.Fold(movement)
	for _, prefix := range s.prefixes {
		if strings.HasPrefix(result, prefix) {
			result = result[len(prefix):]
			break
		}
	}

	result = refPattern.ReplaceAllString(result, "")
	result = datePattern.ReplaceAllString(result, "")
	result = spacePattern.ReplaceAllString(result, " ")

	return titleCase(strings.TrimSpace(result))
}

// CleanName collapses whitespace in a payer cell. Names taken from a named
// column are otherwise kept as written.
func CleanName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		r := []rune(strings.ToLower(word))
		if len(r) > 0 {
			r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

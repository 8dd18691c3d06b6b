package normalizer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog holds the reference data the normalizers validate against.
type Catalog struct {
	Branches       []string            `yaml:"branches"`
	PaymentMethods map[string][]string `yaml:"payment_methods"`
}

// DefaultCatalog returns the built-in branches and payment keywords.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Branches: append([]string(nil), DefaultBranches...),
		PaymentMethods: map[string][]string{
			string(MethodCheck):    {"CHEQUE", "CHQ"},
			string(MethodCard):     {"TARJETA", "TDC", "TDD", "TPV"},
			string(MethodCash):     {"EFECTIVO", "EFVO"},
			string(MethodTransfer): {"SPEI", "TRANSF"},
			string(MethodDeposit):  {"DEPOSITO"},
		},
	}
}

// LoadCatalog reads a YAML catalog. An empty path returns the defaults;
// sections missing from the file keep their default values.
func LoadCatalog(path string) (*Catalog, error) {
	c := DefaultCatalog()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return parseCatalog(data, c)
}

func parseCatalog(data []byte, defaults *Catalog) (*Catalog, error) {
	var fromFile Catalog
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	if len(fromFile.Branches) > 0 {
		defaults.Branches = fromFile.Branches
	}
	if len(fromFile.PaymentMethods) > 0 {
		for name := range fromFile.PaymentMethods {
			if _, err := ParsePaymentMethod(name); err != nil {
				return nil, fmt.Errorf("parse catalog: %w", err)
			}
		}
		defaults.PaymentMethods = fromFile.PaymentMethods
	}
	return defaults, nil
}

// BranchCatalog builds the branch set.
func (c *Catalog) BranchCatalog() *BranchCatalog {
	return NewBranchCatalog(c.Branches)
}

// MethodDetector compiles the keyword lists.
func (c *Catalog) MethodDetector() *MethodDetector {
	keywords := make(map[PaymentMethod][]string, len(c.PaymentMethods))
	for name, kws := range c.PaymentMethods {
		m, err := ParsePaymentMethod(name)
		if err != nil {
			continue
		}
		keywords[m] = append(keywords[m], kws...)
	}
	return NewMethodDetector(keywords)
}

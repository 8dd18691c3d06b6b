package normalizer

import (
	"strings"

	"github.com/FACorreiaa/collections-import/internal/domain/import/sniffer"
)

// Branch is a collections branch office. The empty Branch means "none".
type Branch string

// DefaultBranches is used when no catalog file is configured.
var DefaultBranches = []string{"NORTE", "SUR", "CENTRO", "ORIENTE", "PONIENTE"}

// BranchCatalog is the closed set of valid branches.
type BranchCatalog struct {
	byKey map[string]Branch
	order []Branch
}

// NewBranchCatalog builds a catalog. Names are stored folded, so "Norte"
// and "NORTE" are the same branch.
func NewBranchCatalog(names []string) *BranchCatalog {
	c := &BranchCatalog{byKey: make(map[string]Branch, len(names))}
	for _, n := range names {
		key := sniffer.Fold(n)
		if key == "" {
			continue
		}
		if _, dup := c.byKey[key]; dup {
			continue
		}
		b := Branch(key)
		c.byKey[key] = b
		c.order = append(c.order, b)
	}
	return c
}

// Parse validates raw against the catalog. A blank cell is ("", true);
// an unrecognised name is ("", false) and is never mapped to a guess.
func (c *BranchCatalog) Parse(raw string) (Branch, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", true
	}
	b, ok := c.byKey[sniffer.Fold(raw)]
	if !ok {
		return "", false
	}
	return b, true
}

// Branches lists the catalog in declaration order.
func (c *BranchCatalog) Branches() []Branch {
	return append([]Branch(nil), c.order...)
}

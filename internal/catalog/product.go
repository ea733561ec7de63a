package catalog

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	categorySep = "|"
	photoPrefix = "/fotos/"
)

type Product struct {
	SKU              string   `json:"sku"`
	Title            string   `json:"title"`
	ShortDescription string   `json:"short_description"`
	LongDescription  string   `json:"long_description"`
	ShippingCost     string   `json:"shipping_cost"`
	Receiver         string   `json:"receiver"`
	ImageRef         string   `json:"image"`
	Categories       []string `json:"categories"`

	// Extra keeps columns this code does not know about so a rewrite of the
	// file does not drop them.
	Extra map[string]string `json:"-"`
}

type Material struct {
	Name       string   `json:"name"`
	Categories []string `json:"categories"`
}

// ParseCategories splits a pipe-delimited category cell. Blank entries are
// dropped; an empty cell yields an empty, non-nil list.
func ParseCategories(s string) []string {
	out := []string{}
	if strings.TrimSpace(s) == "" {
		return out
	}
	for _, c := range strings.Split(s, categorySep) {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func JoinCategories(cats []string) string {
	clean := make([]string, 0, len(cats))
	for _, c := range cats {
		if c = strings.TrimSpace(c); c != "" {
			clean = append(clean, c)
		}
	}
	return strings.Join(clean, categorySep)
}

func (p Product) HasCategory(category string) bool {
	for _, c := range p.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Shipping parses the stored shipping cost. Empty means free. The second
// result is false when the cell holds something that is not an amount.
func (p Product) Shipping() (decimal.Decimal, bool) {
	return ParseAmount(p.ShippingCost)
}

func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	if s == "" {
		return decimal.Zero, true
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}

// ImageURL is the path a browser should load the product photo from.
func (p Product) ImageURL() string {
	ref := strings.TrimSpace(p.ImageRef)
	switch {
	case ref == "":
		return ""
	case IsRemoteRef(ref), strings.HasPrefix(ref, "/"):
		return ref
	default:
		return photoPrefix + NormalizeImageRef(ref)
	}
}

func IsRemoteRef(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

package catalog

import (
	"sort"
	"strings"
)

// Filter narrows a product list. Empty fields do not constrain; set fields
// are combined with AND.
type Filter struct {
	Category string `json:"categoria,omitempty"`
	Material string `json:"material,omitempty"`
	Receiver string `json:"receptor,omitempty"`
}

func (f Filter) IsZero() bool {
	return f.Category == "" && f.Material == "" && f.Receiver == ""
}

// Apply returns the products matching f. A material name that is not in
// materials matches nothing.
func Apply(products []Product, materials []Material, f Filter) []Product {
	if f.IsZero() {
		return products
	}

	var matCats map[string]struct{}
	if f.Material != "" {
		m, ok := FindMaterial(materials, f.Material)
		if !ok {
			return []Product{}
		}
		matCats = make(map[string]struct{}, len(m.Categories))
		for _, c := range m.Categories {
			matCats[c] = struct{}{}
		}
	}

	out := make([]Product, 0, len(products))
	for _, p := range products {
		if f.Category != "" && !p.HasCategory(f.Category) {
			continue
		}
		if f.Receiver != "" && !strings.EqualFold(p.Receiver, f.Receiver) {
			continue
		}
		if matCats != nil && !anyIn(p.Categories, matCats) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func ByReceiver(products []Product, receiver string) []Product {
	return Apply(products, nil, Filter{Receiver: receiver})
}

func FindMaterial(materials []Material, name string) (Material, bool) {
	name = strings.TrimSpace(name)
	for _, m := range materials {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return Material{}, false
}

func FindBySKU(products []Product, sku string) (Product, bool) {
	for _, p := range products {
		if p.SKU == sku {
			return p, true
		}
	}
	return Product{}, false
}

// Categories returns the sorted set of categories used by any product.
func Categories(products []Product) []string {
	set := map[string]struct{}{}
	for _, p := range products {
		for _, c := range p.Categories {
			set[c] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func MaterialCategories(materials []Material) []string {
	set := map[string]struct{}{}
	for _, m := range materials {
		for _, c := range m.Categories {
			set[c] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// Receivers returns the sorted set of non-empty receiver names.
func Receivers(products []Product) []string {
	set := map[string]struct{}{}
	for _, p := range products {
		if r := strings.TrimSpace(p.Receiver); r != "" {
			set[r] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func anyIn(cats []string, set map[string]struct{}) bool {
	for _, c := range cats {
		if _, ok := set[c]; ok {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

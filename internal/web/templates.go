package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"slices"

	"EcoMarket/internal/catalog"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"index", "marketplace", "receptor", "receptores", "materiales", "publicar", "login"}

var funcs = template.FuncMap{
	"shipping": formatShipping,
	"has":      func(list []string, v string) bool { return slices.Contains(list, v) },
}

type renderer struct {
	pages map[string]*template.Template
}

func newRenderer() (*renderer, error) {
	r := &renderer{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html",
			"templates/products.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// render executes into a buffer first so a template failure turns into a
// clean 500 instead of a half-written page.
func (rd *renderer) render(w http.ResponseWriter, status int, name string, data any) error {
	t, ok := rd.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

func formatShipping(p catalog.Product) string {
	d, ok := p.Shipping()
	switch {
	case !ok:
		return p.ShippingCost
	case d.IsZero():
		return "Gratis"
	case d.IsInteger():
		return "$" + d.StringFixed(0)
	default:
		return "$" + d.StringFixed(2)
	}
}

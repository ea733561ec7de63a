package web

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"EcoMarket/internal/catalog"
	"EcoMarket/internal/listing"
	"EcoMarket/pkg/kit"
)

type pages struct {
	log       *zap.Logger
	store     catalog.Store
	listing   *listing.Service
	aiEnabled bool
	rd        *renderer
}

type indexData struct {
	Count      int
	Categories []string
}

type marketplaceData struct {
	Products   []catalog.Product
	Categories []string
	Materials  []catalog.Material
	Receivers  []string
	Filter     catalog.Filter
}

type receptorData struct {
	Receiver   string
	Products   []catalog.Product
	Categories []string
	Receivers  []string
}

type receptoresData struct {
	Companies  []catalog.Company
	Categories []string
	Selected   string
}

type materialesData struct {
	Materials []catalog.Material
}

type publicarData struct {
	Form       listing.Form
	Errors     []kit.FieldError
	Message    string
	Categories []string
	Receivers  []string
	AIEnabled  bool
}

type loginData struct {
	Next   string
	Failed bool
}

// products and materials degrade to empty lists: a broken data file still
// renders the page, and the cause goes to the log.
func (p *pages) products(ctx context.Context) []catalog.Product {
	ps, err := p.store.ListProducts(ctx)
	if err != nil {
		p.log.Error("load products failed", zap.Error(err))
		return []catalog.Product{}
	}
	return ps
}

func (p *pages) materials(ctx context.Context) []catalog.Material {
	ms, err := p.store.ListMaterials(ctx)
	if err != nil {
		p.log.Error("load materials failed", zap.Error(err))
		return []catalog.Material{}
	}
	return ms
}

func (p *pages) show(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if err := p.rd.render(w, status, name, data); err != nil {
		p.log.Error("render failed", zap.String("page", name), zap.Error(err))
		kit.WriteText(w, http.StatusInternalServerError, "Error: "+err.Error())
	}
}

func (p *pages) index(w http.ResponseWriter, r *http.Request) {
	ps := p.products(r.Context())
	p.show(w, r, http.StatusOK, "index", indexData{Count: len(ps), Categories: catalog.Categories(ps)})
}

func (p *pages) marketplace(w http.ResponseWriter, r *http.Request) {
	ps := p.products(r.Context())
	ms := p.materials(r.Context())
	f := catalog.FilterFromRequest(r)

	p.show(w, r, http.StatusOK, "marketplace", marketplaceData{
		Products:   catalog.Apply(ps, ms, f),
		Categories: catalog.Categories(ps),
		Materials:  ms,
		Receivers:  catalog.Receivers(ps),
		Filter:     f,
	})
}

func (p *pages) receptor(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "receptor"))
	ps := p.products(r.Context())

	p.show(w, r, http.StatusOK, "receptor", receptorData{
		Receiver:   name,
		Products:   catalog.ByReceiver(ps, name),
		Categories: catalog.Categories(ps),
		Receivers:  catalog.Receivers(ps),
	})
}

func (p *pages) receptores(w http.ResponseWriter, r *http.Request) {
	cat := strings.TrimSpace(chi.URLParam(r, "categoria"))
	p.show(w, r, http.StatusOK, "receptores", receptoresData{
		Companies:  catalog.CompaniesByCategory(cat),
		Categories: catalog.CompanyCategories(),
		Selected:   cat,
	})
}

func (p *pages) materiales(w http.ResponseWriter, r *http.Request) {
	p.show(w, r, http.StatusOK, "materiales", materialesData{Materials: p.materials(r.Context())})
}

func (p *pages) publishForm(w http.ResponseWriter, r *http.Request) {
	p.showPublish(w, r, http.StatusOK, publicarData{})
}

func (p *pages) showPublish(w http.ResponseWriter, r *http.Request, status int, data publicarData) {
	ps := p.products(r.Context())
	cats := append(catalog.MaterialCategories(p.materials(r.Context())), catalog.Categories(ps)...)

	data.Categories = uniqueSorted(cats)
	data.Receivers = catalog.Receivers(ps)
	data.AIEnabled = p.aiEnabled
	p.show(w, r, status, "publicar", data)
}

// publish handles the upload form. Validation problems re-render the form
// with the submitted values; success redirects to the marketplace.
func (p *pages) publish(w http.ResponseWriter, r *http.Request) {
	f, image, err := listing.ReadForm(r, p.listing.MaxBytes)
	if err == nil {
		_, err = p.listing.Create(r.Context(), f, image)
	}
	if err == nil {
		http.Redirect(w, r, "/marketplace", http.StatusSeeOther)
		return
	}

	status := listing.StatusFor(err)
	data := publicarData{Form: f}

	var verr *listing.ValidationError
	switch {
	case errors.As(err, &verr):
		data.Errors = verr.Fields
	case status == http.StatusInternalServerError:
		p.log.Error("publish failed", zap.Error(err))
		kit.WriteText(w, status, "Error: no se pudo guardar la publicación")
		return
	case errors.Is(err, listing.ErrImageTooLarge), status == http.StatusRequestEntityTooLarge:
		data.Message = "La imagen es demasiado grande."
	case errors.Is(err, listing.ErrUnsupportedImage):
		data.Message = "Formato de imagen no soportado. Usa JPG, PNG, GIF o WEBP."
	default:
		data.Message = "No se pudo leer el formulario."
	}
	p.showPublish(w, r, status, data)
}

func (p *pages) login(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p.show(w, r, http.StatusOK, "login", loginData{
		Next:   q.Get("next"),
		Failed: q.Get("error") != "",
	})
}

func uniqueSorted(in []string) []string {
	set := make(map[string]struct{}, len(in))
	for _, s := range in {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

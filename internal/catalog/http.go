package catalog

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"EcoMarket/pkg/kit"
)

// Server exposes the catalog as a read-only JSON API.
type Server struct {
	Store Store
	Log   *zap.Logger
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	s.Register(r)
	return r
}

// Register adds the read-only routes to r, for callers that share a router
// with write routes on the same paths.
func (s *Server) Register(r chi.Router) {
	r.Get("/products", s.list)
	r.Get("/products/{sku}", s.get)
	r.Get("/categories", s.categories)
	r.Get("/materials", s.materials)
	r.Get("/receivers", s.receivers)
	r.Get("/receptores", s.companies)
}

// FilterFromRequest reads the marketplace query parameters.
func FilterFromRequest(r *http.Request) Filter {
	q := r.URL.Query()
	return Filter{
		Category: strings.TrimSpace(q.Get("categoria")),
		Material: strings.TrimSpace(q.Get("material")),
		Receiver: strings.TrimSpace(q.Get("receptor")),
	}
}

type listResp struct {
	Products []Product `json:"products"`
	Count    int       `json:"count"`
	Filter   Filter    `json:"filter"`
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	f := FilterFromRequest(r)

	products, err := s.Store.ListProducts(r.Context())
	if err != nil {
		s.serverError(w, r, "list products failed", err)
		return
	}

	var materials []Material
	if f.Material != "" {
		materials, err = s.Store.ListMaterials(r.Context())
		if err != nil {
			s.serverError(w, r, "list materials failed", err)
			return
		}
	}

	out := Apply(products, materials, f)
	kit.WriteJSON(w, http.StatusOK, listResp{Products: out, Count: len(out), Filter: f})
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")

	products, err := s.Store.ListProducts(r.Context())
	if err != nil {
		s.serverError(w, r, "list products failed", err)
		return
	}

	p, ok := FindBySKU(products, sku)
	if !ok {
		kit.WriteError(w, r, http.StatusNotFound, ErrProductNotFound.Error(), map[string]any{"sku": sku})
		return
	}
	kit.WriteJSON(w, http.StatusOK, p)
}

func (s *Server) categories(w http.ResponseWriter, r *http.Request) {
	products, err := s.Store.ListProducts(r.Context())
	if err != nil {
		s.serverError(w, r, "list products failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, Categories(products))
}

func (s *Server) materials(w http.ResponseWriter, r *http.Request) {
	materials, err := s.Store.ListMaterials(r.Context())
	if err != nil {
		s.serverError(w, r, "list materials failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, materials)
}

func (s *Server) receivers(w http.ResponseWriter, r *http.Request) {
	products, err := s.Store.ListProducts(r.Context())
	if err != nil {
		s.serverError(w, r, "list products failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, Receivers(products))
}

func (s *Server) companies(w http.ResponseWriter, r *http.Request) {
	kit.WriteJSON(w, http.StatusOK, CompaniesByCategory(strings.TrimSpace(r.URL.Query().Get("categoria"))))
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if s.Log != nil {
		s.Log.Error(msg, zap.Error(err))
	}
	kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
}

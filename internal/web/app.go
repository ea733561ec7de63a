// Package web assembles the marketplace HTTP surface: HTML pages, the JSON
// API, uploads, the AI endpoints and operational routes.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"EcoMarket/internal/ai"
	"EcoMarket/internal/auth"
	"EcoMarket/internal/catalog"
	"EcoMarket/internal/listing"
	"EcoMarket/pkg/kit"
)

type HTTPDeps struct {
	Log      *zap.Logger
	Service  string
	Registry *prometheus.Registry

	MetricsEnabled bool
	MetricsToken   string
}

type RateLimit struct {
	Limit  int
	Window time.Duration
}

func (l RateLimit) middleware() func(http.Handler) http.Handler {
	return kit.RateLimitByIP(l.Limit, l.Window)
}

// ReadyCheck is one dependency probed by /readyz.
type ReadyCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

type Deps struct {
	Store   catalog.Store
	Listing *listing.Service
	AI      *ai.Service

	// Auth is nil when uploads are open to everyone.
	Auth *auth.Server

	PhotoDir     string
	StaticDir    string
	WellKnownDir string
	CORSOrigins  []string
	Production   bool

	UploadLimit RateLimit
	AILimit     RateLimit
	LoginLimit  RateLimit

	ReadyChecks []ReadyCheck
	// DebugPaths are reported by /debug with an exists flag.
	DebugPaths map[string]string
}

const (
	loginPath     = "/login"
	formBodySlack = 1 << 20
)

func NewHandler(deps Deps, httpDeps HTTPDeps) (http.Handler, error) {
	rd, err := newRenderer()
	if err != nil {
		return nil, err
	}
	if httpDeps.Log == nil {
		httpDeps.Log = zap.NewNop()
	}

	pg := &pages{
		log:       httpDeps.Log,
		store:     deps.Store,
		listing:   deps.Listing,
		aiEnabled: deps.AI.Enabled(),
		rd:        rd,
	}

	r := chi.NewRouter()
	setupMiddleware(r, deps, httpDeps)
	setupMetrics(r, httpDeps)

	setupOps(r, deps, httpDeps.Log)
	setupPages(r, pg, deps)
	setupAPI(r, deps, httpDeps.Log)

	if deps.Auth != nil {
		r.Mount("/auth", deps.Auth.Routes(deps.LoginLimit.middleware()))
	}

	return r, nil
}

func setupMiddleware(r *chi.Mux, deps Deps, httpDeps HTTPDeps) {
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(kit.Recoverer)
	r.Use(kit.Logging(httpDeps.Log))
	r.Use(kit.SecurityHeaders)
	if len(deps.CORSOrigins) > 0 {
		r.Use(kit.CORS(kit.CORSOptions{AllowedOrigins: deps.CORSOrigins, MaxAge: 300}))
	}
}

func setupMetrics(r *chi.Mux, deps HTTPDeps) {
	if deps.Registry == nil {
		return
	}

	metrics := kit.NewMetrics(deps.Registry)
	r.Use(metrics.Middleware(deps.Service, kit.ChiRoutePatternOrPath))

	if !deps.MetricsEnabled {
		return
	}

	r.With(kit.MetricsAuth(deps.MetricsToken)).
		Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
}

func setupPages(r *chi.Mux, pg *pages, deps Deps) {
	r.Get("/", pg.index)
	r.Get("/marketplace", pg.marketplace)
	r.Get("/receptor/{receptor}", pg.receptor)
	r.Get("/receptores", pg.receptores)
	r.Get("/receptores/{categoria}", pg.receptores)
	r.Get("/materiales", pg.materiales)

	r.Group(func(pr chi.Router) {
		if deps.Auth != nil {
			pr.Use(auth.RequirePage(deps.Auth.JWT, loginPath))
		}
		pr.Get("/publicar", pg.publishForm)
		pr.With(
			deps.UploadLimit.middleware(),
			kit.BodyLimit(uploadBodyLimit(deps.Listing)),
		).Post("/publicar", pg.publish)
	})

	if deps.Auth != nil {
		r.Get(loginPath, pg.login)
	}

	if deps.PhotoDir != "" {
		r.Handle("/fotos/*", http.StripPrefix("/fotos/", fileServer(deps.PhotoDir)))
	}
	if deps.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", fileServer(deps.StaticDir)))
	}
}

func setupAPI(r *chi.Mux, deps Deps, log *zap.Logger) {
	cs := &catalog.Server{Store: deps.Store, Log: log}
	ls := &listing.Server{Service: deps.Listing, Log: log}
	as := &ai.Server{AI: deps.AI, Log: log, MaxBytes: uploadMaxBytes(deps.Listing)}

	r.Route("/api", func(api chi.Router) {
		cs.Register(api)

		api.Group(func(pr chi.Router) {
			if deps.Auth != nil {
				pr.Use(auth.Require(deps.Auth.JWT))
			}
			pr.With(
				deps.UploadLimit.middleware(),
				kit.BodyLimit(uploadBodyLimit(deps.Listing)),
			).Post("/products", ls.Create)

			pr.With(
				deps.AILimit.middleware(),
				kit.BodyLimit(uploadBodyLimit(deps.Listing)),
			).Mount("/ai", as.Routes())
		})
	})
}

func uploadMaxBytes(l *listing.Service) int64 {
	if l == nil || l.MaxBytes <= 0 {
		return 10 << 20
	}
	return l.MaxBytes
}

// A camera capture arrives base64 encoded, a third larger than the image.
func uploadBodyLimit(l *listing.Service) int64 {
	return uploadMaxBytes(l)*2 + formBodySlack
}

package web

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"EcoMarket/pkg/kit"
)

const (
	readyTimeout      = 2 * time.Second
	readyProbeTimeout = 700 * time.Millisecond
)

func setupOps(r *chi.Mux, deps Deps, log *zap.Logger) {
	r.Get("/health", healthz)
	r.Get("/healthz", healthz)
	r.Get("/readyz", readyz(deps, log))

	r.Get("/.well-known/captain-identifier", healthz)
	if deps.WellKnownDir != "" {
		r.Handle("/.well-known/*", http.StripPrefix("/.well-known/", fileServer(deps.WellKnownDir)))
	}

	if !deps.Production {
		r.Get("/debug", debug(deps))
	}
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	kit.WriteText(w, http.StatusOK, "OK")
}

func readyz(deps Deps, log *zap.Logger) http.HandlerFunc {
	checks := append([]ReadyCheck{{Name: "store", Ping: deps.Store.Ping}}, deps.ReadyChecks...)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		for _, c := range checks {
			if err := probe(ctx, c.Ping); err != nil {
				log.Warn("readyz failed: "+c.Name, zap.Error(err))
				kit.WriteError(w, r, http.StatusServiceUnavailable, c.Name+" not ready", nil)
				return
			}
		}

		kit.WriteText(w, http.StatusOK, "OK")
	}
}

func probe(ctx context.Context, ping func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, readyProbeTimeout)
	defer cancel()
	return ping(cctx)
}

type pathInfo struct {
	Path   string `json:"path"`
	Abs    string `json:"abs,omitempty"`
	Exists bool   `json:"exists"`
	IsDir  bool   `json:"is_dir,omitempty"`
	Size   int64  `json:"size,omitempty"`
}

type debugResp struct {
	Cwd       string              `json:"cwd"`
	Templates string              `json:"templates"`
	Paths     map[string]pathInfo `json:"paths"`
	Files     map[string][]string `json:"files,omitempty"`
	AI        bool                `json:"ai_enabled"`
	Auth      bool                `json:"auth_enabled"`
}

// debug reports where the server looks for its files. It is not mounted in
// production.
func debug(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		cwd, _ := os.Getwd()
		out := debugResp{
			Cwd:       cwd,
			Templates: "embedded",
			Paths:     map[string]pathInfo{},
			Files:     map[string][]string{},
			AI:        deps.AI.Enabled(),
			Auth:      deps.Auth != nil,
		}

		paths := map[string]string{
			"photos":     deps.PhotoDir,
			"static":     deps.StaticDir,
			"well_known": deps.WellKnownDir,
		}
		for k, v := range deps.DebugPaths {
			paths[k] = v
		}

		for name, p := range paths {
			if p == "" {
				continue
			}
			info := pathInfo{Path: p}
			if abs, err := filepath.Abs(p); err == nil {
				info.Abs = abs
			}
			if fi, err := os.Stat(p); err == nil {
				info.Exists = true
				info.IsDir = fi.IsDir()
				if !fi.IsDir() {
					info.Size = fi.Size()
				} else {
					out.Files[name] = listDir(p, 50)
				}
			}
			out.Paths[name] = info
		}

		kit.WriteJSON(w, http.StatusOK, out)
	}
}

func listDir(dir string, limit int) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	if len(names) > limit {
		names = names[:limit]
	}
	return names
}

// fileServer serves dir without directory listings.
func fileServer(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	})
}

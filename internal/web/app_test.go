package web_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"EcoMarket/internal/auth"
	"EcoMarket/internal/catalog"
	"EcoMarket/internal/listing"
	"EcoMarket/internal/web"
)

const productsCSV = "sku,titulo,descripcion_corta,descripcion_larga,costo_envio,descartador,imagen_url,categorias\n" +
	"001,Fardo de cartón,Cartón prensado,,,Ana,fardo.png,Cartón|Papel\n" +
	"002,Bicicleta oxidada,Marco de acero,,2500,Pedro,/static/fotos/bici.png,Metales\n" +
	"003,Silla de roble,Una pata suelta,,,ana,,Madera|Muebles\n"

const materialsCSV = "material,categorias\nPapel,Cartón|Papel\nMadera,Madera|Muebles\n"

type env struct {
	dir    string
	photos string
	store  *catalog.CSVStore
	deps   web.Deps
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	pp := filepath.Join(dir, "products.csv")
	mp := filepath.Join(dir, "materiales.csv")
	if err := os.WriteFile(pp, []byte(productsCSV), 0o644); err != nil {
		t.Fatalf("write products: %v", err)
	}
	if err := os.WriteFile(mp, []byte(materialsCSV), 0o644); err != nil {
		t.Fatalf("write materials: %v", err)
	}
	photos := filepath.Join(dir, "static", "fotos")
	if err := os.MkdirAll(photos, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	store := catalog.NewCSVStore(pp, mp)
	return &env{
		dir:    dir,
		photos: photos,
		store:  store,
		deps: web.Deps{
			Store:     store,
			Listing:   &listing.Service{Store: store, PhotoDir: photos, MaxBytes: 1 << 20, Log: zap.NewNop()},
			PhotoDir:  photos,
			StaticDir: filepath.Join(dir, "static"),
		},
	}
}

func (e *env) handler(t *testing.T) http.Handler {
	t.Helper()
	h, err := web.NewHandler(e.deps, web.HTTPDeps{Log: zap.NewNop(), Service: "web"})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	return do(h, httptest.NewRequest(http.MethodGet, target, nil))
}

func uploadReq(t *testing.T, target string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealthEndpoints(t *testing.T) {
	h := newEnv(t).handler(t)

	for _, p := range []string{"/health", "/healthz", "/readyz", "/.well-known/captain-identifier"} {
		rec := get(h, p)
		if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
			t.Fatalf("%s: status=%d body=%q", p, rec.Code, rec.Body.String())
		}
	}
}

func TestReadyzReportsFailingCheck(t *testing.T) {
	e := newEnv(t)
	e.deps.ReadyChecks = []web.ReadyCheck{{Name: "redis", Ping: func(context.Context) error { return errors.New("down") }}}

	rec := get(e.handler(t), "/readyz")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "redis not ready") {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestPages(t *testing.T) {
	h := newEnv(t).handler(t)

	cases := []struct {
		path    string
		want    []string
		notWant []string
	}{
		{"/", []string{"3 publicaciones"}, nil},
		{"/marketplace", []string{"Fardo de cartón", "Bicicleta oxidada", "Silla de roble", "/fotos/bici.png", "$2500", "Gratis"}, nil},
		{"/marketplace?categoria=Metales", []string{"Bicicleta oxidada"}, []string{"Silla de roble"}},
		{"/marketplace?material=Madera", []string{"Silla de roble"}, []string{"Bicicleta oxidada", "Fardo de cartón"}},
		{"/marketplace?material=Vidrio", []string{"No hay productos"}, []string{"SKU 00"}},
		{"/receptor/ANA", []string{"Fardo de cartón", "Silla de roble"}, []string{"Bicicleta oxidada"}},
		{"/receptores", []string{"EcoMuebles", "ElectroFix"}, nil},
		{"/receptores/Textiles", []string{"TextilCreativo", "EcoMuebles"}, []string{"MetalArte"}},
		{"/materiales", []string{"Papel", "Madera", "Muebles"}, nil},
		{"/publicar", []string{`name="titulo"`, `name="foto_camara"`, `value="Muebles"`}, []string{"Generar con IA"}},
	}
	for _, tc := range cases {
		rec := get(h, tc.path)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status=%d", tc.path, rec.Code)
		}
		body := rec.Body.String()
		for _, w := range tc.want {
			if !strings.Contains(body, w) {
				t.Fatalf("%s: missing %q", tc.path, w)
			}
		}
		for _, nw := range tc.notWant {
			if strings.Contains(body, nw) {
				t.Fatalf("%s: unexpected %q", tc.path, nw)
			}
		}
	}
}

func TestPagesSurviveBrokenStore(t *testing.T) {
	e := newEnv(t)
	if err := os.WriteFile(e.store.ProductsPath(), []byte("sku,titulo\n\"unterminated\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	h := e.handler(t)

	rec := get(h, "/marketplace")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "No hay productos") {
		t.Fatalf("status=%d", rec.Code)
	}

	rec = get(h, "/api/products")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("api status=%d", rec.Code)
	}
}

func TestPublishRedirectsAndAppends(t *testing.T) {
	e := newEnv(t)
	h := e.handler(t)

	rec := do(h, uploadReq(t, "/publicar", map[string]string{
		"titulo":      "Lavadora",
		"descartador": "Pedro",
		"categorias":  "Electrónicos",
	}))
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/marketplace" {
		t.Fatalf("status=%d location=%q body=%s", rec.Code, rec.Header().Get("Location"), rec.Body.String())
	}

	products, err := e.store.ListProducts(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	last := products[len(products)-1]
	if len(products) != 4 || last.SKU != "004" || last.Title != "Lavadora" {
		t.Fatalf("got %+v", last)
	}
}

func TestPublishValidationRerendersForm(t *testing.T) {
	h := newEnv(t).handler(t)

	rec := do(h, uploadReq(t, "/publicar", map[string]string{"titulo": "Sin nombre", "costo_envio": "gratis"}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rec.Code)
	}
	body := rec.Body.String()
	for _, w := range []string{"descartador (required)", "costo_envio (money)", `value="Sin nombre"`} {
		if !strings.Contains(body, w) {
			t.Fatalf("missing %q in form", w)
		}
	}
}

func TestAPI(t *testing.T) {
	h := newEnv(t).handler(t)

	rec := get(h, "/api/products?receptor=ana")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"count":2`) {
		t.Fatalf("list: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = do(h, uploadReq(t, "/api/products", map[string]string{"titulo": "Radio", "descartador": "Luis"}))
	if rec.Code != http.StatusCreated || !strings.Contains(rec.Body.String(), `"sku":"004"`) {
		t.Fatalf("create: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = get(h, "/api/products/004")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status=%d", rec.Code)
	}

	rec = do(h, uploadReq(t, "/api/ai/suggest", map[string]string{"descripcion": "radio"}))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ai: status=%d", rec.Code)
	}
}

func TestPhotosAndNoListing(t *testing.T) {
	e := newEnv(t)
	if err := os.WriteFile(filepath.Join(e.photos, "fardo.png"), []byte("png"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	h := e.handler(t)

	rec := get(h, "/fotos/fardo.png")
	if rec.Code != http.StatusOK || rec.Body.String() != "png" {
		t.Fatalf("photo: status=%d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing")
	}

	if rec = get(h, "/fotos/"); rec.Code != http.StatusNotFound {
		t.Fatalf("listing: status=%d", rec.Code)
	}
	if rec = get(h, "/static/fotos/fardo.png"); rec.Code != http.StatusOK {
		t.Fatalf("static: status=%d", rec.Code)
	}
}

func TestDebugOnlyOutsideProduction(t *testing.T) {
	e := newEnv(t)
	e.deps.DebugPaths = map[string]string{"products": e.store.ProductsPath()}

	rec := get(e.handler(t), "/debug")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"products"`) {
		t.Fatalf("debug: status=%d body=%s", rec.Code, rec.Body.String())
	}

	e.deps.Production = true
	if rec = get(e.handler(t), "/debug"); rec.Code != http.StatusNotFound {
		t.Fatalf("production debug: status=%d", rec.Code)
	}
}

func TestAuthProtectsUploads(t *testing.T) {
	e := newEnv(t)
	users, err := auth.NewMemStoreFromAccounts([]auth.Account{{Name: "ana", Password: "pw"}}, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	jwt := auth.NewTokenMaker("secret-for-tests")
	e.deps.Auth = &auth.Server{Log: zap.NewNop(), Users: users, JWT: jwt, TTL: time.Hour, LoginPage: "/login"}
	h := e.handler(t)

	rec := get(h, "/publicar")
	if rec.Code != http.StatusSeeOther || !strings.HasPrefix(rec.Header().Get("Location"), "/login?next=") {
		t.Fatalf("page: status=%d location=%q", rec.Code, rec.Header().Get("Location"))
	}
	if rec = get(h, "/login"); rec.Code != http.StatusOK {
		t.Fatalf("login page: status=%d", rec.Code)
	}

	fields := map[string]string{"titulo": "Radio", "descartador": "Luis"}
	if rec = do(h, uploadReq(t, "/api/products", fields)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("api without token: status=%d", rec.Code)
	}

	tok, _ := jwt.New("ana", auth.RoleUploader, time.Minute)
	req := uploadReq(t, "/api/products", fields)
	req.Header.Set("Authorization", "Bearer "+tok)
	if rec = do(h, req); rec.Code != http.StatusCreated {
		t.Fatalf("api with token: status=%d body=%s", rec.Code, rec.Body.String())
	}

	login := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"ana","password":"pw"}`))
	login.Header.Set("Content-Type", "application/json")
	if rec = do(h, login); rec.Code != http.StatusOK {
		t.Fatalf("login: status=%d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t)
	reg := prometheus.NewRegistry()
	h, err := web.NewHandler(e.deps, web.HTTPDeps{
		Log:            zap.NewNop(),
		Service:        "web",
		Registry:       reg,
		MetricsEnabled: true,
		MetricsToken:   "tok",
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	_ = get(h, "/marketplace")

	if rec := get(h, "/metrics"); rec.Code != http.StatusForbidden {
		t.Fatalf("no token: status=%d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := do(h, req)
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != http.StatusOK || !strings.Contains(string(body), `path="/marketplace"`) {
		t.Fatalf("metrics: status=%d", rec.Code)
	}
}

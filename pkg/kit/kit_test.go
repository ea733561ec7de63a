package kit_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"EcoMarket/pkg/kit"
)

func okHandler(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestWriteError_CarriesRequestID(t *testing.T) {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		kit.WriteError(w, r, http.StatusTeapot, "nope", map[string]any{"x": 1})
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status=%d", rec.Code)
	}
	var body kit.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "nope" || body.RequestID == "" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestMetricsAuth(t *testing.T) {
	cases := []struct {
		name   string
		token  string
		header string
		want   int
	}{
		{"no token configured", "", "Bearer x", http.StatusForbidden},
		{"missing header", "secret", "", http.StatusForbidden},
		{"wrong token", "secret", "Bearer nope", http.StatusForbidden},
		{"ok", "secret", "Bearer secret", http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := kit.MetricsAuth(tc.token)(http.HandlerFunc(okHandler))
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status=%d want=%d", rec.Code, tc.want)
			}
		})
	}
}

func TestRateLimitByIP(t *testing.T) {
	h := kit.RateLimitByIP(2, time.Minute)(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/ai/suggest", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes=%v", codes)
	}
}

func TestRateLimitByIP_DisabledWhenZero(t *testing.T) {
	h := kit.RateLimitByIP(0, time.Minute)(http.HandlerFunc(okHandler))
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status=%d", i, rec.Code)
		}
	}
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := kit.NewMetrics(reg)

	r := chi.NewRouter()
	r.Use(m.Middleware("web", kit.ChiRoutePatternOrPath))
	r.Get("/receptor/{receptor}", okHandler)

	for _, p := range []string{"/receptor/ana", "/receptor/pedro"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	got := testutil.ToFloat64(m.Requests.WithLabelValues("web", http.MethodGet, "/receptor/{receptor}", "200"))
	if got != 2 {
		t.Fatalf("requests=%v", got)
	}
}

type listing struct {
	Title    string `form:"titulo" validate:"required"`
	Shipping string `form:"costo_envio" validate:"money"`
}

func TestValidateStruct(t *testing.T) {
	if errs := kit.ValidateStruct(listing{Title: "Fardo", Shipping: "$3500"}); errs != nil {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if errs := kit.ValidateStruct(listing{Title: "Fardo"}); errs != nil {
		t.Fatalf("empty shipping must pass: %v", errs)
	}

	errs := kit.ValidateStruct(listing{Shipping: "-4"})
	if len(errs) != 2 {
		t.Fatalf("errs=%v", errs)
	}
	msg := kit.FieldErrorsString(errs)
	if !strings.Contains(msg, "titulo: required") || !strings.Contains(msg, "costo_envio: money") {
		t.Fatalf("msg=%q", msg)
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	kit.SecurityHeaders(http.HandlerFunc(okHandler)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("headers=%v", rec.Header())
	}
}

func TestDecodeDataURL(t *testing.T) {
	mime, data, err := kit.DecodeDataURL("data:image/png;base64,aGVsbG8=")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if mime != "image/png" || string(data) != "hello" {
		t.Fatalf("got %q %q", mime, data)
	}

	if _, data, err = kit.DecodeDataURL("data:image/png;base64,aGVsbG8"); err != nil || string(data) != "hello" {
		t.Fatalf("unpadded: %q %v", data, err)
	}

	for _, bad := range []string{"", "aGVsbG8=", "data:image/png,aGVsbG8=", "data:image/png;base64,", "data:image/png;base64,***"} {
		if _, _, err := kit.DecodeDataURL(bad); err != kit.ErrBadDataURL {
			t.Fatalf("%q: want ErrBadDataURL, got %v", bad, err)
		}
	}
}

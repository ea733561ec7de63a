package auth

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"EcoMarket/pkg/kit"
)

const (
	maxBodyBytes = 1 << 20
	CookieName   = "eco_token"
)

type Server struct {
	Log   *zap.Logger
	Users UserStore
	JWT   *TokenMaker
	TTL   time.Duration
	// SecureCookie marks the session cookie Secure; set it behind TLS.
	SecureCookie bool
	// LoginPage receives failed form logins with ?error=1.
	LoginPage string
}

// Routes mounts login, logout and whoami. loginLimit wraps the login
// handler, typically with a per-IP rate limit.
func (s *Server) Routes(loginLimit func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	login := http.Handler(http.HandlerFunc(s.handleLogin))
	if loginLimit != nil {
		login = loginLimit(login)
	}
	r.Method(http.MethodPost, "/login", login)
	r.Post("/logout", s.handleLogout)
	r.With(Require(s.JWT)).Get("/whoami", s.handleWhoAmI)

	return r
}

type loginReq struct {
	Username string `json:"username" form:"username" validate:"required,max=64"`
	Password string `json:"password" form:"password" validate:"required,max=128"`
	Next     string `json:"next" form:"next"`
}

type loginResp struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// handleLogin accepts JSON or an HTML form. Form logins get the cookie and
// a redirect to next; JSON logins get the token in the body as well.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	isForm := !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")

	var req loginReq
	if isForm {
		if err := r.ParseForm(); err != nil {
			kit.WriteError(w, r, http.StatusBadRequest, "bad form", map[string]any{"cause": err.Error()})
			return
		}
		req = loginReq{Username: r.PostFormValue("username"), Password: r.PostFormValue("password"), Next: r.PostFormValue("next")}
	} else {
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
			return
		}
	}

	req.Username = strings.TrimSpace(req.Username)
	if errs := kit.ValidateStruct(req); errs != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "username/password required", errs)
		return
	}

	u, err := s.Users.Verify(r.Context(), req.Username, req.Password)
	if err != nil {
		if err != ErrInvalidCredentials {
			s.Log.Error("verify user", zap.Error(err))
		}
		if isForm && s.LoginPage != "" {
			q := url.Values{"error": {"1"}, "next": {SafeNext(req.Next)}}
			http.Redirect(w, r, s.LoginPage+"?"+q.Encode(), http.StatusSeeOther)
			return
		}
		kit.WriteError(w, r, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}

	tok, err := s.JWT.New(u.Name, u.Role, s.TTL)
	if err != nil {
		s.Log.Error("token issue", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}

	exp := time.Now().Add(s.TTL)
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    tok,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   s.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	s.Log.Info("login", zap.String("user", u.Name))

	if isForm {
		http.Redirect(w, r, SafeNext(req.Next), http.StatusSeeOther)
		return
	}
	kit.WriteJSON(w, http.StatusOK, loginResp{AccessToken: tok, ExpiresAt: exp.UTC()})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFromContext(r.Context())
	kit.WriteJSON(w, http.StatusOK, map[string]any{
		"username": u.Name,
		"role":     u.Role,
	})
}

// SafeNext keeps a redirect target only when it is a local absolute path.
// Browsers read a backslash as a slash, so any backslash is refused.
func SafeNext(next string) string {
	if next == "" || next[0] != '/' || strings.Contains(next, `\`) {
		return "/"
	}
	if len(next) > 1 && next[1] == '/' {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return "/"
	}
	return next
}

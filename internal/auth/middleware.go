package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"EcoMarket/pkg/kit"
)

type ctxKey string

const userKey ctxKey = "user"

type Identity struct {
	Name string
	Role string
}

func UserFromContext(ctx context.Context) (Identity, bool) {
	u, ok := ctx.Value(userKey).(Identity)
	return u, ok
}

// TokenFromRequest prefers the Authorization header and falls back to the
// session cookie.
func TokenFromRequest(r *http.Request) string {
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// Require rejects requests without a valid token with 401.
func Require(jwt *TokenMaker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := TokenFromRequest(r)
			if tok == "" {
				kit.WriteError(w, r, http.StatusUnauthorized, "missing token", nil)
				return
			}

			claims, err := jwt.Parse(tok)
			if err != nil {
				kit.WriteError(w, r, http.StatusUnauthorized, "invalid token", nil)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, Identity{Name: claims.Username, Role: claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePage is Require for HTML pages: instead of a JSON 401 the browser
// is sent to loginPath with the current path as next.
func RequirePage(jwt *TokenMaker, loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := jwt.Parse(TokenFromRequest(r))
			if err != nil {
				http.Redirect(w, r, loginPath+"?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
				return
			}
			ctx := context.WithValue(r.Context(), userKey, Identity{Name: claims.Username, Role: claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"worksdesk.io/internal/auth"
)

const (
	authHeader  = "Authorization"
	bearer      = "Bearer "
	tokenCookie = "token"
	cookieTTL   = 24 * time.Hour
)

// guard authenticates the caller, resolves the live identity and applies the policy.
func (a *API) guard(req auth.Requirement, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := tokenFromRequest(r)
		if err != nil {
			a.fail(w, r, fmt.Errorf("%w: %v", auth.ErrUnauthenticated, err))
			return
		}
		id, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		if err := a.policy.Authorize(id, req); err != nil {
			a.fail(w, r, err)
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), id)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tokenFromRequest prefers the Authorization header and falls back to the session cookie.
func tokenFromRequest(r *http.Request) (string, error) {
	if header := strings.TrimSpace(r.Header.Get(authHeader)); header != "" {
		return extractBearerToken(header)
	}
	if c, err := r.Cookie(tokenCookie); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value), nil
	}
	return "", errors.New("missing bearer token")
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// sessionCookie carries the token for browser clients. maxAge < 0 clears it.
func (a *API) sessionCookie(value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     tokenCookie,
		Value:    value,
		Path:     "/",
		Domain:   a.cfg.Cookie.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.cfg.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if a.cfg.Production() {
		c.Secure = true
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}

func identity(r *http.Request) auth.Identity {
	id, _ := auth.IdentityFromContext(r.Context())
	return id
}

package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"sapl.leg.br/lexml/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// protectedPrefixes require a bearer token; everything else is public.
var protectedPrefixes = []string{
	"/v1/lexml/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || !a.secured {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || !isProtectedPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="sapl-lexml"`)
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="sapl-lexml", error="invalid_token"`)
			switch {
			case errors.Is(err, auth.ErrInvalidToken):
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := auth.ContextWithUser(r.Context(), claims.Subject)
		ctx = auth.ContextWithPrincipal(ctx, claims.Principal())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ensurePermissions writes 401/403 and returns false unless the caller
// holds every permission.
func (a *API) ensurePermissions(w http.ResponseWriter, r *http.Request, perms ...string) bool {
	if !a.secured {
		return true
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, auth.ErrUnauthorized.Error())
		return false
	}
	for _, p := range perms {
		if !principal.HasPermission(p) {
			writeError(w, r, http.StatusForbidden, auth.ErrForbidden.Error())
			return false
		}
	}
	return true
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

func isProtectedPath(path string) bool {
	for _, prefix := range protectedPrefixes {
		if path+"/" == prefix || strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

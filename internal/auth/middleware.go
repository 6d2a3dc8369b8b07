package auth

import (
	"context"
	"net/http"
	"strings"

	"veil/internal/models"

	"github.com/gorilla/mux"
)

// Principal — аутентифицированный субъект запроса.
type Principal struct {
	UserID uint
	Admin  bool
}

type ctxKey string

const principalKey ctxKey = "principal"

// PrincipalFrom достаёт субъекта из контекста запроса.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// Bearer — middleware: Authorization: Bearer <jwt> → Principal в контексте.
func Bearer(jwtSecret string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const p = "Bearer "
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, p) {
				models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token", nil)
				return
			}
			claims, err := ParseToken(jwtSecret, strings.TrimPrefix(h, p))
			if err != nil {
				models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "invalid token", nil)
				return
			}
			ctx := context.WithValue(r.Context(), principalKey,
				Principal{UserID: claims.UserID, Admin: claims.Admin})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

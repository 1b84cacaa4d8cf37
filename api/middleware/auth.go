package middleware

import (
	"net/http"
	"strings"

	"github.com/placaexpress/vehicle-report-backend/api/responses"
	pkgAuth "github.com/placaexpress/vehicle-report-backend/pkg/auth"
	"github.com/placaexpress/vehicle-report-backend/pkg/config"
	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
)

// AdminAuth validates the back office bearer token and seeds the request
// context with the admin e-mail.
func AdminAuth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAdminToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := withAdminEmail(r.Context(), claims.Email)
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"admin_email": claims.Email,
					"token_id":    claims.ID,
				})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(raw string) string {
	token := strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}

package auth

import (
	"context"
	"net/http"

	"ms-tickets/internal/logger"
	"ms-tickets/internal/utils"
)

type contextKey string

const subjectKey contextKey = "admin_subject"

// TokenVerifier returns the authenticated subject for a bearer token.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (string, error)
}

// Middleware guards admin routes. With no verifiers configured every request
// passes, matching the placeholder login of a local deployment.
func Middleware(log *logger.Logger, verifiers ...TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(verifiers) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := ExtractTokenFromRequest(r)
			if err != nil {
				utils.WriteError(w, http.StatusUnauthorized, err.Error())
				return
			}

			for _, v := range verifiers {
				subject, err := v.Verify(r.Context(), raw)
				if err == nil {
					ctx := context.WithValue(r.Context(), subjectKey, subject)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			log.LogSecurity("AUTH_REJECTED", r.Method+" "+r.URL.Path+" from "+r.RemoteAddr)
			utils.WriteError(w, http.StatusUnauthorized, "invalid or expired token")
		})
	}
}

// Subject returns the admin identity set by Middleware.
func Subject(ctx context.Context) string {
	if s, ok := ctx.Value(subjectKey).(string); ok {
		return s
	}
	return ""
}

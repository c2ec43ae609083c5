package auth

import (
	"log/slog"
	"net/http"

	"github.com/aegis-auth/aegis/internal/guard"
	"github.com/aegis-auth/aegis/internal/platform/httpx"
	"github.com/aegis-auth/aegis/internal/shared"
)

// Middleware authenticates bearer tokens and attaches the principal to the
// request context.
type Middleware struct {
	Factory *Factory
	Logger  *slog.Logger
}

// Verify rejects requests without a valid bearer token for the resolved
// guard.
func (m Middleware) Verify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			httpx.RespondError(w, shared.ErrTokenInvalid)
			return
		}
		guardName, _ := guard.FromContext(r.Context())
		driver, err := m.Factory.Driver(guardName)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("driver construction failed", slog.String("guard", guardName), slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		principal, err := driver.ValidateToken(r.Context(), token)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.WithPrincipal(r.Context(), principal)))
	})
}

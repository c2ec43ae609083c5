package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aegis-auth/aegis/internal/platform/httpx"
	"github.com/aegis-auth/aegis/internal/shared"
)

// Authorizer wires slug checks into HTTP handlers. Required slugs are
// accepted as lists or comma-separated strings; an empty required set allows.
// Requests without an authenticated principal are denied before any slug
// lookup, and denials never name the missing slug.
type Authorizer struct {
	Resolver *Resolver
	Logger   *slog.Logger
}

type checkFunc func(ctx context.Context, subject Subject, required []string) (bool, error)

// RequireAllRoles allows only subjects holding every listed role.
func (a Authorizer) RequireAllRoles(slugs ...string) func(http.Handler) http.Handler {
	return a.require(a.Resolver.HasAllRoles, slugs)
}

// RequireAnyRole allows subjects holding at least one listed role.
func (a Authorizer) RequireAnyRole(slugs ...string) func(http.Handler) http.Handler {
	return a.require(a.Resolver.HasAnyRole, slugs)
}

// RequireAllPrivileges allows only subjects holding every listed privilege.
func (a Authorizer) RequireAllPrivileges(slugs ...string) func(http.Handler) http.Handler {
	return a.require(a.Resolver.HasAllPrivileges, slugs)
}

// RequireAnyPrivilege allows subjects holding at least one listed privilege.
func (a Authorizer) RequireAnyPrivilege(slugs ...string) func(http.Handler) http.Handler {
	return a.require(a.Resolver.HasAnyPrivilege, slugs)
}

func (a Authorizer) require(check checkFunc, slugs []string) func(http.Handler) http.Handler {
	required := shared.NormalizeSlugs(slugs...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			principal := shared.PrincipalFromContext(r.Context())
			if principal == nil {
				httpx.RespondError(w, shared.ErrAccessDenied)
				return
			}
			ok, err := check(r.Context(), principal, required)
			if err != nil {
				if a.Logger != nil {
					a.Logger.Error("authorization check failed", slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			if !ok {
				httpx.RespondError(w, shared.ErrAccessDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

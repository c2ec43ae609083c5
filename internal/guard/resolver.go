package guard

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// ProbeFunc reports whether the request authenticates successfully under the
// named guard. Used as the next-to-last resolution step; may be nil.
type ProbeFunc func(r *http.Request, guard string) bool

// Resolver picks the guard for a request. Resolution order, first match wins:
//
//  1. guard already carried in the request context
//  2. explicit ?guard= query parameter or X-Guard header, if configured
//  3. multi-guard disabled: the default guard
//  4. route inference against the configured URL prefixes
//  5. first guard under which the request authenticates (probe)
//  6. the default guard
type Resolver struct {
	cfg   Config
	probe ProbeFunc
}

// NewResolver builds a Resolver. probe may be nil to skip step 5.
func NewResolver(cfg Config, probe ProbeFunc) *Resolver {
	return &Resolver{cfg: cfg, probe: probe}
}

// Config returns the guard configuration the resolver was built with.
func (res *Resolver) Config() Config { return res.cfg }

// Resolve determines the guard for the request.
func (res *Resolver) Resolve(r *http.Request) string {
	if name, ok := FromContext(r.Context()); ok {
		return name
	}
	if name := res.explicit(r); name != "" {
		return name
	}
	if !res.cfg.Enabled {
		return res.cfg.Default
	}
	if name := res.fromRoute(r); name != "" {
		return name
	}
	if res.probe != nil {
		for _, name := range res.cfg.Names() {
			if res.probe(r, name) {
				return name
			}
		}
	}
	return res.cfg.Default
}

// explicit honours a caller-supplied guard, but only when it names a
// configured guard.
func (res *Resolver) explicit(r *http.Request) string {
	if name := r.URL.Query().Get("guard"); res.cfg.Known(name) {
		return name
	}
	if name := r.Header.Get("X-Guard"); res.cfg.Known(name) {
		return name
	}
	return ""
}

// fromRoute matches the chi route pattern, falling back to the raw URL path,
// against the configured guard prefixes.
func (res *Resolver) fromRoute(r *http.Request) string {
	path := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			path = pattern
		}
	}
	for _, segment := range strings.Split(path, "/") {
		if segment == "" {
			continue
		}
		for _, name := range res.cfg.Names() {
			if prefix := res.cfg.Prefixes[name]; prefix != "" && segment == prefix {
				return name
			}
		}
	}
	return ""
}

// Middleware memoizes the resolved guard into the request context. Requests
// that already carry a guard pass through untouched.
func Middleware(res *Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := FromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}
			name := res.Resolve(r)
			next.ServeHTTP(w, r.WithContext(WithGuard(r.Context(), name)))
		})
	}
}

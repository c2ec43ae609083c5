package shared

import "context"

// Principal is the authenticated identity attached to a request. Roles is
// non-nil only when the credential itself carried the role slugs (stateless
// tokens); nil means roles must be resolved from the store.
type Principal struct {
	UserID  int64
	Guard   string
	TokenID string
	Roles   []string
}

// SubjectID returns the user id the principal stands for.
func (p *Principal) SubjectID() int64 { return p.UserID }

// HeldRoleSlugs returns embedded role slugs when the credential carried them.
func (p *Principal) HeldRoleSlugs() ([]string, bool) {
	return p.Roles, p.Roles != nil
}

type principalKey struct{}

// WithPrincipal stores the authenticated principal in the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the authenticated principal, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

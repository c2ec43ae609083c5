package guard

import "context"

type ctxKey int

const guardKey ctxKey = iota

// WithGuard stores the resolved guard name in the context.
func WithGuard(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, guardKey, name)
}

// FromContext returns the resolved guard name, if any.
func FromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(guardKey).(string)
	return name, ok && name != ""
}

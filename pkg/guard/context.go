package guard

import "context"

// contextKey is a private type to prevent collisions with other context keys.
type contextKey struct{}

// WithContext stores the access context in ctx.
func WithContext(ctx context.Context, ac *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

// FromContext retrieves the access context from ctx.
// Returns nil, false if none is stored.
func FromContext(ctx context.Context) (*Context, bool) {
	ac, ok := ctx.Value(contextKey{}).(*Context)
	return ac, ok && ac != nil
}

// MustFromContext retrieves the access context from ctx and panics when
// none is stored. Use only inside handlers that run under Authorize.
func MustFromContext(ctx context.Context) *Context {
	ac, ok := FromContext(ctx)
	if !ok {
		panic("guard: no access context in context")
	}
	return ac
}

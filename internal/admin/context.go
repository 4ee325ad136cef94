package admin

import "context"

type ctxKey struct{}

// WithPrincipal marks ctx as carrying an authenticated admin named sub.
func WithPrincipal(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, ctxKey{}, sub)
}

// Principal returns the admin subject stored in ctx, if any.
func Principal(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(ctxKey{}).(string)
	return sub, ok && sub != ""
}

// IsAdmin reports whether ctx carries the admin capability.
func IsAdmin(ctx context.Context) bool {
	_, ok := Principal(ctx)
	return ok
}

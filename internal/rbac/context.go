package rbac

import "context"

type principalContextKey struct{}

// ContextWithPrincipal stores the resolved principal in context for the HTTP
// layer. Core operations still receive the principal as an argument.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

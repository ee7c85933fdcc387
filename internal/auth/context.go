package auth

import "context"

type principalContextKey struct{}

// ContextWithPrincipal attaches the verified principal context to ctx.
func ContextWithPrincipal(ctx context.Context, pc PrincipalContext) context.Context {
	return context.WithValue(ctx, principalContextKey{}, pc)
}

// PrincipalFromContext extracts the principal context set by the
// authentication middleware, if any.
func PrincipalFromContext(ctx context.Context) (PrincipalContext, bool) {
	pc, ok := ctx.Value(principalContextKey{}).(PrincipalContext)
	return pc, ok
}

type clientKey struct{}

// ContextWithClient tags ctx with the caller's network identity (the
// client IP at the transport layer), used to key abuse counters.
func ContextWithClient(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientKey{}, id)
}

// ClientFromContext returns the caller identity set by the transport,
// or "" when there is none.
func ClientFromContext(ctx context.Context) string {
	id, _ := ctx.Value(clientKey{}).(string)
	return id
}

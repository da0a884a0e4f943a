package auth

import "context"

type identityContextKey struct{}

type tokenContextKey struct{}

// ContextWithIdentity stores the resolved identity for downstream handlers.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the resolved identity if the request was authenticated.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}

// ContextWithToken stores the raw session token.
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey{}, token)
}

func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	token, ok := ctx.Value(tokenContextKey{}).(string)
	return token, ok
}

// ActorID is the user id recorded in audit entries, or "" for anonymous calls.
func ActorID(ctx context.Context) string {
	if id, ok := IdentityFromContext(ctx); ok {
		return id.User.ID
	}
	return ""
}

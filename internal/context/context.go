package ctx

import (
	"context"

	"github.com/pooly/backend/internal/dto"
)

type contextKey string

const (
	IdentityContextKey contextKey = "identity"
)

type Identity = dto.Identity

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, identity)
}

func GetIdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey).(Identity)
	return identity, ok
}

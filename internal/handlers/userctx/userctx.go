package userctx

import (
	"context"

	"github.com/nkiryanov/brokeroffice/internal/models"
)

type ctxKey string

const claimsKey ctxKey = "claims"

// New returns context carrying verified access token claims
func New(ctx context.Context, claims models.AccessClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func FromContext(ctx context.Context) (models.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(models.AccessClaims)
	return claims, ok
}

package authz

import (
	"context"

	"github.com/stanstork/opsdesk-api/internal/models"
)

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal stores the authenticated principal on the context.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFromContext(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey).(models.Principal)
	if !ok || p.AccountID == "" || !p.Realm.IsValid() {
		return models.Principal{}, false
	}
	return p, true
}

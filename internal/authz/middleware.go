package authz

import (
	"context"
	"net/http"

	"github.com/stanstork/opsdesk-api/internal/apperr"
	"github.com/stanstork/opsdesk-api/internal/models"
	"github.com/stanstork/opsdesk-api/internal/respond"
	"github.com/stanstork/opsdesk-api/internal/session"
	"github.com/stanstork/opsdesk-api/internal/tenant"
)

type SessionLoader interface {
	Load(ctx context.Context, realm models.Realm, r *http.Request) (session.Session, error)
}

type PrincipalLoader interface {
	Principal(ctx context.Context, realm models.Realm, accountID, companyID string) (models.Principal, error)
}

// RequireRealm authenticates the realm's session and stores the principal on
// the request context. Sessions of other realms are never consulted.
func RequireRealm(realm models.Realm, sessions SessionLoader, principals PrincipalLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := sessions.Load(r.Context(), realm, r)
			if err != nil {
				respond.Error(w, err)
				return
			}
			p, err := principals.Principal(r.Context(), realm, s.AccountID, s.CompanyID)
			if err != nil {
				respond.Error(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireTenantMatch rejects principals that do not belong to the bound company.
func (g *Guard) RequireTenantMatch(next http.Handler) http.Handler {
	return g.Require("")(next)
}

// Require applies the full guard against the bound company. An empty
// permission checks the tenant boundary only.
func (g *Guard) Require(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				respond.Error(w, apperr.New(apperr.KindUnauthorized, "authentication required"))
				return
			}
			company, ok := tenant.FromContext(r.Context())
			if !ok {
				respond.Error(w, apperr.NotFound("company not found"))
				return
			}
			if err := g.Authorize(r.Context(), p, company.ID, perm); err != nil {
				if apperr.KindOf(err) == apperr.KindInternal {
					g.logger.Error().Err(err).Str("path", r.URL.Path).Msg("authorization failed")
				}
				respond.Error(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

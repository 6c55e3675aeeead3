package authz

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/stanstork/opsdesk-api/internal/apperr"
	"github.com/stanstork/opsdesk-api/internal/metrics"
	"github.com/stanstork/opsdesk-api/internal/models"
	"github.com/stanstork/opsdesk-api/internal/permission"
	"github.com/stanstork/opsdesk-api/internal/repository"
)

type MembershipStore interface {
	GetMembership(ctx context.Context, adminID, companyID string) (models.AdminMembership, error)
}

// Guard confines every resource access to the caller's company.
type Guard struct {
	memberships MembershipStore
	enforcer    *permission.Enforcer
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

func NewGuard(memberships MembershipStore, enforcer *permission.Enforcer, m *metrics.Metrics, logger zerolog.Logger) *Guard {
	return &Guard{
		memberships: memberships,
		enforcer:    enforcer,
		metrics:     m,
		logger:      logger.With().Str("component", "authorization_guard").Logger(),
	}
}

// Authorize checks that p may act on a resource owned by companyID and, when
// perm is not empty, that p's roles grant perm. Every denial is Forbidden,
// whatever the resource type.
func (g *Guard) Authorize(ctx context.Context, p models.Principal, companyID, perm string) error {
	roles, err := g.rolesFor(ctx, p, companyID)
	if err != nil {
		return err
	}
	if perm == "" {
		return nil
	}
	overrides := p.Overrides
	if p.IsAdmin() {
		overrides = nil
	}
	if !g.enforcer.Evaluate(roles, overrides, perm) {
		g.metrics.PermissionDenied.WithLabelValues(string(p.Realm), perm).Inc()
		g.logger.Info().
			Str("event", "permission_denied").
			Str("realm", string(p.Realm)).
			Str("principal_id", p.AccountID).
			Str("company_id", companyID).
			Str("permission", perm).
			Msg("permission denied")
		return apperr.Forbidden()
	}
	return nil
}

// Permissions lists what p may do inside companyID.
func (g *Guard) Permissions(ctx context.Context, p models.Principal, companyID string) ([]string, error) {
	roles, err := g.rolesFor(ctx, p, companyID)
	if err != nil {
		return nil, err
	}
	granted := g.enforcer.Permissions(roles)
	if p.IsAdmin() || len(p.Overrides) == 0 {
		return granted, nil
	}
	set := map[string]bool{}
	for _, perm := range granted {
		set[perm] = true
	}
	for perm, allow := range p.Overrides {
		set[perm] = allow
	}
	out := make([]string, 0, len(set))
	for perm, allow := range set {
		if allow {
			out = append(out, perm)
		}
	}
	return models.NormalizeRoleNames(out), nil
}

// rolesFor enforces the tenant boundary and returns the roles that apply
// to p inside companyID.
func (g *Guard) rolesFor(ctx context.Context, p models.Principal, companyID string) ([]string, error) {
	if companyID == "" {
		return nil, g.crossTenant(p, companyID)
	}
	switch p.Realm {
	case models.RealmStaff, models.RealmCustomer:
		if p.CompanyID != companyID {
			return nil, g.crossTenant(p, companyID)
		}
		return p.Roles, nil
	case models.RealmAdmin:
		membership, err := g.memberships.GetMembership(ctx, p.AccountID, companyID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, g.crossTenant(p, companyID)
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "load admin membership", err)
		}
		return []string{membership.Role}, nil
	}
	return nil, apperr.Forbidden()
}

func (g *Guard) crossTenant(p models.Principal, companyID string) error {
	g.metrics.CrossTenantDenied.WithLabelValues(string(p.Realm)).Inc()
	g.logger.Warn().
		Str("event", "cross_tenant_access").
		Str("realm", string(p.Realm)).
		Str("principal_id", p.AccountID).
		Str("principal_company_id", p.CompanyID).
		Str("resource_company_id", companyID).
		Msg("cross-tenant access denied")
	return apperr.Forbidden()
}

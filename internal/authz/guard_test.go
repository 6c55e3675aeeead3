package authz

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stanstork/opsdesk-api/internal/apperr"
	"github.com/stanstork/opsdesk-api/internal/metrics"
	"github.com/stanstork/opsdesk-api/internal/models"
	"github.com/stanstork/opsdesk-api/internal/permission"
	"github.com/stanstork/opsdesk-api/internal/repository"
	"github.com/stanstork/opsdesk-api/internal/session"
	"github.com/stanstork/opsdesk-api/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMemberships map[string]models.AdminMembership

func (s stubMemberships) GetMembership(_ context.Context, adminID, companyID string) (models.AdminMembership, error) {
	if m, ok := s[adminID+"/"+companyID]; ok {
		return m, nil
	}
	return models.AdminMembership{}, repository.ErrNotFound
}

func newTestGuard(t *testing.T, logs *bytes.Buffer) (*Guard, *metrics.Metrics) {
	t.Helper()
	enforcer, err := permission.NewEnforcer(permission.DefaultCatalog().Mapping())
	require.NoError(t, err)
	m := metrics.NewNoop()
	memberships := stubMemberships{
		"a1/c1": {AdminID: "a1", CompanyID: "c1", Role: "owner"},
	}
	logger := zerolog.Nop()
	if logs != nil {
		logger = zerolog.New(logs)
	}
	return NewGuard(memberships, enforcer, m, logger), m
}

var (
	staffA    = models.Principal{Realm: models.RealmStaff, AccountID: "m1", CompanyID: "c1", Roles: []string{"manager"}}
	customerA = models.Principal{Realm: models.RealmCustomer, AccountID: "u1", CompanyID: "c1", Roles: []string{"customer"}}
	admin     = models.Principal{Realm: models.RealmAdmin, AccountID: "a1"}
)

func TestAuthorizeTenantBoundary(t *testing.T) {
	var logs bytes.Buffer
	g, m := newTestGuard(t, &logs)
	ctx := context.Background()

	assert.NoError(t, g.Authorize(ctx, staffA, "c1", permission.MembersView))

	err := g.Authorize(ctx, staffA, "c2", permission.MembersView)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	err = g.Authorize(ctx, customerA, "c2", "")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	err = g.Authorize(ctx, staffA, "", "")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.CrossTenantDenied.WithLabelValues("staff")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CrossTenantDenied.WithLabelValues("customer")))
	assert.Contains(t, logs.String(), `"event":"cross_tenant_access"`)
	assert.Contains(t, logs.String(), `"level":"warn"`)
}

func TestAuthorizePermissions(t *testing.T) {
	g, m := newTestGuard(t, nil)
	ctx := context.Background()

	assert.NoError(t, g.Authorize(ctx, customerA, "c1", permission.PortalView))
	err := g.Authorize(ctx, customerA, "c1", permission.MembersView)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PermissionDenied.WithLabelValues("customer", permission.MembersView)))

	revoked := staffA
	revoked.Overrides = map[string]bool{permission.InvitationsCreate: false}
	err = g.Authorize(ctx, revoked, "c1", permission.InvitationsCreate)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	granted := staffA
	granted.Overrides = map[string]bool{permission.MembersManage: true}
	assert.NoError(t, g.Authorize(ctx, granted, "c1", permission.MembersManage))
}

func TestAuthorizeAdminMembership(t *testing.T) {
	g, m := newTestGuard(t, nil)
	ctx := context.Background()

	assert.NoError(t, g.Authorize(ctx, admin, "c1", permission.InvitationsCreate))
	err := g.Authorize(ctx, admin, "c2", "")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CrossTenantDenied.WithLabelValues("admin")))
}

func TestPermissionsApplyOverrides(t *testing.T) {
	g, _ := newTestGuard(t, nil)
	p := models.Principal{Realm: models.RealmStaff, AccountID: "m9", CompanyID: "c1", Roles: []string{"driver"},
		Overrides: map[string]bool{permission.FleetView: false, permission.FleetManage: true}}

	perms, err := g.Permissions(context.Background(), p, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{permission.DashboardView, permission.FleetManage, permission.WorkOrdersView}, perms)

	_, err = g.Permissions(context.Background(), p, "c2")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

type stubSessions struct {
	s   session.Session
	err error
}

func (s stubSessions) Load(_ context.Context, realm models.Realm, _ *http.Request) (session.Session, error) {
	if s.err != nil {
		return session.Session{}, s.err
	}
	if s.s.Realm != realm {
		return session.Session{}, apperr.New(apperr.KindUnauthorized, "authentication required")
	}
	return s.s, nil
}

type stubPrincipals map[string]models.Principal

func (s stubPrincipals) Principal(_ context.Context, realm models.Realm, accountID, companyID string) (models.Principal, error) {
	p, ok := s[accountID]
	if !ok || p.Realm != realm || p.CompanyID != companyID {
		return models.Principal{}, apperr.Unauthorized()
	}
	return p, nil
}

func pipeline(g *Guard, sessions SessionLoader, perm string, company models.Company) http.Handler {
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFromContext(r.Context())
		_, _ = w.Write([]byte(p.AccountID))
	})
	principals := stubPrincipals{"m1": staffA, "u1": customerA}
	h := g.Require(perm)(final)
	h = RequireRealm(models.RealmStaff, sessions, principals)(h)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r.WithContext(tenant.WithCompany(r.Context(), company)))
	})
}

func TestMiddlewarePipeline(t *testing.T) {
	g, _ := newTestGuard(t, nil)
	acme := models.Company{ID: "c1", Slug: "acme"}
	globex := models.Company{ID: "c2", Slug: "globex"}
	staffSession := stubSessions{s: session.Session{Realm: models.RealmStaff, AccountID: "m1", CompanyID: "c1"}}

	rec := httptest.NewRecorder()
	pipeline(g, staffSession, permission.MembersView, acme).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "m1", rec.Body.String())

	rec = httptest.NewRecorder()
	pipeline(g, staffSession, permission.MembersView, globex).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	pipeline(g, staffSession, permission.PortalView, acme).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	portalSession := stubSessions{s: session.Session{Realm: models.RealmCustomer, AccountID: "u1", CompanyID: "c1"}}
	rec = httptest.NewRecorder()
	pipeline(g, portalSession, "", acme).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	broken := stubSessions{err: apperr.Wrap(apperr.KindInternal, "load session", errors.New("redis down"))}
	rec = httptest.NewRecorder()
	pipeline(g, broken, "", acme).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequireWithoutTenantOrPrincipal(t *testing.T) {
	g, _ := newTestGuard(t, nil)
	h := g.RequireTenantMatch(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithPrincipal(req.Context(), staffA))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

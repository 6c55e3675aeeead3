package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stanstork/opsdesk-api/internal/authz"
	"github.com/stanstork/opsdesk-api/internal/handlers"
	"github.com/stanstork/opsdesk-api/internal/metrics"
	"github.com/stanstork/opsdesk-api/internal/middleware"
	"github.com/stanstork/opsdesk-api/internal/models"
	"github.com/stanstork/opsdesk-api/internal/permission"
	"github.com/stanstork/opsdesk-api/internal/tenant"
)

// Handlers groups every HTTP handler mounted by NewRouter.
type Handlers struct {
	Auth        *handlers.AuthHandler
	Register    *handlers.RegisterHandler
	Invitations *handlers.InvitationHandler
	Members     *handlers.MemberHandler
	Customers   *handlers.CustomerHandler
	Dashboards  *handlers.DashboardHandler
	Companies   *handlers.CompanyHandler
	Health      *handlers.HealthHandler
}

// Deps are the request pipeline collaborators shared by all realms.
type Deps struct {
	Tenants    *tenant.Resolver
	Sessions   authz.SessionLoader
	Principals authz.PrincipalLoader
	Guard      *authz.Guard
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
}

const companyVar = "company"

// NewRouter mounts the three realms under their own prefixes. Scoped
// prefixes resolve the company before any session is looked at.
func NewRouter(h Handlers, d Deps) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestID, middleware.Logging(d.Logger), middleware.Metrics(d.Metrics))

	router.HandleFunc("/health", h.Health.HealthCheck).Methods(http.MethodGet)
	router.Handle("/metrics", d.Metrics.Handler()).Methods(http.MethodGet)

	mountAdmin(router, h, d)
	mountStaff(router, h, d)
	mountCustomer(router, h, d)
	return router
}

// guarded authenticates realm and then applies the guard for perm against
// the company bound by the route. An empty perm checks tenancy only.
func guarded(d Deps, realm models.Realm, perm string, next http.HandlerFunc) http.Handler {
	return authz.RequireRealm(realm, d.Sessions, d.Principals)(d.Guard.Require(perm)(next))
}

func mountRegistration(r *mux.Router, h Handlers, kind models.InvitationKind) {
	r.HandleFunc("/auth/register/{token}", h.Register.Show(kind)).Methods(http.MethodGet)
	r.HandleFunc("/auth/register/{token}", h.Register.Submit(kind)).Methods(http.MethodPost)
	r.HandleFunc("/auth/invite-expired", h.Register.InviteExpired).Methods(http.MethodGet)
}

func mountAdmin(router *mux.Router, h Handlers, d Deps) {
	requireAdmin := authz.RequireRealm(models.RealmAdmin, d.Sessions, d.Principals)

	admin := router.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/auth/login", h.Auth.Login(models.RealmAdmin)).Methods(http.MethodPost)
	admin.HandleFunc("/auth/logout", h.Auth.Logout(models.RealmAdmin)).Methods(http.MethodPost)
	admin.Handle("/dashboard", requireAdmin(http.HandlerFunc(h.Dashboards.Admin))).Methods(http.MethodGet)
	admin.Handle("/companies", requireAdmin(http.HandlerFunc(h.Companies.Create))).Methods(http.MethodPost)

	managed := admin.PathPrefix("/companies/{" + companyVar + "}").Subrouter()
	managed.Use(d.Tenants.Middleware(companyVar))
	managed.Handle("/invitations", guarded(d, models.RealmAdmin, permission.InvitationsCreate, h.Invitations.Create)).Methods(http.MethodPost)
	managed.Handle("/invitations", guarded(d, models.RealmAdmin, permission.InvitationsView, h.Invitations.List)).Methods(http.MethodGet)
	managed.Handle("/deactivate", guarded(d, models.RealmAdmin, "", h.Companies.Deactivate)).Methods(http.MethodPost)

	// Team invitations are redeemed under the company they were issued for.
	team := admin.PathPrefix("/{" + companyVar + "}").Subrouter()
	team.Use(d.Tenants.Middleware(companyVar))
	mountRegistration(team, h, models.InvitationTeam)
	team.Handle("/dashboard", guarded(d, models.RealmAdmin, "", h.Dashboards.Company)).Methods(http.MethodGet)
}

func mountStaff(router *mux.Router, h Handlers, d Deps) {
	staff := router.PathPrefix("/company/{" + companyVar + "}").Subrouter()
	staff.Use(d.Tenants.Middleware(companyVar))

	staff.HandleFunc("/auth/login", h.Auth.Login(models.RealmStaff)).Methods(http.MethodPost)
	staff.HandleFunc("/auth/logout", h.Auth.Logout(models.RealmStaff)).Methods(http.MethodPost)
	mountRegistration(staff, h, models.InvitationStaff)

	protect := func(perm string, next http.HandlerFunc) http.Handler {
		return guarded(d, models.RealmStaff, perm, next)
	}
	staff.Handle("/dashboard", protect("", h.Dashboards.Company)).Methods(http.MethodGet)

	staff.Handle("/members", protect(permission.MembersView, h.Members.List)).Methods(http.MethodGet)
	staff.Handle("/members", protect(permission.MembersManage, h.Members.Create)).Methods(http.MethodPost)
	staff.Handle("/members/{id}", protect(permission.MembersView, h.Members.Get)).Methods(http.MethodGet)
	staff.Handle("/members/{id}/deactivate", protect(permission.MembersManage, h.Members.Deactivate)).Methods(http.MethodPost)
	staff.Handle("/members/{id}/roles", protect(permission.MembersManage, h.Members.GrantRole)).Methods(http.MethodPost)

	staff.Handle("/customers", protect(permission.CustomersView, h.Customers.List)).Methods(http.MethodGet)
	staff.Handle("/customers", protect(permission.CustomersManage, h.Customers.Create)).Methods(http.MethodPost)
	staff.Handle("/customers/{id}", protect(permission.CustomersView, h.Customers.Get)).Methods(http.MethodGet)
	staff.Handle("/customers/{id}/deactivate", protect(permission.CustomersManage, h.Customers.Deactivate)).Methods(http.MethodPost)

	staff.Handle("/invitations", protect(permission.InvitationsView, h.Invitations.List)).Methods(http.MethodGet)
	staff.Handle("/invitations", protect(permission.InvitationsCreate, h.Invitations.Create)).Methods(http.MethodPost)
}

func mountCustomer(router *mux.Router, h Handlers, d Deps) {
	portal := router.PathPrefix("/customer-portal/{" + companyVar + "}").Subrouter()
	portal.Use(d.Tenants.Middleware(companyVar))

	portal.HandleFunc("/auth/login", h.Auth.Login(models.RealmCustomer)).Methods(http.MethodPost)
	portal.HandleFunc("/auth/logout", h.Auth.Logout(models.RealmCustomer)).Methods(http.MethodPost)
	mountRegistration(portal, h, models.InvitationCustomer)

	portal.Handle("/dashboard", guarded(d, models.RealmCustomer, "", h.Dashboards.Company)).Methods(http.MethodGet)
	portal.Handle("/account", guarded(d, models.RealmCustomer, permission.PortalView, h.Dashboards.Account)).Methods(http.MethodGet)
}

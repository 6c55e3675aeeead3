package handlers

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/stanstork/opsdesk-api/internal/apperr"
	"github.com/stanstork/opsdesk-api/internal/authz"
	"github.com/stanstork/opsdesk-api/internal/models"
	"github.com/stanstork/opsdesk-api/internal/repository"
	"github.com/stanstork/opsdesk-api/internal/respond"
)

type DashboardHandler struct {
	guard     *authz.Guard
	admins    repository.AdminRepository
	companies repository.CompanyRepository
	customers repository.CustomerRepository
	logger    zerolog.Logger
}

type accountSummary struct {
	ID    string       `json:"id"`
	Realm models.Realm `json:"realm"`
	Email string       `json:"email"`
	Roles []string     `json:"roles"`
}

type companyDashboard struct {
	Company     companySummary `json:"company"`
	Account     accountSummary `json:"account"`
	Permissions []string       `json:"permissions"`
}

type membershipView struct {
	Company companySummary `json:"company"`
	Role    string         `json:"role"`
}

type adminDashboard struct {
	Account     accountSummary   `json:"account"`
	Memberships []membershipView `json:"memberships"`
}

func NewDashboardHandler(
	guard *authz.Guard,
	admins repository.AdminRepository,
	companies repository.CompanyRepository,
	customers repository.CustomerRepository,
	logger zerolog.Logger,
) *DashboardHandler {
	return &DashboardHandler{
		guard:     guard,
		admins:    admins,
		companies: companies,
		customers: customers,
		logger:    logger.With().Str("component", "dashboard_handler").Logger(),
	}
}

func summarize(p models.Principal) accountSummary {
	roles := p.Roles
	if roles == nil {
		roles = []string{}
	}
	return accountSummary{ID: p.AccountID, Realm: p.Realm, Email: p.Email, Roles: roles}
}

// Company is the landing page of every company-scoped realm, including
// admins working inside a company they belong to.
func (h *DashboardHandler) Company(w http.ResponseWriter, r *http.Request) {
	p, err := principalFrom(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	company, err := companyFrom(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	perms, err := h.guard.Permissions(r.Context(), p, company.ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if perms == nil {
		perms = []string{}
	}
	respond.JSON(w, http.StatusOK, companyDashboard{
		Company:     companySummary{Slug: company.Slug, Name: company.Name},
		Account:     summarize(p),
		Permissions: perms,
	})
}

// Admin lists the companies the signed-in admin belongs to.
func (h *DashboardHandler) Admin(w http.ResponseWriter, r *http.Request) {
	p, err := principalFrom(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	memberships, err := h.admins.ListMemberships(r.Context(), p.AccountID)
	if err != nil {
		writeError(w, r, h.logger, apperr.Wrap(apperr.KindInternal, "list memberships", err))
		return
	}

	views := make([]membershipView, 0, len(memberships))
	for _, m := range memberships {
		company, err := h.companies.GetCompanyByID(r.Context(), m.CompanyID)
		if err != nil {
			writeError(w, r, h.logger, apperr.Wrap(apperr.KindInternal, "load company", err))
			return
		}
		views = append(views, membershipView{
			Company: companySummary{Slug: company.Slug, Name: company.Name},
			Role:    m.Role,
		})
	}
	respond.JSON(w, http.StatusOK, adminDashboard{Account: summarize(p), Memberships: views})
}

// Account returns the signed-in customer's own record.
func (h *DashboardHandler) Account(w http.ResponseWriter, r *http.Request) {
	p, err := principalFrom(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	customer, err := h.customers.GetCustomerByID(r.Context(), p.AccountID)
	if err != nil {
		writeError(w, r, h.logger, notFoundOrInternal(err, "account not found", "load account"))
		return
	}
	respond.JSON(w, http.StatusOK, customer)
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/stanstork/opsdesk-api/internal/apperr"
	"github.com/stanstork/opsdesk-api/internal/authz"
	"github.com/stanstork/opsdesk-api/internal/invitation"
	"github.com/stanstork/opsdesk-api/internal/models"
	"github.com/stanstork/opsdesk-api/internal/repository"
	"github.com/stanstork/opsdesk-api/internal/respond"
)

// CompanyHandler serves platform administration of tenants.
type CompanyHandler struct {
	uow         invitation.UnitOfWork
	memberships authz.MembershipStore
	tenants     cacheInvalidator
	logger      zerolog.Logger
}

type cacheInvalidator interface {
	Invalidate(slug string)
}

type createCompanyRequest struct {
	Slug string `json:"slug" validate:"required,max=64"`
	Name string `json:"name" validate:"required,max=200"`
}

type companyCreated struct {
	Company    models.Company         `json:"company"`
	Membership models.AdminMembership `json:"membership"`
}

func NewCompanyHandler(uow invitation.UnitOfWork, memberships authz.MembershipStore, tenants cacheInvalidator, logger zerolog.Logger) *CompanyHandler {
	return &CompanyHandler{
		uow:         uow,
		memberships: memberships,
		tenants:     tenants,
		logger:      logger.With().Str("component", "company_handler").Logger(),
	}
}

// Create provisions a company and makes the calling admin its owner.
func (h *CompanyHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := principalFrom(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req createCompanyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	slug := models.NormalizeSlug(req.Slug)
	if !models.IsValidSlug(slug) {
		writeError(w, r, h.logger, apperr.Validation("invalid company", map[string]string{
			"slug": "must be lowercase letters, digits and dashes",
		}))
		return
	}

	var out companyCreated
	err = h.uow.WithTx(r.Context(), func(tx repository.Repositories) error {
		company, err := tx.Companies.CreateCompany(r.Context(), slug, req.Name)
		if err != nil {
			return err
		}
		membership, err := tx.Admins.UpsertMembership(r.Context(), p.AccountID, company.ID, models.RoleOwner)
		if err != nil {
			return err
		}
		out = companyCreated{Company: company, Membership: membership}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			writeError(w, r, h.logger, apperr.New(apperr.KindConflict, "company slug is taken"))
			return
		}
		writeError(w, r, h.logger, apperr.Wrap(apperr.KindInternal, "create company", err))
		return
	}

	h.logger.Info().
		Str("company_id", out.Company.ID).
		Str("slug", out.Company.Slug).
		Str("owner_id", p.AccountID).
		Msg("company created")
	respond.JSON(w, http.StatusCreated, out)
}

// Deactivate switches the bound company off. Only owners may do this; the
// company's routes answer 404 from then on.
func (h *CompanyHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
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
	membership, err := h.memberships.GetMembership(r.Context(), p.AccountID, company.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		writeError(w, r, h.logger, apperr.Wrap(apperr.KindInternal, "load membership", err))
		return
	}
	if err != nil || membership.Role != models.RoleOwner {
		writeError(w, r, h.logger, apperr.Forbidden())
		return
	}

	err = h.uow.WithTx(r.Context(), func(tx repository.Repositories) error {
		return tx.Companies.SetCompanyActive(r.Context(), company.ID, false)
	})
	if err != nil {
		writeError(w, r, h.logger, apperr.Wrap(apperr.KindInternal, "deactivate company", err))
		return
	}
	h.tenants.Invalidate(company.Slug)

	h.logger.Info().
		Str("company_id", company.ID).
		Str("slug", company.Slug).
		Str("admin_id", p.AccountID).
		Msg("company deactivated")
	w.WriteHeader(http.StatusNoContent)
}

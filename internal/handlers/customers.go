package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/stanstork/opsdesk-api/internal/apperr"
	"github.com/stanstork/opsdesk-api/internal/authz"
	"github.com/stanstork/opsdesk-api/internal/models"
	"github.com/stanstork/opsdesk-api/internal/permission"
	"github.com/stanstork/opsdesk-api/internal/repository"
	"github.com/stanstork/opsdesk-api/internal/respond"
)

type CustomerHandler struct {
	customers repository.CustomerRepository
	guard     *authz.Guard
	logger    zerolog.Logger
}

type createCustomerRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Name  string `json:"name" validate:"required,max=200"`
}

func NewCustomerHandler(customers repository.CustomerRepository, guard *authz.Guard, logger zerolog.Logger) *CustomerHandler {
	return &CustomerHandler{
		customers: customers,
		guard:     guard,
		logger:    logger.With().Str("component", "customer_handler").Logger(),
	}
}

func (h *CustomerHandler) List(w http.ResponseWriter, r *http.Request) {
	company, err := companyFrom(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	customers, err := h.customers.ListCustomersByCompany(r.Context(), company.ID)
	if err != nil {
		writeError(w, r, h.logger, apperr.Wrap(apperr.KindInternal, "list customers", err))
		return
	}
	if customers == nil {
		customers = []models.CustomerAccount{}
	}
	respond.JSON(w, http.StatusOK, customers)
}

// Create records a customer without portal access. Access is granted by
// accepting a customer invitation.
func (h *CustomerHandler) Create(w http.ResponseWriter, r *http.Request) {
	company, err := companyFrom(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req createCustomerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	created, err := h.customers.CreateCustomer(r.Context(), models.CustomerAccount{
		CompanyID: company.ID,
		Email:     models.NormalizeEmail(req.Email),
		Name:      req.Name,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			writeError(w, r, h.logger, apperr.New(apperr.KindConflict, "a customer with this email already exists"))
			return
		}
		writeError(w, r, h.logger, apperr.Wrap(apperr.KindInternal, "create customer", err))
		return
	}
	respond.JSON(w, http.StatusCreated, created)
}

func (h *CustomerHandler) Get(w http.ResponseWriter, r *http.Request) {
	customer, ok := h.load(w, r, permission.CustomersView)
	if !ok {
		return
	}
	respond.JSON(w, http.StatusOK, customer)
}

// Deactivate revokes portal access. The record is kept.
func (h *CustomerHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	customer, ok := h.load(w, r, permission.CustomersManage)
	if !ok {
		return
	}
	if err := h.customers.SetPortalAccess(r.Context(), customer.ID, false); err != nil {
		writeError(w, r, h.logger, notFoundOrInternal(err, "customer not found", "deactivate customer"))
		return
	}
	h.logger.Info().Str("customer_id", customer.ID).Str("company_id", customer.CompanyID).Msg("customer portal access revoked")
	w.WriteHeader(http.StatusNoContent)
}

func (h *CustomerHandler) load(w http.ResponseWriter, r *http.Request, perm string) (models.CustomerAccount, bool) {
	p, err := principalFrom(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return models.CustomerAccount{}, false
	}
	id, err := routeID(r)
	if err != nil {
		writeError(w, r, h.logger, apperr.NotFound("customer not found"))
		return models.CustomerAccount{}, false
	}
	customer, err := h.customers.GetCustomerByID(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, notFoundOrInternal(err, "customer not found", "load customer"))
		return models.CustomerAccount{}, false
	}
	if err := h.guard.Authorize(r.Context(), p, customer.CompanyID, perm); err != nil {
		writeError(w, r, h.logger, err)
		return models.CustomerAccount{}, false
	}
	return customer, true
}

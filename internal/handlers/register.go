package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stanstork/opsdesk-api/internal/apperr"
	"github.com/stanstork/opsdesk-api/internal/invitation"
	"github.com/stanstork/opsdesk-api/internal/models"
	"github.com/stanstork/opsdesk-api/internal/respond"
	"github.com/stanstork/opsdesk-api/internal/session"
)

// RegisterHandler serves invitation acceptance for every realm. The kind is
// fixed per route so a token can only be redeemed under its own prefix.
type RegisterHandler struct {
	invitations *invitation.Service
	sessions    *session.Manager
	logger      zerolog.Logger
}

type registerRequest struct {
	Name                 string `json:"name" validate:"max=200"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

type registrationForm struct {
	Email     string                `json:"email"`
	Kind      models.InvitationKind `json:"kind"`
	Role      string                `json:"role"`
	Company   companySummary        `json:"company"`
	ExpiresAt time.Time             `json:"expires_at"`
}

type companySummary struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

func NewRegisterHandler(invitations *invitation.Service, sessions *session.Manager, logger zerolog.Logger) *RegisterHandler {
	return &RegisterHandler{
		invitations: invitations,
		sessions:    sessions,
		logger:      logger.With().Str("component", "register_handler").Logger(),
	}
}

// Show returns what the registration form needs to render.
func (h *RegisterHandler) Show(kind models.InvitationKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		company, err := companyFrom(r)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}

		resolved, err := h.invitations.Resolve(r.Context(), mux.Vars(r)["token"], invitation.Scope{Kind: kind, CompanyID: company.ID})
		if err != nil {
			switch apperr.KindOf(err) {
			case apperr.KindExpired, apperr.KindAlreadyAccepted:
				seeOther(w, r, kind.PathPrefix(company.Slug)+"/auth/invite-expired")
			default:
				writeError(w, r, h.logger, err)
			}
			return
		}

		respond.JSON(w, http.StatusOK, registrationForm{
			Email:     resolved.Invitation.Email,
			Kind:      resolved.Invitation.Kind,
			Role:      resolved.Invitation.Role,
			Company:   companySummary{Slug: resolved.Company.Slug, Name: resolved.Company.Name},
			ExpiresAt: resolved.Invitation.ExpiresAt,
		})
	}
}

// Submit accepts the invitation and signs the new account in.
func (h *RegisterHandler) Submit(kind models.InvitationKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		company, err := companyFrom(r)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}

		var req registerRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, h.logger, err)
			return
		}

		accepted, err := h.invitations.Accept(r.Context(), mux.Vars(r)["token"], invitation.Credentials{
			Name:         req.Name,
			Password:     req.Password,
			Confirmation: req.PasswordConfirmation,
		}, invitation.Scope{Kind: kind, CompanyID: company.ID})
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}

		realm := kind.Realm()
		if _, err := h.sessions.Create(r.Context(), w, accepted.Principal, cookiePath(realm)); err != nil {
			// The account exists at this point; the caller can still sign in.
			h.logger.Error().Err(err).
				Str("invitation_id", accepted.Invitation.ID).
				Msg("session after registration failed")
			respond.Error(w, apperr.Wrap(apperr.KindInternal, "create session", err))
			return
		}
		seeOther(w, r, kind.PathPrefix(company.Slug)+"/dashboard")
	}
}

// InviteExpired is where unusable invitation links land.
func (h *RegisterHandler) InviteExpired(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusGone, map[string]string{
		"error":   string(apperr.KindExpired),
		"message": "this invitation link has expired or has already been used",
	})
}

package handlers

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/stanstork/opsdesk-api/internal/apperr"
	"github.com/stanstork/opsdesk-api/internal/identity"
	"github.com/stanstork/opsdesk-api/internal/metrics"
	"github.com/stanstork/opsdesk-api/internal/models"
	"github.com/stanstork/opsdesk-api/internal/session"
)

type AuthHandler struct {
	auth     *identity.Authenticator
	sessions *session.Manager
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func NewAuthHandler(auth *identity.Authenticator, sessions *session.Manager, m *metrics.Metrics, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		sessions: sessions,
		metrics:  m,
		logger:   logger.With().Str("component", "auth_handler").Logger(),
	}
}

// Login authenticates against realm and redirects to the realm dashboard.
// Scoped realms resolve the company from the route before this runs.
func (h *AuthHandler) Login(realm models.Realm) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var company models.Company
		if realm.Scoped() {
			c, err := companyFrom(r)
			if err != nil {
				writeError(w, r, h.logger, err)
				return
			}
			company = c
		}

		var req loginRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, h.logger, err)
			return
		}

		p, err := h.auth.Authenticate(r.Context(), realm, req.Email, req.Password, company.ID)
		if err != nil {
			outcome := "failure"
			if apperr.KindOf(err) == apperr.KindInternal {
				outcome = "error"
			}
			h.metrics.LoginAttempts.WithLabelValues(string(realm), outcome).Inc()
			writeError(w, r, h.logger, err)
			return
		}

		if _, err := h.sessions.Create(r.Context(), w, p, cookiePath(realm)); err != nil {
			h.metrics.LoginAttempts.WithLabelValues(string(realm), "error").Inc()
			writeError(w, r, h.logger, apperr.Wrap(apperr.KindInternal, "create session", err))
			return
		}
		h.metrics.LoginAttempts.WithLabelValues(string(realm), "success").Inc()
		h.logger.Info().
			Str("realm", string(realm)).
			Str("account_id", p.AccountID).
			Str("company_id", p.CompanyID).
			Msg("signed in")

		seeOther(w, r, realmPrefix(realm, company)+"/dashboard")
	}
}

// Logout clears the realm session. It succeeds without a session.
func (h *AuthHandler) Logout(realm models.Realm) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if realm.Scoped() {
			if _, err := companyFrom(r); err != nil {
				writeError(w, r, h.logger, err)
				return
			}
		}
		if err := h.sessions.Destroy(r.Context(), w, r, realm, cookiePath(realm)); err != nil {
			writeError(w, r, h.logger, apperr.Wrap(apperr.KindInternal, "destroy session", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

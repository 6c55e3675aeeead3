package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/stanstork/opsdesk-api/internal/apperr"
	"github.com/stanstork/opsdesk-api/internal/authz"
	"github.com/stanstork/opsdesk-api/internal/invitation"
	"github.com/stanstork/opsdesk-api/internal/models"
	"github.com/stanstork/opsdesk-api/internal/repository"
	"github.com/stanstork/opsdesk-api/internal/respond"
)

type InvitationHandler struct {
	invitations *invitation.Service
	memberships authz.MembershipStore
	logger      zerolog.Logger
}

type inviteRequest struct {
	Kind           models.InvitationKind `json:"kind" validate:"required,oneof=customer staff team"`
	Email          string                `json:"email" validate:"required,email,max=254"`
	Role           string                `json:"role" validate:"max=64"`
	ExpiresInHours *int                  `json:"expires_in_hours" validate:"omitempty,min=1,max=720"`
	Template       string                `json:"template" validate:"max=128"`
}

type inviteResponse struct {
	Invitation models.Invitation `json:"invitation"`
	Link       string            `json:"link"`
	Token      string            `json:"token"`
}

type invitationView struct {
	models.Invitation
	Status string `json:"status"`
}

func NewInvitationHandler(invitations *invitation.Service, memberships authz.MembershipStore, logger zerolog.Logger) *InvitationHandler {
	return &InvitationHandler{
		invitations: invitations,
		memberships: memberships,
		logger:      logger.With().Str("component", "invitation_handler").Logger(),
	}
}

// Create issues an invitation for the bound company on behalf of the
// signed-in staff member or admin.
func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
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

	var req inviteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.mayInvite(r, p, company.ID, req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	params := invitation.IssueParams{
		Kind:           req.Kind,
		CompanyID:      company.ID,
		Email:          req.Email,
		Role:           req.Role,
		InvitedByRealm: p.Realm,
		InvitedBy:      p.AccountID,
		Template:       req.Template,
	}
	if req.ExpiresInHours != nil {
		params.TTL = time.Duration(*req.ExpiresInHours) * time.Hour
	}
	issued, err := h.invitations.Issue(r.Context(), params)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	respond.JSON(w, http.StatusCreated, inviteResponse{
		Invitation: issued.Invitation,
		Link:       issued.Link,
		Token:      issued.Token,
	})
}

// mayInvite keeps inviters from granting more than they hold. Staff invite
// customers and members up to their own rank; team invitations and the
// owner role are reserved to admins holding the matching membership.
func (h *InvitationHandler) mayInvite(r *http.Request, p models.Principal, companyID string, req inviteRequest) error {
	switch p.Realm {
	case models.RealmStaff:
		switch req.Kind {
		case models.InvitationCustomer:
			return nil
		case models.InvitationStaff:
			requested := models.MemberRoleStaff
			if req.Role != "" {
				role, ok := models.ParseMemberRole(req.Role)
				if !ok {
					// Left to the service for a field-level validation error.
					return nil
				}
				requested = role
			}
			if !highestMemberRole(p.Roles).HasAtLeast(requested) {
				return apperr.Forbidden()
			}
			return nil
		}
		return apperr.Forbidden()
	case models.RealmAdmin:
		if req.Kind != models.InvitationTeam || req.Role != models.RoleOwner {
			return nil
		}
		membership, err := h.memberships.GetMembership(r.Context(), p.AccountID, companyID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.Forbidden()
			}
			return apperr.Wrap(apperr.KindInternal, "load membership", err)
		}
		if membership.Role != models.RoleOwner {
			return apperr.Forbidden()
		}
		return nil
	}
	return apperr.Forbidden()
}

func highestMemberRole(roles []string) models.MemberRole {
	var best models.MemberRole
	for _, raw := range roles {
		role, ok := models.ParseMemberRole(raw)
		if !ok {
			continue
		}
		if best == "" || !best.HasAtLeast(role) {
			best = role
		}
	}
	return best
}

// List returns the company's invitation history, including expired and
// accepted entries.
func (h *InvitationHandler) List(w http.ResponseWriter, r *http.Request) {
	company, err := companyFrom(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	invites, err := h.invitations.ListByCompany(r.Context(), company.ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	now := h.invitations.Now()
	views := make([]invitationView, 0, len(invites))
	for _, inv := range invites {
		views = append(views, invitationView{Invitation: inv, Status: inv.Status(now)})
	}
	respond.JSON(w, http.StatusOK, views)
}

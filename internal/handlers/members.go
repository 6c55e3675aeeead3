package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/stanstork/opsdesk-api/internal/apperr"
	"github.com/stanstork/opsdesk-api/internal/authz"
	"github.com/stanstork/opsdesk-api/internal/identity"
	"github.com/stanstork/opsdesk-api/internal/models"
	"github.com/stanstork/opsdesk-api/internal/permission"
	"github.com/stanstork/opsdesk-api/internal/repository"
	"github.com/stanstork/opsdesk-api/internal/respond"
)

type MemberHandler struct {
	members repository.MemberRepository
	roles   roleAssigner
	hasher  *identity.Hasher
	guard   *authz.Guard
	logger  zerolog.Logger
}

type createMemberRequest struct {
	Email                string          `json:"email" validate:"required,email,max=254"`
	Name                 string          `json:"name" validate:"max=200"`
	Role                 string          `json:"role" validate:"required,oneof=admin manager staff driver viewer"`
	Password             string          `json:"password"`
	PasswordConfirmation string          `json:"password_confirmation"`
	PermissionOverrides  map[string]bool `json:"permission_overrides"`
}

type grantRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin manager staff driver viewer"`
}

type memberRoles struct {
	MemberID string   `json:"member_id"`
	Roles    []string `json:"roles"`
}

type roleAssigner interface {
	AssignRole(ctx context.Context, realm models.Realm, principalID, roleName string) error
	PrincipalRoleNames(ctx context.Context, realm models.Realm, principalID string) ([]string, error)
}

func NewMemberHandler(members repository.MemberRepository, roles roleAssigner, hasher *identity.Hasher, guard *authz.Guard, logger zerolog.Logger) *MemberHandler {
	return &MemberHandler{
		members: members,
		roles:   roles,
		hasher:  hasher,
		guard:   guard,
		logger:  logger.With().Str("component", "member_handler").Logger(),
	}
}

func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	company, err := companyFrom(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	members, err := h.members.ListMembersByCompany(r.Context(), company.ID)
	if err != nil {
		writeError(w, r, h.logger, apperr.Wrap(apperr.KindInternal, "list members", err))
		return
	}
	if members == nil {
		members = []models.CompanyMember{}
	}
	respond.JSON(w, http.StatusOK, members)
}

// Create adds a member directly. Without a password the member stays
// inactive until they accept a staff invitation.
func (h *MemberHandler) Create(w http.ResponseWriter, r *http.Request) {
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

	var req createMemberRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	role, _ := models.ParseMemberRole(req.Role)
	if !p.IsAdmin() && !highestMemberRole(p.Roles).HasAtLeast(role) {
		writeError(w, r, h.logger, apperr.Forbidden())
		return
	}

	member := models.CompanyMember{
		CompanyID:           company.ID,
		Email:               models.NormalizeEmail(req.Email),
		Name:                req.Name,
		Role:                role,
		PermissionOverrides: req.PermissionOverrides,
	}
	if req.Password != "" {
		if err := identity.ValidatePassword(req.Password, req.PasswordConfirmation); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		hash, err := h.hasher.Hash(req.Password)
		if err != nil {
			writeError(w, r, h.logger, apperr.Wrap(apperr.KindInternal, "hash password", err))
			return
		}
		member.PasswordHash = hash
		member.IsActive = true
	}

	created, err := h.members.CreateMember(r.Context(), member)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			writeError(w, r, h.logger, apperr.New(apperr.KindConflict, "a member with this email already exists"))
			return
		}
		writeError(w, r, h.logger, apperr.Wrap(apperr.KindInternal, "create member", err))
		return
	}
	h.logger.Info().
		Str("member_id", created.ID).
		Str("company_id", company.ID).
		Str("role", string(created.Role)).
		Str("created_by", p.AccountID).
		Msg("member created")
	respond.JSON(w, http.StatusCreated, created)
}

func (h *MemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	member, ok := h.load(w, r, permission.MembersView)
	if !ok {
		return
	}
	respond.JSON(w, http.StatusOK, member)
}

func (h *MemberHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	member, ok := h.load(w, r, permission.MembersManage)
	if !ok {
		return
	}
	p, _ := principalFrom(r)
	if p.Realm == models.RealmStaff && p.AccountID == member.ID {
		writeError(w, r, h.logger, apperr.Validation("cannot deactivate yourself", nil))
		return
	}
	if err := h.members.DeactivateMember(r.Context(), member.ID); err != nil {
		writeError(w, r, h.logger, notFoundOrInternal(err, "member not found", "deactivate member"))
		return
	}
	h.logger.Info().Str("member_id", member.ID).Str("company_id", member.CompanyID).Msg("member deactivated")
	w.WriteHeader(http.StatusNoContent)
}

// GrantRole links an additional catalog role to a member. The caller may not
// grant a role ranked above their own.
func (h *MemberHandler) GrantRole(w http.ResponseWriter, r *http.Request) {
	member, ok := h.load(w, r, permission.MembersManage)
	if !ok {
		return
	}
	p, _ := principalFrom(r)

	var req grantRoleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	role, _ := models.ParseMemberRole(req.Role)
	if !p.IsAdmin() && !highestMemberRole(p.Roles).HasAtLeast(role) {
		writeError(w, r, h.logger, apperr.Forbidden())
		return
	}

	if err := h.roles.AssignRole(r.Context(), models.RealmStaff, member.ID, string(role)); err != nil {
		writeError(w, r, h.logger, notFoundOrInternal(err, "role not found", "assign role"))
		return
	}
	extra, err := h.roles.PrincipalRoleNames(r.Context(), models.RealmStaff, member.ID)
	if err != nil {
		writeError(w, r, h.logger, apperr.Wrap(apperr.KindInternal, "load member roles", err))
		return
	}

	h.logger.Info().
		Str("member_id", member.ID).
		Str("company_id", member.CompanyID).
		Str("role", string(role)).
		Str("granted_by", p.AccountID).
		Msg("member role granted")
	respond.JSON(w, http.StatusOK, memberRoles{
		MemberID: member.ID,
		Roles:    models.NormalizeRoleNames(append([]string{string(member.Role)}, extra...)),
	})
}

// load fetches the member named in the route and authorizes perm against
// the member's own company, not the one in the URL.
func (h *MemberHandler) load(w http.ResponseWriter, r *http.Request, perm string) (models.CompanyMember, bool) {
	p, err := principalFrom(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return models.CompanyMember{}, false
	}
	id, err := routeID(r)
	if err != nil {
		writeError(w, r, h.logger, apperr.NotFound("member not found"))
		return models.CompanyMember{}, false
	}
	member, err := h.members.GetMemberByID(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, notFoundOrInternal(err, "member not found", "load member"))
		return models.CompanyMember{}, false
	}
	if err := h.guard.Authorize(r.Context(), p, member.CompanyID, perm); err != nil {
		writeError(w, r, h.logger, err)
		return models.CompanyMember{}, false
	}
	return member, true
}

func notFoundOrInternal(err error, notFound, op string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(notFound)
	}
	return apperr.Wrap(apperr.KindInternal, op, err)
}

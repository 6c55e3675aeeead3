package invitation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stanstork/opsdesk-api/internal/apperr"
	"github.com/stanstork/opsdesk-api/internal/identity"
	"github.com/stanstork/opsdesk-api/internal/metrics"
	"github.com/stanstork/opsdesk-api/internal/models"
	"github.com/stanstork/opsdesk-api/internal/notification"
	"github.com/stanstork/opsdesk-api/internal/permission"
	"github.com/stanstork/opsdesk-api/internal/repository"
)

const (
	DefaultTTL = 7 * 24 * time.Hour
	MaxTTL     = 30 * 24 * time.Hour
)

var validate = validator.New()

// UnitOfWork runs fn against repositories bound to one transaction.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(repository.Repositories) error) error
}

type Options struct {
	DefaultTTL time.Duration
	MaxTTL     time.Duration
	// BaseURL prefixes registration links, e.g. https://ops.example.com.
	BaseURL string
}

type IssueParams struct {
	Kind           models.InvitationKind
	CompanyID      string
	Email          string
	Role           string
	InvitedByRealm models.Realm
	InvitedBy      string
	TTL            time.Duration
	Template       string
}

// Issued carries the raw token. It is never persisted or logged.
type Issued struct {
	Invitation models.Invitation
	Company    models.Company
	Token      string
	Link       string
}

// Scope narrows which invitations a token may address. Empty fields match
// anything.
type Scope struct {
	Kind      models.InvitationKind
	CompanyID string
}

func (s Scope) matches(inv models.Invitation) bool {
	if s.Kind != "" && s.Kind != inv.Kind {
		return false
	}
	if s.CompanyID != "" && s.CompanyID != inv.CompanyID {
		return false
	}
	return true
}

type Resolved struct {
	Invitation models.Invitation
	Company    models.Company
}

type Credentials struct {
	Name         string
	Password     string
	Confirmation string
}

// Accepted is the outcome of a committed acceptance. Principal is the
// account the caller should now be signed in as.
type Accepted struct {
	Invitation models.Invitation
	Company    models.Company
	Principal  models.Principal
}

type Service struct {
	uow       UnitOfWork
	repos     repository.Repositories
	hasher    *identity.Hasher
	catalog   permission.Catalog
	publisher notification.InvitationPublisher
	metrics   *metrics.Metrics
	opts      Options
	now       func() time.Time
	logger    zerolog.Logger
}

func NewService(
	uow UnitOfWork,
	repos repository.Repositories,
	hasher *identity.Hasher,
	catalog permission.Catalog,
	publisher notification.InvitationPublisher,
	m *metrics.Metrics,
	opts Options,
	logger zerolog.Logger,
) *Service {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	if opts.MaxTTL <= 0 {
		opts.MaxTTL = MaxTTL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if publisher == nil {
		publisher = notification.NopPublisher{}
	}
	return &Service{
		uow:       uow,
		repos:     repos,
		hasher:    hasher,
		catalog:   catalog,
		publisher: publisher,
		metrics:   m,
		opts:      opts,
		now:       time.Now,
		logger:    logger.With().Str("component", "invitation_service").Logger(),
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Issue creates an invitation and hands it to the publisher. A publish
// failure is logged and does not fail the issue.
func (s *Service) Issue(ctx context.Context, p IssueParams) (Issued, error) {
	if !p.Kind.IsValid() {
		return Issued{}, apperr.Validation("invalid invitation", map[string]string{"kind": "must be customer, staff or team"})
	}
	email := models.NormalizeEmail(p.Email)
	if err := validate.Var(email, "required,email,max=254"); err != nil {
		return Issued{}, apperr.Validation("invalid invitation", map[string]string{"email": "must be a valid email address"})
	}
	role, err := s.roleFor(p.Kind, p.Role)
	if err != nil {
		return Issued{}, err
	}
	ttl := p.TTL
	if ttl == 0 {
		ttl = s.opts.DefaultTTL
	}
	if ttl < 0 || ttl > s.opts.MaxTTL {
		return Issued{}, apperr.Validation("invalid invitation", map[string]string{"ttl": "must be positive and at most " + s.opts.MaxTTL.String()})
	}

	company, err := s.activeCompany(ctx, s.repos, p.CompanyID)
	if err != nil {
		return Issued{}, err
	}

	token, hash, err := GenerateToken()
	if err != nil {
		return Issued{}, apperr.Wrap(apperr.KindInternal, "generate token", err)
	}
	var template *string
	if t := strings.TrimSpace(p.Template); t != "" {
		template = &t
	}
	invite, err := s.repos.Invitations.CreateInvite(ctx, models.Invitation{
		Kind:           p.Kind,
		CompanyID:      company.ID,
		Email:          email,
		Role:           role,
		TokenHash:      hash,
		InvitedByRealm: p.InvitedByRealm,
		InvitedBy:      p.InvitedBy,
		Template:       template,
		ExpiresAt:      s.now().UTC().Add(ttl),
	})
	if err != nil {
		return Issued{}, apperr.Wrap(apperr.KindInternal, "store invitation", err)
	}

	issued := Issued{
		Invitation: invite,
		Company:    company,
		Token:      token,
		Link:       s.opts.BaseURL + p.Kind.PathPrefix(company.Slug) + "/auth/register/" + token,
	}
	s.metrics.InvitationsIssued.WithLabelValues(string(p.Kind)).Inc()
	s.logger.Info().
		Str("invitation_id", invite.ID).
		Str("kind", string(invite.Kind)).
		Str("company_id", company.ID).
		Str("invited_by", p.InvitedBy).
		Time("expires_at", invite.ExpiresAt).
		Msg("invitation issued")

	msg := notification.InvitationMessage{
		InvitationID: invite.ID,
		Kind:         string(invite.Kind),
		Email:        invite.Email,
		CompanyID:    company.ID,
		CompanySlug:  company.Slug,
		CompanyName:  company.Name,
		Role:         invite.Role,
		Token:        token,
		Link:         issued.Link,
		ExpiresAt:    invite.ExpiresAt,
	}
	if template != nil {
		msg.Template = *template
	}
	if err := s.publisher.PublishInvitation(ctx, msg); err != nil {
		s.logger.Warn().Err(err).Str("invitation_id", invite.ID).Msg("invitation publish failed")
	}
	return issued, nil
}

func (s *Service) roleFor(kind models.InvitationKind, raw string) (string, error) {
	role := strings.ToLower(strings.TrimSpace(raw))
	invalid := func(msg string) error {
		return apperr.Validation("invalid invitation", map[string]string{"role": msg})
	}
	switch kind {
	case models.InvitationCustomer:
		if role != "" && role != models.RoleCustomer {
			return "", invalid("customer invitations always grant the customer role")
		}
		return models.RoleCustomer, nil
	case models.InvitationStaff:
		if role == "" {
			return string(models.MemberRoleStaff), nil
		}
		parsed, ok := models.ParseMemberRole(role)
		if !ok {
			return "", invalid("must be one of admin, manager, staff, driver, viewer")
		}
		return string(parsed), nil
	default:
		if role == "" {
			return string(models.MemberRoleAdmin), nil
		}
		if !s.catalog.HasRole(role) || role == models.RoleCustomer {
			return "", invalid("unknown team role")
		}
		return role, nil
	}
}

// Resolve returns a still-usable invitation for display. An accepted
// invitation is reported as such even after its window has passed.
func (s *Service) Resolve(ctx context.Context, token string, scope Scope) (Resolved, error) {
	if strings.TrimSpace(token) == "" {
		return Resolved{}, apperr.NotFound("invitation not found")
	}
	inv, err := s.repos.Invitations.GetInviteByTokenHash(ctx, HashToken(token))
	if err != nil {
		return Resolved{}, notFoundOr(err, "invitation not found", "load invitation")
	}
	if err := s.checkUsable(inv, scope); err != nil {
		return Resolved{}, err
	}
	company, err := s.activeCompany(ctx, s.repos, inv.CompanyID)
	if err != nil {
		return Resolved{}, err
	}
	return Resolved{Invitation: inv, Company: company}, nil
}

func (s *Service) checkUsable(inv models.Invitation, scope Scope) error {
	if !scope.matches(inv) {
		return apperr.NotFound("invitation not found")
	}
	if inv.IsUsed() {
		return apperr.New(apperr.KindAlreadyAccepted, "invitation already accepted")
	}
	if inv.IsExpired(s.now()) {
		return apperr.New(apperr.KindExpired, "invitation expired")
	}
	return nil
}

// Accept consumes the invitation and provisions the invited account in one
// transaction. Of several concurrent calls with the same token at most one
// succeeds; the rest see AlreadyAccepted.
func (s *Service) Accept(ctx context.Context, token string, creds Credentials, scope Scope) (Accepted, error) {
	if strings.TrimSpace(token) == "" {
		return Accepted{}, s.rejected(apperr.NotFound("invitation not found"))
	}
	if err := identity.ValidatePassword(creds.Password, creds.Confirmation); err != nil {
		return Accepted{}, s.rejected(err)
	}
	passwordHash, err := s.hasher.Hash(creds.Password)
	if err != nil {
		return Accepted{}, apperr.Wrap(apperr.KindInternal, "hash password", err)
	}
	tokenHash := HashToken(token)

	var result Accepted
	err = s.uow.WithTx(ctx, func(tx repository.Repositories) error {
		inv, err := tx.Invitations.LockInviteByTokenHash(ctx, tokenHash)
		if err != nil {
			return notFoundOr(err, "invitation not found", "lock invitation")
		}
		if err := s.checkUsable(inv, scope); err != nil {
			return err
		}
		company, err := s.activeCompany(ctx, tx, inv.CompanyID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		principal, err := s.provision(ctx, tx, inv, creds, passwordHash, now)
		if err != nil {
			return err
		}

		accepted, err := tx.Invitations.MarkInviteAccepted(ctx, inv.ID, now)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(apperr.KindAlreadyAccepted, "invitation already accepted")
		}
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "mark invitation accepted", err)
		}
		result = Accepted{Invitation: accepted, Company: company, Principal: principal}
		return nil
	})
	if err != nil {
		return Accepted{}, s.rejected(err)
	}

	s.metrics.InvitationsAccepted.WithLabelValues(string(result.Invitation.Kind)).Inc()
	s.logger.Info().
		Str("invitation_id", result.Invitation.ID).
		Str("kind", string(result.Invitation.Kind)).
		Str("company_id", result.Company.ID).
		Str("account_id", result.Principal.AccountID).
		Msg("invitation accepted")
	return result, nil
}

func (s *Service) rejected(err error) error {
	kind := apperr.KindOf(err)
	s.metrics.AcceptRejected.WithLabelValues(string(kind)).Inc()
	if kind == apperr.KindInternal {
		s.logger.Error().Err(err).Msg("invitation accept failed")
	}
	return err
}

func (s *Service) provision(ctx context.Context, tx repository.Repositories, inv models.Invitation, creds Credentials, passwordHash string, now time.Time) (models.Principal, error) {
	name := strings.TrimSpace(creds.Name)
	switch inv.Kind {
	case models.InvitationCustomer:
		return s.provisionCustomer(ctx, tx, inv, name, passwordHash, now)
	case models.InvitationStaff:
		return s.provisionMember(ctx, tx, inv, name, passwordHash)
	case models.InvitationTeam:
		return s.provisionAdmin(ctx, tx, inv, name, creds.Password, passwordHash)
	}
	return models.Principal{}, apperr.New(apperr.KindInternal, "unknown invitation kind")
}

func (s *Service) provisionCustomer(ctx context.Context, tx repository.Repositories, inv models.Invitation, name, passwordHash string, now time.Time) (models.Principal, error) {
	var account models.CustomerAccount
	existing, err := tx.Customers.GetCustomerByEmail(ctx, inv.CompanyID, inv.Email)
	switch {
	case err == nil:
		if existing.CanSignIn() {
			return models.Principal{}, apperr.New(apperr.KindConflict, "account already registered")
		}
		account, err = tx.Customers.ActivateCustomer(ctx, existing.ID, passwordHash, now)
		if err != nil {
			return models.Principal{}, apperr.Wrap(apperr.KindInternal, "activate customer", err)
		}
	case errors.Is(err, repository.ErrNotFound):
		account, err = tx.Customers.CreateCustomer(ctx, models.CustomerAccount{
			CompanyID:    inv.CompanyID,
			Email:        inv.Email,
			Name:         name,
			PasswordHash: &passwordHash,
			PortalAccess: true,
			VerifiedAt:   &now,
		})
		if err != nil {
			return models.Principal{}, conflictOr(err, "create customer")
		}
	default:
		return models.Principal{}, apperr.Wrap(apperr.KindInternal, "load customer", err)
	}

	extra, err := tx.Roles.PrincipalRoleNames(ctx, models.RealmCustomer, account.ID)
	if err != nil {
		return models.Principal{}, apperr.Wrap(apperr.KindInternal, "load customer roles", err)
	}
	return models.Principal{
		Realm:     models.RealmCustomer,
		AccountID: account.ID,
		CompanyID: account.CompanyID,
		Email:     account.Email,
		Roles:     models.NormalizeRoleNames(append([]string{models.RoleCustomer}, extra...)),
	}, nil
}

func (s *Service) provisionMember(ctx context.Context, tx repository.Repositories, inv models.Invitation, name, passwordHash string) (models.Principal, error) {
	role, ok := models.ParseMemberRole(inv.Role)
	if !ok {
		return models.Principal{}, apperr.New(apperr.KindInternal, "invitation carries an invalid member role")
	}

	var member models.CompanyMember
	existing, err := tx.Members.GetMemberByEmail(ctx, inv.CompanyID, inv.Email)
	switch {
	case err == nil:
		if existing.IsActive && existing.PasswordHash != "" {
			return models.Principal{}, apperr.New(apperr.KindConflict, "account already registered")
		}
		member, err = tx.Members.ActivateMember(ctx, existing.ID, role, passwordHash)
		if err != nil {
			return models.Principal{}, apperr.Wrap(apperr.KindInternal, "activate member", err)
		}
	case errors.Is(err, repository.ErrNotFound):
		member, err = tx.Members.CreateMember(ctx, models.CompanyMember{
			CompanyID:    inv.CompanyID,
			Email:        inv.Email,
			Name:         name,
			PasswordHash: passwordHash,
			Role:         role,
			IsActive:     true,
		})
		if err != nil {
			return models.Principal{}, conflictOr(err, "create member")
		}
	default:
		return models.Principal{}, apperr.Wrap(apperr.KindInternal, "load member", err)
	}

	extra, err := tx.Roles.PrincipalRoleNames(ctx, models.RealmStaff, member.ID)
	if err != nil {
		return models.Principal{}, apperr.Wrap(apperr.KindInternal, "load member roles", err)
	}
	return models.Principal{
		Realm:     models.RealmStaff,
		AccountID: member.ID,
		CompanyID: member.CompanyID,
		Email:     member.Email,
		Roles:     models.NormalizeRoleNames(append([]string{string(member.Role)}, extra...)),
		Overrides: member.PermissionOverrides,
	}, nil
}

// provisionAdmin never overwrites an existing admin's credentials: the
// invitee must prove the current password instead.
func (s *Service) provisionAdmin(ctx context.Context, tx repository.Repositories, inv models.Invitation, name, password, passwordHash string) (models.Principal, error) {
	admin, err := tx.Admins.GetAdminByEmail(ctx, inv.Email)
	switch {
	case err == nil:
		if !s.hasher.Compare(admin.PasswordHash, password) || !admin.IsActive {
			return models.Principal{}, apperr.Unauthorized()
		}
	case errors.Is(err, repository.ErrNotFound):
		admin, err = tx.Admins.CreateAdmin(ctx, inv.Email, name, passwordHash)
		if err != nil {
			return models.Principal{}, conflictOr(err, "create admin")
		}
	default:
		return models.Principal{}, apperr.Wrap(apperr.KindInternal, "load admin", err)
	}

	current, err := tx.Admins.GetMembership(ctx, admin.ID, inv.CompanyID)
	switch {
	case err == nil && current.Role == models.RoleOwner:
		// owners are never demoted by an invitation
	case err == nil || errors.Is(err, repository.ErrNotFound):
		if _, err := tx.Admins.UpsertMembership(ctx, admin.ID, inv.CompanyID, inv.Role); err != nil {
			return models.Principal{}, apperr.Wrap(apperr.KindInternal, "grant membership", err)
		}
	default:
		return models.Principal{}, apperr.Wrap(apperr.KindInternal, "load membership", err)
	}

	return models.Principal{
		Realm:     models.RealmAdmin,
		AccountID: admin.ID,
		Email:     admin.Email,
	}, nil
}

// ListByCompany returns every invitation of the company, expired and
// accepted ones included.
func (s *Service) ListByCompany(ctx context.Context, companyID string) ([]models.Invitation, error) {
	invites, err := s.repos.Invitations.ListInvitesByCompany(ctx, companyID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list invitations", err)
	}
	if invites == nil {
		invites = []models.Invitation{}
	}
	return invites, nil
}

// Now exposes the service clock for status rendering.
func (s *Service) Now() time.Time {
	return s.now()
}

func (s *Service) activeCompany(ctx context.Context, repos repository.Repositories, id string) (models.Company, error) {
	if id == "" {
		return models.Company{}, apperr.NotFound("company not found")
	}
	company, err := repos.Companies.GetCompanyByID(ctx, id)
	if err != nil {
		return models.Company{}, notFoundOr(err, "company not found", "load company")
	}
	if !company.IsActive {
		return models.Company{}, apperr.NotFound("company not found")
	}
	return company, nil
}

func notFoundOr(err error, notFound, op string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(notFound)
	}
	return apperr.Wrap(apperr.KindInternal, op, err)
}

func conflictOr(err error, op string) error {
	if errors.Is(err, repository.ErrDuplicate) {
		return apperr.New(apperr.KindConflict, "account already registered")
	}
	return apperr.Wrap(apperr.KindInternal, op, err)
}

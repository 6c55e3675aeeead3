package identity

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/stanstork/opsdesk-api/internal/apperr"
	"github.com/stanstork/opsdesk-api/internal/models"
	"github.com/stanstork/opsdesk-api/internal/repository"
)

type AdminStore interface {
	GetAdminByEmail(ctx context.Context, email string) (models.AdminAccount, error)
	GetAdminByID(ctx context.Context, id string) (models.AdminAccount, error)
}

type MemberStore interface {
	GetMemberByEmail(ctx context.Context, companyID, email string) (models.CompanyMember, error)
	GetMemberByID(ctx context.Context, id string) (models.CompanyMember, error)
}

type CustomerStore interface {
	GetCustomerByEmail(ctx context.Context, companyID, email string) (models.CustomerAccount, error)
	GetCustomerByID(ctx context.Context, id string) (models.CustomerAccount, error)
}

type RoleStore interface {
	PrincipalRoleNames(ctx context.Context, realm models.Realm, principalID string) ([]string, error)
}

// Authenticator verifies credentials against the three realm stores.
type Authenticator struct {
	admins    AdminStore
	members   MemberStore
	customers CustomerStore
	roles     RoleStore
	hasher    *Hasher
	logger    zerolog.Logger
}

func NewAuthenticator(admins AdminStore, members MemberStore, customers CustomerStore, roles RoleStore, hasher *Hasher, logger zerolog.Logger) *Authenticator {
	return &Authenticator{
		admins:    admins,
		members:   members,
		customers: customers,
		roles:     roles,
		hasher:    hasher,
		logger:    logger.With().Str("component", "authenticator").Logger(),
	}
}

// Authenticate verifies identifier and secret in realm. companyID scopes the
// lookup for the staff and customer realms and is ignored for admins.
// Unknown account, inactive account and wrong secret all yield the same
// apperr.Unauthorized error.
func (a *Authenticator) Authenticate(ctx context.Context, realm models.Realm, identifier, secret, companyID string) (models.Principal, error) {
	email := models.NormalizeEmail(identifier)
	if email == "" || secret == "" {
		a.hasher.Burn(secret)
		return models.Principal{}, apperr.Unauthorized()
	}

	switch realm {
	case models.RealmAdmin:
		return a.authenticateAdmin(ctx, email, secret)
	case models.RealmStaff:
		return a.authenticateMember(ctx, companyID, email, secret)
	case models.RealmCustomer:
		return a.authenticateCustomer(ctx, companyID, email, secret)
	}
	return models.Principal{}, apperr.Unauthorized()
}

func (a *Authenticator) authenticateAdmin(ctx context.Context, email, secret string) (models.Principal, error) {
	admin, err := a.admins.GetAdminByEmail(ctx, email)
	if err != nil {
		return models.Principal{}, a.lookupFailure(err, secret)
	}
	if !a.verify(admin.IsActive, admin.PasswordHash, secret) {
		return models.Principal{}, apperr.Unauthorized()
	}
	return adminPrincipal(admin), nil
}

func (a *Authenticator) authenticateMember(ctx context.Context, companyID, email, secret string) (models.Principal, error) {
	if companyID == "" {
		a.hasher.Burn(secret)
		return models.Principal{}, apperr.Unauthorized()
	}
	member, err := a.members.GetMemberByEmail(ctx, companyID, email)
	if err != nil {
		return models.Principal{}, a.lookupFailure(err, secret)
	}
	if !a.verify(member.IsActive, member.PasswordHash, secret) {
		return models.Principal{}, apperr.Unauthorized()
	}
	return a.memberPrincipal(ctx, member)
}

func (a *Authenticator) authenticateCustomer(ctx context.Context, companyID, email, secret string) (models.Principal, error) {
	if companyID == "" {
		a.hasher.Burn(secret)
		return models.Principal{}, apperr.Unauthorized()
	}
	customer, err := a.customers.GetCustomerByEmail(ctx, companyID, email)
	if err != nil {
		return models.Principal{}, a.lookupFailure(err, secret)
	}
	hash := ""
	if customer.PasswordHash != nil {
		hash = *customer.PasswordHash
	}
	if !a.verify(customer.CanSignIn(), hash, secret) {
		return models.Principal{}, apperr.Unauthorized()
	}
	return a.customerPrincipal(ctx, customer)
}

// verify always runs a bcrypt comparison, even for inactive accounts.
func (a *Authenticator) verify(active bool, hash, secret string) bool {
	if hash == "" {
		a.hasher.Burn(secret)
		return false
	}
	ok := a.hasher.Compare(hash, secret)
	return ok && active
}

func (a *Authenticator) lookupFailure(err error, secret string) error {
	a.hasher.Burn(secret)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.Unauthorized()
	}
	a.logger.Error().Err(err).Msg("credential lookup failed")
	return apperr.Wrap(apperr.KindInternal, "credential lookup failed", err)
}

// Principal reloads the account behind a session so that deactivation takes
// effect on the next request. Any mismatch yields apperr.Unauthorized.
func (a *Authenticator) Principal(ctx context.Context, realm models.Realm, accountID, companyID string) (models.Principal, error) {
	switch realm {
	case models.RealmAdmin:
		admin, err := a.admins.GetAdminByID(ctx, accountID)
		if err != nil {
			return models.Principal{}, a.reloadFailure(err)
		}
		if !admin.IsActive {
			return models.Principal{}, apperr.Unauthorized()
		}
		return adminPrincipal(admin), nil

	case models.RealmStaff:
		member, err := a.members.GetMemberByID(ctx, accountID)
		if err != nil {
			return models.Principal{}, a.reloadFailure(err)
		}
		if !member.IsActive || member.CompanyID != companyID {
			return models.Principal{}, apperr.Unauthorized()
		}
		return a.memberPrincipal(ctx, member)

	case models.RealmCustomer:
		customer, err := a.customers.GetCustomerByID(ctx, accountID)
		if err != nil {
			return models.Principal{}, a.reloadFailure(err)
		}
		if !customer.CanSignIn() || customer.CompanyID != companyID {
			return models.Principal{}, apperr.Unauthorized()
		}
		return a.customerPrincipal(ctx, customer)
	}
	return models.Principal{}, apperr.Unauthorized()
}

func (a *Authenticator) reloadFailure(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.Unauthorized()
	}
	return apperr.Wrap(apperr.KindInternal, "load session principal", err)
}

func adminPrincipal(admin models.AdminAccount) models.Principal {
	return models.Principal{
		Realm:     models.RealmAdmin,
		AccountID: admin.ID,
		Email:     admin.Email,
	}
}

func (a *Authenticator) memberPrincipal(ctx context.Context, member models.CompanyMember) (models.Principal, error) {
	extra, err := a.roles.PrincipalRoleNames(ctx, models.RealmStaff, member.ID)
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

func (a *Authenticator) customerPrincipal(ctx context.Context, customer models.CustomerAccount) (models.Principal, error) {
	extra, err := a.roles.PrincipalRoleNames(ctx, models.RealmCustomer, customer.ID)
	if err != nil {
		return models.Principal{}, apperr.Wrap(apperr.KindInternal, "load customer roles", err)
	}
	return models.Principal{
		Realm:     models.RealmCustomer,
		AccountID: customer.ID,
		CompanyID: customer.CompanyID,
		Email:     customer.Email,
		Roles:     models.NormalizeRoleNames(append([]string{models.RoleCustomer}, extra...)),
	}, nil
}

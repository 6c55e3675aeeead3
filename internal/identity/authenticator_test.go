package identity

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stanstork/opsdesk-api/internal/apperr"
	"github.com/stanstork/opsdesk-api/internal/models"
	"github.com/stanstork/opsdesk-api/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeStores struct {
	admins    map[string]models.AdminAccount
	members   map[string]models.CompanyMember
	customers map[string]models.CustomerAccount
	roles     map[string][]string
}

func (f *fakeStores) GetAdminByEmail(_ context.Context, email string) (models.AdminAccount, error) {
	for _, a := range f.admins {
		if a.Email == email {
			return a, nil
		}
	}
	return models.AdminAccount{}, repository.ErrNotFound
}

func (f *fakeStores) GetAdminByID(_ context.Context, id string) (models.AdminAccount, error) {
	if a, ok := f.admins[id]; ok {
		return a, nil
	}
	return models.AdminAccount{}, repository.ErrNotFound
}

func (f *fakeStores) GetMemberByEmail(_ context.Context, companyID, email string) (models.CompanyMember, error) {
	for _, m := range f.members {
		if m.CompanyID == companyID && m.Email == email {
			return m, nil
		}
	}
	return models.CompanyMember{}, repository.ErrNotFound
}

func (f *fakeStores) GetMemberByID(_ context.Context, id string) (models.CompanyMember, error) {
	if m, ok := f.members[id]; ok {
		return m, nil
	}
	return models.CompanyMember{}, repository.ErrNotFound
}

func (f *fakeStores) GetCustomerByEmail(_ context.Context, companyID, email string) (models.CustomerAccount, error) {
	for _, c := range f.customers {
		if c.CompanyID == companyID && c.Email == email {
			return c, nil
		}
	}
	return models.CustomerAccount{}, repository.ErrNotFound
}

func (f *fakeStores) GetCustomerByID(_ context.Context, id string) (models.CustomerAccount, error) {
	if c, ok := f.customers[id]; ok {
		return c, nil
	}
	return models.CustomerAccount{}, repository.ErrNotFound
}

func (f *fakeStores) PrincipalRoleNames(_ context.Context, realm models.Realm, id string) ([]string, error) {
	return f.roles[string(realm)+":"+id], nil
}

func newTestAuthenticator(t *testing.T) (*Authenticator, *fakeStores) {
	t.Helper()
	hasher, err := NewHasher(bcrypt.MinCost)
	require.NoError(t, err)
	hash, err := hasher.Hash("correct-horse")
	require.NoError(t, err)

	stores := &fakeStores{
		admins: map[string]models.AdminAccount{
			"a1": {ID: "a1", Email: "root@ops.test", PasswordHash: hash, IsActive: true},
		},
		members: map[string]models.CompanyMember{
			"m1": {ID: "m1", CompanyID: "c1", Email: "sam@acme.test", PasswordHash: hash, Role: models.MemberRoleManager, IsActive: true,
				PermissionOverrides: map[string]bool{"fleet.manage": false}},
			"m2": {ID: "m2", CompanyID: "c2", Email: "sam@acme.test", PasswordHash: hash, Role: models.MemberRoleViewer, IsActive: true},
			"m3": {ID: "m3", CompanyID: "c1", Email: "gone@acme.test", PasswordHash: hash, Role: models.MemberRoleStaff, IsActive: false},
		},
		customers: map[string]models.CustomerAccount{
			"u1": {ID: "u1", CompanyID: "c1", Email: "buyer@shop.test", PasswordHash: &hash, PortalAccess: true},
			"u2": {ID: "u2", CompanyID: "c1", Email: "nopass@shop.test", PortalAccess: false},
		},
		roles: map[string][]string{"staff:m1": {"driver"}},
	}
	return NewAuthenticator(stores, stores, stores, stores, hasher, zerolog.Nop()), stores
}

func TestAuthenticateStaffBuildsRoles(t *testing.T) {
	auth, _ := newTestAuthenticator(t)

	p, err := auth.Authenticate(context.Background(), models.RealmStaff, " SAM@acme.test ", "correct-horse", "c1")
	require.NoError(t, err)
	assert.Equal(t, "m1", p.AccountID)
	assert.Equal(t, "c1", p.CompanyID)
	assert.Equal(t, []string{"driver", "manager"}, p.Roles)
	assert.Equal(t, map[string]bool{"fleet.manage": false}, p.Overrides)
}

func TestAuthenticateSameEmailDifferentCompany(t *testing.T) {
	auth, _ := newTestAuthenticator(t)

	p, err := auth.Authenticate(context.Background(), models.RealmStaff, "sam@acme.test", "correct-horse", "c2")
	require.NoError(t, err)
	assert.Equal(t, "m2", p.AccountID)
	assert.Equal(t, []string{"viewer"}, p.Roles)
}

func TestAuthenticateFailuresAreIndistinguishable(t *testing.T) {
	auth, _ := newTestAuthenticator(t)
	ctx := context.Background()

	cases := []struct {
		name      string
		realm     models.Realm
		email     string
		secret    string
		companyID string
	}{
		{"unknown staff", models.RealmStaff, "nobody@acme.test", "correct-horse", "c1"},
		{"wrong password", models.RealmStaff, "sam@acme.test", "wrong-horse", "c1"},
		{"inactive member", models.RealmStaff, "gone@acme.test", "correct-horse", "c1"},
		{"wrong company", models.RealmStaff, "sam@acme.test", "correct-horse", "c9"},
		{"missing company", models.RealmStaff, "sam@acme.test", "correct-horse", ""},
		{"customer without password", models.RealmCustomer, "nopass@shop.test", "", "c1"},
		{"customer without portal", models.RealmCustomer, "nopass@shop.test", "anything1", "c1"},
		{"unknown admin", models.RealmAdmin, "ghost@ops.test", "correct-horse", ""},
		{"bad realm", models.Realm("root"), "root@ops.test", "correct-horse", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := auth.Authenticate(ctx, tc.realm, tc.email, tc.secret, tc.companyID)
			require.Error(t, err)
			assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
			assert.Equal(t, "invalid credentials", err.Error())
		})
	}
}

func TestAuthenticateCustomerAndAdmin(t *testing.T) {
	auth, _ := newTestAuthenticator(t)
	ctx := context.Background()

	c, err := auth.Authenticate(ctx, models.RealmCustomer, "buyer@shop.test", "correct-horse", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"customer"}, c.Roles)
	assert.Equal(t, models.RealmCustomer, c.Realm)

	a, err := auth.Authenticate(ctx, models.RealmAdmin, "root@ops.test", "correct-horse", "")
	require.NoError(t, err)
	assert.True(t, a.IsAdmin())
	assert.Empty(t, a.CompanyID)
}

func TestPrincipalReflectsDeactivation(t *testing.T) {
	auth, stores := newTestAuthenticator(t)
	ctx := context.Background()

	p, err := auth.Principal(ctx, models.RealmStaff, "m1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "m1", p.AccountID)

	_, err = auth.Principal(ctx, models.RealmStaff, "m1", "c2")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	m := stores.members["m1"]
	m.IsActive = false
	stores.members["m1"] = m
	_, err = auth.Principal(ctx, models.RealmStaff, "m1", "c1")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = auth.Principal(ctx, models.RealmCustomer, "missing", "c1")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("longenough", "longenough"))

	err := ValidatePassword("short", "short")
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Contains(t, ae.Fields, "password")

	err = ValidatePassword("longenough", "different")
	ae, _ = apperr.As(err)
	assert.Contains(t, ae.Fields, "password_confirmation")

	long := make([]byte, MaxPasswordLength+1)
	for i := range long {
		long[i] = 'a'
	}
	assert.Error(t, ValidatePassword(string(long), string(long)))
}

func TestHasherRejectsBadCost(t *testing.T) {
	_, err := NewHasher(2)
	assert.Error(t, err)
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/opsdesk-api/internal/models"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var inviteCols = []string{"id", "kind", "company_id", "email", "role", "token_hash", "invited_by_realm", "invited_by", "template", "expires_at", "accepted_at", "created_at"}

func TestLockInviteByTokenHash_UsesRowLock(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewInviteRepository(db)

	expires := time.Now().Add(time.Hour)
	rows := sqlmock.NewRows(inviteCols).
		AddRow("inv-1", "customer", "company-a", "jo@example.com", "customer", "hash-1", "staff", "member-1", nil, expires, nil, time.Now())

	mock.ExpectQuery(`FROM ops.invitations WHERE token_hash = \$1 FOR UPDATE`).
		WithArgs("hash-1").
		WillReturnRows(rows)

	invite, err := repo.LockInviteByTokenHash(context.Background(), "hash-1")
	require.NoError(t, err)
	assert.Equal(t, models.InvitationCustomer, invite.Kind)
	assert.Equal(t, models.RealmStaff, invite.InvitedByRealm)
	assert.Nil(t, invite.AcceptedAt)
	assert.Nil(t, invite.Template)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetInviteByTokenHash_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewInviteRepository(db)

	mock.ExpectQuery(`FROM ops.invitations WHERE token_hash = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetInviteByTokenHash(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkInviteAccepted_IsConditional(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewInviteRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE id = $1 AND accepted_at IS NULL`)).
		WithArgs("inv-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(inviteCols))

	_, err := repo.MarkInviteAccepted(context.Background(), "inv-1", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInvite_StoresTemplate(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewInviteRepository(db)

	template := "welcome-driver"
	expires := time.Now().Add(72 * time.Hour)
	mock.ExpectQuery(`INSERT INTO ops.invitations`).
		WithArgs(sqlmock.AnyArg(), "staff", "company-a", "sam@example.com", "driver", "hash-2", "admin", "admin-1", template, expires).
		WillReturnRows(sqlmock.NewRows(inviteCols).
			AddRow("inv-2", "staff", "company-a", "sam@example.com", "driver", "hash-2", "admin", "admin-1", template, expires, nil, time.Now()))

	invite, err := repo.CreateInvite(context.Background(), models.Invitation{
		Kind:           models.InvitationStaff,
		CompanyID:      "company-a",
		Email:          "sam@example.com",
		Role:           "driver",
		TokenHash:      "hash-2",
		InvitedByRealm: models.RealmAdmin,
		InvitedBy:      "admin-1",
		Template:       &template,
		ExpiresAt:      expires,
	})
	require.NoError(t, err)
	require.NotNil(t, invite.Template)
	assert.Equal(t, template, *invite.Template)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMember_DuplicateEmail(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewMemberRepository(db)

	mock.ExpectQuery(`INSERT INTO ops.company_members`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "company_members_company_email_key"})

	_, err := repo.CreateMember(context.Background(), models.CompanyMember{
		CompanyID:    "company-a",
		Email:        "ops@example.com",
		PasswordHash: "hash",
		Role:         models.MemberRoleStaff,
		IsActive:     true,
	})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Contains(t, err.Error(), "company_members_company_email_key")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMemberByEmail_ScopedToCompany(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewMemberRepository(db)

	cols := []string{"id", "company_id", "email", "name", "password_hash", "role", "is_active", "permission_overrides", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE company_id = $1 AND lower(email) = lower($2)`)).
		WithArgs("company-b", "ops@example.com").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("m-1", "company-b", "ops@example.com", "Ops", "hash", "manager", true, []byte(`{"fleet.manage":true}`), time.Now(), time.Now()))

	member, err := repo.GetMemberByEmail(context.Background(), "company-b", "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, "company-b", member.CompanyID)
	assert.Equal(t, models.MemberRoleManager, member.Role)
	assert.Equal(t, map[string]bool{"fleet.manage": true}, member.PermissionOverrides)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCustomerByEmail_NullablePassword(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCustomerRepository(db)

	cols := []string{"id", "company_id", "email", "name", "password_hash", "portal_access", "verified_at", "created_at", "updated_at"}
	mock.ExpectQuery(`FROM ops.customer_accounts`).
		WithArgs("company-a", "buyer@example.com").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("c-1", "company-a", "buyer@example.com", "Buyer", nil, false, nil, time.Now(), time.Now()))

	customer, err := repo.GetCustomerByEmail(context.Background(), "company-a", "buyer@example.com")
	require.NoError(t, err)
	assert.Nil(t, customer.PasswordHash)
	assert.Nil(t, customer.VerifiedAt)
	assert.False(t, customer.CanSignIn())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateMember_Missing(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewMemberRepository(db)

	mock.ExpectExec(`UPDATE ops.company_members SET is_active = FALSE`).
		WithArgs("m-404").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeactivateMember(context.Background(), "m-404")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveCompanyBySlug(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCompanyRepository(db)

	cols := []string{"id", "slug", "name", "is_active", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE slug = $1 AND is_active`)).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("company-a", "acme", "Acme Waste", true, time.Now(), time.Now()))

	company, err := repo.GetActiveCompanyBySlug(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "company-a", company.ID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreWithTx_CommitsOnSuccess(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE ops.companies SET is_active`).
		WithArgs("company-a", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(repos Repositories) error {
		return repos.Companies.SetCompanyActive(context.Background(), "company-a", false)
	})
	require.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreWithTx_RollsBackOnError(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewStore(db)

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(Repositories) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncRolePermissions_GrantsThenRevokes(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRoleRepository(db)

	mock.ExpectExec(`INSERT INTO ops.role_permissions`).
		WithArgs("role-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM ops.role_permissions`).
		WithArgs("role-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SyncRolePermissions(context.Background(), "role-1", []string{"members.view", "dashboard.view"})
	require.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRolePermissions_IncludesEmptyRoles(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRoleRepository(db)

	mock.ExpectQuery(`FROM ops.roles r`).
		WillReturnRows(sqlmock.NewRows([]string{"role", "permission"}).
			AddRow("customer", "portal.view").
			AddRow("legacy", nil).
			AddRow("viewer", "dashboard.view").
			AddRow("viewer", "members.view"))

	mapping, err := repo.RolePermissions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"customer": {"portal.view"},
		"legacy":   {},
		"viewer":   {"dashboard.view", "members.view"},
	}, mapping)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferPrincipalRoles(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRoleRepository(db)

	mock.ExpectExec(`INSERT INTO ops.principal_roles`).
		WithArgs("legacy-id", "canonical-id").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE FROM ops.principal_roles WHERE role_id = \$1`).
		WithArgs("legacy-id").
		WillReturnResult(sqlmock.NewResult(0, 4))

	moved, err := repo.TransferPrincipalRoles(context.Background(), "legacy-id", "canonical-id")
	require.NoError(t, err)
	assert.Equal(t, int64(3), moved)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignRole_UnknownRole(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRoleRepository(db)

	mock.ExpectExec(`INSERT INTO ops.principal_roles`).
		WithArgs("staff", "m-1", "pilot").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM ops.roles WHERE name = $1`)).
		WithArgs("pilot").
		WillReturnError(sql.ErrNoRows)

	err := repo.AssignRole(context.Background(), models.RealmStaff, "m-1", "pilot")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignRole_AlreadyLinked(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRoleRepository(db)

	mock.ExpectExec(`INSERT INTO ops.principal_roles`).
		WithArgs("staff", "m-1", "manager").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM ops.roles WHERE name = $1`)).
		WithArgs("manager").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("role-manager"))

	require.NoError(t, repo.AssignRole(context.Background(), models.RealmStaff, "m-1", "manager"))
	require.NoError(t, mock.ExpectationsWereMet())
}

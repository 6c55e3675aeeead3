package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/stanstork/opsdesk-api/internal/models"
)

type AdminRepository interface {
	CreateAdmin(ctx context.Context, email, name, passwordHash string) (models.AdminAccount, error)
	GetAdminByEmail(ctx context.Context, email string) (models.AdminAccount, error)
	GetAdminByID(ctx context.Context, id string) (models.AdminAccount, error)
	UpsertMembership(ctx context.Context, adminID, companyID, role string) (models.AdminMembership, error)
	GetMembership(ctx context.Context, adminID, companyID string) (models.AdminMembership, error)
	ListMemberships(ctx context.Context, adminID string) ([]models.AdminMembership, error)
}

type adminRepository struct {
	db DBTX
}

func NewAdminRepository(db DBTX) AdminRepository {
	return &adminRepository{db: db}
}

const adminColumns = `id, email, name, password_hash, is_active, created_at, updated_at`

func scanAdmin(row interface{ Scan(...interface{}) error }) (models.AdminAccount, error) {
	var a models.AdminAccount
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *adminRepository) CreateAdmin(ctx context.Context, email, name, passwordHash string) (models.AdminAccount, error) {
	const query = `
		INSERT INTO ops.admin_accounts (id, email, name, password_hash, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING ` + adminColumns

	admin, err := scanAdmin(r.db.QueryRowContext(ctx, query, uuid.NewString(), email, name, passwordHash))
	if err != nil {
		return models.AdminAccount{}, translate(err, "insert admin")
	}
	return admin, nil
}

func (r *adminRepository) GetAdminByEmail(ctx context.Context, email string) (models.AdminAccount, error) {
	const query = `SELECT ` + adminColumns + ` FROM ops.admin_accounts WHERE lower(email) = lower($1)`

	admin, err := scanAdmin(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		return models.AdminAccount{}, translate(err, "get admin by email")
	}
	return admin, nil
}

func (r *adminRepository) GetAdminByID(ctx context.Context, id string) (models.AdminAccount, error) {
	const query = `SELECT ` + adminColumns + ` FROM ops.admin_accounts WHERE id = $1`

	admin, err := scanAdmin(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return models.AdminAccount{}, translate(err, "get admin")
	}
	return admin, nil
}

func (r *adminRepository) UpsertMembership(ctx context.Context, adminID, companyID, role string) (models.AdminMembership, error) {
	const query = `
		INSERT INTO ops.admin_company_memberships (admin_id, company_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (admin_id, company_id) DO UPDATE SET role = EXCLUDED.role
		RETURNING admin_id, company_id, role, created_at`

	var m models.AdminMembership
	err := r.db.QueryRowContext(ctx, query, adminID, companyID, role).Scan(&m.AdminID, &m.CompanyID, &m.Role, &m.CreatedAt)
	if err != nil {
		return models.AdminMembership{}, translate(err, "upsert admin membership")
	}
	return m, nil
}

func (r *adminRepository) GetMembership(ctx context.Context, adminID, companyID string) (models.AdminMembership, error) {
	const query = `
		SELECT admin_id, company_id, role, created_at
		FROM ops.admin_company_memberships
		WHERE admin_id = $1 AND company_id = $2`

	var m models.AdminMembership
	err := r.db.QueryRowContext(ctx, query, adminID, companyID).Scan(&m.AdminID, &m.CompanyID, &m.Role, &m.CreatedAt)
	if err != nil {
		return models.AdminMembership{}, translate(err, "get admin membership")
	}
	return m, nil
}

func (r *adminRepository) ListMemberships(ctx context.Context, adminID string) ([]models.AdminMembership, error) {
	const query = `
		SELECT admin_id, company_id, role, created_at
		FROM ops.admin_company_memberships
		WHERE admin_id = $1
		ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, adminID)
	if err != nil {
		return nil, translate(err, "list admin memberships")
	}
	defer rows.Close()

	var memberships []models.AdminMembership
	for rows.Next() {
		var m models.AdminMembership
		if err := rows.Scan(&m.AdminID, &m.CompanyID, &m.Role, &m.CreatedAt); err != nil {
			return nil, translate(err, "scan admin membership")
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "list admin memberships")
	}
	return memberships, nil
}

package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/stanstork/opsdesk-api/internal/models"
)

type CustomerRepository interface {
	CreateCustomer(ctx context.Context, customer models.CustomerAccount) (models.CustomerAccount, error)
	GetCustomerByEmail(ctx context.Context, companyID, email string) (models.CustomerAccount, error)
	GetCustomerByID(ctx context.Context, id string) (models.CustomerAccount, error)
	ListCustomersByCompany(ctx context.Context, companyID string) ([]models.CustomerAccount, error)
	ActivateCustomer(ctx context.Context, id, passwordHash string, verifiedAt time.Time) (models.CustomerAccount, error)
	SetPortalAccess(ctx context.Context, id string, enabled bool) error
}

type customerRepository struct {
	db DBTX
}

func NewCustomerRepository(db DBTX) CustomerRepository {
	return &customerRepository{db: db}
}

const customerColumns = `id, company_id, email, name, password_hash, portal_access, verified_at, created_at, updated_at`

func scanCustomer(row interface{ Scan(...interface{}) error }) (models.CustomerAccount, error) {
	var (
		c        models.CustomerAccount
		hash     sql.NullString
		verified sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.CompanyID, &c.Email, &c.Name, &hash, &c.PortalAccess, &verified, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return models.CustomerAccount{}, err
	}
	if hash.Valid {
		c.PasswordHash = &hash.String
	}
	if verified.Valid {
		c.VerifiedAt = &verified.Time
	}
	return c, nil
}

func (r *customerRepository) CreateCustomer(ctx context.Context, customer models.CustomerAccount) (models.CustomerAccount, error) {
	const query = `
		INSERT INTO ops.customer_accounts (id, company_id, email, name, password_hash, portal_access, verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + customerColumns

	var hash interface{}
	if customer.PasswordHash != nil {
		hash = *customer.PasswordHash
	}
	var verified interface{}
	if customer.VerifiedAt != nil {
		verified = *customer.VerifiedAt
	}

	created, err := scanCustomer(r.db.QueryRowContext(ctx, query,
		uuid.NewString(),
		customer.CompanyID,
		customer.Email,
		customer.Name,
		hash,
		customer.PortalAccess,
		verified,
	))
	if err != nil {
		return models.CustomerAccount{}, translate(err, "insert customer")
	}
	return created, nil
}

func (r *customerRepository) GetCustomerByEmail(ctx context.Context, companyID, email string) (models.CustomerAccount, error) {
	const query = `
		SELECT ` + customerColumns + `
		FROM ops.customer_accounts
		WHERE company_id = $1 AND lower(email) = lower($2)`

	customer, err := scanCustomer(r.db.QueryRowContext(ctx, query, companyID, email))
	if err != nil {
		return models.CustomerAccount{}, translate(err, "get customer by email")
	}
	return customer, nil
}

// GetCustomerByID is not company filtered: callers authorize against the
// returned CompanyID.
func (r *customerRepository) GetCustomerByID(ctx context.Context, id string) (models.CustomerAccount, error) {
	const query = `SELECT ` + customerColumns + ` FROM ops.customer_accounts WHERE id = $1`

	customer, err := scanCustomer(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return models.CustomerAccount{}, translate(err, "get customer")
	}
	return customer, nil
}

func (r *customerRepository) ListCustomersByCompany(ctx context.Context, companyID string) ([]models.CustomerAccount, error) {
	const query = `
		SELECT ` + customerColumns + `
		FROM ops.customer_accounts
		WHERE company_id = $1
		ORDER BY email`

	rows, err := r.db.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, translate(err, "list customers")
	}
	defer rows.Close()

	var customers []models.CustomerAccount
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, translate(err, "scan customer")
		}
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "list customers")
	}
	return customers, nil
}

func (r *customerRepository) ActivateCustomer(ctx context.Context, id, passwordHash string, verifiedAt time.Time) (models.CustomerAccount, error) {
	const query = `
		UPDATE ops.customer_accounts
		SET password_hash = $2, portal_access = TRUE, verified_at = COALESCE(verified_at, $3), updated_at = now()
		WHERE id = $1
		RETURNING ` + customerColumns

	customer, err := scanCustomer(r.db.QueryRowContext(ctx, query, id, passwordHash, verifiedAt))
	if err != nil {
		return models.CustomerAccount{}, translate(err, "activate customer")
	}
	return customer, nil
}

func (r *customerRepository) SetPortalAccess(ctx context.Context, id string, enabled bool) error {
	const query = `UPDATE ops.customer_accounts SET portal_access = $2, updated_at = now() WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, enabled)
	if err != nil {
		return translate(err, "update portal access")
	}
	return expectAffected(res, "update portal access")
}

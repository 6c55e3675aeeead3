package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/stanstork/opsdesk-api/internal/models"
)

type CompanyRepository interface {
	CreateCompany(ctx context.Context, slug, name string) (models.Company, error)
	GetCompanyByID(ctx context.Context, id string) (models.Company, error)
	GetActiveCompanyBySlug(ctx context.Context, slug string) (models.Company, error)
	GetCompanyBySlug(ctx context.Context, slug string) (models.Company, error)
	ListCompanies(ctx context.Context) ([]models.Company, error)
	SetCompanyActive(ctx context.Context, id string, active bool) error
	DeleteCompany(ctx context.Context, id string) error
}

type companyRepository struct {
	db DBTX
}

func NewCompanyRepository(db DBTX) CompanyRepository {
	return &companyRepository{db: db}
}

const companyColumns = `id, slug, name, is_active, created_at, updated_at`

func scanCompany(row interface{ Scan(...interface{}) error }) (models.Company, error) {
	var c models.Company
	err := row.Scan(&c.ID, &c.Slug, &c.Name, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *companyRepository) CreateCompany(ctx context.Context, slug, name string) (models.Company, error) {
	const query = `
		INSERT INTO ops.companies (id, slug, name, is_active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING ` + companyColumns

	company, err := scanCompany(r.db.QueryRowContext(ctx, query, uuid.NewString(), slug, name))
	if err != nil {
		return models.Company{}, translate(err, "insert company")
	}
	return company, nil
}

func (r *companyRepository) GetCompanyByID(ctx context.Context, id string) (models.Company, error) {
	const query = `SELECT ` + companyColumns + ` FROM ops.companies WHERE id = $1`

	company, err := scanCompany(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return models.Company{}, translate(err, "get company")
	}
	return company, nil
}

func (r *companyRepository) GetActiveCompanyBySlug(ctx context.Context, slug string) (models.Company, error) {
	const query = `SELECT ` + companyColumns + ` FROM ops.companies WHERE slug = $1 AND is_active`

	company, err := scanCompany(r.db.QueryRowContext(ctx, query, slug))
	if err != nil {
		return models.Company{}, translate(err, "get company by slug")
	}
	return company, nil
}

func (r *companyRepository) GetCompanyBySlug(ctx context.Context, slug string) (models.Company, error) {
	const query = `SELECT ` + companyColumns + ` FROM ops.companies WHERE slug = $1`

	company, err := scanCompany(r.db.QueryRowContext(ctx, query, slug))
	if err != nil {
		return models.Company{}, translate(err, "get company by slug")
	}
	return company, nil
}

func (r *companyRepository) ListCompanies(ctx context.Context) ([]models.Company, error) {
	const query = `SELECT ` + companyColumns + ` FROM ops.companies ORDER BY slug`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, translate(err, "list companies")
	}
	defer rows.Close()

	var companies []models.Company
	for rows.Next() {
		company, err := scanCompany(rows)
		if err != nil {
			return nil, translate(err, "scan company")
		}
		companies = append(companies, company)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "list companies")
	}
	return companies, nil
}

func (r *companyRepository) SetCompanyActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE ops.companies SET is_active = $2, updated_at = now() WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, active)
	if err != nil {
		return translate(err, "update company")
	}
	return expectAffected(res, "update company")
}

// DeleteCompany removes the company; scoped rows go with it through ON DELETE CASCADE.
func (r *companyRepository) DeleteCompany(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ops.companies WHERE id = $1`, id)
	if err != nil {
		return translate(err, "delete company")
	}
	return expectAffected(res, "delete company")
}

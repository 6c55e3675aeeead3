package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stanstork/opsdesk-api/internal/models"
)

type MemberRepository interface {
	CreateMember(ctx context.Context, member models.CompanyMember) (models.CompanyMember, error)
	GetMemberByEmail(ctx context.Context, companyID, email string) (models.CompanyMember, error)
	GetMemberByID(ctx context.Context, id string) (models.CompanyMember, error)
	ListMembersByCompany(ctx context.Context, companyID string) ([]models.CompanyMember, error)
	ActivateMember(ctx context.Context, id string, role models.MemberRole, passwordHash string) (models.CompanyMember, error)
	DeactivateMember(ctx context.Context, id string) error
}

type memberRepository struct {
	db DBTX
}

func NewMemberRepository(db DBTX) MemberRepository {
	return &memberRepository{db: db}
}

const memberColumns = `id, company_id, email, name, password_hash, role, is_active, permission_overrides, created_at, updated_at`

func scanMember(row interface{ Scan(...interface{}) error }) (models.CompanyMember, error) {
	var (
		m         models.CompanyMember
		role      string
		overrides []byte
	)
	if err := row.Scan(&m.ID, &m.CompanyID, &m.Email, &m.Name, &m.PasswordHash, &role, &m.IsActive, &overrides, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return models.CompanyMember{}, err
	}
	m.Role = models.MemberRole(role)
	if len(overrides) > 0 {
		if err := json.Unmarshal(overrides, &m.PermissionOverrides); err != nil {
			return models.CompanyMember{}, errors.Wrap(err, "decode permission overrides")
		}
	}
	return m, nil
}

func encodeOverrides(overrides map[string]bool) (interface{}, error) {
	if len(overrides) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(overrides)
	if err != nil {
		return nil, errors.Wrap(err, "encode permission overrides")
	}
	return string(raw), nil
}

func (r *memberRepository) CreateMember(ctx context.Context, member models.CompanyMember) (models.CompanyMember, error) {
	const query = `
		INSERT INTO ops.company_members (id, company_id, email, name, password_hash, role, is_active, permission_overrides)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + memberColumns

	overrides, err := encodeOverrides(member.PermissionOverrides)
	if err != nil {
		return models.CompanyMember{}, err
	}

	created, err := scanMember(r.db.QueryRowContext(ctx, query,
		uuid.NewString(),
		member.CompanyID,
		member.Email,
		member.Name,
		member.PasswordHash,
		string(member.Role),
		member.IsActive,
		overrides,
	))
	if err != nil {
		return models.CompanyMember{}, translate(err, "insert member")
	}
	return created, nil
}

func (r *memberRepository) GetMemberByEmail(ctx context.Context, companyID, email string) (models.CompanyMember, error) {
	const query = `
		SELECT ` + memberColumns + `
		FROM ops.company_members
		WHERE company_id = $1 AND lower(email) = lower($2)`

	member, err := scanMember(r.db.QueryRowContext(ctx, query, companyID, email))
	if err != nil {
		return models.CompanyMember{}, translate(err, "get member by email")
	}
	return member, nil
}

// GetMemberByID is deliberately not company filtered: callers authorize
// against the returned CompanyID.
func (r *memberRepository) GetMemberByID(ctx context.Context, id string) (models.CompanyMember, error) {
	const query = `SELECT ` + memberColumns + ` FROM ops.company_members WHERE id = $1`

	member, err := scanMember(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return models.CompanyMember{}, translate(err, "get member")
	}
	return member, nil
}

func (r *memberRepository) ListMembersByCompany(ctx context.Context, companyID string) ([]models.CompanyMember, error) {
	const query = `
		SELECT ` + memberColumns + `
		FROM ops.company_members
		WHERE company_id = $1
		ORDER BY email`

	rows, err := r.db.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, translate(err, "list members")
	}
	defer rows.Close()

	var members []models.CompanyMember
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, translate(err, "scan member")
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "list members")
	}
	return members, nil
}

func (r *memberRepository) ActivateMember(ctx context.Context, id string, role models.MemberRole, passwordHash string) (models.CompanyMember, error) {
	const query = `
		UPDATE ops.company_members
		SET is_active = TRUE, role = $2, password_hash = $3, updated_at = now()
		WHERE id = $1
		RETURNING ` + memberColumns

	member, err := scanMember(r.db.QueryRowContext(ctx, query, id, string(role), passwordHash))
	if err != nil {
		return models.CompanyMember{}, translate(err, "activate member")
	}
	return member, nil
}

func (r *memberRepository) DeactivateMember(ctx context.Context, id string) error {
	const query = `UPDATE ops.company_members SET is_active = FALSE, updated_at = now() WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return translate(err, "deactivate member")
	}
	return expectAffected(res, "deactivate member")
}

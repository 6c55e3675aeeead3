package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/stanstork/opsdesk-api/internal/models"
)

type InviteRepository interface {
	CreateInvite(ctx context.Context, invite models.Invitation) (models.Invitation, error)
	GetInviteByTokenHash(ctx context.Context, tokenHash string) (models.Invitation, error)
	// LockInviteByTokenHash must run inside a transaction; it holds the row
	// lock until commit or rollback.
	LockInviteByTokenHash(ctx context.Context, tokenHash string) (models.Invitation, error)
	MarkInviteAccepted(ctx context.Context, inviteID string, acceptedAt time.Time) (models.Invitation, error)
	ListInvitesByCompany(ctx context.Context, companyID string) ([]models.Invitation, error)
}

type inviteRepository struct {
	db DBTX
}

func NewInviteRepository(db DBTX) InviteRepository {
	return &inviteRepository{db: db}
}

const inviteColumns = `id, kind, company_id, email, role, token_hash, invited_by_realm, invited_by, template, expires_at, accepted_at, created_at`

func scanInvite(row interface{ Scan(...interface{}) error }) (models.Invitation, error) {
	var (
		invite   models.Invitation
		kind     string
		realm    string
		template sql.NullString
		accepted sql.NullTime
	)
	err := row.Scan(
		&invite.ID,
		&kind,
		&invite.CompanyID,
		&invite.Email,
		&invite.Role,
		&invite.TokenHash,
		&realm,
		&invite.InvitedBy,
		&template,
		&invite.ExpiresAt,
		&accepted,
		&invite.CreatedAt,
	)
	if err != nil {
		return models.Invitation{}, err
	}

	invite.Kind = models.InvitationKind(kind)
	invite.InvitedByRealm = models.Realm(realm)
	if template.Valid {
		invite.Template = &template.String
	}
	if accepted.Valid {
		invite.AcceptedAt = &accepted.Time
	}
	return invite, nil
}

func (r *inviteRepository) CreateInvite(ctx context.Context, invite models.Invitation) (models.Invitation, error) {
	const query = `
		INSERT INTO ops.invitations (id, kind, company_id, email, role, token_hash, invited_by_realm, invited_by, template, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + inviteColumns

	var template interface{}
	if invite.Template != nil && *invite.Template != "" {
		template = *invite.Template
	}

	created, err := scanInvite(r.db.QueryRowContext(ctx, query,
		uuid.NewString(),
		string(invite.Kind),
		invite.CompanyID,
		invite.Email,
		invite.Role,
		invite.TokenHash,
		string(invite.InvitedByRealm),
		invite.InvitedBy,
		template,
		invite.ExpiresAt,
	))
	if err != nil {
		return models.Invitation{}, translate(err, "insert invitation")
	}
	return created, nil
}

func (r *inviteRepository) GetInviteByTokenHash(ctx context.Context, tokenHash string) (models.Invitation, error) {
	const query = `SELECT ` + inviteColumns + ` FROM ops.invitations WHERE token_hash = $1`

	invite, err := scanInvite(r.db.QueryRowContext(ctx, query, tokenHash))
	if err != nil {
		return models.Invitation{}, translate(err, "get invitation")
	}
	return invite, nil
}

func (r *inviteRepository) LockInviteByTokenHash(ctx context.Context, tokenHash string) (models.Invitation, error) {
	const query = `SELECT ` + inviteColumns + ` FROM ops.invitations WHERE token_hash = $1 FOR UPDATE`

	invite, err := scanInvite(r.db.QueryRowContext(ctx, query, tokenHash))
	if err != nil {
		return models.Invitation{}, translate(err, "lock invitation")
	}
	return invite, nil
}

// MarkInviteAccepted is a conditional write: it only succeeds while
// accepted_at is still null and returns ErrNotFound otherwise.
func (r *inviteRepository) MarkInviteAccepted(ctx context.Context, inviteID string, acceptedAt time.Time) (models.Invitation, error) {
	const query = `
		UPDATE ops.invitations
		SET accepted_at = $2
		WHERE id = $1 AND accepted_at IS NULL
		RETURNING ` + inviteColumns

	invite, err := scanInvite(r.db.QueryRowContext(ctx, query, inviteID, acceptedAt))
	if err != nil {
		return models.Invitation{}, translate(err, "mark invitation accepted")
	}
	return invite, nil
}

func (r *inviteRepository) ListInvitesByCompany(ctx context.Context, companyID string) ([]models.Invitation, error) {
	const query = `
		SELECT ` + inviteColumns + `
		FROM ops.invitations
		WHERE company_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, translate(err, "list invitations")
	}
	defer rows.Close()

	var invites []models.Invitation
	for rows.Next() {
		invite, err := scanInvite(rows)
		if err != nil {
			return nil, translate(err, "scan invitation")
		}
		invites = append(invites, invite)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "list invitations")
	}
	return invites, nil
}

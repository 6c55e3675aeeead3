package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stanstork/opsdesk-api/internal/models"
)

// RoleRepository persists the role/permission catalog and principal role links.
type RoleRepository interface {
	EnsurePermission(ctx context.Context, name string) error
	EnsureRole(ctx context.Context, name string) (string, error)
	FindRoleID(ctx context.Context, name string) (string, error)
	SyncRolePermissions(ctx context.Context, roleID string, permissions []string) error
	TransferPrincipalRoles(ctx context.Context, fromRoleID, toRoleID string) (int64, error)
	RenameAssignedRole(ctx context.Context, from, to string) (int64, error)
	DeleteRole(ctx context.Context, roleID string) error
	RolePermissions(ctx context.Context) (map[string][]string, error)
	AssignRole(ctx context.Context, realm models.Realm, principalID, roleName string) error
	PrincipalRoleNames(ctx context.Context, realm models.Realm, principalID string) ([]string, error)
}

type roleRepository struct {
	db DBTX
}

func NewRoleRepository(db DBTX) RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) EnsurePermission(ctx context.Context, name string) error {
	const query = `
		INSERT INTO ops.permissions (id, name)
		VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), name); err != nil {
		return translate(err, "ensure permission")
	}
	return nil
}

// EnsureRole creates the role when missing and returns its id either way.
func (r *roleRepository) EnsureRole(ctx context.Context, name string) (string, error) {
	const insert = `
		INSERT INTO ops.roles (id, name)
		VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, insert, uuid.NewString(), name); err != nil {
		return "", translate(err, "ensure role")
	}
	return r.FindRoleID(ctx, name)
}

func (r *roleRepository) FindRoleID(ctx context.Context, name string) (string, error) {
	var id string
	if err := r.db.QueryRowContext(ctx, `SELECT id FROM ops.roles WHERE name = $1`, name).Scan(&id); err != nil {
		return "", translate(err, "find role")
	}
	return id, nil
}

// SyncRolePermissions makes the role's permission set equal to permissions.
func (r *roleRepository) SyncRolePermissions(ctx context.Context, roleID string, permissions []string) error {
	const grant = `
		INSERT INTO ops.role_permissions (role_id, permission_id)
		SELECT $1, p.id FROM ops.permissions p WHERE p.name = ANY($2)
		ON CONFLICT (role_id, permission_id) DO NOTHING`
	const revoke = `
		DELETE FROM ops.role_permissions rp
		USING ops.permissions p
		WHERE rp.permission_id = p.id AND rp.role_id = $1 AND NOT (p.name = ANY($2))`

	names := pq.Array(permissions)
	if _, err := r.db.ExecContext(ctx, grant, roleID, names); err != nil {
		return translate(err, "grant role permissions")
	}
	if _, err := r.db.ExecContext(ctx, revoke, roleID, names); err != nil {
		return translate(err, "revoke role permissions")
	}
	return nil
}

// TransferPrincipalRoles moves every principal link from one role to another,
// skipping principals that already hold the target role.
func (r *roleRepository) TransferPrincipalRoles(ctx context.Context, fromRoleID, toRoleID string) (int64, error) {
	const copyLinks = `
		INSERT INTO ops.principal_roles (realm, principal_id, role_id)
		SELECT realm, principal_id, $2 FROM ops.principal_roles WHERE role_id = $1
		ON CONFLICT (realm, principal_id, role_id) DO NOTHING`
	const dropLinks = `DELETE FROM ops.principal_roles WHERE role_id = $1`

	res, err := r.db.ExecContext(ctx, copyLinks, fromRoleID, toRoleID)
	if err != nil {
		return 0, translate(err, "copy principal roles")
	}
	moved, err := res.RowsAffected()
	if err != nil {
		return 0, translate(err, "copy principal roles")
	}
	if _, err := r.db.ExecContext(ctx, dropLinks, fromRoleID); err != nil {
		return 0, translate(err, "drop principal roles")
	}
	return moved, nil
}

// RenameAssignedRole rewrites role labels stored on member and admin membership rows.
func (r *roleRepository) RenameAssignedRole(ctx context.Context, from, to string) (int64, error) {
	var total int64
	for _, query := range []string{
		`UPDATE ops.company_members SET role = $2, updated_at = now() WHERE role = $1`,
		`UPDATE ops.admin_company_memberships SET role = $2 WHERE role = $1`,
	} {
		res, err := r.db.ExecContext(ctx, query, from, to)
		if err != nil {
			return 0, translate(err, "rename assigned role")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, translate(err, "rename assigned role")
		}
		total += n
	}
	return total, nil
}

func (r *roleRepository) DeleteRole(ctx context.Context, roleID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ops.roles WHERE id = $1`, roleID)
	if err != nil {
		return translate(err, "delete role")
	}
	return expectAffected(res, "delete role")
}

// RolePermissions returns every role with its sorted permission names.
// Roles without permissions map to an empty slice.
func (r *roleRepository) RolePermissions(ctx context.Context) (map[string][]string, error) {
	const query = `
		SELECT r.name, p.name
		FROM ops.roles r
		LEFT JOIN ops.role_permissions rp ON rp.role_id = r.id
		LEFT JOIN ops.permissions p ON p.id = rp.permission_id
		ORDER BY r.name, p.name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, translate(err, "list role permissions")
	}
	defer rows.Close()

	mapping := make(map[string][]string)
	for rows.Next() {
		var (
			role string
			perm *string
		)
		if err := rows.Scan(&role, &perm); err != nil {
			return nil, translate(err, "scan role permission")
		}
		if _, ok := mapping[role]; !ok {
			mapping[role] = []string{}
		}
		if perm != nil {
			mapping[role] = append(mapping[role], *perm)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "list role permissions")
	}
	return mapping, nil
}

func (r *roleRepository) AssignRole(ctx context.Context, realm models.Realm, principalID, roleName string) error {
	const query = `
		INSERT INTO ops.principal_roles (realm, principal_id, role_id)
		SELECT $1, $2, id FROM ops.roles WHERE name = $3
		ON CONFLICT (realm, principal_id, role_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query, string(realm), principalID, roleName)
	if err != nil {
		return translate(err, "assign role")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return translate(err, "assign role")
	}
	if n == 0 {
		// Either the role does not exist or the link already does.
		if _, err := r.FindRoleID(ctx, roleName); err != nil {
			return err
		}
	}
	return nil
}

func (r *roleRepository) PrincipalRoleNames(ctx context.Context, realm models.Realm, principalID string) ([]string, error) {
	const query = `
		SELECT r.name
		FROM ops.principal_roles pr
		JOIN ops.roles r ON r.id = pr.role_id
		WHERE pr.realm = $1 AND pr.principal_id = $2
		ORDER BY r.name`

	rows, err := r.db.QueryContext(ctx, query, string(realm), principalID)
	if err != nil {
		return nil, translate(err, "list principal roles")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, translate(err, "scan principal role")
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "list principal roles")
	}
	return names, nil
}

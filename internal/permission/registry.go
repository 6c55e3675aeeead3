package permission

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/opsdesk-api/internal/repository"
)

// TxRunner runs fn against repositories bound to one transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repository.Repositories) error) error
}

// Report summarizes one reconciliation run.
type Report struct {
	Permissions      int      `json:"permissions"`
	Roles            int      `json:"roles"`
	MigratedLegacy   []string `json:"migrated_legacy"`
	LinksTransferred int64    `json:"links_transferred"`
	LabelsRenamed    int64    `json:"labels_renamed"`
}

// Registry keeps the persisted role catalog in line with a Catalog.
type Registry struct {
	tx      TxRunner
	roles   repository.RoleRepository
	catalog Catalog
	logger  zerolog.Logger
}

func NewRegistry(tx TxRunner, roles repository.RoleRepository, catalog Catalog, logger zerolog.Logger) *Registry {
	return &Registry{
		tx:      tx,
		roles:   roles,
		catalog: catalog,
		logger:  logger.With().Str("component", "permission_registry").Logger(),
	}
}

func (r *Registry) Catalog() Catalog {
	return r.catalog
}

// Reconcile creates missing permissions and roles, syncs each declared role's
// permission set and folds legacy roles into their canonical names. Running
// it again against the same catalog changes nothing.
func (r *Registry) Reconcile(ctx context.Context) (Report, error) {
	var report Report
	err := r.tx.WithTx(ctx, func(repos repository.Repositories) error {
		report = Report{MigratedLegacy: []string{}}
		for _, perm := range r.catalog.Permissions() {
			if err := repos.Roles.EnsurePermission(ctx, perm); err != nil {
				return errors.Wrapf(err, "ensure permission %s", perm)
			}
			report.Permissions++
		}

		mapping := r.catalog.Mapping()
		for _, role := range r.catalog.RoleNames() {
			id, err := repos.Roles.EnsureRole(ctx, role)
			if err != nil {
				return errors.Wrapf(err, "ensure role %s", role)
			}
			if err := repos.Roles.SyncRolePermissions(ctx, id, mapping[role]); err != nil {
				return errors.Wrapf(err, "sync role %s", role)
			}
			report.Roles++
		}

		legacy := make([]string, 0, len(r.catalog.Legacy))
		for name := range r.catalog.Legacy {
			legacy = append(legacy, name)
		}
		sort.Strings(legacy)
		for _, name := range legacy {
			if err := r.migrateLegacy(ctx, repos.Roles, name, r.catalog.Legacy[name], &report); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Report{}, err
	}

	r.logger.Info().
		Int("permissions", report.Permissions).
		Int("roles", report.Roles).
		Strs("migrated_legacy", report.MigratedLegacy).
		Int64("links_transferred", report.LinksTransferred).
		Int64("labels_renamed", report.LabelsRenamed).
		Msg("permission catalog reconciled")
	return report, nil
}

func (r *Registry) migrateLegacy(ctx context.Context, roles repository.RoleRepository, legacy, canonical string, report *Report) error {
	renamed, err := roles.RenameAssignedRole(ctx, legacy, canonical)
	if err != nil {
		return errors.Wrapf(err, "rename %s labels", legacy)
	}
	report.LabelsRenamed += renamed

	legacyID, err := roles.FindRoleID(ctx, legacy)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "find legacy role %s", legacy)
	}
	canonicalID, err := roles.FindRoleID(ctx, canonical)
	if err != nil {
		return errors.Wrapf(err, "find canonical role %s", canonical)
	}
	moved, err := roles.TransferPrincipalRoles(ctx, legacyID, canonicalID)
	if err != nil {
		return errors.Wrapf(err, "transfer %s links", legacy)
	}
	if err := roles.DeleteRole(ctx, legacyID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return errors.Wrapf(err, "drop legacy role %s", legacy)
	}
	report.LinksTransferred += moved
	report.MigratedLegacy = append(report.MigratedLegacy, legacy)
	r.logger.Info().Str("legacy", legacy).Str("canonical", canonical).Int64("links", moved).Msg("legacy role migrated")
	return nil
}

// Snapshot reads the persisted role to permission mapping.
func (r *Registry) Snapshot(ctx context.Context) (map[string][]string, error) {
	mapping, err := r.roles.RolePermissions(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read role permissions")
	}
	return mapping, nil
}

// Refresh reloads enforcer from the persisted mapping.
func (r *Registry) Refresh(ctx context.Context, enforcer *Enforcer) error {
	mapping, err := r.Snapshot(ctx)
	if err != nil {
		return err
	}
	return enforcer.Reload(mapping)
}

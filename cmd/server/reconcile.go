package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"github.com/stanstork/opsdesk-api/internal/permission"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile-permissions",
	Short: "Bring stored roles and permissions in line with the built-in catalog",
	Long: `Creates missing permissions and roles, resets each declared role's permission set
and folds legacy role names into their replacements. Safe to run on every deploy.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer app.close()

		registry := permission.NewRegistry(app.store, app.store.Roles, permission.DefaultCatalog(), app.logger)
		report, err := registry.Reconcile(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

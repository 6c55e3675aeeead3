package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stanstork/opsdesk-api/internal/migration"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|status]",
	Short:     "Run database migrations",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "status"},
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer app.close()

		command := "up"
		if len(args) > 0 {
			command = args[0]
		}
		switch command {
		case "status":
			return migration.Status(cmd.Context(), app.db, app.logger)
		case "up":
			return migration.RunMigrations(cmd.Context(), app.db, app.logger)
		}
		return fmt.Errorf("unknown migrate command %q", command)
	},
}

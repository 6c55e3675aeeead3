package main

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/stanstork/opsdesk-api/internal/identity"
	"github.com/stanstork/opsdesk-api/internal/models"
	"github.com/stanstork/opsdesk-api/internal/repository"
)

var adminName string

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage platform admins",
}

var createAdminCmd = &cobra.Command{
	Use:   "create [email]",
	Short: "Create a platform admin",
	Long: `Creates a platform admin. The password is read from OPS_ADMIN_PASSWORD so it
does not end up in shell history.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email := models.NormalizeEmail(args[0])
		if err := validator.New().Var(email, "required,email"); err != nil {
			return fmt.Errorf("invalid email %q", args[0])
		}
		password := os.Getenv("OPS_ADMIN_PASSWORD")
		if err := identity.ValidatePassword(password, password); err != nil {
			return errors.Wrap(err, "OPS_ADMIN_PASSWORD")
		}

		app, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer app.close()

		hasher, err := identity.NewHasher(app.config.BcryptCost)
		if err != nil {
			return err
		}
		hash, err := hasher.Hash(password)
		if err != nil {
			return errors.Wrap(err, "hash password")
		}
		admin, err := app.store.Admins.CreateAdmin(cmd.Context(), email, adminName, hash)
		if errors.Is(err, repository.ErrDuplicate) {
			return fmt.Errorf("admin %s already exists", email)
		}
		if err != nil {
			return errors.Wrap(err, "create admin")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Admin created: %s (ID: %s)\n", admin.Email, admin.ID)
		return nil
	},
}

func init() {
	createAdminCmd.Flags().StringVar(&adminName, "name", "", "display name")
	adminCmd.AddCommand(createAdminCmd)
}

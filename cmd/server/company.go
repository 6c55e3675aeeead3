package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/stanstork/opsdesk-api/internal/models"
	"github.com/stanstork/opsdesk-api/internal/repository"
)

var companyOwner string

var companyCmd = &cobra.Command{
	Use:   "company",
	Short: "Manage companies",
}

var createCompanyCmd = &cobra.Command{
	Use:   "create [slug] [name]",
	Short: "Create a company, optionally owned by an existing admin",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		slug := models.NormalizeSlug(args[0])
		if !models.IsValidSlug(slug) {
			return fmt.Errorf("invalid slug %q: use lowercase letters, digits and dashes", args[0])
		}

		app, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer app.close()

		ctx := cmd.Context()
		var company models.Company
		err = app.store.WithTx(ctx, func(tx repository.Repositories) error {
			var err error
			company, err = tx.Companies.CreateCompany(ctx, slug, args[1])
			if err != nil {
				return err
			}
			if companyOwner == "" {
				return nil
			}
			admin, err := tx.Admins.GetAdminByEmail(ctx, models.NormalizeEmail(companyOwner))
			if err != nil {
				return errors.Wrapf(err, "owner %s", companyOwner)
			}
			_, err = tx.Admins.UpsertMembership(ctx, admin.ID, company.ID, models.RoleOwner)
			return err
		})
		if errors.Is(err, repository.ErrDuplicate) {
			return fmt.Errorf("company %q already exists", slug)
		}
		if err != nil {
			return errors.Wrap(err, "create company")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Company created: %s (ID: %s)\n", company.Slug, company.ID)
		return nil
	},
}

func setCompanyActive(active bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer app.close()

		company, err := app.store.Companies.GetCompanyBySlug(cmd.Context(), models.NormalizeSlug(args[0]))
		if err != nil {
			return errors.Wrapf(err, "company %s", args[0])
		}
		if err := app.store.Companies.SetCompanyActive(cmd.Context(), company.ID, active); err != nil {
			return errors.Wrap(err, "update company")
		}
		state := "deactivated"
		if active {
			state = "activated"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Company %s: %s\n", state, company.Slug)
		return nil
	}
}

var deactivateCompanyCmd = &cobra.Command{
	Use:   "deactivate [slug]",
	Short: "Deactivate a company; its routes answer 404 and its accounts cannot sign in",
	Args:  cobra.ExactArgs(1),
	RunE:  setCompanyActive(false),
}

var activateCompanyCmd = &cobra.Command{
	Use:   "activate [slug]",
	Short: "Reactivate a company",
	Args:  cobra.ExactArgs(1),
	RunE:  setCompanyActive(true),
}

var deleteCompanyCmd = &cobra.Command{
	Use:   "delete [slug]",
	Short: "Delete a company and every record scoped to it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer app.close()

		company, err := app.store.Companies.GetCompanyBySlug(cmd.Context(), models.NormalizeSlug(args[0]))
		if err != nil {
			return errors.Wrapf(err, "company %s", args[0])
		}
		if err := app.store.Companies.DeleteCompany(cmd.Context(), company.ID); err != nil {
			return errors.Wrap(err, "delete company")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Company deleted: %s\n", company.Slug)
		return nil
	},
}

func init() {
	createCompanyCmd.Flags().StringVar(&companyOwner, "owner", "", "email of an existing admin to make owner")
	companyCmd.AddCommand(createCompanyCmd, deactivateCompanyCmd, activateCompanyCmd, deleteCompanyCmd)
}

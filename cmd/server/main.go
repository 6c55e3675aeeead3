package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "opsdesk",
	Short:         "Opsdesk identity and invitation service",
	Long:          `Opsdesk serves company staff, customer portal and platform admin sign-in, invitations and access control.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (defaults to ./config.yaml or ./config/config.yaml)")
	rootCmd.AddCommand(serveCmd, migrateCmd, reconcileCmd, companyCmd, adminCmd)
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mhr-212/Healthcare-Data-Warehouse/cmd/cli/commands"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/constants"
)

func main() {
	globals := &commands.GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:   "privacy-cli",
		Short: "Healthcare data warehouse privacy auditing CLI",
		Long: `A command-line interface for auditing de-identified healthcare datasets
for k-anonymity, l-diversity and t-closeness, enforcing k-anonymity, and
tracking differential privacy budget.`,
		Version:       constants.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&globals.ConfigFile, "config", "", "config file (default is ./privacy-audit.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&globals.Verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(commands.NewAuditCmd(globals))
	rootCmd.AddCommand(commands.NewEnforceCmd(globals))
	rootCmd.AddCommand(commands.NewBudgetCmd(globals))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

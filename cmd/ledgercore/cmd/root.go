// Package cmd holds the ledgercore command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "ledgercore",
	Short: "Double-entry ledger and reconciliation service",
	Long: `ledgercore keeps a tenant's chart of accounts and journal, answers
balance and statement queries, turns business events into journal entries
and reconciles vouchers parked on intermediary accounts.

Example:
  ledgercore serve
  ledgercore migrate
  ledgercore seed-chart --tenant 1001
  ledgercore reconcile --tenant 1001`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile == "" {
			return nil
		}
		if err := godotenv.Overload(envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file loaded before configuration (default .env)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedChartCmd)
	rootCmd.AddCommand(reconcileCmd)
}

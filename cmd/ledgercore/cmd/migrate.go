package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Migrations run as an fx invoke while the graph is built.
		return runOnce(cmd.Context(), func(context.Context) error { return nil }, infrastructure())
	},
}

package cmd

import (
	"context"

	accountdomain "github.com/smallbiznis/ledgercore/internal/account/domain"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var seedTenant int64

var seedChartCmd = &cobra.Command{
	Use:   "seed-chart",
	Short: "Seed the default chart of accounts for a tenant",
	Long: `Seed the default chart of accounts for a tenant. Accounts that
already exist are left untouched, so the command can be rerun safely.

Example:
  ledgercore seed-chart --tenant 1001`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, err := tenantFlag(seedTenant)
		if err != nil {
			return err
		}

		var svc accountdomain.Service
		return runOnce(cmd.Context(), func(ctx context.Context) error {
			result, err := svc.SeedDefaultChart(ctx, tenantID)
			if err != nil {
				return err
			}
			return printJSON(result)
		}, infrastructure(), domains(), fx.Populate(&svc))
	},
}

func init() {
	seedChartCmd.Flags().Int64Var(&seedTenant, "tenant", 0, "tenant id")
	_ = seedChartCmd.MarkFlagRequired("tenant")
}

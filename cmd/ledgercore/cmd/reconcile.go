package cmd

import (
	"context"

	reconciledomain "github.com/smallbiznis/ledgercore/internal/reconciliation/domain"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var reconcileTenant int64

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Propose voucher matches for a tenant",
	Long: `Run one auto-reconcile pass over every active intermediary account
of a tenant and print the run summary. Proposed matches stay pending until
they are confirmed or rejected through the API.

Example:
  ledgercore reconcile --tenant 1001`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, err := tenantFlag(reconcileTenant)
		if err != nil {
			return err
		}

		var svc reconciledomain.Service
		return runOnce(cmd.Context(), func(ctx context.Context) error {
			result, runErr := svc.RunAutoReconcile(ctx, tenantID)
			if err := printJSON(result); err != nil {
				return err
			}
			return runErr
		}, infrastructure(), domains(), fx.Populate(&svc))
	},
}

func init() {
	reconcileCmd.Flags().Int64Var(&reconcileTenant, "tenant", 0, "tenant id")
	_ = reconcileCmd.MarkFlagRequired("tenant")
}

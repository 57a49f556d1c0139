package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vadiminshakov/balancerecon/internal"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Fetch on-chain balances for every input user and write the merged snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		conf, err := loadConfig()
		if err != nil {
			return err
		}

		return internal.RunReconciliation(cmd.Context(), conf, zap.L(), cmd.OutOrStdout())
	},
}

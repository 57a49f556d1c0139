package main

import (
	"github.com/spf13/cobra"

	"github.com/vadiminshakov/balancerecon/internal"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print discrepancy statistics of the persisted snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		conf, err := loadConfig()
		if err != nil {
			return err
		}

		return internal.RunStatistics(conf, cmd.OutOrStdout())
	},
}

// Command balancerecon reconciles off-chain recorded token balances against
// ERC20 balances read from chain and reports the discrepancies found.
//
// Usage:
//
//	balancerecon reconcile --config config.yaml
//	balancerecon stats --config config.yaml
//
// Optional environment variables (also read from .env):
//
//	BALANCERECON_RPC_URL, BALANCERECON_CONTRACT_ADDRESS
package main

import (
	"errors"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vadiminshakov/balancerecon/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "balancerecon",
	Short:         "Reconcile recorded token balances against on-chain ERC20 balances",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to yaml config")
	rootCmd.AddCommand(reconcileCmd, statsCmd)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	zap.ReplaceGlobals(logger)

	if err := rootCmd.Execute(); err != nil {
		logger.Error("Command failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func loadConfig() (config.Config, error) {
	return config.Get(configPath)
}

package main

import (
	"fmt"
	"os"

	cm "github.com/TimeWtr/cron_manager"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath string
	cfg        cm.Config
	zl         *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cronmgr",
	Short: "cronmgr - cron job manager with catalog reconciliation",
	Long: `cronmgr runs named cron jobs and keeps them in sync with a persisted catalog.

Available commands:
  run      - Start the scheduler and the reconciliation loop
  catalog  - Manage catalog rows (list, put, enable, disable, remove)
  logs     - Show recent executions of a task

Examples:
  cronmgr run --config cronmgr.yaml
  cronmgr catalog put sendReport --cron "0 0 * * * ?"
  cronmgr catalog disable sendReport`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = cm.LoadConfig(configPath)
		if err != nil {
			return err
		}
		zl, err = newZap(cfg.Log)
		if err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if zl != nil {
			_ = zl.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (yaml, toml or json)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(logsCmd)
}

func newZap(lc cm.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	if lc.JSON {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/equicurve/internal/config"
	"github.com/newthinker/equicurve/internal/logger"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "equicurve",
	Short: "equicurve - portfolio backtesting over exported trade lists",
	Long: `equicurve combines per-ticker trade lists into a portfolio equity curve
with KPIs and drawdowns, and computes quick summary statistics for any CSV.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

// loadConfig reads .env, the config file (or defaults) and validates the result.
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnvFile(); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	opts := logger.Options{Development: debug}
	if cfg != nil && !debug {
		opts.Level = cfg.Log.Level
		opts.Format = cfg.Log.Format
	}
	return logger.New(opts)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

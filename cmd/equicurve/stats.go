package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/newthinker/equicurve/internal/stats"
	"github.com/newthinker/equicurve/internal/upload"
)

var (
	statsRiskFreeRate float64
	statsJSON         bool
)

var statsCmd = &cobra.Command{
	Use:   "stats FILE...",
	Short: "Compute summary statistics for CSV or XLSX files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().Float64Var(&statsRiskFreeRate, "risk-free-rate", 0, "per-period risk-free rate")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print results as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	if !stats.ValidRate(statsRiskFreeRate) {
		return fmt.Errorf("--risk-free-rate must be finite, got %g", statsRiskFreeRate)
	}

	log, err := newLogger(nil)
	if err != nil {
		return err
	}
	defer log.Sync()

	files := make([]upload.File, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		files = append(files, upload.File{Name: filepath.Base(path), Data: data})
	}

	errOut := cmd.ErrOrStderr()
	processor := upload.NewProcessor(statsRiskFreeRate, log)
	summaries, err := processor.Process(cmd.Context(), files, func(p upload.Progress) {
		if !statsJSON {
			fmt.Fprintf(errOut, "[%3.0f%%] %s\n", p.Overall()*100, p.File)
		}
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if statsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	for _, s := range summaries {
		fmt.Fprintf(out, "\n%s\n", s.File)
		if s.Error != "" {
			fmt.Fprintf(out, "  error: %s\n", s.Error)
			continue
		}
		column := "none"
		if s.Stats.PriceColumn != nil {
			column = *s.Stats.PriceColumn
		}
		fmt.Fprintf(out, "  Rows:          %d\n", s.Rows)
		fmt.Fprintf(out, "  Price column:  %s\n", column)
		fmt.Fprintf(out, "  Mean return:   %.4f%%\n", s.Stats.MeanReturn*100)
		fmt.Fprintf(out, "  Sharpe ratio:  %.4f\n", s.Stats.SharpeRatio)
		fmt.Fprintf(out, "  Max drawdown:  %.2f%%\n", s.Stats.MaxDrawdown*100)
	}
	return nil
}

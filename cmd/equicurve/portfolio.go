package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/equicurve/internal/core"
	"github.com/newthinker/equicurve/internal/ingest"
	"github.com/newthinker/equicurve/internal/portfolio"
	"github.com/newthinker/equicurve/internal/storage/object"
	"github.com/newthinker/equicurve/internal/storage/repo"
)

var (
	portfolioCapital  float64
	portfolioCurrency string
	portfolioFrom     string
	portfolioTo       string
	portfolioJSON     bool
)

var portfolioCmd = &cobra.Command{
	Use:   "portfolio FILE...",
	Short: "Run a portfolio backtest over exported trade lists",
	Long: `Combine per-ticker trade lists (named Strategy_Ticker_YYYY-MM-DD.csv)
into one portfolio and print its KPIs. Capital is split equally across files.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPortfolio,
}

func init() {
	portfolioCmd.Flags().Float64Var(&portfolioCapital, "capital", 0, "total capital (default from config)")
	portfolioCmd.Flags().StringVar(&portfolioCurrency, "currency", "", "ISO 4217 currency code (default from config)")
	portfolioCmd.Flags().StringVar(&portfolioFrom, "from", "", "start date YYYY-MM-DD")
	portfolioCmd.Flags().StringVar(&portfolioTo, "to", "", "end date YYYY-MM-DD")
	portfolioCmd.Flags().BoolVar(&portfolioJSON, "json", false, "print the full run as JSON")
	rootCmd.AddCommand(portfolioCmd)
}

func runPortfolio(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	dateRange, err := portfolio.ParseDateRange(portfolioFrom, portfolioTo)
	if err != nil {
		return err
	}

	dir, err := os.MkdirTemp("", "equicurve-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	objects, err := object.NewLocalFS(dir, "cli")
	if err != nil {
		return err
	}
	r := repo.NewMemoryStore(0)
	user := core.User{ID: "cli", Plan: core.PlanEnterprise}

	uploads := make([]ingest.Upload, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		uploads = append(uploads, ingest.Upload{Filename: filepath.Base(path), Data: data})
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	ingested, err := ingest.New(objects, r, log).Ingest(ctx, user, uploads)
	if err != nil {
		return err
	}
	for _, f := range ingested.Files {
		for _, w := range f.Warnings {
			log.Warn("ingest warning", zap.String("ticker", f.Ticker), zap.String("warning", w))
		}
	}

	svc := portfolio.NewService(objects, r, portfolio.Options{
		DefaultCapital:  cfg.Portfolio.TotalCapitalDefault,
		DefaultCurrency: cfg.Portfolio.DefaultCurrency,
		LoadConcurrency: cfg.Portfolio.LoadConcurrency,
	}, log)
	run, err := svc.Run(ctx, user, portfolio.Request{
		BatchID:      ingested.BatchID,
		TotalCapital: portfolioCapital,
		Currency:     portfolioCurrency,
		DateRange:    dateRange,
		RiskFreeRate: cfg.Stats.RiskFreeRate,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if portfolioJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}

	k := run.KPIs
	fmt.Fprintln(out, "=== equicurve portfolio ===")
	fmt.Fprintf(out, "Tickers:       %d\n", len(ingested.Files))
	fmt.Fprintf(out, "Capital:       %s\n", portfolio.FormatMoney(run.TotalCapital, run.Currency))
	fmt.Fprintf(out, "Net P&L:       %s\n", portfolio.FormatMoney(float64(k.TotalPnL), run.Currency))
	fmt.Fprintf(out, "Total return:  %s\n", percent(k.TotalReturnPct))
	fmt.Fprintf(out, "Max drawdown:  %s (%s)\n",
		portfolio.FormatMoney(float64(k.MaxDrawdownAbs), run.Currency), percent(k.MaxDrawdownPct))
	fmt.Fprintf(out, "Trades:        %d (%s profitable)\n", k.TotalTrades, percent(k.ProfitableTradesPct))
	fmt.Fprintf(out, "Profit factor: %s\n", ratio(k.ProfitFactor))
	fmt.Fprintf(out, "Annualized:    %s\n", percent(k.AnnualizedReturnPct))

	risk := run.Sections.RiskRatios
	fmt.Fprintf(out, "\n%s\n", risk.Title)
	for _, m := range risk.Metrics {
		fmt.Fprintf(out, "  %-24s %s\n", m.Label, ratio(m.Value))
	}
	return nil
}

func percent(v portfolio.Value) string {
	f := float64(v)
	if math.IsNaN(f) {
		return "n/a"
	}
	if math.IsInf(f, 0) {
		return "inf"
	}
	return fmt.Sprintf("%.2f%%", f)
}

func ratio(v portfolio.Value) string {
	f := float64(v)
	if math.IsNaN(f) {
		return "n/a"
	}
	if math.IsInf(f, 0) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", f)
}

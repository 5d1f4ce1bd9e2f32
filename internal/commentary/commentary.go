// Package commentary turns a finished portfolio run into a short
// plain-language read using an LLM provider.
package commentary

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/newthinker/equicurve/internal/core"
	"github.com/newthinker/equicurve/internal/llm"
	"github.com/newthinker/equicurve/internal/portfolio"
	"go.uber.org/zap"
)

// Commentary is the generated text for one run.
type Commentary struct {
	RunID    string `json:"runId"`
	Provider string `json:"provider"`
	Text     string `json:"commentary"`
}

// Writer asks an LLM provider to explain run KPIs.
type Writer struct {
	llm    llm.Provider
	logger *zap.Logger
}

// NewWriter creates a commentary writer. A nil provider disables it.
func NewWriter(provider llm.Provider, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{llm: provider, logger: logger}
}

// Enabled reports whether a provider is configured.
func (w *Writer) Enabled() bool {
	return w != nil && w.llm != nil
}

// Explain generates commentary for a run.
func (w *Writer) Explain(ctx context.Context, run *portfolio.Result) (*Commentary, error) {
	if !w.Enabled() {
		return nil, core.ErrLLMUnavailable
	}

	resp, err := w.llm.Chat(ctx, llm.ChatRequest{
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildPrompt(run)},
		},
		MaxTokens:   400,
		Temperature: 0.3,
	})
	if err != nil {
		w.logger.Warn("commentary request failed",
			zap.String("run_id", run.RunID),
			zap.String("provider", w.llm.Name()),
			zap.Error(err))
		return nil, core.WrapError(core.ErrLLMFailed, err)
	}

	w.logger.Info("commentary generated",
		zap.String("run_id", run.RunID),
		zap.String("provider", w.llm.Name()),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens))

	return &Commentary{
		RunID:    run.RunID,
		Provider: w.llm.Name(),
		Text:     strings.TrimSpace(resp.Content),
	}, nil
}

func buildPrompt(run *portfolio.Result) string {
	var sb strings.Builder
	k := run.KPIs

	fmt.Fprintf(&sb, "## Portfolio run %s\n", run.RunID)
	fmt.Fprintf(&sb, "- Capital: %s\n", portfolio.FormatMoney(run.TotalCapital, run.Currency))
	if n := len(run.EquityCurve); n > 0 {
		fmt.Fprintf(&sb, "- Period: %s to %s\n",
			run.EquityCurve[0].Timestamp.Format("2006-01-02"),
			run.EquityCurve[n-1].Timestamp.Format("2006-01-02"))
	}
	sb.WriteString("\n## KPIs:\n")
	fmt.Fprintf(&sb, "- Total P&L: %s\n", portfolio.FormatMoney(float64(k.TotalPnL), run.Currency))
	fmt.Fprintf(&sb, "- Total return: %s\n", pct(k.TotalReturnPct))
	fmt.Fprintf(&sb, "- Annualized return: %s\n", pct(k.AnnualizedReturnPct))
	fmt.Fprintf(&sb, "- Max drawdown: %s\n", pct(k.MaxDrawdownPct))
	fmt.Fprintf(&sb, "- Trades: %d, profitable %s\n", k.TotalTrades, pct(k.ProfitableTradesPct))
	fmt.Fprintf(&sb, "- Profit factor: %s\n", num(k.ProfitFactor))
	fmt.Fprintf(&sb, "- Avg trade duration: %s days\n", num(k.AvgTradeDurationDays))

	if risk := run.Sections.RiskRatios.Metrics; len(risk) > 0 {
		sb.WriteString("\n## Risk ratios:\n")
		for _, m := range risk {
			fmt.Fprintf(&sb, "- %s: %s\n", m.Label, num(m.Value))
		}
	}

	sb.WriteString("\n## Task:\n")
	sb.WriteString("Explain in at most five sentences how this portfolio performed and what stands out about its risk.\n")
	return sb.String()
}

func pct(v portfolio.Value) string {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", f)
}

func num(v portfolio.Value) string {
	f := float64(v)
	if math.IsNaN(f) {
		return "n/a"
	}
	if math.IsInf(f, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", f)
}

const systemPrompt = `You are a portfolio analyst writing for retail traders.
Describe backtest results plainly. Do not give investment advice.
Mention the return, the drawdown and whether the trade statistics look robust.
Use only the numbers provided.`

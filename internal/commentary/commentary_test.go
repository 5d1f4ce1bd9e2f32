package commentary

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/equicurve/internal/core"
	"github.com/newthinker/equicurve/internal/llm"
	"github.com/newthinker/equicurve/internal/portfolio"
)

type mockLLM struct {
	reply string
	err   error
	last  llm.ChatRequest
}

func (m *mockLLM) Name() string { return "mock" }

func (m *mockLLM) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	return &llm.ChatResponse{Content: m.reply}, nil
}

func sampleRun() *portfolio.Result {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return &portfolio.Result{
		RunID:        "run-1",
		Currency:     "USD",
		TotalCapital: 100000,
		EquityCurve: []portfolio.Point{
			{Timestamp: day, Value: 100000},
			{Timestamp: day.AddDate(0, 0, 30), Value: 104500},
		},
		KPIs: portfolio.KPIs{
			TotalPnL:            4500,
			TotalReturnPct:      4.5,
			MaxDrawdownPct:      -2.1,
			TotalTrades:         12,
			ProfitableTradesPct: 58.33,
			ProfitFactor:        portfolio.Value(math.Inf(1)),
		},
		Sections: portfolio.Sections{
			RiskRatios: portfolio.Section{
				Title:   "Risk ratios",
				Metrics: []portfolio.Metric{{Label: "Sharpe ratio", Value: 1.25}},
			},
		},
	}
}

func TestExplain(t *testing.T) {
	m := &mockLLM{reply: "  Solid month.\n"}
	w := NewWriter(m, nil)

	c, err := w.Explain(context.Background(), sampleRun())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Text != "Solid month." {
		t.Errorf("expected trimmed text, got %q", c.Text)
	}
	if c.Provider != "mock" || c.RunID != "run-1" {
		t.Errorf("unexpected commentary %+v", c)
	}
	if m.last.SystemPrompt == "" {
		t.Error("expected system prompt")
	}
}

func TestExplain_Disabled(t *testing.T) {
	w := NewWriter(nil, nil)
	if w.Enabled() {
		t.Fatal("expected writer to be disabled")
	}
	_, err := w.Explain(context.Background(), sampleRun())
	if !errors.Is(err, core.ErrLLMUnavailable) {
		t.Errorf("expected ErrLLMUnavailable, got %v", err)
	}
}

func TestExplain_ProviderError(t *testing.T) {
	w := NewWriter(&mockLLM{err: errors.New("boom")}, nil)
	_, err := w.Explain(context.Background(), sampleRun())
	if !errors.Is(err, core.ErrLLMFailed) {
		t.Errorf("expected ErrLLMFailed, got %v", err)
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := buildPrompt(sampleRun())

	for _, want := range []string{
		"$100,000.00",
		"2024-03-01 to 2024-03-31",
		"Total return: 4.50%",
		"Trades: 12, profitable 58.33%",
		"Profit factor: inf",
		"Sharpe ratio: 1.25",
		"Avg trade duration: 0.00 days",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

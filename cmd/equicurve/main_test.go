package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		statsJSON, portfolioJSON = false, false
		statsRiskFreeRate = 0
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "equicurve dev")
}

func TestStatsCommand_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "prices.csv", "Date,Close\n2024-01-01,100\n2024-01-02,110\n2024-01-03,99\n")

	out, err := execute(t, "stats", "--json", path)
	require.NoError(t, err)

	var got []struct {
		File  string `json:"file"`
		Stats struct {
			MaxDrawdown float64 `json:"maxDrawdown"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "prices.csv", got[0].File)
	assert.InDelta(t, -0.1, got[0].Stats.MaxDrawdown, 1e-9)
}

func TestStatsCommand_RiskFreeRate(t *testing.T) {
	path := writeFile(t, t.TempDir(), "prices.csv", "Close\n1\n2\n")

	_, err := execute(t, "stats", "--risk-free-rate", "-0.02", path)
	assert.NoError(t, err)

	_, err = execute(t, "stats", "--risk-free-rate", "NaN", path)
	assert.ErrorContains(t, err, "must be finite")
}

func TestPortfolioCommand(t *testing.T) {
	dir := t.TempDir()
	trades := strings.Join([]string{
		"Trade #,Type (Long/Short),Date/Time,Signal,Price,Position size,Net P&L,Run-up,Drawdown,Cumulative P&L",
		"1,Long,2024-01-02 10:00,Entry,100,1000,0,0,0,0",
		"1,Long,2024-01-05 15:00,Exit,105,1000,50,60,-10,50",
	}, "\n") + "\n"
	path := writeFile(t, dir, "Demo_AAPL_2024-03-01.csv", trades)

	out, err := execute(t, "portfolio", "--capital", "10000", "--currency", "usd", path)
	require.NoError(t, err)

	assert.Contains(t, out, "Capital:       $10,000.00")
	assert.Contains(t, out, "Net P&L:       $50.00")
	assert.Contains(t, out, "Trades:        1")
}

func TestPortfolioCommand_BadFilename(t *testing.T) {
	path := writeFile(t, t.TempDir(), "trades.csv", "Trade #\n1\n")

	_, err := execute(t, "portfolio", path)
	assert.Error(t, err)
}

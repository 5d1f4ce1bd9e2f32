// Package stats computes quick summary statistics over a parsed upload.
package stats

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/newthinker/equicurve/internal/core"
)

// priceCandidates is searched in order; the first column present wins.
var priceCandidates = []string{
	"close",
	"close price",
	"closing price",
	"price",
	"equity",
	"balance",
	"portfolio value",
}

var nonNumeric = regexp.MustCompile(`[^0-9+\-.eE]`)

// Summary is the result of Compute. It is never mutated after creation.
type Summary struct {
	SampleCount int     `json:"sampleCount"`
	MeanReturn  float64 `json:"meanReturn"`
	SharpeRatio float64 `json:"sharpeRatio"`
	MaxDrawdown float64 `json:"maxDrawdown"`
	PriceColumn *string `json:"priceColumn"`
}

// ValidRate reports whether a risk-free rate can be used by Compute. Any
// finite value is accepted, negative rates included.
func ValidRate(rate float64) bool {
	return !math.IsNaN(rate) && !math.IsInf(rate, 0)
}

// Compute locates a price-like column in rows and derives the mean
// period return, a per-period Sharpe-like ratio and the maximum drawdown.
// It never fails: degenerate input yields zero values.
func Compute(rows []core.Row, riskFreeRate float64) Summary {
	if len(rows) == 0 {
		return Summary{}
	}

	column, ok := findPriceColumn(rows)
	if !ok {
		return Summary{SampleCount: len(rows)}
	}

	summary := Summary{SampleCount: len(rows), PriceColumn: &column}

	prices := make([]float64, 0, len(rows))
	for _, row := range rows {
		if v, ok := toNumber(row[column]); ok {
			prices = append(prices, v)
		}
	}
	if len(prices) < 2 {
		return summary
	}

	returns := periodReturns(prices)
	mean := meanOf(returns)
	std := sampleStdDev(returns, mean)

	summary.MeanReturn = mean
	if std != 0 {
		summary.SharpeRatio = (mean - riskFreeRate) / std
	}
	summary.MaxDrawdown = maxDrawdown(prices)
	return summary
}

// findPriceColumn matches candidates against the header of the first
// non-empty row, ignoring case and surrounding whitespace.
func findPriceColumn(rows []core.Row) (string, bool) {
	var header core.Row
	for _, row := range rows {
		if len(row) > 0 {
			header = row
			break
		}
	}
	if header == nil {
		return "", false
	}

	lookup := make(map[string]string, len(header))
	for name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		// Smallest original name wins on collision.
		if prev, ok := lookup[key]; !ok || name < prev {
			lookup[key] = name
		}
	}

	for _, candidate := range priceCandidates {
		if name, ok := lookup[candidate]; ok {
			return name, true
		}
	}
	return "", false
}

func toNumber(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case string:
		cleaned := nonNumeric.ReplaceAllString(x, "")
		if cleaned == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func periodReturns(prices []float64) []float64 {
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev == 0 {
			continue
		}
		returns = append(returns, prices[i]/prev-1)
	}
	return returns
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStdDev uses the n-1 divisor and returns 0 for fewer than two values.
func sampleStdDev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values) - 1)
	if variance <= 0 {
		return 0
	}
	return math.Sqrt(variance)
}

// maxDrawdown returns the most negative decline from the running peak, as a fraction.
func maxDrawdown(prices []float64) float64 {
	peak := prices[0]
	var worst float64
	for _, p := range prices {
		if p > peak {
			peak = p
		}
		if peak == 0 {
			continue
		}
		if dd := (p - peak) / peak; dd < worst {
			worst = dd
		}
	}
	return worst
}

package stats

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/equicurve/internal/core"
)

func priceRows(column string, values ...any) []core.Row {
	rows := make([]core.Row, len(values))
	for i, v := range values {
		rows[i] = core.Row{"Date": "2024-01-0" + string(rune('1'+i%9)), column: v}
	}
	return rows
}

func TestCompute_Empty(t *testing.T) {
	got := Compute(nil, 0)
	assert.Equal(t, Summary{}, got)

	data, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sampleCount":0,"meanReturn":0,"sharpeRatio":0,"maxDrawdown":0,"priceColumn":null}`, string(data))
}

func TestCompute_NoPriceColumn(t *testing.T) {
	rows := []core.Row{
		{"Date": "2024-01-01", "Volume": 100.0},
		{"Date": "2024-01-02", "Volume": 200.0},
		{"Date": "2024-01-03", "Volume": 300.0},
	}
	got := Compute(rows, 0)

	assert.Nil(t, got.PriceColumn)
	assert.Equal(t, 3, got.SampleCount)
	assert.Zero(t, got.MeanReturn)
	assert.Zero(t, got.SharpeRatio)
	assert.Zero(t, got.MaxDrawdown)
}

func TestCompute_FewerThanTwoValues(t *testing.T) {
	rows := priceRows("Close", 100.0, "N/A", nil)
	got := Compute(rows, 0)

	require.NotNil(t, got.PriceColumn)
	assert.Equal(t, "Close", *got.PriceColumn)
	assert.Equal(t, 3, got.SampleCount)
	assert.Zero(t, got.MeanReturn)
	assert.Zero(t, got.SharpeRatio)
	assert.Zero(t, got.MaxDrawdown)
}

func TestCompute_NormalizedNameCollision(t *testing.T) {
	rows := []core.Row{
		{" close": 1.0, "Close": 100.0},
		{" close": 2.0, "Close": 110.0},
	}

	// Rows carry no column order, so the smallest raw name wins every time.
	for i := 0; i < 20; i++ {
		got := Compute(rows, 0)
		require.NotNil(t, got.PriceColumn)
		assert.Equal(t, " close", *got.PriceColumn)
		assert.InDelta(t, 1.0, got.MeanReturn, 1e-12)
	}
}

func TestValidRate(t *testing.T) {
	assert.True(t, ValidRate(0))
	assert.True(t, ValidRate(-0.02))
	assert.True(t, ValidRate(1.5))
	assert.False(t, ValidRate(math.NaN()))
	assert.False(t, ValidRate(math.Inf(1)))
}

func TestCompute_ColumnMatchIgnoresCaseAndSpace(t *testing.T) {
	rows := priceRows(" Close Price ", 100.0, 110.0)
	got := Compute(rows, 0)

	require.NotNil(t, got.PriceColumn)
	assert.Equal(t, " Close Price ", *got.PriceColumn)
	assert.InDelta(t, 0.10, got.MeanReturn, 1e-12)
}

func TestCompute_CandidatePriority(t *testing.T) {
	rows := []core.Row{
		{"Equity": 1000.0, "Price": 10.0},
		{"Equity": 1100.0, "Price": 20.0},
	}
	got := Compute(rows, 0)

	require.NotNil(t, got.PriceColumn)
	assert.Equal(t, "Price", *got.PriceColumn)
	assert.InDelta(t, 1.0, got.MeanReturn, 1e-12)
}

func TestCompute_ConstantGrowthHasZeroSharpe(t *testing.T) {
	got := Compute(priceRows("close", 100.0, 110.0, 121.0), 0)

	assert.InDelta(t, 0.10, got.MeanReturn, 1e-9)
	assert.Equal(t, 0.0, got.SharpeRatio)
	assert.Equal(t, 0.0, got.MaxDrawdown)
}

func TestCompute_DrawdownHalf(t *testing.T) {
	got := Compute(priceRows("close", 100.0, 50.0, 100.0), 0)
	assert.Equal(t, -0.5, got.MaxDrawdown)
}

func TestCompute_SharpeWithRiskFreeRate(t *testing.T) {
	// returns: 0.1, -0.1 -> mean 0, std sqrt(0.02)
	got := Compute(priceRows("close", 100.0, 110.0, 99.0), 0.01)

	assert.InDelta(t, 0.0, got.MeanReturn, 1e-12)
	assert.InDelta(t, -0.01/math.Sqrt(0.02), got.SharpeRatio, 1e-9)
	assert.InDelta(t, -0.1, got.MaxDrawdown, 1e-12)
}

func TestCompute_ZeroPriceIsFinite(t *testing.T) {
	tests := []struct {
		name   string
		prices []any
	}{
		{"zero in middle", []any{100.0, 0.0, 50.0}},
		{"zero first", []any{0.0, 0.0, 5.0, 10.0}},
		{"all zero", []any{0.0, 0.0, 0.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(priceRows("close", tt.prices...), 0)
			for _, v := range []float64{got.MeanReturn, got.SharpeRatio, got.MaxDrawdown} {
				assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "non-finite value %v", v)
			}
			assert.LessOrEqual(t, got.MaxDrawdown, 0.0)
		})
	}

	got := Compute(priceRows("close", 100.0, 0.0, 50.0), 0)
	// only 100 -> 0 is a usable pair
	assert.InDelta(t, -1.0, got.MeanReturn, 1e-12)
	assert.Equal(t, -1.0, got.MaxDrawdown)
}

func TestCompute_StringCoercion(t *testing.T) {
	got := Compute(priceRows("Balance", "$1,000.00", "N/A", "1,100", "", true), 0)

	require.NotNil(t, got.PriceColumn)
	assert.Equal(t, 5, got.SampleCount)
	assert.InDelta(t, 0.10, got.MeanReturn, 1e-12)
}

func TestCompute_NonFiniteDropped(t *testing.T) {
	got := Compute(priceRows("close", 100.0, math.Inf(1), math.NaN(), 200.0), 0)
	assert.InDelta(t, 1.0, got.MeanReturn, 1e-12)
}

func TestCompute_HeaderFromFirstNonEmptyRow(t *testing.T) {
	rows := []core.Row{
		{},
		{"Portfolio Value": 10.0},
		{"Portfolio Value": 12.0},
	}
	got := Compute(rows, 0)

	require.NotNil(t, got.PriceColumn)
	assert.Equal(t, "Portfolio Value", *got.PriceColumn)
	assert.Equal(t, 3, got.SampleCount)
	assert.InDelta(t, 0.2, got.MeanReturn, 1e-12)
}

func TestCompute_Idempotent(t *testing.T) {
	rows := priceRows("close", 100.0, 103.5, 97.25, "101.1", 120.0)
	a := Compute(rows, 0.001)
	b := Compute(rows, 0.001)

	assert.Equal(t, math.Float64bits(a.MeanReturn), math.Float64bits(b.MeanReturn))
	assert.Equal(t, math.Float64bits(a.SharpeRatio), math.Float64bits(b.SharpeRatio))
	assert.Equal(t, math.Float64bits(a.MaxDrawdown), math.Float64bits(b.MaxDrawdown))
	assert.Equal(t, *a.PriceColumn, *b.PriceColumn)
}

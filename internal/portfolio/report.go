package portfolio

import (
	"encoding/json"
	"math"
)

// Value is a float that encodes NaN and infinities as JSON null.
type Value float64

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// UnmarshalJSON reads null back as NaN.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Value(f)
	return nil
}

// KPIs are the headline numbers of a run.
type KPIs struct {
	TotalPnL             Value `json:"total_pnl"`
	TotalReturnPct       Value `json:"total_return_pct"`
	MaxDrawdownAbs       Value `json:"max_drawdown_abs"`
	MaxDrawdownPct       Value `json:"max_drawdown_pct"`
	TotalTrades          int   `json:"total_trades"`
	ProfitableTradesPct  Value `json:"profitable_trades_pct"`
	ProfitFactor         Value `json:"profit_factor"`
	AnnualizedReturnPct  Value `json:"annualized_return_pct"`
	AvgTradeDurationDays Value `json:"avg_trade_duration_days"`
	TotalTradeDays       Value `json:"total_trade_days"`
}

// Metric is one labelled entry of a report section.
type Metric struct {
	Label string `json:"label"`
	Value Value  `json:"value"`
}

// Section is a titled group of metrics.
type Section struct {
	Title   string   `json:"title"`
	Metrics []Metric `json:"metrics"`
}

// Sections is the full tabbed report.
type Sections struct {
	Overview       Section `json:"overview"`
	Performance    Section `json:"performance"`
	TradesAnalysis Section `json:"tradesAnalysis"`
	RiskRatios     Section `json:"riskRatios"`
}

const tradingDays = 252

func splitWins(trades []Trade) (wins, losses []Trade) {
	for _, t := range trades {
		if t.NetPnL > 0 {
			wins = append(wins, t)
		} else {
			losses = append(losses, t)
		}
	}
	return wins, losses
}

func sumOf(trades []Trade, f func(Trade) float64) float64 {
	var s float64
	for _, t := range trades {
		s += f(t)
	}
	return s
}

func meanOf(trades []Trade, f func(Trade) float64) float64 {
	if len(trades) == 0 {
		return 0
	}
	return sumOf(trades, f) / float64(len(trades))
}

func pnl(t Trade) float64      { return t.NetPnL }
func ret(t Trade) float64      { return t.Return }
func duration(t Trade) float64 { return t.DurationDays() }

// ratioOrInf returns |num/den|, +Inf when only the numerator is positive, else 0.
func ratioOrInf(num, den float64) float64 {
	if den != 0 {
		return math.Abs(num / den)
	}
	if num > 0 {
		return math.Inf(1)
	}
	return 0
}

// ComputeKPIs derives the headline numbers from trades and the daily curve.
func ComputeKPIs(trades []Trade, curve []Point) KPIs {
	wins, losses := splitWins(trades)

	var profitablePct float64
	if len(trades) > 0 {
		profitablePct = float64(len(wins)) / float64(len(trades)) * 100
	}

	maxDDAbs, maxDDPct := math.NaN(), math.NaN()
	if len(curve) > 0 {
		maxDDAbs, maxDDPct = math.Inf(1), math.Inf(1)
		peak := math.Inf(-1)
		for _, p := range curve {
			v := float64(p.Value)
			peak = math.Max(peak, v)
			maxDDAbs = math.Min(maxDDAbs, v-peak)
			maxDDPct = math.Min(maxDDPct, (v/peak-1)*100)
		}
	}

	var totalReturn float64
	if len(curve) > 1 && curve[0].Value != 0 {
		totalReturn = (float64(curve[len(curve)-1].Value)/float64(curve[0].Value) - 1) * 100
	}

	k := KPIs{
		TotalPnL:            Value(sumOf(trades, pnl)),
		TotalReturnPct:      Value(totalReturn),
		MaxDrawdownAbs:      Value(maxDDAbs),
		MaxDrawdownPct:      Value(maxDDPct),
		TotalTrades:         len(trades),
		ProfitableTradesPct: Value(profitablePct),
		ProfitFactor:        Value(ratioOrInf(sumOf(wins, pnl), sumOf(losses, pnl))),
	}

	annualized, avgDays, totalDays := annualizedMetrics(trades)
	k.AnnualizedReturnPct = Value(annualized)
	k.AvgTradeDurationDays = Value(avgDays)
	k.TotalTradeDays = Value(totalDays)
	return k
}

// annualizedMetrics compounds the average trade return over the number of
// average-length trades that fit in a year.
func annualizedMetrics(trades []Trade) (annualizedPct, avgDays, totalDays float64) {
	if len(trades) == 0 {
		return 0, 0, 0
	}
	avgReturn := meanOf(trades, ret)
	avgDays = meanOf(trades, duration)
	var annualized float64
	if avgDays != 0 {
		annualized = math.Pow(1+avgReturn, 365/avgDays) - 1
	}
	return annualized * 100, avgDays, sumOf(trades, duration)
}

// dailyReturns is the percentage change of the curve with non-finite values dropped.
func dailyReturns(curve []Point) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		r := float64(curve[i].Value)/float64(curve[i-1].Value) - 1
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	m := mean(xs)
	var v float64
	for _, x := range xs {
		v += (x - m) * (x - m)
	}
	return math.Sqrt(v / float64(len(xs)-1))
}

// SharpeRatio annualises daily returns with 252 trading days.
func SharpeRatio(curve []Point, riskFree float64) float64 {
	returns := dailyReturns(curve)
	if len(returns) < 2 {
		return 0
	}
	std := sampleStd(returns)
	if math.IsNaN(std) || std == 0 {
		return 0
	}
	return (mean(returns) - riskFree/tradingDays) / std * math.Sqrt(tradingDays)
}

// SortinoRatio is SharpeRatio with the deviation of losing days only.
func SortinoRatio(curve []Point, riskFree float64) float64 {
	returns := dailyReturns(curve)
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) < 2 {
		return 0
	}
	std := sampleStd(downside)
	if math.IsNaN(std) || std == 0 {
		return 0
	}
	return (mean(returns) - riskFree/tradingDays) / std * math.Sqrt(tradingDays)
}

func maxOf(trades []Trade, f func(Trade) float64) float64 {
	if len(trades) == 0 {
		return 0
	}
	m := f(trades[0])
	for _, t := range trades[1:] {
		m = math.Max(m, f(t))
	}
	return m
}

func minOf(trades []Trade, f func(Trade) float64) float64 {
	if len(trades) == 0 {
		return 0
	}
	m := f(trades[0])
	for _, t := range trades[1:] {
		m = math.Min(m, f(t))
	}
	return m
}

func metric(label string, v float64) Metric {
	return Metric{Label: label, Value: Value(v)}
}

// BuildSections lays out the report tabs.
func BuildSections(k KPIs, trades []Trade, curve []Point, riskFree float64) Sections {
	wins, losses := splitWins(trades)
	avgWin := meanOf(wins, pnl)
	avgLoss := meanOf(losses, pnl)

	var buyHold, maxRunUp float64
	if len(curve) > 1 {
		buyHold = float64(curve[len(curve)-1].Value - curve[0].Value)
	}
	if len(curve) > 0 {
		trough := math.Inf(1)
		for _, p := range curve {
			v := float64(p.Value)
			trough = math.Min(trough, v)
			maxRunUp = math.Max(maxRunUp, v-trough)
		}
	}

	overview := Section{
		Title: "Overview",
		Metrics: []Metric{
			metric("Total P&L", float64(k.TotalPnL)),
			metric("Max equity drawdown", float64(k.MaxDrawdownAbs)),
			metric("Total trades", float64(k.TotalTrades)),
			metric("Profitable trades %", float64(k.ProfitableTradesPct)),
			metric("Profit factor", float64(k.ProfitFactor)),
			metric("Annualized P&L %", float64(k.AnnualizedReturnPct)),
		},
	}

	performance := Section{
		Title: "Performance",
		Metrics: []Metric{
			metric("Open P&L", 0),
			metric("Net profit", float64(k.TotalPnL)),
			metric("Gross profit", sumOf(wins, pnl)),
			metric("Gross loss", sumOf(losses, pnl)),
			metric("Commission paid", 0),
			metric("Buy & hold return", buyHold),
			metric("Max equity run-up", maxRunUp),
			metric("Max equity drawdown", float64(k.MaxDrawdownAbs)),
			metric("Max contracts held", 1),
		},
	}

	tradesAnalysis := Section{
		Title: "Trades analysis",
		Metrics: []Metric{
			metric("Total trades", float64(k.TotalTrades)),
			metric("Winning trades", float64(len(wins))),
			metric("Losing trades", float64(len(losses))),
			metric("% Profitable", float64(k.ProfitableTradesPct)),
			metric("Avg trade", meanOf(trades, pnl)),
			metric("Avg trade %", meanOf(trades, ret)*100),
			metric("Avg winning trade", avgWin),
			metric("Avg losing trade", avgLoss),
			metric("Ratio avg win / avg loss", ratioOrInf(avgWin, avgLoss)),
			metric("Largest win", maxOf(wins, pnl)),
			metric("Largest loss", minOf(losses, pnl)),
			metric("Largest win %", maxOf(wins, ret)*100),
			metric("Largest loss %", minOf(losses, ret)*100),
			metric("Avg # bars in trades", meanOf(trades, duration)),
			metric("Avg # bars winning", meanOf(wins, duration)),
			metric("Avg # bars losing", meanOf(losses, duration)),
		},
	}

	riskRatios := Section{
		Title: "Risk/performance ratios",
		Metrics: []Metric{
			metric("Sharpe ratio", SharpeRatio(curve, riskFree)),
			metric("Sortino ratio", SortinoRatio(curve, riskFree)),
			metric("Profit factor", float64(k.ProfitFactor)),
			metric("Margin calls", 0),
		},
	}

	return Sections{
		Overview:       overview,
		Performance:    performance,
		TradesAnalysis: tradesAnalysis,
		RiskRatios:     riskRatios,
	}
}

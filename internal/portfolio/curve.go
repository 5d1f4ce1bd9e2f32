package portfolio

import (
	"math"
	"sort"
	"time"
)

// DateRange is an inclusive time window; a nil bound is open.
type DateRange struct {
	From *time.Time `json:"from"`
	To   *time.Time `json:"to"`
}

// Contains reports whether t lies inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}

// Point is one sample of a curve.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     Value     `json:"value"`
}

// Series is the equity curve of one ticker.
type Series struct {
	Ticker  string
	Capital float64
	Points  []Point
}

// BuildEquity compounds capital through trades in exit order. The curve starts
// at capital on the first entry; trades exiting at the same instant keep the
// last value.
func BuildEquity(trades []Trade, capital float64) []Point {
	if len(trades) == 0 {
		return nil
	}

	byTime := make(map[time.Time]float64, len(trades)+1)
	equity := capital
	for _, t := range trades {
		equity *= 1 + t.Return
		byTime[t.ExitTime] = equity
	}
	start := trades[0].EntryTime
	if _, ok := byTime[start]; !ok {
		byTime[start] = capital
	}

	points := make([]Point, 0, len(byTime))
	for ts, v := range byTime {
		points = append(points, Point{Timestamp: ts, Value: Value(v)})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	return points
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func isBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// sampleDaily samples points on business days between the first and last
// observation; each day takes the last value observed on or before it.
func sampleDaily(points []Point) map[time.Time]float64 {
	out := make(map[time.Time]float64)
	if len(points) == 0 {
		return out
	}
	first, last := day(points[0].Timestamp), day(points[len(points)-1].Timestamp)
	i := 0
	var current float64
	seen := false
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		next := d.AddDate(0, 0, 1)
		for i < len(points) && points[i].Timestamp.Before(next) {
			current = float64(points[i].Value)
			seen = true
			i++
		}
		if seen && isBusinessDay(d) {
			out[d] = current
		}
	}
	return out
}

// AlignDaily combines per-ticker curves into one daily portfolio curve.
// Values are forward filled on the union of days; a ticker counts at its
// allocated capital before its first sample.
func AlignDaily(series []Series) []Point {
	sampled := make([]map[time.Time]float64, len(series))
	daySet := make(map[time.Time]struct{})
	for i, s := range series {
		sampled[i] = sampleDaily(s.Points)
		for d := range sampled[i] {
			daySet[d] = struct{}{}
		}
	}
	if len(daySet) == 0 {
		return nil
	}

	days := make([]time.Time, 0, len(daySet))
	for d := range daySet {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	last := make([]float64, len(series))
	for i, s := range series {
		last[i] = s.Capital
	}

	curve := make([]Point, len(days))
	for k, d := range days {
		var total float64
		for i := range series {
			if v, ok := sampled[i][d]; ok {
				last[i] = v
			}
			total += last[i]
		}
		curve[k] = Point{Timestamp: d, Value: Value(total)}
	}
	return curve
}

// DrawdownSeries returns (v - runningMax) / runningMax per point, 0 where undefined.
func DrawdownSeries(curve []Point) []Point {
	out := make([]Point, len(curve))
	peak := math.Inf(-1)
	for i, p := range curve {
		v := float64(p.Value)
		if v > peak {
			peak = v
		}
		dd := (v - peak) / peak
		if math.IsNaN(dd) || math.IsInf(dd, 0) {
			dd = 0
		}
		out[i] = Point{Timestamp: p.Timestamp, Value: Value(dd)}
	}
	return out
}

// BuyHoldCurve scales the curve by its own first value.
func BuyHoldCurve(curve []Point) []Point {
	if len(curve) == 0 {
		return nil
	}
	first := float64(curve[0].Value)
	out := make([]Point, len(curve))
	for i, p := range curve {
		out[i] = Point{Timestamp: p.Timestamp, Value: Value(first * (float64(p.Value) / first))}
	}
	return out
}

package portfolio

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/equicurve/internal/core"
	"github.com/newthinker/equicurve/internal/ingest"
)

// Trade is one closed trade reconstructed from its entry and exit rows.
type Trade struct {
	Ticker       string    `json:"ticker"`
	Number       int       `json:"tradeNumber"`
	EntryTime    time.Time `json:"entryTime"`
	ExitTime     time.Time `json:"exitTime"`
	NetPnL       float64   `json:"netPnl"`
	PositionSize float64   `json:"positionSize"`
	Return       float64   `json:"returnPct"`
	RunUp        float64   `json:"runUp"`
	Drawdown     float64   `json:"drawdown"`
	Direction    string    `json:"direction"`
}

// DurationDays is the holding period in days, never below 1e-9.
func (t Trade) DurationDays() float64 {
	return math.Max(t.ExitTime.Sub(t.EntryTime).Seconds()/86400, 1e-9)
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006/01/02 15:04",
	"2006/01/02",
	"01/02/2006 15:04",
	"01/02/2006",
	"Jan 2, 2006, 15:04",
	"Jan 2, 2006",
}

// ParseTime reads a Date/Time cell. Naive timestamps are taken as UTC.
func ParseTime(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("invalid timestamp %v", v)
	}
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// number coerces a cell to float64. Thousands separators are accepted.
func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case int:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(x), ",", ""), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

type timedRow struct {
	at  time.Time
	row core.Row
}

// ExtractTrades groups rows by trade number and builds one Trade per group,
// sorted by exit time.
func ExtractTrades(ticker string, rows []core.Row) ([]Trade, error) {
	groups := make(map[string][]timedRow)
	var order []string
	for _, row := range rows {
		key := fmt.Sprint(row[ingest.ColTradeNumber])
		at, err := ParseTime(row[ingest.ColDateTime])
		if err != nil {
			return nil, fmt.Errorf("%s trade %s: %w", ticker, key, err)
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], timedRow{at: at, row: row})
	}

	trades := make([]Trade, 0, len(groups))
	for _, key := range order {
		group := groups[key]
		sort.SliceStable(group, func(i, j int) bool { return group[i].at.Before(group[j].at) })
		entry, exit := group[0], group[len(group)-1]

		pnl, ok := number(exit.row[ingest.ColNetPnL])
		if !ok {
			return nil, fmt.Errorf("%s trade %s: invalid %s %v", ticker, key, ingest.ColNetPnL, exit.row[ingest.ColNetPnL])
		}
		runup, _ := number(exit.row[ingest.ColRunUp])
		drawdown, _ := number(exit.row[ingest.ColDrawdown])

		direction := "Long"
		if d, ok := exit.row[ingest.ColType].(string); ok && d != "" {
			direction = d
		}

		var position float64
		for _, tr := range group {
			if v, ok := number(tr.row[ingest.ColPositionSize]); ok && v != 0 {
				position = v
				break
			}
		}

		var ret float64
		if math.Abs(position) > 1e-9 {
			ret = pnl / position
		} else {
			// No usable size: estimate it from the largest excursion.
			magnitude := math.Max(math.Max(math.Abs(runup), math.Abs(drawdown)), 1e-6)
			position = math.Abs(pnl) / magnitude
			if position != 0 {
				ret = pnl / position
			}
		}

		tradeNo, _ := number(exit.row[ingest.ColTradeNumber])
		trades = append(trades, Trade{
			Ticker:       ticker,
			Number:       int(tradeNo),
			EntryTime:    entry.at,
			ExitTime:     exit.at,
			NetPnL:       pnl,
			PositionSize: position,
			Return:       ret,
			RunUp:        runup,
			Drawdown:     drawdown,
			Direction:    direction,
		})
	}

	sort.SliceStable(trades, func(i, j int) bool { return trades[i].ExitTime.Before(trades[j].ExitTime) })
	return trades, nil
}

// FilterTrades keeps trades whose exit time lies inside r.
func FilterTrades(trades []Trade, r DateRange) []Trade {
	if r.From == nil && r.To == nil {
		return trades
	}
	out := make([]Trade, 0, len(trades))
	for _, t := range trades {
		if r.Contains(t.ExitTime) {
			out = append(out, t)
		}
	}
	return out
}

package ingest

import (
	"fmt"
	"strings"

	"github.com/newthinker/equicurve/internal/core"
)

// Canonical trade-list column names.
const (
	ColTradeNumber   = "Trade #"
	ColType          = "Type (Long/Short)"
	ColDateTime      = "Date/Time"
	ColSignal        = "Signal"
	ColPrice         = "Price"
	ColPositionSize  = "Position size"
	ColNetPnL        = "Net P&L"
	ColRunUp         = "Run-up"
	ColDrawdown      = "Drawdown"
	ColCumulativePnL = "Cumulative P&L"

	colPositionQty   = "Position size (qty)"
	colPositionValue = "Position size (value)"
)

// RequiredColumns must all be present after normalisation.
var RequiredColumns = []string{
	ColTradeNumber,
	ColType,
	ColDateTime,
	ColSignal,
	ColPrice,
	ColPositionSize,
	ColNetPnL,
	ColRunUp,
	ColDrawdown,
	ColCumulativePnL,
}

type alias struct {
	canonical string
	names     []string
}

// columnAliases lists accepted header variants, in order of preference.
var columnAliases = []alias{
	{ColType, []string{"Type", "Trade type", "Direction", "Side"}},
	{ColPrice, []string{"Price INR", "Price USD", "Price (INR)", "Price (USD)", "Entry price", "Exit price"}},
	{ColPositionSize, []string{colPositionValue, colPositionQty, "Position size value", "Position size quantity"}},
	{ColNetPnL, []string{"Net P&L INR", "Net P&L USD", "Net profit", "Net Profit", "Profit"}},
	{ColRunUp, []string{"Run-up INR", "Run-up USD", "Runup", "Max run-up", "Maximum Run-up"}},
	{ColDrawdown, []string{"Drawdown INR", "Drawdown USD", "Draw down", "Max drawdown", "Maximum Drawdown"}},
	{ColCumulativePnL, []string{"Cumulative P&L INR", "Cumulative P&L USD", "Cumulative profit", "Cumulative Profit"}},
}

// Table is a parsed file: the header as a set of names plus its rows.
type Table struct {
	Columns []string
	Rows    []core.Row
}

func (t Table) has(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// NormalizeColumns trims header names and renames known variants to the
// canonical schema. When both position size variants are present the value
// column is kept and the quantity column dropped.
func NormalizeColumns(t Table) Table {
	t = trimHeaders(t)

	rename := make(map[string]string)
	drop := make(map[string]bool)
	covered := make(map[string]bool)
	for _, c := range t.Columns {
		covered[c] = true
	}

	if t.has(colPositionQty) && t.has(colPositionValue) {
		drop[colPositionQty] = true
		if !t.has(ColPositionSize) {
			rename[colPositionValue] = ColPositionSize
			covered[ColPositionSize] = true
		}
	}

	for _, a := range columnAliases {
		if covered[a.canonical] {
			continue
		}
		for _, name := range a.names {
			if drop[name] || !t.has(name) {
				continue
			}
			if _, taken := rename[name]; taken {
				continue
			}
			rename[name] = a.canonical
			covered[a.canonical] = true
			break
		}
	}

	return apply(t, func(name string) (string, bool) {
		if drop[name] {
			return "", false
		}
		if to, ok := rename[name]; ok {
			return to, true
		}
		return name, true
	})
}

func trimHeaders(t Table) Table {
	return apply(t, func(name string) (string, bool) {
		return strings.TrimSpace(name), true
	})
}

// apply maps every column name through fn; fn returns false to drop a column.
func apply(t Table, fn func(string) (string, bool)) Table {
	out := Table{Columns: make([]string, 0, len(t.Columns))}
	for _, c := range t.Columns {
		if name, keep := fn(c); keep {
			out.Columns = append(out.Columns, name)
		}
	}
	out.Rows = make([]core.Row, len(t.Rows))
	for i, row := range t.Rows {
		nr := make(core.Row, len(row))
		for k, v := range row {
			if name, keep := fn(k); keep {
				nr[name] = v
			}
		}
		out.Rows[i] = nr
	}
	return out
}

// MissingColumnsError lists required columns absent from a file.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Columns, ", "))
}

// ValidateColumns reports every required column missing from t.
func ValidateColumns(t Table) error {
	var missing []string
	for _, c := range RequiredColumns {
		if !t.has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Columns: missing}
	}
	return nil
}

// dedupe drops rows repeating an earlier (Trade #, Date/Time, Signal) triple.
func dedupe(rows []core.Row) ([]core.Row, int) {
	seen := make(map[string]bool, len(rows))
	out := make([]core.Row, 0, len(rows))
	for _, row := range rows {
		key := fmt.Sprintf("%v\x00%v\x00%v", row[ColTradeNumber], row[ColDateTime], row[ColSignal])
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, row)
	}
	return out, len(rows) - len(out)
}

package ingest

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

// ErrBadFilename is returned for names not shaped like Strategy_Ticker_YYYY-MM-DD.csv.
var ErrBadFilename = errors.New("filename must follow Strategy_Ticker_YYYY-MM-DD.csv")

// ParseFilename splits an export name into strategy, ticker and export date.
// The strategy may itself contain underscores.
func ParseFilename(name string) (strategy, ticker string, exportDate time.Time, err error) {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	last := strings.LastIndex(base, "_")
	if last < 0 {
		return "", "", time.Time{}, ErrBadFilename
	}
	datePart := base[last+1:]
	rest := base[:last]

	mid := strings.LastIndex(rest, "_")
	if mid < 0 {
		return "", "", time.Time{}, ErrBadFilename
	}
	strategy, ticker = rest[:mid], rest[mid+1:]

	exportDate, err = time.Parse("2006-01-02", datePart)
	if err != nil {
		return "", "", time.Time{}, ErrBadFilename
	}
	return strategy, ticker, exportDate, nil
}

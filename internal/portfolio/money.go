package portfolio

import (
	"fmt"
	"math"
	"strings"

	"github.com/Rhymond/go-money"
)

// NormalizeCurrency upper-cases code and checks it against ISO 4217.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if money.GetCurrency(code) == nil {
		return "", fmt.Errorf("unknown currency %q", code)
	}
	return code, nil
}

// FormatMoney renders amount in the currency's display format, e.g. "$1,234.50".
// Non-finite amounts render as "n/a".
func FormatMoney(amount float64, code string) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return "n/a"
	}
	cur := money.GetCurrency(code)
	if cur == nil {
		return fmt.Sprintf("%.2f %s", amount, code)
	}
	minor := math.Round(amount * math.Pow10(cur.Fraction))
	return money.New(int64(minor), cur.Code).Display()
}

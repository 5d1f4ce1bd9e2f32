package portfolio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCurrency(t *testing.T) {
	code, err := NormalizeCurrency(" inr ")
	require.NoError(t, err)
	assert.Equal(t, "INR", code)

	_, err = NormalizeCurrency("ZZZ")
	assert.Error(t, err)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$1,234.50", FormatMoney(1234.5, "USD"))
	assert.Equal(t, "-$20.00", FormatMoney(-20, "USD"))
	assert.Equal(t, "n/a", FormatMoney(math.Inf(1), "USD"))
	assert.Equal(t, "1.00 ZZZ", FormatMoney(1, "ZZZ"))
}

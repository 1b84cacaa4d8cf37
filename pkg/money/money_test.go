package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaisAndCents(t *testing.T) {
	assert.True(t, Reais(2990).Equal(decimal.RequireFromString("29.90")))
	assert.Equal(t, int64(2990), Cents(decimal.RequireFromString("29.90")))
	assert.Equal(t, int64(1), Cents(decimal.RequireFromString("0.005")))
}

func TestParseBRL(t *testing.T) {
	cases := map[string]string{
		"R$ 45.678,90": "45678.90",
		"45678.90":     "45678.90",
		"R$ 1.234":     "1234",
		" 950,5 ":      "950.5",
		"12000":        "12000",
	}
	for in, want := range cases {
		got, err := ParseBRL(in)
		require.NoError(t, err, in)
		assert.True(t, got.Equal(decimal.RequireFromString(want)), "%s => %s", in, got)
	}

	_, err := ParseBRL("R$ ")
	require.Error(t, err)
	_, err = ParseBRL("consulte")
	require.Error(t, err)
}

func TestFormatBRL(t *testing.T) {
	assert.Equal(t, "R$ 45.678,90", FormatBRL(decimal.RequireFromString("45678.9")))
	assert.Equal(t, "R$ 999,00", FormatBRL(decimal.NewFromInt(999)))
	assert.Equal(t, "R$ 1.000.000,00", FormatBRL(decimal.NewFromInt(1000000)))
	assert.Equal(t, "-R$ 10,50", FormatBRL(decimal.RequireFromString("-10.5")))
}

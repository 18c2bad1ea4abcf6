package store

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCentsCodec(t *testing.T) {
	tests := []struct {
		in    string
		cents int64
	}{
		{"0", 0},
		{"0.01", 1},
		{"12.34", 1234},
		{"-5.50", -550},
		{"1200", 120000},
	}
	for _, tc := range tests {
		d := decimal.RequireFromString(tc.in)
		require.Equal(t, tc.cents, toCents(d), "toCents(%s)", tc.in)
		require.True(t, fromCents(tc.cents).Equal(d), "fromCents(%d)", tc.cents)
	}

	// Sub-cent values round to the nearest cent on the way in.
	require.Equal(t, int64(1001), toCents(decimal.RequireFromString("10.005")))
}

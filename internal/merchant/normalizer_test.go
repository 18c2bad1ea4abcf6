package merchant

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	n := NewNormalizer(nil)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"alias prefix", "AMZN MKTP US*2AB34", "amazon"},
		{"alias with trailing ref", "AMAZON.COM*M12X99", "amazon"},
		{"plain canonical", "Amazon Prime", "amazon"},
		{"store number stripped", "WM SUPERCENTER #1234 SPRINGFIELD", "walmart"},
		{"pos prefix stripped", "POS MCDONALDS 4421", "mcdonalds"},
		{"apostrophe variant", "McDonald's", "mcdonalds"},
		{"google processor style", "GOOGLE *YouTubePremium", "google"},
		{"apple billing", "APPLE.COM/BILL", "apple"},
		{"unknown merchant passes through", "Corner Bakery Cafe", "corner bakery cafe"},
		{"trailing id stripped", "CITY PARKING 99481", "city parking"},
		{"single typo fuzzy match", "WAL-MERT", "walmart"},
		{"short strings skip fuzzy", "amzn", "amzn"},
		{"whitespace only", "   ", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, n.Normalize(tc.raw))
		})
	}
}

func TestNormalizeOrderIndependent(t *testing.T) {
	n := NewNormalizer(nil)

	variants := []string{"AMZN MKTP US*2AB34", "Amazon.com*M12X99", "AMAZON PRIME"}
	first := n.Normalize(variants[0])
	for _, v := range variants {
		require.Equal(t, first, n.Normalize(v), "variant %q diverged", v)
	}
}

func TestNormalizeCustomAliases(t *testing.T) {
	n := NewNormalizer(map[string]string{"acme corp": "acme"})

	require.Equal(t, "acme", n.Normalize("ACME CORP #42"))
	// Defaults are replaced, not merged, when a table is supplied.
	require.Equal(t, "amazon.com", n.Normalize("AMAZON.COM"))
}

func TestDisplayName(t *testing.T) {
	n := NewNormalizer(nil)

	tests := []struct {
		key  string
		want string
	}{
		{"amazon", "Amazon"},
		{"corner bakery cafe", "Corner Bakery Cafe"},
		{"bp", "BP"},
		{"7 eleven", "7 Eleven"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, n.DisplayName(tc.key))
	}
}

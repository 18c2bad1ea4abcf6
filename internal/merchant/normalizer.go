// Package merchant canonicalizes raw transaction descriptions into stable
// merchant keys. Normalization is deterministic and total: the same raw
// string always yields the same key, and variant spellings of one merchant
// collapse to one key regardless of which variant is seen first.
package merchant

import (
	"regexp"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// Payment-processor and point-of-sale prefixes carried by bank feeds.
	prefixPattern = regexp.MustCompile(`(?i)^(pos |eftpos |visa |mastercard |amex |paypal \*|sq \*)`)
	// Trailing store numbers: "#1234 NYC".
	storeNumberPattern = regexp.MustCompile(`\s*#\s*\d+.*$`)
	// Trailing reference/authorization codes: "*AB1CD".
	refCodePattern = regexp.MustCompile(`\s*\*\s*\w+.*$`)
	// Trailing numeric IDs of length >= 3.
	trailingIDPattern = regexp.MustCompile(`\s+\d{3,}.*$`)
)

// DefaultAliases maps known variant spellings to a canonical key. Matching
// is prefix-or-exact against the cleaned lowercase name. The table is
// expanded as more merchants are encountered; deployments override or
// extend it through configuration.
func DefaultAliases() map[string]string {
	return map[string]string{
		"amzn mktp us":   "amazon",
		"amzn mktp":      "amazon",
		"amazon.com":     "amazon",
		"amazon prime":   "amazon",
		"wal-mart":       "walmart",
		"wm supercenter": "walmart",
		"mcdonald's":     "mcdonalds",
		"mcdonalds":      "mcdonalds",
		"google *":       "google",
		"apple.com/bill": "apple",
	}
}

// Normalizer turns raw merchant strings into canonical keys. It is
// constructed once per process with its alias table and shared by
// reference; it holds no mutable state after construction.
type Normalizer struct {
	aliases map[string]string
	// alias keys sorted longest-first so prefix matching is deterministic
	// and the most specific alias wins.
	aliasKeys []string
	caser     cases.Caser
}

// NewNormalizer builds a Normalizer from an alias table. A nil table gets
// the defaults.
func NewNormalizer(aliases map[string]string) *Normalizer {
	if aliases == nil {
		aliases = DefaultAliases()
	}
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return &Normalizer{
		aliases:   aliases,
		aliasKeys: keys,
		caser:     cases.Title(language.English),
	}
}

// Normalize returns the canonical key for a raw merchant string. Steps:
// trim, strip store numbers / reference codes / trailing IDs / processor
// prefixes, lowercase, then resolve against the alias table. If nothing
// matches, the cleaned lowercase string is itself the key.
func (n *Normalizer) Normalize(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = prefixPattern.ReplaceAllString(cleaned, "")
	cleaned = storeNumberPattern.ReplaceAllString(cleaned, "")
	cleaned = refCodePattern.ReplaceAllString(cleaned, "")
	cleaned = trailingIDPattern.ReplaceAllString(cleaned, "")
	lowered := strings.ToLower(strings.TrimSpace(cleaned))

	if canonical, ok := n.resolveAlias(lowered); ok {
		return canonical
	}
	return lowered
}

// resolveAlias matches prefix-or-exact first, then falls back to a
// distance-1 fuzzy match to absorb single-character feed typos. Keys are
// scanned longest-first so the result does not depend on map order.
func (n *Normalizer) resolveAlias(lowered string) (string, bool) {
	for _, key := range n.aliasKeys {
		if lowered == key || strings.HasPrefix(lowered, key) {
			return n.aliases[key], true
		}
	}
	if len(lowered) > 4 {
		for _, key := range n.aliasKeys {
			if levenshtein.ComputeDistance(lowered, key) <= 1 {
				return n.aliases[key], true
			}
		}
	}
	return "", false
}

// DisplayName derives a title-cased presentation name from a normalized key.
func (n *Normalizer) DisplayName(key string) string {
	spaced := strings.ReplaceAll(key, "_", " ")
	words := strings.Fields(spaced)
	for i, w := range words {
		if len(w) > 2 {
			words[i] = n.caser.String(w)
		} else {
			words[i] = strings.ToUpper(w)
		}
	}
	return strings.Join(words, " ")
}

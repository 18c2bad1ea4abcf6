package store

import "github.com/shopspring/decimal"

// Amounts are persisted as integer cents in the sqlite and firestore
// backends; domain types carry decimals. Conversion is lossless for
// currency-scaled values.

func toCents(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

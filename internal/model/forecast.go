package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ForecastSchemaVersion tags the structured JSON payloads inside a
// snapshot so schema drift across stored history stays detectable.
const ForecastSchemaVersion = 1

// DailyBalance is one entry of the 30-day projection. The field names and
// ordering are a contract consumed directly by presentation layers.
type DailyBalance struct {
	Day       int             `json:"day"`
	Date      string          `json:"date"`
	Projected decimal.Decimal `json:"projected"`
	Low       decimal.Decimal `json:"low"`
	High      decimal.Decimal `json:"high"`
}

// ConfidenceInputs records the exact values that drove the forecast
// confidence tier. This is a hard explainability requirement: a tier with
// no traceable inputs is a defect.
type ConfidenceInputs struct {
	SchemaVersion          int `json:"schema_version"`
	DaysOfHistory          int `json:"days_of_history"`
	TransactionCount       int `json:"transaction_count"`
	AppliedPatternCount    int `json:"applied_pattern_count"`
	HighConfidencePatterns int `json:"high_confidence_patterns"`
	ConstraintCount        int `json:"constraint_count"`
	PendingCount           int `json:"pending_count"`
}

// ForecastSnapshot is one immutable forecast computation. Snapshots are
// never mutated or deleted; "latest" is purely ComputedAt ordering.
type ForecastSnapshot struct {
	ID                  string          `json:"id"`
	UserID              string          `json:"user_id"`
	SafeToSpendToday    decimal.Decimal `json:"safe_to_spend_today"`
	SafeToSpendWeek     decimal.Decimal `json:"safe_to_spend_week"`
	DailyBalances       []DailyBalance  `json:"daily_balances"`
	ProjectedEndBalance decimal.Decimal `json:"projected_end_balance"`
	ProjectedEndLow     decimal.Decimal `json:"projected_end_low"`
	ProjectedEndHigh    decimal.Decimal `json:"projected_end_high"`
	Confidence          Confidence      `json:"confidence"`
	ConfidenceInputs    ConfidenceInputs `json:"confidence_inputs"`
	Assumptions         []string        `json:"assumptions"`
	UrgencyScore        int             `json:"urgency_score"`
	UrgencyFactors      map[string]int  `json:"urgency_factors"`
	ComputedAt          time.Time       `json:"computed_at"`
}

package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is the cadence of a recurring pattern.
type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiweekly  Frequency = "biweekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyAnnual    Frequency = "annual"
)

// PeriodDays returns the nominal period length in days.
func (f Frequency) PeriodDays() int {
	switch f {
	case FrequencyWeekly:
		return 7
	case FrequencyBiweekly:
		return 14
	case FrequencyMonthly:
		return 30
	case FrequencyQuarterly:
		return 91
	case FrequencyAnnual:
		return 365
	default:
		return 0
	}
}

// Confidence quantifies how much evidence backs a pattern or forecast.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// RecurringPattern is a detected periodic cash-flow item scoped to one
// user. At most one active pattern exists per (user, merchant, category,
// direction, frequency); the store enforces this through the natural key.
type RecurringPattern struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	MerchantID       string          `json:"merchant_id"`
	Category         string          `json:"category,omitempty"`
	Direction        Direction       `json:"direction"`
	EstimatedAmount  decimal.Decimal `json:"estimated_amount"`
	AmountVariance   decimal.Decimal `json:"amount_variance"`
	Frequency        Frequency       `json:"frequency"`
	Confidence       Confidence      `json:"confidence"`
	NextExpectedDate time.Time       `json:"next_expected_date"`
	LastObservedDate time.Time       `json:"last_observed_date"`
	Active           bool            `json:"active"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// NaturalKey is the upsert key for a pattern. Deterministic so that
// re-running detection on unchanged data rewrites the same row.
func (p *RecurringPattern) NaturalKey() string {
	return PatternNaturalKey(p.UserID, p.MerchantID, p.Category, p.Direction, p.Frequency)
}

// PatternNaturalKey builds the deterministic identity for one
// (user, merchant, category, direction, frequency) tuple. Direction is
// part of the identity: a monthly transfer out and a monthly
// reimbursement in at the same merchant are distinct patterns.
func PatternNaturalKey(userID, merchantID, category string, dir Direction, freq Frequency) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", userID, merchantID, category, dir, freq)
}

// SignedAmount returns the estimated amount with its direction applied:
// income positive, expense negative.
func (p *RecurringPattern) SignedAmount() decimal.Decimal {
	if p.Direction == DirectionCredit {
		return p.EstimatedAmount
	}
	return p.EstimatedAmount.Neg()
}

package service

import (
	"github.com/shopspring/decimal"

	"github.com/stackfin/backend/internal/model"
)

// computeUrgency scores how much the user's near-term finances need
// attention, 0 to 100. Each factor contributes its full labelled amount,
// the maxima sum to exactly 100, and the returned factor map always adds
// up to the returned score so the score is fully explainable.
func computeUrgency(balance decimal.Decimal, snap *model.ForecastSnapshot, avgDailySpend decimal.Decimal) (int, map[string]int) {
	factors := make(map[string]int)

	// Runway: days of spending left at the observed average burn rate.
	// Zero observed spend means no measurable burn, so no runway risk.
	if avgDailySpend.IsPositive() {
		runway := balance.Div(avgDailySpend)
		switch {
		case runway.LessThan(decimal.NewFromInt(7)):
			factors["low_runway"] = 40
		case runway.LessThan(decimal.NewFromInt(14)):
			factors["low_runway"] = 25
		case runway.LessThan(decimal.NewFromInt(30)):
			factors["low_runway"] = 10
		}
	}

	switch {
	case snap.SafeToSpendToday.IsNegative():
		factors["negative_safe_to_spend"] = 30
	case snap.SafeToSpendWeek.IsZero():
		factors["exhausted_week_safe_to_spend"] = 15
	}

	switch {
	case snap.ProjectedEndBalance.IsNegative():
		factors["negative_trajectory"] = 20
	case snap.ProjectedEndBalance.LessThan(balance.Div(decimal.NewFromInt(2))):
		factors["declining_trajectory"] = 10
	}

	switch {
	case snap.ConfidenceInputs.AppliedPatternCount == 0:
		factors["no_pattern_coverage"] = 10
	case snap.ConfidenceInputs.HighConfidencePatterns == 0:
		factors["weak_pattern_coverage"] = 5
	}

	score := 0
	for _, v := range factors {
		score += v
	}
	return score, factors
}

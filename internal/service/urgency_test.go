package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stackfin/backend/internal/model"
)

func TestComputeUrgency(t *testing.T) {
	tests := []struct {
		name          string
		balance       float64
		avgDailySpend float64
		snap          model.ForecastSnapshot
		wantScore     int
		wantFactors   map[string]int
	}{
		{
			name:          "everything wrong scores the full hundred",
			balance:       100,
			avgDailySpend: 50, // 2 days of runway
			snap: model.ForecastSnapshot{
				SafeToSpendToday:    decimal.NewFromInt(-40),
				SafeToSpendWeek:     decimal.Zero,
				ProjectedEndBalance: decimal.NewFromInt(-300),
			},
			wantScore: 100,
			wantFactors: map[string]int{
				"low_runway":             40,
				"negative_safe_to_spend": 30,
				"negative_trajectory":    20,
				"no_pattern_coverage":    10,
			},
		},
		{
			name:          "moderate pressure",
			balance:       1000,
			avgDailySpend: 80, // 12.5 days of runway
			snap: model.ForecastSnapshot{
				SafeToSpendToday:    decimal.NewFromInt(120),
				SafeToSpendWeek:     decimal.Zero,
				ProjectedEndBalance: decimal.NewFromInt(400), // under half of balance
				ConfidenceInputs:    model.ConfidenceInputs{AppliedPatternCount: 2},
			},
			wantScore: 55,
			wantFactors: map[string]int{
				"low_runway":                   25,
				"exhausted_week_safe_to_spend": 15,
				"declining_trajectory":         10,
				"weak_pattern_coverage":        5,
			},
		},
		{
			name:          "healthy finances score zero",
			balance:       5000,
			avgDailySpend: 60,
			snap: model.ForecastSnapshot{
				SafeToSpendToday:    decimal.NewFromInt(2000),
				SafeToSpendWeek:     decimal.NewFromInt(1500),
				ProjectedEndBalance: decimal.NewFromInt(4800),
				ConfidenceInputs: model.ConfidenceInputs{
					AppliedPatternCount:    3,
					HighConfidencePatterns: 2,
				},
			},
			wantScore:   0,
			wantFactors: map[string]int{},
		},
		{
			name:          "no observed burn means no runway factor",
			balance:       50,
			avgDailySpend: 0,
			snap: model.ForecastSnapshot{
				SafeToSpendToday:    decimal.NewFromInt(50),
				SafeToSpendWeek:     decimal.NewFromInt(50),
				ProjectedEndBalance: decimal.NewFromInt(50),
				ConfidenceInputs: model.ConfidenceInputs{
					AppliedPatternCount:    1,
					HighConfidencePatterns: 1,
				},
			},
			wantScore:   0,
			wantFactors: map[string]int{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			score, factors := computeUrgency(
				decimal.NewFromFloat(tc.balance), &tc.snap, decimal.NewFromFloat(tc.avgDailySpend))

			require.Equal(t, tc.wantScore, score)
			require.Equal(t, tc.wantFactors, factors)

			sum := 0
			for _, v := range factors {
				sum += v
			}
			require.Equal(t, score, sum, "factor contributions must sum to the score")
		})
	}
}

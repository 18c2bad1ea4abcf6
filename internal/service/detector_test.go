package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stackfin/backend/internal/model"
)

func TestDetectRecurringMonthlyRent(t *testing.T) {
	svc, st, now := newTestService(t)
	ctx := context.Background()
	today := now.Truncate(24 * time.Hour)

	// Four rent payments, exactly 30 days apart, identical amounts.
	for _, daysAgo := range []int{95, 65, 35, 5} {
		seedTxn(t, st, "user-1", "m-rent", "housing", 1200, model.DirectionDebit, today.AddDate(0, 0, -daysAgo))
	}

	patterns, err := svc.DetectRecurring(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, patterns, 1)

	p := patterns[0]
	require.Equal(t, model.FrequencyMonthly, p.Frequency)
	require.Equal(t, model.ConfidenceHigh, p.Confidence)
	require.Equal(t, model.DirectionDebit, p.Direction)
	require.True(t, p.Active)
	require.True(t, p.EstimatedAmount.Equal(decimal.NewFromInt(1200)))
	require.True(t, p.AmountVariance.IsZero())
	require.True(t, p.NextExpectedDate.Equal(today.AddDate(0, 0, 25)))
	require.True(t, p.LastObservedDate.Equal(today.AddDate(0, 0, -5)))
}

func TestDetectRecurringBiweeklyIncome(t *testing.T) {
	svc, st, now := newTestService(t)
	ctx := context.Background()
	today := now.Truncate(24 * time.Hour)

	for _, daysAgo := range []int{42, 28, 14} {
		seedTxn(t, st, "user-1", "m-employer", "income", 2500, model.DirectionCredit, today.AddDate(0, 0, -daysAgo))
	}

	patterns, err := svc.DetectRecurring(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	require.Equal(t, model.FrequencyBiweekly, patterns[0].Frequency)
	require.Equal(t, model.ConfidenceHigh, patterns[0].Confidence)
	require.Equal(t, model.DirectionCredit, patterns[0].Direction)
}

func TestDetectRecurringConfidenceTiers(t *testing.T) {
	today := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		amounts []float64
		daysAgo []int
		want    model.Confidence
	}{
		{
			// Two observations can never reach high.
			name:    "two observations is medium",
			amounts: []float64{45, 45},
			daysAgo: []int{28, 14},
			want:    model.ConfidenceMedium,
		},
		{
			// Dispersion above the tight threshold drops high to medium:
			// median 100, MAD (0+0+40)/3 = 13.33, ratio 0.133.
			name:    "loose amounts is medium",
			amounts: []float64{100, 100, 140},
			daysAgo: []int{65, 35, 5},
			want:    model.ConfidenceMedium,
		},
		{
			name:    "tight amounts over two periods is high",
			amounts: []float64{100, 101, 100},
			daysAgo: []int{65, 35, 5},
			want:    model.ConfidenceHigh,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, st, _ := newTestService(t)
			for i, daysAgo := range tc.daysAgo {
				seedTxn(t, st, "user-1", "m-x", "misc", tc.amounts[i], model.DirectionDebit, today.AddDate(0, 0, -daysAgo))
			}
			patterns, err := svc.DetectRecurring(context.Background(), "user-1")
			require.NoError(t, err)
			require.Len(t, patterns, 1)
			require.Equal(t, tc.want, patterns[0].Confidence)
		})
	}
}

func TestDetectRecurringKeepsBothDirectionsAtOneMerchant(t *testing.T) {
	svc, st, now := newTestService(t)
	ctx := context.Background()
	today := now.Truncate(24 * time.Hour)

	// A monthly transfer out and a monthly reimbursement in at the same
	// merchant and category are two distinct patterns.
	for _, daysAgo := range []int{65, 35, 5} {
		seedTxn(t, st, "user-1", "m-club", "fitness", 100, model.DirectionDebit, today.AddDate(0, 0, -daysAgo))
	}
	for _, daysAgo := range []int{63, 33, 3} {
		seedTxn(t, st, "user-1", "m-club", "fitness", 50, model.DirectionCredit, today.AddDate(0, 0, -daysAgo))
	}

	detected, err := svc.DetectRecurring(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, detected, 2)

	stored, err := st.ListRecurringPatterns(ctx, "user-1", false)
	require.NoError(t, err)
	require.Len(t, stored, 2, "one upsert must not overwrite the other direction")

	byDirection := make(map[model.Direction]decimal.Decimal, 2)
	for _, p := range stored {
		byDirection[p.Direction] = p.EstimatedAmount
	}
	require.True(t, byDirection[model.DirectionDebit].Equal(decimal.NewFromInt(100)))
	require.True(t, byDirection[model.DirectionCredit].Equal(decimal.NewFromInt(50)))
}

func TestDetectRecurringRejectsNonPeriodic(t *testing.T) {
	svc, st, now := newTestService(t)
	ctx := context.Background()
	today := now.Truncate(24 * time.Hour)

	// Irregular coffee runs: gaps of 3 and 11 days fit no bucket.
	for _, daysAgo := range []int{50, 47, 36} {
		seedTxn(t, st, "user-1", "m-cafe", "dining", 6.5, model.DirectionDebit, today.AddDate(0, 0, -daysAgo))
	}
	// A single transaction is never a pattern.
	seedTxn(t, st, "user-1", "m-once", "misc", 50, model.DirectionDebit, today.AddDate(0, 0, -10))

	patterns, err := svc.DetectRecurring(ctx, "user-1")
	require.NoError(t, err)
	require.Empty(t, patterns)
}

func TestDetectRecurringIgnoresPendingAndUnresolved(t *testing.T) {
	svc, st, now := newTestService(t)
	ctx := context.Background()
	today := now.Truncate(24 * time.Hour)

	for _, daysAgo := range []int{35, 5} {
		txn := seedTxn(t, st, "user-1", "m-sub", "media", 10, model.DirectionDebit, today.AddDate(0, 0, -daysAgo))
		txn.Pending = true
	}
	// Transactions with no resolved merchant carry no stable identity.
	for _, daysAgo := range []int{34, 4} {
		seedTxn(t, st, "user-1", "", "misc", 20, model.DirectionDebit, today.AddDate(0, 0, -daysAgo))
	}

	patterns, err := svc.DetectRecurring(ctx, "user-1")
	require.NoError(t, err)
	require.Empty(t, patterns)
}

func TestDetectRecurringIdempotent(t *testing.T) {
	svc, st, now := newTestService(t)
	ctx := context.Background()
	today := now.Truncate(24 * time.Hour)

	for _, daysAgo := range []int{65, 35, 5} {
		seedTxn(t, st, "user-1", "m-rent", "housing", 1200, model.DirectionDebit, today.AddDate(0, 0, -daysAgo))
	}

	first, err := svc.DetectRecurring(ctx, "user-1")
	require.NoError(t, err)
	second, err := svc.DetectRecurring(ctx, "user-1")
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	require.Equal(t, first[0].ID, second[0].ID, "re-detection rewrites the same row")

	all, err := st.ListRecurringPatterns(ctx, "user-1", false)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestDetectRecurringDeactivatesStalePatterns(t *testing.T) {
	svc, st, now := newTestService(t)
	ctx := context.Background()
	today := now.Truncate(24 * time.Hour)

	stale := &model.RecurringPattern{
		UserID:           "user-1",
		MerchantID:       "m-cancelled",
		Category:         "media",
		Direction:        model.DirectionDebit,
		EstimatedAmount:  decimal.NewFromInt(10),
		Frequency:        model.FrequencyMonthly,
		Confidence:       model.ConfidenceHigh,
		LastObservedDate: today.AddDate(0, 0, -90),
		NextExpectedDate: today.AddDate(0, 0, -60),
		Active:           true,
	}
	require.NoError(t, st.UpsertRecurringPattern(ctx, stale))

	// Recently observed pattern stays active even though this run finds
	// nothing new for it.
	recent := &model.RecurringPattern{
		UserID:           "user-1",
		MerchantID:       "m-current",
		Category:         "media",
		Direction:        model.DirectionDebit,
		EstimatedAmount:  decimal.NewFromInt(15),
		Frequency:        model.FrequencyMonthly,
		Confidence:       model.ConfidenceMedium,
		LastObservedDate: today.AddDate(0, 0, -20),
		NextExpectedDate: today.AddDate(0, 0, 10),
		Active:           true,
	}
	require.NoError(t, st.UpsertRecurringPattern(ctx, recent))

	patterns, err := svc.DetectRecurring(ctx, "user-1")
	require.NoError(t, err)
	require.Empty(t, patterns)

	active, err := st.ListRecurringPatterns(ctx, "user-1", true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "m-current", active[0].MerchantID)

	all, err := st.ListRecurringPatterns(ctx, "user-1", false)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestDetectRecurringEmitsAudit(t *testing.T) {
	svc, st, now := newTestService(t)
	today := now.Truncate(24 * time.Hour)

	for _, daysAgo := range []int{35, 5} {
		seedTxn(t, st, "user-1", "m-sub", "media", 10, model.DirectionDebit, today.AddDate(0, 0, -daysAgo))
	}
	_, err := svc.DetectRecurring(context.Background(), "user-1")
	require.NoError(t, err)

	events := st.AuditEvents()
	require.Len(t, events, 1)
	require.Equal(t, "recurring.detected", events[0].EventType)
	require.Equal(t, 1, events[0].Detail["patterns_found"])
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stackfin/backend/internal/model"
)

func TestMemoryStoreMerchantConflict(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	first := &model.Merchant{RawName: "AMZN MKTP US", NormalizedName: "amazon", DisplayName: "Amazon"}
	require.NoError(t, st.CreateMerchant(ctx, first))

	dup := &model.Merchant{RawName: "Amazon.com", NormalizedName: "amazon"}
	require.ErrorIs(t, st.CreateMerchant(ctx, dup), ErrConflict)

	got, err := st.GetMerchantByKey(ctx, "amazon")
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)

	_, err = st.GetMerchantByKey(ctx, "walmart")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreTransactionFiltering(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for _, daysAgo := range []int{40, 20, 5} {
		require.NoError(t, st.CreateTransaction(ctx, &model.Transaction{
			UserID:    "user-1",
			AccountID: "acc-1",
			Amount:    decimal.NewFromInt(10),
			Direction: model.DirectionDebit,
			Date:      base.AddDate(0, 0, -daysAgo),
		}))
	}
	require.NoError(t, st.CreateTransaction(ctx, &model.Transaction{
		UserID:    "user-2",
		AccountID: "acc-9",
		Amount:    decimal.NewFromInt(10),
		Direction: model.DirectionDebit,
		Date:      base,
	}))

	all, err := st.ListTransactions(ctx, "user-1", time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.True(t, all[0].Date.Before(all[1].Date), "ascending date order")

	recent, err := st.ListTransactions(ctx, "user-1", base.AddDate(0, 0, -30))
	require.NoError(t, err)
	require.Len(t, recent, 2)
}

func TestMemoryStorePatternUpsert(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	p := &model.RecurringPattern{
		UserID:          "user-1",
		MerchantID:      "m-1",
		Category:        "housing",
		Direction:       model.DirectionDebit,
		EstimatedAmount: decimal.NewFromInt(1200),
		Frequency:       model.FrequencyMonthly,
		Confidence:      model.ConfidenceMedium,
		Active:          true,
		CreatedAt:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.UpsertRecurringPattern(ctx, p))
	firstID := p.ID
	firstCreated := p.CreatedAt

	update := *p
	update.ID = ""
	update.Confidence = model.ConfidenceHigh
	update.CreatedAt = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.UpsertRecurringPattern(ctx, &update))

	patterns, err := st.ListRecurringPatterns(ctx, "user-1", true)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	require.Equal(t, firstID, patterns[0].ID, "upsert preserves identity")
	require.Equal(t, firstCreated, patterns[0].CreatedAt, "upsert preserves creation time")
	require.Equal(t, model.ConfidenceHigh, patterns[0].Confidence)

	patterns[0].Active = false
	require.NoError(t, st.UpsertRecurringPattern(ctx, patterns[0]))

	active, err := st.ListRecurringPatterns(ctx, "user-1", true)
	require.NoError(t, err)
	require.Empty(t, active)

	all, err := st.ListRecurringPatterns(ctx, "user-1", false)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestMemoryStoreSnapshotOrdering(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, st.CreateForecastSnapshot(ctx, &model.ForecastSnapshot{
			UserID:     "user-1",
			ComputedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	latest, err := st.GetLatestForecastSnapshot(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, base.Add(2*time.Hour), latest.ComputedAt)

	limited, err := st.ListForecastSnapshots(ctx, "user-1", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	require.True(t, limited[0].ComputedAt.After(limited[1].ComputedAt), "newest first")

	_, err = st.GetLatestForecastSnapshot(ctx, "user-2")
	require.ErrorIs(t, err, ErrNotFound)
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stackfin/backend/internal/model"
	"github.com/stackfin/backend/internal/store"
)

// newTestService wires a service over the in-memory store with a frozen
// clock. Tests that need to advance time mutate the returned pointer.
func newTestService(t *testing.T) (*CoachService, *store.MemoryStore, *time.Time) {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()
	svc := NewCoachService(st, nil, WithClock(func() time.Time { return now }))
	return svc, st, &now
}

func seedTxn(t *testing.T, st *store.MemoryStore, userID, merchantID, category string, amount float64, dir model.Direction, date time.Time) *model.Transaction {
	t.Helper()
	txn := &model.Transaction{
		UserID:     userID,
		AccountID:  "acc-1",
		MerchantID: merchantID,
		Category:   category,
		Amount:     decimal.NewFromFloat(amount),
		Currency:   "USD",
		Direction:  dir,
		Date:       date,
	}
	require.NoError(t, st.CreateTransaction(context.Background(), txn))
	return txn
}

func seedAccount(t *testing.T, st *store.MemoryStore, userID string, balance float64) {
	t.Helper()
	require.NoError(t, st.CreateAccount(context.Background(), &model.Account{
		UserID:         userID,
		Name:           "Everyday",
		Type:           model.AccountChecking,
		CurrentBalance: decimal.NewFromFloat(balance),
		Currency:       "USD",
	}))
}

func TestGetOrCreateMerchant(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	m1, err := svc.GetOrCreateMerchant(ctx, "user-1", "AMZN MKTP US*2AB34")
	require.NoError(t, err)
	require.Equal(t, "amazon", m1.NormalizedName)
	require.Equal(t, "Amazon", m1.DisplayName)

	// A different variant of the same merchant resolves to the same row.
	m2, err := svc.GetOrCreateMerchant(ctx, "user-2", "Amazon.com*M12X99")
	require.NoError(t, err)
	require.Equal(t, m1.ID, m2.ID)

	events := st.AuditEvents()
	require.Len(t, events, 1, "only the first sighting emits an audit event")
	require.Equal(t, "merchant.created", events[0].EventType)
	require.Equal(t, m1.ID, events[0].EntityID)
}

func TestIngestTransactionResolvesMerchant(t *testing.T) {
	svc, _, now := newTestService(t)
	ctx := context.Background()

	created, err := svc.IngestTransaction(ctx, &model.Transaction{
		UserID:         "user-1",
		AccountID:      "acc-1",
		RawDescription: "NETFLIX.COM 884421",
		Amount:         decimal.NewFromFloat(15.99),
		Direction:      model.DirectionDebit,
		Date:           now.AddDate(0, 0, -1),
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.NotEmpty(t, created.MerchantID)

	got, err := svc.GetOrCreateMerchant(ctx, "user-1", "NETFLIX.COM 884421")
	require.NoError(t, err)
	require.Equal(t, created.MerchantID, got.ID)
}

func TestIngestTransactionValidation(t *testing.T) {
	svc, _, now := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		txn  *model.Transaction
	}{
		{"missing user", &model.Transaction{AccountID: "a", Direction: model.DirectionDebit, Date: *now}},
		{"missing account", &model.Transaction{UserID: "u", Direction: model.DirectionDebit, Date: *now}},
		{"negative amount", &model.Transaction{UserID: "u", AccountID: "a", Amount: decimal.NewFromInt(-5), Direction: model.DirectionDebit, Date: *now}},
		{"bad direction", &model.Transaction{UserID: "u", AccountID: "a", Direction: "sideways", Date: *now}},
		{"missing date", &model.Transaction{UserID: "u", AccountID: "a", Direction: model.DirectionDebit}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.IngestTransaction(ctx, tc.txn)
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestCreateConstraintValidation(t *testing.T) {
	svc, _, now := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateConstraint(ctx, &model.Constraint{
		UserID: "u", Label: "Rent", Kind: model.ConstraintExpense,
		Amount: decimal.NewFromInt(1200), Frequency: model.FrequencyMonthly,
	})
	require.ErrorIs(t, err, ErrInvalid, "recurring constraint without due date")

	c, err := svc.CreateConstraint(ctx, &model.Constraint{
		UserID: "u", Label: "Rent", Kind: model.ConstraintExpense,
		Amount: decimal.NewFromInt(1200), Frequency: model.FrequencyMonthly,
		DueDate: now.AddDate(0, 0, 5),
	})
	require.NoError(t, err)
	require.NotEmpty(t, c.ID)
}

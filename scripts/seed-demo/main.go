// Seeds a demo user with six months of realistic activity, runs
// detection, and computes a first forecast. Points at a sqlite database
// so the seeded state survives server restarts.
//
// Usage: go run ./scripts/seed-demo -db stackfin.db -user demo-user
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stackfin/backend/internal/merchant"
	"github.com/stackfin/backend/internal/model"
	"github.com/stackfin/backend/internal/service"
	"github.com/stackfin/backend/internal/store"
)

func main() {
	dbPath := flag.String("db", "stackfin.db", "sqlite database path")
	userID := flag.String("user", "demo-user", "user to seed")
	flag.Parse()

	ctx := context.Background()

	st, err := store.OpenSQLite(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open sqlite store: %v", err)
	}
	defer st.Close()

	svc := service.NewCoachService(st, merchant.NewNormalizer(nil))

	log.Printf("🌱 Seeding demo data for user %s into %s", *userID, *dbPath)

	account, err := svc.CreateAccount(ctx, &model.Account{
		UserID:         *userID,
		Name:           "Everyday Checking",
		Type:           model.AccountChecking,
		CurrentBalance: decimal.NewFromFloat(3240.55),
		Currency:       "USD",
	})
	if err != nil {
		log.Fatalf("Failed to create account: %v", err)
	}
	savings, err := svc.CreateAccount(ctx, &model.Account{
		UserID:         *userID,
		Name:           "Rainy Day Savings",
		Type:           model.AccountSavings,
		CurrentBalance: decimal.NewFromFloat(5000),
		Currency:       "USD",
	})
	if err != nil {
		log.Fatalf("Failed to create account: %v", err)
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	count := 0
	seed := func(raw, category string, amount float64, dir model.Direction, date time.Time) {
		_, err := svc.IngestTransaction(ctx, &model.Transaction{
			UserID:         *userID,
			AccountID:      account.ID,
			RawDescription: raw,
			Category:       category,
			Amount:         decimal.NewFromFloat(amount),
			Currency:       "USD",
			Direction:      dir,
			Date:           date,
		})
		if err != nil {
			log.Fatalf("Failed to seed transaction %q: %v", raw, err)
		}
		count++
	}

	// Six months of rent, biweekly paychecks, and a streaming
	// subscription, plus irregular groceries and dining.
	for month := 6; month >= 1; month-- {
		anchor := today.AddDate(0, 0, -30*month+2)
		seed("OAKWOOD PROPERTY MGMT 2211", "housing", 1450, model.DirectionDebit, anchor)
		seed("NETFLIX.COM 884421", "entertainment", 15.99, model.DirectionDebit, anchor.AddDate(0, 0, 4))
	}
	for period := 12; period >= 1; period-- {
		seed("ACME CORP PAYROLL 99121", "income", 2150, model.DirectionCredit, today.AddDate(0, 0, -14*period+1))
	}
	groceries := []struct {
		daysAgo int
		amount  float64
	}{
		{88, 84.20}, {81, 61.75}, {72, 103.10}, {63, 77.40}, {55, 92.85},
		{47, 68.30}, {39, 110.55}, {30, 59.95}, {22, 88.60}, {13, 74.25}, {6, 96.10},
	}
	for _, g := range groceries {
		seed("WM SUPERCENTER #1234 SPRINGFIELD", "groceries", g.amount, model.DirectionDebit, today.AddDate(0, 0, -g.daysAgo))
	}
	for _, d := range []struct {
		daysAgo int
		amount  float64
	}{{44, 34.50}, {27, 22.10}, {11, 41.80}} {
		seed("CORNER BAKERY CAFE 2219", "dining", d.amount, model.DirectionDebit, today.AddDate(0, 0, -d.daysAgo))
	}

	if _, err := svc.CreateConstraint(ctx, &model.Constraint{
		UserID:    *userID,
		Kind:      model.ConstraintExpense,
		Label:     "Car insurance",
		Amount:    decimal.NewFromFloat(138.40),
		DueDate:   today.AddDate(0, 0, 9),
		Frequency: model.FrequencyMonthly,
	}); err != nil {
		log.Fatalf("Failed to create constraint: %v", err)
	}

	log.Printf("Seeded %d transactions across accounts %s and %s", count, account.ID, savings.ID)

	patterns, err := svc.DetectRecurring(ctx, *userID)
	if err != nil {
		log.Fatalf("Failed to detect recurring patterns: %v", err)
	}
	for _, p := range patterns {
		log.Printf("  pattern: %s %s %s (%s confidence)", p.MerchantID, p.EstimatedAmount, p.Frequency, p.Confidence)
	}

	snap, err := svc.ComputeForecast(ctx, *userID)
	if err != nil {
		log.Fatalf("Failed to compute forecast: %v", err)
	}
	log.Printf("✅ Forecast %s: safe today %s, safe this week %s, urgency %d (%s confidence)",
		snap.ID, snap.SafeToSpendToday, snap.SafeToSpendWeek, snap.UrgencyScore, snap.Confidence)
}

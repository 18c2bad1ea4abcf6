package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stackfin/backend/internal/model"
)

// forecastHorizonDays is the projection length. Day 1 is tomorrow.
const forecastHorizonDays = 30

// obligationWindowDays bounds the near-term obligations subtracted from
// today's safe-to-spend figure.
const obligationWindowDays = 2

// ComputeForecast builds, persists, and returns one immutable forecast
// snapshot for the user. It reads the current account balances, the
// active recurring patterns, declared constraints, and pending
// transactions, and projects the liquid balance forward 30 days with an
// uncertainty band.
func (s *CoachService) ComputeForecast(ctx context.Context, userID string) (*model.ForecastSnapshot, error) {
	now := s.now().UTC()
	today := s.today()

	accounts, err := s.store.ListAccounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}

	balance := decimal.Zero
	for _, a := range accounts {
		if a.Type.Liquid() {
			balance = balance.Add(a.SpendableBalance())
		}
	}

	patterns, err := s.store.ListRecurringPatterns(ctx, userID, true)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	constraints, err := s.store.ListConstraints(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list constraints: %w", err)
	}
	since := today.AddDate(0, 0, -s.historyLookbackDays)
	history, err := s.store.ListTransactions(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	// History stats cover only the flows the patterns do not already
	// model, so the ambient drift never double-counts a detected bill or
	// paycheck.
	modeled := make(map[string]bool)
	for _, p := range patterns {
		if p.Active {
			modeled[p.MerchantID+"|"+string(p.Direction)] = true
		}
	}
	stats := summarizeHistory(history, modeled, today, s.historyLookbackDays)

	// deltas[d] is the known net cash movement on projection day d
	// (1-based); debits[d] is the gross outgoing total that day, kept
	// separately so same-day income never masks an obligation;
	// dayVariance[d] accumulates the amount variance of the pattern
	// recurrences applied on that day.
	deltas := make([]decimal.Decimal, forecastHorizonDays+1)
	debits := make([]decimal.Decimal, forecastHorizonDays+1)
	dayVariance := make([]decimal.Decimal, forecastHorizonDays+1)
	for i := range deltas {
		deltas[i] = decimal.Zero
		debits[i] = decimal.Zero
		dayVariance[i] = decimal.Zero
	}

	applied := applyPatterns(patterns, today, deltas, debits, dayVariance)
	applyConstraints(constraints, today, deltas, debits)
	pendingApplied := applyPending(history, today, deltas, debits)

	// Fill in the user's average day-to-day drift on top of the known
	// recurrences so a history of small unmodeled spending still bends
	// the curve.
	drift := stats.avgDailyIncome.Sub(stats.avgDailySpend)

	obligations := decimal.Zero
	for d := 1; d <= obligationWindowDays; d++ {
		obligations = obligations.Add(debits[d])
	}

	daily := make([]model.DailyBalance, 0, forecastHorizonDays)
	projected := balance
	cumVariance := decimal.Zero
	for d := 1; d <= forecastHorizonDays; d++ {
		projected = projected.Add(deltas[d]).Add(drift)
		cumVariance = cumVariance.Add(dayVariance[d])

		width := bandWidth(cumVariance, stats.dailySpendStd, d)
		daily = append(daily, model.DailyBalance{
			Day:       d,
			Date:      today.AddDate(0, 0, d).Format("2006-01-02"),
			Projected: projected.Round(2),
			Low:       projected.Sub(width).Round(2),
			High:      projected.Add(width).Round(2),
		})
	}

	// Buffer is the band half-width one week out: the amount the next
	// seven days could plausibly run under projection.
	buffer := daily[6].Projected.Sub(daily[6].Low)
	safeToday := balance.Sub(obligations).Sub(buffer).Round(2)
	safeWeek := decimal.Max(decimal.Zero, daily[6].Low.Sub(buffer)).Round(2)

	highPatterns := 0
	for _, p := range applied {
		if p.Confidence == model.ConfidenceHigh {
			highPatterns++
		}
	}
	inputs := model.ConfidenceInputs{
		SchemaVersion:          model.ForecastSchemaVersion,
		DaysOfHistory:          stats.daysOfHistory,
		TransactionCount:       stats.settledCount,
		AppliedPatternCount:    len(applied),
		HighConfidencePatterns: highPatterns,
		ConstraintCount:        len(constraints),
		PendingCount:           pendingApplied,
	}
	confidence := forecastConfidence(inputs)

	snapshot := &model.ForecastSnapshot{
		ID:                  uuid.New().String(),
		UserID:              userID,
		SafeToSpendToday:    safeToday,
		SafeToSpendWeek:     safeWeek,
		DailyBalances:       daily,
		ProjectedEndBalance: daily[len(daily)-1].Projected,
		ProjectedEndLow:     daily[len(daily)-1].Low,
		ProjectedEndHigh:    daily[len(daily)-1].High,
		Confidence:          confidence,
		ConfidenceInputs:    inputs,
		ComputedAt:          now,
	}
	snapshot.Assumptions = s.buildAssumptions(ctx, balance, stats, applied, len(constraints), pendingApplied)
	snapshot.UrgencyScore, snapshot.UrgencyFactors = computeUrgency(balance, snapshot, stats.avgDailySpend)

	if err := s.store.CreateForecastSnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("persist snapshot: %w", err)
	}

	log.Printf("[Forecast] user %s: balance=%s safe_today=%s safe_week=%s confidence=%s urgency=%d",
		userID, balance, safeToday, safeWeek, confidence, snapshot.UrgencyScore)

	s.emitAudit(ctx, &model.AuditEvent{
		UserID:     userID,
		EventType:  "forecast.computed",
		EntityType: "ForecastSnapshot",
		EntityID:   snapshot.ID,
		Action:     "compute",
		Actor:      userID,
		Detail: map[string]any{
			"confidence":    string(confidence),
			"urgency_score": snapshot.UrgencyScore,
			"patterns_used": len(applied),
		},
	})
	return snapshot, nil
}

// GetLatestForecast returns the most recent snapshot, or
// store.ErrNotFound when the user has never computed one.
func (s *CoachService) GetLatestForecast(ctx context.Context, userID string) (*model.ForecastSnapshot, error) {
	return s.store.GetLatestForecastSnapshot(ctx, userID)
}

// ListForecastHistory returns snapshots newest-first, capped at limit.
func (s *CoachService) ListForecastHistory(ctx context.Context, userID string, limit int) ([]*model.ForecastSnapshot, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.store.ListForecastSnapshots(ctx, userID, limit)
}

// historyStats summarizes the settled transactions inside the lookback
// window.
type historyStats struct {
	daysOfHistory  int
	settledCount   int
	avgDailySpend  decimal.Decimal
	avgDailyIncome decimal.Decimal
	dailySpendStd  decimal.Decimal
}

func summarizeHistory(txns []*model.Transaction, modeled map[string]bool, today time.Time, lookbackDays int) historyStats {
	stats := historyStats{
		avgDailySpend:  decimal.Zero,
		avgDailyIncome: decimal.Zero,
		dailySpendStd:  decimal.Zero,
	}

	var earliest time.Time
	totalSpend := decimal.Zero
	totalIncome := decimal.Zero
	spendByDay := make(map[string]decimal.Decimal)
	for _, t := range txns {
		if t.Pending {
			continue
		}
		stats.settledCount++
		if earliest.IsZero() || t.Date.Before(earliest) {
			earliest = t.Date
		}
		if modeled[t.MerchantID+"|"+string(t.Direction)] {
			continue
		}
		switch t.Direction {
		case model.DirectionDebit:
			totalSpend = totalSpend.Add(t.Amount)
			day := t.Date.Format("2006-01-02")
			spendByDay[day] = spendByDay[day].Add(t.Amount)
		case model.DirectionCredit:
			totalIncome = totalIncome.Add(t.Amount)
		}
	}
	if stats.settledCount == 0 {
		return stats
	}

	days := int(today.Sub(earliest.Truncate(24*time.Hour)).Hours() / 24)
	if days < 1 {
		days = 1
	}
	if days > lookbackDays {
		days = lookbackDays
	}
	stats.daysOfHistory = days

	span := decimal.NewFromInt(int64(days))
	stats.avgDailySpend = totalSpend.Div(span)
	stats.avgDailyIncome = totalIncome.Div(span)

	// Standard deviation of per-day spend across the whole window; days
	// without spending count as zero-spend days.
	mean, _ := stats.avgDailySpend.Float64()
	var sumSq float64
	for _, v := range spendByDay {
		f, _ := v.Float64()
		sumSq += (f - mean) * (f - mean)
	}
	sumSq += float64(days-len(spendByDay)) * mean * mean
	stats.dailySpendStd = decimal.NewFromFloat(math.Sqrt(sumSq / float64(days)))
	return stats
}

// applyPatterns schedules every future recurrence of the active patterns
// into the daily delta buckets and returns the patterns that produced at
// least one recurrence inside the horizon.
func applyPatterns(patterns []*model.RecurringPattern, today time.Time, deltas, debits, dayVariance []decimal.Decimal) []*model.RecurringPattern {
	var applied []*model.RecurringPattern
	for _, p := range patterns {
		if !p.Active || p.Frequency.PeriodDays() == 0 {
			continue
		}
		next := p.NextExpectedDate.Truncate(24 * time.Hour)
		// An overdue expectation rolls forward to its next future
		// recurrence; the missed occurrence is already reflected in the
		// balance or will arrive as a pending transaction.
		for !next.After(today) {
			next = next.AddDate(0, 0, p.Frequency.PeriodDays())
		}
		hit := false
		for d := dayIndex(today, next); d <= forecastHorizonDays; d = dayIndex(today, next) {
			if d >= 1 {
				deltas[d] = deltas[d].Add(p.SignedAmount())
				if p.Direction == model.DirectionDebit {
					debits[d] = debits[d].Add(p.EstimatedAmount)
				}
				dayVariance[d] = dayVariance[d].Add(p.AmountVariance)
				hit = true
			}
			next = next.AddDate(0, 0, p.Frequency.PeriodDays())
		}
		if hit {
			applied = append(applied, p)
		}
	}
	sort.Slice(applied, func(i, j int) bool { return applied[i].NaturalKey() < applied[j].NaturalKey() })
	return applied
}

// applyConstraints schedules user-declared items. A constraint with a
// frequency recurs from its due date; one without applies once.
func applyConstraints(constraints []*model.Constraint, today time.Time, deltas, debits []decimal.Decimal) {
	for _, c := range constraints {
		amount := c.Amount
		if c.Kind == model.ConstraintExpense {
			amount = amount.Neg()
		}
		if c.DueDate.IsZero() {
			continue
		}
		apply := func(d int) {
			deltas[d] = deltas[d].Add(amount)
			if c.Kind == model.ConstraintExpense {
				debits[d] = debits[d].Add(c.Amount)
			}
		}
		due := c.DueDate.Truncate(24 * time.Hour)
		if c.Frequency.PeriodDays() == 0 {
			if d := dayIndex(today, due); d >= 1 && d <= forecastHorizonDays {
				apply(d)
			}
			continue
		}
		for due.Before(today.AddDate(0, 0, 1)) {
			due = due.AddDate(0, 0, c.Frequency.PeriodDays())
		}
		for d := dayIndex(today, due); d <= forecastHorizonDays; d = dayIndex(today, due) {
			if d >= 1 {
				apply(d)
			}
			due = due.AddDate(0, 0, c.Frequency.PeriodDays())
		}
	}
}

// applyPending settles pending transactions into the projection at their
// expected posting date, clamped to day 1 when already past.
func applyPending(txns []*model.Transaction, today time.Time, deltas, debits []decimal.Decimal) int {
	applied := 0
	for _, t := range txns {
		if !t.Pending {
			continue
		}
		when := t.PostedDate
		if when.IsZero() {
			when = t.Date
		}
		d := dayIndex(today, when.Truncate(24*time.Hour))
		if d < 1 {
			d = 1
		}
		if d > forecastHorizonDays {
			continue
		}
		amount := t.Amount
		if t.Direction == model.DirectionDebit {
			amount = amount.Neg()
			debits[d] = debits[d].Add(t.Amount)
		}
		deltas[d] = deltas[d].Add(amount)
		applied++
	}
	return applied
}

// bandWidth is the uncertainty half-width at a given projection day:
// accumulated pattern amount variance plus one daily-spend standard
// deviation, scaled by the square root of elapsed days.
func bandWidth(cumVariance, dailySpendStd decimal.Decimal, day int) decimal.Decimal {
	base, _ := cumVariance.Add(dailySpendStd).Float64()
	return decimal.NewFromFloat(base * math.Sqrt(float64(day)))
}

// forecastConfidence tiers the forecast from its recorded inputs. The
// tier is a pure function of ConfidenceInputs so the stored inputs always
// reproduce the stored tier.
func forecastConfidence(in model.ConfidenceInputs) model.Confidence {
	if in.DaysOfHistory >= 90 && in.HighConfidencePatterns >= 3 {
		return model.ConfidenceHigh
	}
	if in.DaysOfHistory >= 30 && in.AppliedPatternCount >= 1 {
		return model.ConfidenceMedium
	}
	return model.ConfidenceLow
}

// buildAssumptions renders the plain-language explanation of what went
// into the projection, one line per input class.
func (s *CoachService) buildAssumptions(ctx context.Context, balance decimal.Decimal, stats historyStats, applied []*model.RecurringPattern, constraintCount, pendingCount int) []string {
	assumptions := []string{
		fmt.Sprintf("Starting from a combined liquid balance of %s across your accounts.", balance.StringFixed(2)),
		fmt.Sprintf("Based on %d days of transaction history (%d settled transactions).", stats.daysOfHistory, stats.settledCount),
	}
	for _, p := range applied {
		name := p.MerchantID
		if m, err := s.store.GetMerchant(ctx, p.MerchantID); err == nil {
			name = m.DisplayName
		}
		verb := "charges"
		if p.Direction == model.DirectionCredit {
			verb = "pays"
		}
		assumptions = append(assumptions, fmt.Sprintf(
			"%s %s about %s %s (%s confidence).",
			name, verb, p.EstimatedAmount.StringFixed(2), p.Frequency, p.Confidence))
	}
	if len(applied) == 0 {
		assumptions = append(assumptions, "No recurring signals found; projection is balance-only.")
	}
	if constraintCount > 0 {
		assumptions = append(assumptions, fmt.Sprintf("Including %d fixed items you declared.", constraintCount))
	}
	if pendingCount > 0 {
		assumptions = append(assumptions, fmt.Sprintf("Including %d pending transactions expected to settle.", pendingCount))
	}
	assumptions = append(assumptions,
		"The low/high band widens with time to reflect growing uncertainty.")
	return assumptions
}

// dayIndex converts an absolute date to its 1-based projection day
// relative to today. Dates at or before today map to zero or below.
func dayIndex(today, date time.Time) int {
	return int(date.Sub(today).Hours() / 24)
}

package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stackfin/backend/internal/model"
)

// Frequency classification tolerance: a gap sequence matches a bucket when
// its mean lies within ±20% of the bucket's nominal length and at least
// half of the individual gaps do too.
const frequencyTolerance = 0.20

// Relative-dispersion thresholds (MAD / median estimate) for pattern
// confidence tiers.
var (
	tightVarianceRatio    = decimal.NewFromFloat(0.10)
	moderateVarianceRatio = decimal.NewFromFloat(0.25)
)

var frequencyBuckets = []model.Frequency{
	model.FrequencyWeekly,
	model.FrequencyBiweekly,
	model.FrequencyMonthly,
	model.FrequencyQuarterly,
	model.FrequencyAnnual,
}

// detectionGroup is one (merchant, category, direction) partition of a
// user's history.
type detectionGroup struct {
	merchantID string
	category   string
	direction  model.Direction
}

// DetectRecurring analyzes the user's transaction history inside the
// detection lookback window and upserts the user's recurring pattern set.
// Each group is evaluated independently: malformed data in one group
// drops only that group's pattern. Patterns with no supporting
// transaction within twice their period are deactivated, not deleted.
func (s *CoachService) DetectRecurring(ctx context.Context, userID string) ([]*model.RecurringPattern, error) {
	now := s.now().UTC()
	since := now.AddDate(0, 0, -s.detectionLookbackDays)

	txns, err := s.store.ListTransactions(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	groups := make(map[detectionGroup][]*model.Transaction)
	for _, t := range txns {
		if t.MerchantID == "" || t.Pending {
			continue
		}
		key := detectionGroup{merchantID: t.MerchantID, category: t.Category, direction: t.Direction}
		groups[key] = append(groups[key], t)
	}

	existing, err := s.store.ListRecurringPatterns(ctx, userID, true)
	if err != nil {
		return nil, fmt.Errorf("list existing patterns: %w", err)
	}
	existingByKey := make(map[string]*model.RecurringPattern, len(existing))
	for _, p := range existing {
		existingByKey[p.NaturalKey()] = p
	}

	// Deterministic group order so repeated runs touch rows identically.
	keys := make([]detectionGroup, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.merchantID != b.merchantID {
			return a.merchantID < b.merchantID
		}
		if a.category != b.category {
			return a.category < b.category
		}
		return a.direction < b.direction
	})

	var (
		detected    []*model.RecurringPattern
		skipped     int
		upsertedKey = make(map[string]bool)
	)
	for _, key := range keys {
		pattern, err := evaluateGroup(userID, key, groups[key], now)
		if err != nil {
			// Per-group failure isolation: log, audit would be noise here,
			// and continue with the remaining groups.
			log.Printf("[Detector] user %s merchant %s: skipping group: %v", userID, key.merchantID, err)
			skipped++
			continue
		}
		if pattern == nil {
			continue
		}
		if prev, ok := existingByKey[pattern.NaturalKey()]; ok {
			pattern.ID = prev.ID
			pattern.CreatedAt = prev.CreatedAt
		}
		if err := s.store.UpsertRecurringPattern(ctx, pattern); err != nil {
			return nil, fmt.Errorf("upsert pattern %s: %w", pattern.NaturalKey(), err)
		}
		upsertedKey[pattern.NaturalKey()] = true
		detected = append(detected, pattern)
	}

	deactivated := 0
	for _, prev := range existing {
		if upsertedKey[prev.NaturalKey()] {
			continue
		}
		stale := now.Sub(prev.LastObservedDate) > 2*periodDuration(prev.Frequency)
		if !stale {
			continue
		}
		prev.Active = false
		prev.UpdatedAt = now
		if err := s.store.UpsertRecurringPattern(ctx, prev); err != nil {
			return nil, fmt.Errorf("deactivate pattern %s: %w", prev.NaturalKey(), err)
		}
		deactivated++
	}

	log.Printf("[Detector] user %s: detected=%d deactivated=%d skipped_groups=%d",
		userID, len(detected), deactivated, skipped)

	s.emitAudit(ctx, &model.AuditEvent{
		UserID:     userID,
		EventType:  "recurring.detected",
		EntityType: "RecurringPattern",
		EntityID:   userID,
		Action:     "detect",
		Actor:      userID,
		Detail: map[string]any{
			"patterns_found": len(detected),
			"deactivated":    deactivated,
			"skipped_groups": skipped,
		},
	})
	return detected, nil
}

// evaluateGroup infers one pattern from one partition, or nil when the
// group does not recur. Errors mean malformed data and never escape the
// caller's group loop.
func evaluateGroup(userID string, key detectionGroup, txns []*model.Transaction, now time.Time) (*model.RecurringPattern, error) {
	if len(txns) < 2 {
		return nil, nil
	}

	sorted := make([]*model.Transaction, len(txns))
	copy(sorted, txns)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	amounts := make([]decimal.Decimal, 0, len(sorted))
	for _, t := range sorted {
		if t.Date.IsZero() {
			return nil, fmt.Errorf("transaction %s has zero date", t.ID)
		}
		if t.Amount.IsNegative() {
			return nil, fmt.Errorf("transaction %s has negative amount %s", t.ID, t.Amount)
		}
		amounts = append(amounts, t.Amount)
	}

	var gaps []float64
	for i := 1; i < len(sorted); i++ {
		days := sorted[i].Date.Sub(sorted[i-1].Date).Hours() / 24
		if days > 0 {
			gaps = append(gaps, days)
		}
	}
	if len(gaps) == 0 {
		return nil, nil
	}

	freq, ok := classifyFrequency(gaps)
	if !ok {
		return nil, nil
	}

	estimate := median(amounts)
	variance := meanAbsoluteDeviation(amounts, estimate)

	first := sorted[0].Date
	last := sorted[len(sorted)-1].Date
	confidence := patternConfidence(len(sorted), estimate, variance, last.Sub(first), freq)

	return &model.RecurringPattern{
		UserID:           userID,
		MerchantID:       key.merchantID,
		Category:         key.category,
		Direction:        key.direction,
		EstimatedAmount:  estimate.Round(2),
		AmountVariance:   variance.Round(2),
		Frequency:        freq,
		Confidence:       confidence,
		NextExpectedDate: last.Add(periodDuration(freq)),
		LastObservedDate: last,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// classifyFrequency maps a gap sequence to the nearest frequency bucket.
// The group is not recurring when the gaps do not cluster around any
// bucket within tolerance.
func classifyFrequency(gaps []float64) (model.Frequency, bool) {
	var sum float64
	for _, g := range gaps {
		sum += g
	}
	mean := sum / float64(len(gaps))

	for _, freq := range frequencyBuckets {
		nominal := float64(freq.PeriodDays())
		tolerance := nominal * frequencyTolerance
		if mean < nominal-tolerance || mean > nominal+tolerance {
			continue
		}
		inBucket := 0
		for _, g := range gaps {
			if g >= nominal-tolerance && g <= nominal+tolerance {
				inBucket++
			}
		}
		if inBucket*2 >= len(gaps) {
			return freq, true
		}
	}
	return "", false
}

// patternConfidence applies the tier rules: high needs at least three
// observations, tight relative dispersion, and a span covering two full
// periods; medium needs two observations with moderate dispersion.
func patternConfidence(observations int, estimate, variance decimal.Decimal, span time.Duration, freq model.Frequency) model.Confidence {
	ratio := decimal.Zero
	if estimate.IsPositive() {
		ratio = variance.Div(estimate)
	}
	if observations >= 3 &&
		ratio.LessThanOrEqual(tightVarianceRatio) &&
		span >= 2*periodDuration(freq) {
		return model.ConfidenceHigh
	}
	if observations >= 2 && ratio.LessThanOrEqual(moderateVarianceRatio) {
		return model.ConfidenceMedium
	}
	return model.ConfidenceLow
}

func periodDuration(freq model.Frequency) time.Duration {
	return time.Duration(freq.PeriodDays()) * 24 * time.Hour
}

// median resists the outliers that skew a mean (an annual price bump, a
// one-off double charge).
func median(values []decimal.Decimal) decimal.Decimal {
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return sorted[n/2-1].Add(sorted[n/2]).Div(decimal.NewFromInt(2))
}

// meanAbsoluteDeviation is the dispersion measure stored as the pattern's
// amount variance, in the same currency scale as the estimate.
func meanAbsoluteDeviation(values []decimal.Decimal, center decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v.Sub(center).Abs())
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

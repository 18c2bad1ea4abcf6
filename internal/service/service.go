// Package service implements the forecasting core: merchant resolution,
// recurring pattern detection, and cash-flow forecast snapshots. All
// computation is synchronous and side-effect-free except the final store
// writes and audit emission.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/stackfin/backend/internal/merchant"
	"github.com/stackfin/backend/internal/model"
	"github.com/stackfin/backend/internal/store"
)

// ErrNoAccounts is returned when a forecast is requested for a user with
// no accounts at all. Missing history degrades confidence instead, but a
// forecast without any balance input is structurally impossible.
var ErrNoAccounts = errors.New("service: user has no accounts")

// CoachService owns the detection and forecasting flows. It is safe for
// concurrent use: per-user isolation comes from user-scoped store calls,
// and the shared merchant table resolves races through the store's
// uniqueness constraint.
type CoachService struct {
	store      store.Store
	normalizer *merchant.Normalizer

	detectionLookbackDays int
	historyLookbackDays   int

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// Option configures a CoachService.
type Option func(*CoachService)

// WithClock overrides the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *CoachService) { s.now = now }
}

// WithLookbacks overrides the detection and history lookback windows,
// both in days.
func WithLookbacks(detectionDays, historyDays int) Option {
	return func(s *CoachService) {
		if detectionDays > 0 {
			s.detectionLookbackDays = detectionDays
		}
		if historyDays > 0 {
			s.historyLookbackDays = historyDays
		}
	}
}

// NewCoachService creates the service. A nil normalizer gets one with the
// default alias table.
func NewCoachService(st store.Store, n *merchant.Normalizer, opts ...Option) *CoachService {
	if n == nil {
		n = merchant.NewNormalizer(nil)
	}
	s := &CoachService{
		store:                 st,
		normalizer:            n,
		detectionLookbackDays: 365,
		historyLookbackDays:   90,
		now:                   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// today returns the current date at midnight UTC. Projection days are
// whole calendar days.
func (s *CoachService) today() time.Time {
	return s.now().UTC().Truncate(24 * time.Hour)
}

// GetOrCreateMerchant resolves a raw description to the global Merchant
// record, creating it on first sighting. Idempotent and order-independent:
// every variant string of one merchant resolves to the same row. Races on
// first creation are resolved by the store's uniqueness constraint plus a
// re-read, not by locking.
func (s *CoachService) GetOrCreateMerchant(ctx context.Context, userID, rawName string) (*model.Merchant, error) {
	key := s.normalizer.Normalize(rawName)

	existing, err := s.store.GetMerchantByKey(ctx, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup merchant %q: %w", key, err)
	}

	m := &model.Merchant{
		ID:             uuid.New().String(),
		RawName:        rawName,
		NormalizedName: key,
		DisplayName:    s.normalizer.DisplayName(key),
		CreatedAt:      s.now().UTC(),
	}
	err = s.store.CreateMerchant(ctx, m)
	if errors.Is(err, store.ErrConflict) {
		// Lost the first-sighting race; the winner's row is authoritative.
		return s.store.GetMerchantByKey(ctx, key)
	}
	if err != nil {
		return nil, fmt.Errorf("create merchant %q: %w", key, err)
	}

	s.emitAudit(ctx, &model.AuditEvent{
		UserID:     userID,
		EventType:  "merchant.created",
		EntityType: "Merchant",
		EntityID:   m.ID,
		Action:     "create",
		Actor:      userID,
		Detail: map[string]any{
			"raw_name":        rawName,
			"normalized_name": key,
		},
	})
	return m, nil
}

// emitAudit writes one event to the append-only sink. Audit failures are
// logged, never propagated: the sink is a side channel and must not fail
// the operation it describes.
func (s *CoachService) emitAudit(ctx context.Context, e *model.AuditEvent) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	if err := s.store.AppendAuditEvent(ctx, e); err != nil {
		log.Printf("[Audit] failed to append %s for user %s: %v", e.EventType, e.UserID, err)
	}
}

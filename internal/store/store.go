// Package store provides persistence for the forecasting core with
// memory, sqlite, and firestore backends behind one interface.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/stackfin/backend/internal/model"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when an insert violates a natural-key
	// uniqueness constraint. Callers resolve races by re-reading.
	ErrConflict = errors.New("store: conflict")
)

// Store defines all database operations used by the service. Every read
// and write of user-owned data is scoped by user ID; merchants are global
// and deduplicated by normalized name.
type Store interface {
	// Merchant operations. CreateMerchant returns ErrConflict when the
	// normalized name already exists so concurrent first sightings
	// cannot produce two rows.
	CreateMerchant(ctx context.Context, m *model.Merchant) error
	GetMerchant(ctx context.Context, merchantID string) (*model.Merchant, error)
	GetMerchantByKey(ctx context.Context, normalizedName string) (*model.Merchant, error)

	// Account operations.
	CreateAccount(ctx context.Context, a *model.Account) error
	ListAccounts(ctx context.Context, userID string) ([]*model.Account, error)

	// Transaction operations. ListTransactions returns the user's
	// transactions dated at or after since (zero time = all), ordered by
	// transaction date ascending.
	CreateTransaction(ctx context.Context, t *model.Transaction) error
	ListTransactions(ctx context.Context, userID string, since time.Time) ([]*model.Transaction, error)

	// Constraint operations.
	CreateConstraint(ctx context.Context, c *model.Constraint) error
	ListConstraints(ctx context.Context, userID string) ([]*model.Constraint, error)

	// Recurring pattern operations. UpsertRecurringPattern writes by the
	// pattern's natural key: re-running detection on unchanged data
	// rewrites the same rows instead of inserting duplicates.
	UpsertRecurringPattern(ctx context.Context, p *model.RecurringPattern) error
	ListRecurringPatterns(ctx context.Context, userID string, activeOnly bool) ([]*model.RecurringPattern, error)

	// Forecast snapshot operations. Snapshots are insert-only; there is
	// deliberately no update or delete. Latest is ComputedAt ordering.
	CreateForecastSnapshot(ctx context.Context, s *model.ForecastSnapshot) error
	GetLatestForecastSnapshot(ctx context.Context, userID string) (*model.ForecastSnapshot, error)
	ListForecastSnapshots(ctx context.Context, userID string, limit int) ([]*model.ForecastSnapshot, error)

	// AppendAuditEvent writes one record to the append-only audit sink.
	AppendAuditEvent(ctx context.Context, e *model.AuditEvent) error

	Close() error
}

package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite3 "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/stackfin/backend/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store on a local sqlite database. Natural-key
// uniqueness (merchants by normalized name, patterns by upsert tuple) is
// enforced by UNIQUE constraints; constraint violations surface as
// ErrConflict so callers can retry with a re-read.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies all
// pending migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite
	db.SetConnMaxLifetime(0)

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	driver, err := migratesqlite3.WithInstance(db, &migratesqlite3.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// isUniqueViolation reports whether err is a sqlite UNIQUE or primary key
// constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Merchant operations

func (s *SQLiteStore) CreateMerchant(ctx context.Context, m *model.Merchant) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO merchants (id, raw_name, normalized_name, display_name, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.RawName, m.NormalizedName, m.DisplayName, m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert merchant: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetMerchant(ctx context.Context, merchantID string) (*model.Merchant, error) {
	return s.scanMerchant(s.db.QueryRowContext(ctx,
		`SELECT id, raw_name, normalized_name, display_name, created_at
		 FROM merchants WHERE id = ?`, merchantID))
}

func (s *SQLiteStore) GetMerchantByKey(ctx context.Context, normalizedName string) (*model.Merchant, error) {
	return s.scanMerchant(s.db.QueryRowContext(ctx,
		`SELECT id, raw_name, normalized_name, display_name, created_at
		 FROM merchants WHERE normalized_name = ?`, normalizedName))
}

func (s *SQLiteStore) scanMerchant(row *sql.Row) (*model.Merchant, error) {
	var m model.Merchant
	err := row.Scan(&m.ID, &m.RawName, &m.NormalizedName, &m.DisplayName, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan merchant: %w", err)
	}
	return &m, nil
}

// Account operations

func (s *SQLiteStore) CreateAccount(ctx context.Context, a *model.Account) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, name, account_type, current_cents, available_cents, currency, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Name, string(a.Type),
		toCents(a.CurrentBalance), toCents(a.AvailableBalance), a.Currency, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAccounts(ctx context.Context, userID string) ([]*model.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, account_type, current_cents, available_cents, currency, created_at
		 FROM accounts WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []*model.Account
	for rows.Next() {
		var a model.Account
		var accountType string
		var currentCents, availableCents int64
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &accountType,
			&currentCents, &availableCents, &a.Currency, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.Type = model.AccountType(accountType)
		a.CurrentBalance = fromCents(currentCents)
		a.AvailableBalance = fromCents(availableCents)
		out = append(out, &a)
	}
	return out, rows.Err()
}

// Transaction operations

func (s *SQLiteStore) CreateTransaction(ctx context.Context, t *model.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, user_id, account_id, merchant_id, category, raw_description,
		                           amount_cents, currency, direction, transaction_date, posted_date, pending, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.AccountID, nullString(t.MerchantID), t.Category, t.RawDescription,
		toCents(t.Amount), t.Currency, string(t.Direction), t.Date, nullTime(t.PostedDate), t.Pending, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, userID string, since time.Time) ([]*model.Transaction, error) {
	query := `SELECT id, user_id, account_id, merchant_id, category, raw_description,
	                 amount_cents, currency, direction, transaction_date, posted_date, pending, created_at
	          FROM transactions WHERE user_id = ?`
	args := []any{userID}
	if !since.IsZero() {
		query += ` AND transaction_date >= ?`
		args = append(args, since)
	}
	query += ` ORDER BY transaction_date ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		var t model.Transaction
		var merchantID sql.NullString
		var postedDate sql.NullTime
		var direction string
		var amountCents int64
		if err := rows.Scan(&t.ID, &t.UserID, &t.AccountID, &merchantID, &t.Category, &t.RawDescription,
			&amountCents, &t.Currency, &direction, &t.Date, &postedDate, &t.Pending, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.MerchantID = merchantID.String
		t.PostedDate = postedDate.Time
		t.Direction = model.Direction(direction)
		t.Amount = fromCents(amountCents)
		out = append(out, &t)
	}
	return out, rows.Err()
}

// Constraint operations

func (s *SQLiteStore) CreateConstraint(ctx context.Context, c *model.Constraint) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_constraints (id, user_id, kind, label, amount_cents, due_date, frequency, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, string(c.Kind), c.Label, toCents(c.Amount), nullTime(c.DueDate), string(c.Frequency), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert constraint: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListConstraints(ctx context.Context, userID string) ([]*model.Constraint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, kind, label, amount_cents, due_date, frequency, created_at
		 FROM user_constraints WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list constraints: %w", err)
	}
	defer rows.Close()

	var out []*model.Constraint
	for rows.Next() {
		var c model.Constraint
		var kind, frequency string
		var dueDate sql.NullTime
		var amountCents int64
		if err := rows.Scan(&c.ID, &c.UserID, &kind, &c.Label, &amountCents, &dueDate, &frequency, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan constraint: %w", err)
		}
		c.Kind = model.ConstraintKind(kind)
		c.Frequency = model.Frequency(frequency)
		c.DueDate = dueDate.Time
		c.Amount = fromCents(amountCents)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// Recurring pattern operations

func (s *SQLiteStore) UpsertRecurringPattern(ctx context.Context, p *model.RecurringPattern) error {
	key := p.NaturalKey()
	if p.ID == "" {
		p.ID = key
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recurring_patterns
		   (natural_key, id, user_id, merchant_id, category, direction, estimated_cents, variance_cents,
		    frequency, confidence, next_expected_date, last_observed_date, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(natural_key) DO UPDATE SET
		   estimated_cents = excluded.estimated_cents,
		   variance_cents = excluded.variance_cents,
		   confidence = excluded.confidence,
		   next_expected_date = excluded.next_expected_date,
		   last_observed_date = excluded.last_observed_date,
		   active = excluded.active,
		   updated_at = excluded.updated_at`,
		key, p.ID, p.UserID, p.MerchantID, p.Category, string(p.Direction),
		toCents(p.EstimatedAmount), toCents(p.AmountVariance),
		string(p.Frequency), string(p.Confidence),
		p.NextExpectedDate, p.LastObservedDate, p.Active, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert recurring pattern: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListRecurringPatterns(ctx context.Context, userID string, activeOnly bool) ([]*model.RecurringPattern, error) {
	query := `SELECT id, user_id, merchant_id, category, direction, estimated_cents, variance_cents,
	                 frequency, confidence, next_expected_date, last_observed_date, active, created_at, updated_at
	          FROM recurring_patterns WHERE user_id = ?`
	args := []any{userID}
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recurring patterns: %w", err)
	}
	defer rows.Close()

	var out []*model.RecurringPattern
	for rows.Next() {
		var p model.RecurringPattern
		var direction, frequency, confidence string
		var estimatedCents, varianceCents int64
		if err := rows.Scan(&p.ID, &p.UserID, &p.MerchantID, &p.Category, &direction,
			&estimatedCents, &varianceCents, &frequency, &confidence,
			&p.NextExpectedDate, &p.LastObservedDate, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan recurring pattern: %w", err)
		}
		p.Direction = model.Direction(direction)
		p.Frequency = model.Frequency(frequency)
		p.Confidence = model.Confidence(confidence)
		p.EstimatedAmount = fromCents(estimatedCents)
		p.AmountVariance = fromCents(varianceCents)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// Forecast snapshot operations

func (s *SQLiteStore) CreateForecastSnapshot(ctx context.Context, snap *model.ForecastSnapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	dailyBalances, err := json.Marshal(snap.DailyBalances)
	if err != nil {
		return fmt.Errorf("marshal daily balances: %w", err)
	}
	confidenceInputs, err := json.Marshal(snap.ConfidenceInputs)
	if err != nil {
		return fmt.Errorf("marshal confidence inputs: %w", err)
	}
	assumptions, err := json.Marshal(snap.Assumptions)
	if err != nil {
		return fmt.Errorf("marshal assumptions: %w", err)
	}
	urgencyFactors, err := json.Marshal(snap.UrgencyFactors)
	if err != nil {
		return fmt.Errorf("marshal urgency factors: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO forecast_snapshots
		   (id, user_id, safe_today_cents, safe_week_cents, daily_balances,
		    end_balance_cents, end_low_cents, end_high_cents,
		    confidence, confidence_inputs, assumptions, urgency_score, urgency_factors, computed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.UserID, toCents(snap.SafeToSpendToday), toCents(snap.SafeToSpendWeek),
		string(dailyBalances), toCents(snap.ProjectedEndBalance), toCents(snap.ProjectedEndLow),
		toCents(snap.ProjectedEndHigh), string(snap.Confidence), string(confidenceInputs),
		string(assumptions), snap.UrgencyScore, string(urgencyFactors), snap.ComputedAt)
	if err != nil {
		return fmt.Errorf("insert forecast snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetLatestForecastSnapshot(ctx context.Context, userID string) (*model.ForecastSnapshot, error) {
	snapshots, err := s.ListForecastSnapshots(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, ErrNotFound
	}
	return snapshots[0], nil
}

func (s *SQLiteStore) ListForecastSnapshots(ctx context.Context, userID string, limit int) ([]*model.ForecastSnapshot, error) {
	query := `SELECT id, user_id, safe_today_cents, safe_week_cents, daily_balances,
	                 end_balance_cents, end_low_cents, end_high_cents,
	                 confidence, confidence_inputs, assumptions, urgency_score, urgency_factors, computed_at
	          FROM forecast_snapshots WHERE user_id = ?
	          ORDER BY computed_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list forecast snapshots: %w", err)
	}
	defer rows.Close()

	var out []*model.ForecastSnapshot
	for rows.Next() {
		var snap model.ForecastSnapshot
		var confidence, dailyBalances, confidenceInputs, assumptions, urgencyFactors string
		var safeToday, safeWeek, endBalance, endLow, endHigh int64
		if err := rows.Scan(&snap.ID, &snap.UserID, &safeToday, &safeWeek, &dailyBalances,
			&endBalance, &endLow, &endHigh, &confidence, &confidenceInputs,
			&assumptions, &snap.UrgencyScore, &urgencyFactors, &snap.ComputedAt); err != nil {
			return nil, fmt.Errorf("scan forecast snapshot: %w", err)
		}
		snap.SafeToSpendToday = fromCents(safeToday)
		snap.SafeToSpendWeek = fromCents(safeWeek)
		snap.ProjectedEndBalance = fromCents(endBalance)
		snap.ProjectedEndLow = fromCents(endLow)
		snap.ProjectedEndHigh = fromCents(endHigh)
		snap.Confidence = model.Confidence(confidence)
		if err := json.Unmarshal([]byte(dailyBalances), &snap.DailyBalances); err != nil {
			return nil, fmt.Errorf("unmarshal daily balances: %w", err)
		}
		if err := json.Unmarshal([]byte(confidenceInputs), &snap.ConfidenceInputs); err != nil {
			return nil, fmt.Errorf("unmarshal confidence inputs: %w", err)
		}
		if err := json.Unmarshal([]byte(assumptions), &snap.Assumptions); err != nil {
			return nil, fmt.Errorf("unmarshal assumptions: %w", err)
		}
		if err := json.Unmarshal([]byte(urgencyFactors), &snap.UrgencyFactors); err != nil {
			return nil, fmt.Errorf("unmarshal urgency factors: %w", err)
		}
		out = append(out, &snap)
	}
	return out, rows.Err()
}

// Audit operations

func (s *SQLiteStore) AppendAuditEvent(ctx context.Context, e *model.AuditEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	detail, err := json.Marshal(e.Detail)
	if err != nil {
		return fmt.Errorf("marshal audit detail: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, user_id, event_type, entity_type, entity_id, action, actor, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.EventType, e.EntityType, e.EntityID, e.Action, e.Actor, string(detail), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

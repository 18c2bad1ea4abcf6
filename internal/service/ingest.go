package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stackfin/backend/internal/model"
)

// ErrInvalid wraps input validation failures so the transport layer can
// map them to a client error instead of a server one.
var ErrInvalid = errors.New("service: invalid input")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// CreateAccount records an account for the user. The balance fields are
// taken as reported; the forecast only reads them.
func (s *CoachService) CreateAccount(ctx context.Context, a *model.Account) (*model.Account, error) {
	if a.UserID == "" {
		return nil, invalidf("account requires a user id")
	}
	if a.Name == "" {
		return nil, invalidf("account requires a name")
	}
	switch a.Type {
	case model.AccountChecking, model.AccountSavings, model.AccountCreditCard, model.AccountLoan, model.AccountOther:
	default:
		return nil, invalidf("unknown account type %q", a.Type)
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Currency == "" {
		a.Currency = "USD"
	}
	a.CreatedAt = s.now().UTC()
	if err := s.store.CreateAccount(ctx, a); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return a, nil
}

// ListAccounts returns the user's accounts.
func (s *CoachService) ListAccounts(ctx context.Context, userID string) ([]*model.Account, error) {
	return s.store.ListAccounts(ctx, userID)
}

// IngestTransaction stores one transaction, resolving its raw description
// to a merchant first. Pending transactions are stored as-is and settle
// inside the forecast, not here.
func (s *CoachService) IngestTransaction(ctx context.Context, t *model.Transaction) (*model.Transaction, error) {
	if t.UserID == "" {
		return nil, invalidf("transaction requires a user id")
	}
	if t.AccountID == "" {
		return nil, invalidf("transaction requires an account id")
	}
	if t.Amount.IsNegative() {
		return nil, invalidf("transaction amount must be non-negative, direction carries the sign")
	}
	switch t.Direction {
	case model.DirectionDebit, model.DirectionCredit:
	default:
		return nil, invalidf("unknown direction %q", t.Direction)
	}
	if t.Date.IsZero() {
		return nil, invalidf("transaction requires a date")
	}

	if t.MerchantID == "" && t.RawDescription != "" {
		m, err := s.GetOrCreateMerchant(ctx, t.UserID, t.RawDescription)
		if err != nil {
			return nil, fmt.Errorf("resolve merchant: %w", err)
		}
		t.MerchantID = m.ID
	}

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Currency == "" {
		t.Currency = "USD"
	}
	t.CreatedAt = s.now().UTC()
	if err := s.store.CreateTransaction(ctx, t); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	return t, nil
}

// ListTransactions returns the user's transactions dated at or after
// since; a zero since returns everything.
func (s *CoachService) ListTransactions(ctx context.Context, userID string, since time.Time) ([]*model.Transaction, error) {
	return s.store.ListTransactions(ctx, userID, since)
}

// CreateConstraint records a user-declared fixed income or expense item.
func (s *CoachService) CreateConstraint(ctx context.Context, c *model.Constraint) (*model.Constraint, error) {
	if c.UserID == "" {
		return nil, invalidf("constraint requires a user id")
	}
	if c.Label == "" {
		return nil, invalidf("constraint requires a label")
	}
	switch c.Kind {
	case model.ConstraintIncome, model.ConstraintExpense:
	default:
		return nil, invalidf("unknown constraint kind %q", c.Kind)
	}
	if c.Amount.IsNegative() {
		return nil, invalidf("constraint amount must be non-negative, kind carries the sign")
	}
	if c.Frequency != "" && c.Frequency.PeriodDays() == 0 {
		return nil, invalidf("unknown frequency %q", c.Frequency)
	}
	if c.Frequency != "" && c.DueDate.IsZero() {
		return nil, invalidf("a recurring constraint requires a due date to recur from")
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = s.now().UTC()
	if err := s.store.CreateConstraint(ctx, c); err != nil {
		return nil, fmt.Errorf("create constraint: %w", err)
	}
	return c, nil
}

// ListConstraints returns the user's declared constraints.
func (s *CoachService) ListConstraints(ctx context.Context, userID string) ([]*model.Constraint, error) {
	return s.store.ListConstraints(ctx, userID)
}

// ListRecurringPatterns returns the user's detected patterns, optionally
// restricted to active ones.
func (s *CoachService) ListRecurringPatterns(ctx context.Context, userID string, activeOnly bool) ([]*model.RecurringPattern, error) {
	return s.store.ListRecurringPatterns(ctx, userID, activeOnly)
}

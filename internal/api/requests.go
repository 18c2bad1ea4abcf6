package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stackfin/backend/internal/model"
)

// Request bodies use YYYY-MM-DD dates; amounts accept JSON numbers or
// strings (decimal handles both).

type accountRequest struct {
	Name             string          `json:"name"`
	Type             string          `json:"account_type"`
	CurrentBalance   decimal.Decimal `json:"current_balance"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	Currency         string          `json:"currency"`
}

func (r *accountRequest) toModel(userID string) *model.Account {
	return &model.Account{
		UserID:           userID,
		Name:             r.Name,
		Type:             model.AccountType(r.Type),
		CurrentBalance:   r.CurrentBalance,
		AvailableBalance: r.AvailableBalance,
		Currency:         r.Currency,
	}
}

type transactionRequest struct {
	AccountID      string          `json:"account_id"`
	RawDescription string          `json:"raw_description"`
	Category       string          `json:"category"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Direction      string          `json:"direction"`
	Date           string          `json:"transaction_date"`
	PostedDate     string          `json:"posted_date"`
	Pending        bool            `json:"pending"`
}

func (r *transactionRequest) toModel(userID string) (*model.Transaction, error) {
	date, err := parseDate(r.Date, "transaction_date", true)
	if err != nil {
		return nil, err
	}
	posted, err := parseDate(r.PostedDate, "posted_date", false)
	if err != nil {
		return nil, err
	}
	return &model.Transaction{
		UserID:         userID,
		AccountID:      r.AccountID,
		RawDescription: r.RawDescription,
		Category:       r.Category,
		Amount:         r.Amount,
		Currency:       r.Currency,
		Direction:      model.Direction(r.Direction),
		Date:           date,
		PostedDate:     posted,
		Pending:        r.Pending,
	}, nil
}

type constraintRequest struct {
	Kind      string          `json:"kind"`
	Label     string          `json:"label"`
	Amount    decimal.Decimal `json:"amount"`
	DueDate   string          `json:"due_date"`
	Frequency string          `json:"frequency"`
}

func (r *constraintRequest) toModel(userID string) (*model.Constraint, error) {
	due, err := parseDate(r.DueDate, "due_date", false)
	if err != nil {
		return nil, err
	}
	return &model.Constraint{
		UserID:    userID,
		Kind:      model.ConstraintKind(r.Kind),
		Label:     r.Label,
		Amount:    r.Amount,
		DueDate:   due,
		Frequency: model.Frequency(r.Frequency),
	}, nil
}

func parseDate(raw, field string, required bool) (time.Time, error) {
	if raw == "" {
		if required {
			return time.Time{}, fmt.Errorf("%s is required", field)
		}
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD", field)
	}
	return t.UTC(), nil
}

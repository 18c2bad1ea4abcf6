// Package model defines the domain types shared by the store, the
// detection/forecast services, and the API layer. All money amounts are
// shopspring decimals carrying the account currency's scale; transaction
// amounts are always non-negative with Direction indicating sign.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction indicates which way money moved.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// AccountType classifies an account for liquidity purposes.
type AccountType string

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCreditCard AccountType = "credit_card"
	AccountLoan       AccountType = "loan"
	AccountOther      AccountType = "other"
)

// Liquid reports whether the account counts toward spendable balance.
// Credit cards and loans are liabilities, not liquidity.
func (t AccountType) Liquid() bool {
	return t == AccountChecking || t == AccountSavings
}

// Merchant is a globally deduplicated, normalized counterparty. It carries
// no per-user data. NormalizedName is the unique natural key.
type Merchant struct {
	ID             string    `json:"id"`
	RawName        string    `json:"raw_name"`
	NormalizedName string    `json:"normalized_name"`
	DisplayName    string    `json:"display_name"`
	CreatedAt      time.Time `json:"created_at"`
}

// Account holds one user's account balances.
type Account struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	Name             string          `json:"name"`
	Type             AccountType     `json:"account_type"`
	CurrentBalance   decimal.Decimal `json:"current_balance"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	Currency         string          `json:"currency"`
	CreatedAt        time.Time       `json:"created_at"`
}

// SpendableBalance prefers the available balance when the provider
// reported one, falling back to the current balance.
func (a *Account) SpendableBalance() decimal.Decimal {
	if !a.AvailableBalance.IsZero() {
		return a.AvailableBalance
	}
	return a.CurrentBalance
}

// Transaction is one observed movement of money. Amount is non-negative;
// Direction carries the sign.
type Transaction struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	AccountID      string          `json:"account_id"`
	MerchantID     string          `json:"merchant_id,omitempty"`
	Category       string          `json:"category,omitempty"`
	RawDescription string          `json:"raw_description"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Direction      Direction       `json:"direction"`
	Date           time.Time       `json:"transaction_date"`
	PostedDate     time.Time       `json:"posted_date,omitempty"`
	Pending        bool            `json:"pending"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ConstraintKind distinguishes declared income from declared expenses.
type ConstraintKind string

const (
	ConstraintIncome  ConstraintKind = "income"
	ConstraintExpense ConstraintKind = "expense"
)

// Constraint is a user-declared fixed income or expense item. DueDate and
// Frequency are optional; a constraint with a frequency recurs from its
// due date, one with only a due date applies once.
type Constraint struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Kind      ConstraintKind  `json:"kind"`
	Label     string          `json:"label"`
	Amount    decimal.Decimal `json:"amount"`
	DueDate   time.Time       `json:"due_date,omitempty"`
	Frequency Frequency       `json:"frequency,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// AuditEvent is one record emitted to the append-only audit sink. The core
// writes these and never reads them back.
type AuditEvent struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	EventType  string         `json:"event_type"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Action     string         `json:"action"`
	Actor      string         `json:"actor"`
	Detail     map[string]any `json:"detail,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

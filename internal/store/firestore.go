package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/stackfin/backend/internal/model"
)

// FirestoreStore implements Store using Firestore. Natural keys become
// document IDs: merchants are keyed by normalized name and recurring
// patterns by their upsert tuple, so Create/Set give the uniqueness and
// idempotence guarantees without application-level locking.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore creates a Firestore-backed store.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

// Document shapes. Amounts are integer cents; Firestore serializes by Go
// field name, so these names are load-bearing for queries below.

type merchantDoc struct {
	ID             string
	RawName        string
	NormalizedName string
	DisplayName    string
	CreatedAt      time.Time
}

type accountDoc struct {
	ID             string
	UserID         string
	Name           string
	Type           string
	CurrentCents   int64
	AvailableCents int64
	Currency       string
	CreatedAt      time.Time
}

type transactionDoc struct {
	ID             string
	UserID         string
	AccountID      string
	MerchantID     string
	Category       string
	RawDescription string
	AmountCents    int64
	Currency       string
	Direction      string
	Date           time.Time
	PostedDate     time.Time
	Pending        bool
	CreatedAt      time.Time
}

type constraintDoc struct {
	ID          string
	UserID      string
	Kind        string
	Label       string
	AmountCents int64
	DueDate     time.Time
	Frequency   string
	CreatedAt   time.Time
}

type patternDoc struct {
	ID               string
	UserID           string
	MerchantID       string
	Category         string
	Direction        string
	EstimatedCents   int64
	VarianceCents    int64
	Frequency        string
	Confidence       string
	NextExpectedDate time.Time
	LastObservedDate time.Time
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type snapshotDoc struct {
	ID               string
	UserID           string
	SafeTodayCents   int64
	SafeWeekCents    int64
	DailyBalances    string // JSON, frozen presentation contract
	EndBalanceCents  int64
	EndLowCents      int64
	EndHighCents     int64
	Confidence       string
	ConfidenceInputs model.ConfidenceInputs
	Assumptions      []string
	UrgencyScore     int
	UrgencyFactors   map[string]int
	ComputedAt       time.Time
}

type auditEventDoc struct {
	ID         string
	UserID     string
	EventType  string
	EntityType string
	EntityID   string
	Action     string
	Actor      string
	Detail     map[string]any
	CreatedAt  time.Time
}

// Merchant operations

func (s *FirestoreStore) CreateMerchant(ctx context.Context, m *model.Merchant) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	doc := merchantDoc{
		ID:             m.ID,
		RawName:        m.RawName,
		NormalizedName: m.NormalizedName,
		DisplayName:    m.DisplayName,
		CreatedAt:      m.CreatedAt,
	}
	// Doc ID is the normalized name: Create fails on the second concurrent
	// first-sighting instead of writing a duplicate row.
	_, err := s.client.Collection("merchants").Doc(m.NormalizedName).Create(ctx, doc)
	if status.Code(err) == codes.AlreadyExists {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("create merchant: %w", err)
	}
	return nil
}

func (s *FirestoreStore) GetMerchant(ctx context.Context, merchantID string) (*model.Merchant, error) {
	docs, err := s.client.Collection("merchants").
		Where("ID", "==", merchantID).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("get merchant: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return merchantFromDoc(docs[0])
}

func (s *FirestoreStore) GetMerchantByKey(ctx context.Context, normalizedName string) (*model.Merchant, error) {
	doc, err := s.client.Collection("merchants").Doc(normalizedName).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get merchant by key: %w", err)
	}
	return merchantFromDoc(doc)
}

func merchantFromDoc(doc *firestore.DocumentSnapshot) (*model.Merchant, error) {
	var d merchantDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("parse merchant: %w", err)
	}
	return &model.Merchant{
		ID:             d.ID,
		RawName:        d.RawName,
		NormalizedName: d.NormalizedName,
		DisplayName:    d.DisplayName,
		CreatedAt:      d.CreatedAt,
	}, nil
}

// Account operations

func (s *FirestoreStore) CreateAccount(ctx context.Context, a *model.Account) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	doc := accountDoc{
		ID:             a.ID,
		UserID:         a.UserID,
		Name:           a.Name,
		Type:           string(a.Type),
		CurrentCents:   toCents(a.CurrentBalance),
		AvailableCents: toCents(a.AvailableBalance),
		Currency:       a.Currency,
		CreatedAt:      a.CreatedAt,
	}
	_, err := s.client.Collection("accounts").Doc(a.ID).Set(ctx, doc)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *FirestoreStore) ListAccounts(ctx context.Context, userID string) ([]*model.Account, error) {
	docs, err := s.client.Collection("accounts").
		Where("UserID", "==", userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := make([]*model.Account, 0, len(docs))
	for _, doc := range docs {
		var d accountDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("parse account: %w", err)
		}
		out = append(out, &model.Account{
			ID:               d.ID,
			UserID:           d.UserID,
			Name:             d.Name,
			Type:             model.AccountType(d.Type),
			CurrentBalance:   fromCents(d.CurrentCents),
			AvailableBalance: fromCents(d.AvailableCents),
			Currency:         d.Currency,
			CreatedAt:        d.CreatedAt,
		})
	}
	return out, nil
}

// Transaction operations

func (s *FirestoreStore) CreateTransaction(ctx context.Context, t *model.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	doc := transactionDoc{
		ID:             t.ID,
		UserID:         t.UserID,
		AccountID:      t.AccountID,
		MerchantID:     t.MerchantID,
		Category:       t.Category,
		RawDescription: t.RawDescription,
		AmountCents:    toCents(t.Amount),
		Currency:       t.Currency,
		Direction:      string(t.Direction),
		Date:           t.Date,
		PostedDate:     t.PostedDate,
		Pending:        t.Pending,
		CreatedAt:      t.CreatedAt,
	}
	_, err := s.client.Collection("transactions").Doc(t.ID).Set(ctx, doc)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (s *FirestoreStore) ListTransactions(ctx context.Context, userID string, since time.Time) ([]*model.Transaction, error) {
	query := s.client.Collection("transactions").Where("UserID", "==", userID)
	if !since.IsZero() {
		query = query.Where("Date", ">=", since)
	}
	docs, err := query.OrderBy("Date", firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]*model.Transaction, 0, len(docs))
	for _, doc := range docs {
		var d transactionDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("parse transaction: %w", err)
		}
		out = append(out, &model.Transaction{
			ID:             d.ID,
			UserID:         d.UserID,
			AccountID:      d.AccountID,
			MerchantID:     d.MerchantID,
			Category:       d.Category,
			RawDescription: d.RawDescription,
			Amount:         fromCents(d.AmountCents),
			Currency:       d.Currency,
			Direction:      model.Direction(d.Direction),
			Date:           d.Date,
			PostedDate:     d.PostedDate,
			Pending:        d.Pending,
			CreatedAt:      d.CreatedAt,
		})
	}
	return out, nil
}

// Constraint operations

func (s *FirestoreStore) CreateConstraint(ctx context.Context, c *model.Constraint) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	doc := constraintDoc{
		ID:          c.ID,
		UserID:      c.UserID,
		Kind:        string(c.Kind),
		Label:       c.Label,
		AmountCents: toCents(c.Amount),
		DueDate:     c.DueDate,
		Frequency:   string(c.Frequency),
		CreatedAt:   c.CreatedAt,
	}
	_, err := s.client.Collection("userConstraints").Doc(c.ID).Set(ctx, doc)
	if err != nil {
		return fmt.Errorf("create constraint: %w", err)
	}
	return nil
}

func (s *FirestoreStore) ListConstraints(ctx context.Context, userID string) ([]*model.Constraint, error) {
	docs, err := s.client.Collection("userConstraints").
		Where("UserID", "==", userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list constraints: %w", err)
	}
	out := make([]*model.Constraint, 0, len(docs))
	for _, doc := range docs {
		var d constraintDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("parse constraint: %w", err)
		}
		out = append(out, &model.Constraint{
			ID:        d.ID,
			UserID:    d.UserID,
			Kind:      model.ConstraintKind(d.Kind),
			Label:     d.Label,
			Amount:    fromCents(d.AmountCents),
			DueDate:   d.DueDate,
			Frequency: model.Frequency(d.Frequency),
			CreatedAt: d.CreatedAt,
		})
	}
	return out, nil
}

// Recurring pattern operations

func (s *FirestoreStore) UpsertRecurringPattern(ctx context.Context, p *model.RecurringPattern) error {
	key := p.NaturalKey()
	if p.ID == "" {
		p.ID = key
	}
	doc := patternDoc{
		ID:               p.ID,
		UserID:           p.UserID,
		MerchantID:       p.MerchantID,
		Category:         p.Category,
		Direction:        string(p.Direction),
		EstimatedCents:   toCents(p.EstimatedAmount),
		VarianceCents:    toCents(p.AmountVariance),
		Frequency:        string(p.Frequency),
		Confidence:       string(p.Confidence),
		NextExpectedDate: p.NextExpectedDate,
		LastObservedDate: p.LastObservedDate,
		Active:           p.Active,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	// Natural key as document ID: Set is the upsert.
	_, err := s.client.Collection("recurringPatterns").Doc(key).Set(ctx, doc)
	if err != nil {
		return fmt.Errorf("upsert recurring pattern: %w", err)
	}
	return nil
}

func (s *FirestoreStore) ListRecurringPatterns(ctx context.Context, userID string, activeOnly bool) ([]*model.RecurringPattern, error) {
	query := s.client.Collection("recurringPatterns").Where("UserID", "==", userID)
	if activeOnly {
		query = query.Where("Active", "==", true)
	}
	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list recurring patterns: %w", err)
	}
	out := make([]*model.RecurringPattern, 0, len(docs))
	for _, doc := range docs {
		var d patternDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("parse recurring pattern: %w", err)
		}
		out = append(out, &model.RecurringPattern{
			ID:               d.ID,
			UserID:           d.UserID,
			MerchantID:       d.MerchantID,
			Category:         d.Category,
			Direction:        model.Direction(d.Direction),
			EstimatedAmount:  fromCents(d.EstimatedCents),
			AmountVariance:   fromCents(d.VarianceCents),
			Frequency:        model.Frequency(d.Frequency),
			Confidence:       model.Confidence(d.Confidence),
			NextExpectedDate: d.NextExpectedDate,
			LastObservedDate: d.LastObservedDate,
			Active:           d.Active,
			CreatedAt:        d.CreatedAt,
			UpdatedAt:        d.UpdatedAt,
		})
	}
	return out, nil
}

// Forecast snapshot operations

func (s *FirestoreStore) CreateForecastSnapshot(ctx context.Context, snap *model.ForecastSnapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	dailyBalances, err := json.Marshal(snap.DailyBalances)
	if err != nil {
		return fmt.Errorf("marshal daily balances: %w", err)
	}
	doc := snapshotDoc{
		ID:               snap.ID,
		UserID:           snap.UserID,
		SafeTodayCents:   toCents(snap.SafeToSpendToday),
		SafeWeekCents:    toCents(snap.SafeToSpendWeek),
		DailyBalances:    string(dailyBalances),
		EndBalanceCents:  toCents(snap.ProjectedEndBalance),
		EndLowCents:      toCents(snap.ProjectedEndLow),
		EndHighCents:     toCents(snap.ProjectedEndHigh),
		Confidence:       string(snap.Confidence),
		ConfidenceInputs: snap.ConfidenceInputs,
		Assumptions:      snap.Assumptions,
		UrgencyScore:     snap.UrgencyScore,
		UrgencyFactors:   snap.UrgencyFactors,
		ComputedAt:       snap.ComputedAt,
	}
	// Create, not Set: snapshots are immutable and append-only.
	_, err = s.client.Collection("forecastSnapshots").Doc(snap.ID).Create(ctx, doc)
	if err != nil {
		return fmt.Errorf("create forecast snapshot: %w", err)
	}
	return nil
}

func (s *FirestoreStore) GetLatestForecastSnapshot(ctx context.Context, userID string) (*model.ForecastSnapshot, error) {
	snapshots, err := s.ListForecastSnapshots(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, ErrNotFound
	}
	return snapshots[0], nil
}

func (s *FirestoreStore) ListForecastSnapshots(ctx context.Context, userID string, limit int) ([]*model.ForecastSnapshot, error) {
	query := s.client.Collection("forecastSnapshots").
		Where("UserID", "==", userID).
		OrderBy("ComputedAt", firestore.Desc)
	if limit > 0 {
		query = query.Limit(limit)
	}
	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list forecast snapshots: %w", err)
	}
	out := make([]*model.ForecastSnapshot, 0, len(docs))
	for _, doc := range docs {
		var d snapshotDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("parse forecast snapshot: %w", err)
		}
		snap := &model.ForecastSnapshot{
			ID:                  d.ID,
			UserID:              d.UserID,
			SafeToSpendToday:    fromCents(d.SafeTodayCents),
			SafeToSpendWeek:     fromCents(d.SafeWeekCents),
			ProjectedEndBalance: fromCents(d.EndBalanceCents),
			ProjectedEndLow:     fromCents(d.EndLowCents),
			ProjectedEndHigh:    fromCents(d.EndHighCents),
			Confidence:          model.Confidence(d.Confidence),
			ConfidenceInputs:    d.ConfidenceInputs,
			Assumptions:         d.Assumptions,
			UrgencyScore:        d.UrgencyScore,
			UrgencyFactors:      d.UrgencyFactors,
			ComputedAt:          d.ComputedAt,
		}
		if err := json.Unmarshal([]byte(d.DailyBalances), &snap.DailyBalances); err != nil {
			return nil, fmt.Errorf("unmarshal daily balances: %w", err)
		}
		out = append(out, snap)
	}
	return out, nil
}

// Audit operations

func (s *FirestoreStore) AppendAuditEvent(ctx context.Context, e *model.AuditEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	doc := auditEventDoc{
		ID:         e.ID,
		UserID:     e.UserID,
		EventType:  e.EventType,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Action:     e.Action,
		Actor:      e.Actor,
		Detail:     e.Detail,
		CreatedAt:  e.CreatedAt,
	}
	_, err := s.client.Collection("auditEvents").Doc(e.ID).Create(ctx, doc)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

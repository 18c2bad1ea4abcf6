package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stackfin/backend/internal/model"
)

// MemoryStore implements Store with in-memory maps. It backs local
// development and tests.
type MemoryStore struct {
	mu sync.RWMutex

	merchants      map[string]*model.Merchant // by ID
	merchantsByKey map[string]*model.Merchant // by normalized name
	accounts       map[string]*model.Account
	transactions   map[string]*model.Transaction
	constraints    map[string]*model.Constraint
	patterns       map[string]*model.RecurringPattern // by natural key
	snapshots      map[string]*model.ForecastSnapshot
	auditEvents    []*model.AuditEvent
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		merchants:      make(map[string]*model.Merchant),
		merchantsByKey: make(map[string]*model.Merchant),
		accounts:       make(map[string]*model.Account),
		transactions:   make(map[string]*model.Transaction),
		constraints:    make(map[string]*model.Constraint),
		patterns:       make(map[string]*model.RecurringPattern),
		snapshots:      make(map[string]*model.ForecastSnapshot),
	}
}

// Merchant operations

func (m *MemoryStore) CreateMerchant(ctx context.Context, merchant *model.Merchant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.merchantsByKey[merchant.NormalizedName]; exists {
		return ErrConflict
	}
	if merchant.ID == "" {
		merchant.ID = uuid.New().String()
	}
	m.merchants[merchant.ID] = merchant
	m.merchantsByKey[merchant.NormalizedName] = merchant
	return nil
}

func (m *MemoryStore) GetMerchant(ctx context.Context, merchantID string) (*model.Merchant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	merchant, ok := m.merchants[merchantID]
	if !ok {
		return nil, ErrNotFound
	}
	return merchant, nil
}

func (m *MemoryStore) GetMerchantByKey(ctx context.Context, normalizedName string) (*model.Merchant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	merchant, ok := m.merchantsByKey[normalizedName]
	if !ok {
		return nil, ErrNotFound
	}
	return merchant, nil
}

// Account operations

func (m *MemoryStore) CreateAccount(ctx context.Context, a *model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	m.accounts[a.ID] = a
	return nil
}

func (m *MemoryStore) ListAccounts(ctx context.Context, userID string) ([]*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.Account
	for _, a := range m.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Transaction operations

func (m *MemoryStore) CreateTransaction(ctx context.Context, t *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	m.transactions[t.ID] = t
	return nil
}

func (m *MemoryStore) ListTransactions(ctx context.Context, userID string, since time.Time) ([]*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.Transaction
	for _, t := range m.transactions {
		if t.UserID != userID {
			continue
		}
		if !since.IsZero() && t.Date.Before(since) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Constraint operations

func (m *MemoryStore) CreateConstraint(ctx context.Context, c *model.Constraint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	m.constraints[c.ID] = c
	return nil
}

func (m *MemoryStore) ListConstraints(ctx context.Context, userID string) ([]*model.Constraint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.Constraint
	for _, c := range m.constraints {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Recurring pattern operations

func (m *MemoryStore) UpsertRecurringPattern(ctx context.Context, p *model.RecurringPattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := p.NaturalKey()
	if existing, ok := m.patterns[key]; ok {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	} else if p.ID == "" {
		p.ID = key
	}
	m.patterns[key] = p
	return nil
}

func (m *MemoryStore) ListRecurringPatterns(ctx context.Context, userID string, activeOnly bool) ([]*model.RecurringPattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.RecurringPattern
	for _, p := range m.patterns {
		if p.UserID != userID {
			continue
		}
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Forecast snapshot operations

func (m *MemoryStore) CreateForecastSnapshot(ctx context.Context, s *model.ForecastSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	m.snapshots[s.ID] = s
	return nil
}

func (m *MemoryStore) GetLatestForecastSnapshot(ctx context.Context, userID string) (*model.ForecastSnapshot, error) {
	snapshots, err := m.ListForecastSnapshots(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, ErrNotFound
	}
	return snapshots[0], nil
}

func (m *MemoryStore) ListForecastSnapshots(ctx context.Context, userID string, limit int) ([]*model.ForecastSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.ForecastSnapshot
	for _, s := range m.snapshots {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ComputedAt.Equal(out[j].ComputedAt) {
			return out[i].ComputedAt.After(out[j].ComputedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Audit operations

func (m *MemoryStore) AppendAuditEvent(ctx context.Context, e *model.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	m.auditEvents = append(m.auditEvents, e)
	return nil
}

// AuditEvents returns a copy of the recorded audit events. Test helper.
func (m *MemoryStore) AuditEvents() []*model.AuditEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*model.AuditEvent, len(m.auditEvents))
	copy(out, m.auditEvents)
	return out
}

func (m *MemoryStore) Close() error { return nil }

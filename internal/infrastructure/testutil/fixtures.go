package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streakworks/chainrules/internal/domain/rule"
)

// NewTestRule creates an active global rule for testing.
func NewTestRule(name string) rule.Rule {
	return rule.Rule{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      rule.TypePauseOnly,
		Scope:     rule.ScopeGlobal,
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		IsActive:  true,
	}
}

// NewChainRule creates an active chain-scoped rule for testing.
func NewChainRule(name, chainID string) rule.Rule {
	r := NewTestRule(name)
	r.Scope = rule.ScopeChain
	r.ChainID = chainID
	return r
}

// NewUsageRecord creates a usage record referencing the given rule.
func NewUsageRecord(r rule.Rule, chainID string) rule.UsageRecord {
	return rule.UsageRecord{
		ID:            uuid.NewString(),
		RuleID:        r.ID,
		ChainID:       chainID,
		SessionID:     uuid.NewString(),
		UsedAt:        time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC),
		ActionType:    r.Type,
		ElapsedTime:   120,
		RemainingTime: 480,
		RuleScope:     r.Scope,
	}
}

// MemoryStore is an in-memory implementation of both collection ports.
// It is safe for concurrent use and can be primed with failures.
type MemoryStore struct {
	mu      sync.Mutex
	rules   []rule.Rule
	records []rule.UsageRecord

	// When set, the corresponding operation returns the error.
	LoadRulesErr   error
	SaveRulesErr   error
	LoadRecordsErr error
	SaveRecordsErr error

	// SaveCount tracks how many times SaveRules has been called.
	SaveCount int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(rules ...rule.Rule) *MemoryStore {
	return &MemoryStore{rules: rules}
}

// LoadRules returns a copy of the stored rule collection.
func (m *MemoryStore) LoadRules(_ context.Context) ([]rule.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadRulesErr != nil {
		return nil, m.LoadRulesErr
	}
	out := make([]rule.Rule, len(m.rules))
	copy(out, m.rules)
	return out, nil
}

// SaveRules replaces the stored rule collection.
func (m *MemoryStore) SaveRules(_ context.Context, rules []rule.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveRulesErr != nil {
		return m.SaveRulesErr
	}
	m.SaveCount++
	m.rules = make([]rule.Rule, len(rules))
	copy(m.rules, rules)
	return nil
}

// LoadRecords returns a copy of the stored usage record collection.
func (m *MemoryStore) LoadRecords(_ context.Context) ([]rule.UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadRecordsErr != nil {
		return nil, m.LoadRecordsErr
	}
	out := make([]rule.UsageRecord, len(m.records))
	copy(out, m.records)
	return out, nil
}

// SaveRecords replaces the stored usage record collection.
func (m *MemoryStore) SaveRecords(_ context.Context, records []rule.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveRecordsErr != nil {
		return m.SaveRecordsErr
	}
	m.records = make([]rule.UsageRecord, len(records))
	copy(m.records, records)
	return nil
}

// Rules returns a snapshot of the stored rules.
func (m *MemoryStore) Rules() []rule.Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]rule.Rule, len(m.rules))
	copy(out, m.rules)
	return out
}

// Records returns a snapshot of the stored usage records.
func (m *MemoryStore) Records() []rule.UsageRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]rule.UsageRecord, len(m.records))
	copy(out, m.records)
	return out
}

// SetRecords replaces the stored usage records directly.
func (m *MemoryStore) SetRecords(records []rule.UsageRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make([]rule.UsageRecord, len(records))
	copy(m.records, records)
}

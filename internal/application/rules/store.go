package rules

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/streakworks/chainrules/internal/application/ports"
	domainErrors "github.com/streakworks/chainrules/internal/domain/errors"
	"github.com/streakworks/chainrules/internal/domain/rule"
	"github.com/streakworks/chainrules/internal/infrastructure/logging"
	"github.com/streakworks/chainrules/internal/infrastructure/tracing"
)

// Store is the single source of truth for the rule and usage-record
// collections. It owns all validation and uniqueness logic; the persistence
// ports behind it are dumb durable stores.
type Store struct {
	rules  ports.RuleCollectionPort
	usage  ports.UsageCollectionPort
	logger *logging.Logger
	tracer *tracing.Tracer
	now    func() time.Time
	newID  func() string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger used by the store.
func WithLogger(logger *logging.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// WithTracer sets the tracer used by the store.
func WithTracer(tracer *tracing.Tracer) StoreOption {
	return func(s *Store) { s.tracer = tracer }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the identifier generator, for tests.
func WithIDGenerator(newID func() string) StoreOption {
	return func(s *Store) { s.newID = newID }
}

// NewStore creates a rule store over the given persistence ports.
func NewStore(rules ports.RuleCollectionPort, usage ports.UsageCollectionPort, opts ...StoreOption) *Store {
	s := &Store{
		rules:  rules,
		usage:  usage,
		logger: logging.Default(),
		tracer: tracing.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRuleInput carries the caller-supplied fields for a new rule.
type CreateRuleInput struct {
	Name        string
	Description string
	Type        rule.Type
	Scope       rule.Scope
	ChainID     string
}

// UpdateRuleInput carries a partial update; nil fields are left unchanged.
type UpdateRuleInput struct {
	Name        *string
	Description *string
	Type        *rule.Type
}

// RecordUsageInput carries the fields of a usage event.
type RecordUsageInput struct {
	RuleID        string
	ChainID       string
	SessionID     string
	ActionType    rule.Type
	ElapsedTime   int64
	RemainingTime int64
}

// DataExport is the opaque pass-through shape used by external
// import/export and synchronization callers.
type DataExport struct {
	Rules   []rule.Rule        `json:"rules"`
	Records []rule.UsageRecord `json:"usage_records"`
}

func storageErr(op string, cause error) error {
	return domainErrors.Wrap(domainErrors.KindStorage, op, cause)
}

func notFoundErr(id string) error {
	return domainErrors.Newf(domainErrors.KindRuleNotFound, "rule %s not found", id).
		WithContext("rule_id", id)
}

// ensureNameUnique enforces scoped name uniqueness among active rules:
// global rules form one pool; chain rules form one pool per owning task.
func ensureNameUnique(all []rule.Rule, name string, scope rule.Scope, chainID, excludeID string) error {
	key := NormalizeName(name)
	for _, r := range all {
		if !r.IsActive || r.ID == excludeID || r.Scope != scope {
			continue
		}
		if scope == rule.ScopeChain && r.ChainID != chainID {
			continue
		}
		if NormalizeName(r.Name) == key {
			return domainErrors.Newf(domainErrors.KindDuplicateName,
				"a rule named %q already exists in this scope", r.Name).
				WithContext("existing_rule_id", r.ID).
				WithContext("scope", string(scope))
		}
	}
	return nil
}

// CreateRule validates the input, enforces scoped name uniqueness, assigns a
// durable identifier, and persists the rule.
func (s *Store) CreateRule(ctx context.Context, input CreateRuleInput) (*rule.Rule, error) {
	ctx, span := s.tracer.StartStoreSpan(ctx, "store.create_rule",
		attribute.String("rule.scope", string(input.Scope)))
	var err error
	defer func() { span.End(err) }()

	scope := input.Scope
	if scope == "" {
		scope = rule.ScopeGlobal
	}

	r := rule.Rule{
		ID:          s.newID(),
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Type:        input.Type,
		Scope:       scope,
		ChainID:     input.ChainID,
		CreatedAt:   s.now(),
		UsageCount:  0,
		IsActive:    true,
	}
	if err = r.Validate(); err != nil {
		return nil, err
	}

	all, loadErr := s.rules.LoadRules(ctx)
	if loadErr != nil {
		err = storageErr("load rules", loadErr)
		return nil, err
	}
	if err = ensureNameUnique(all, r.Name, r.Scope, r.ChainID, ""); err != nil {
		return nil, err
	}

	all = append(all, r)
	if saveErr := s.rules.SaveRules(ctx, all); saveErr != nil {
		err = storageErr("save rules", saveErr)
		return nil, err
	}

	span.SetRuleID(r.ID)
	s.logger.InfoContext(ctx, "rule created",
		"rule_id", r.ID, "name", r.Name, "scope", r.Scope, "type", r.Type)
	return &r, nil
}

// GetRule returns the rule with the given identifier, active or not.
func (s *Store) GetRule(ctx context.Context, id string) (*rule.Rule, error) {
	all, err := s.rules.LoadRules(ctx)
	if err != nil {
		return nil, storageErr("load rules", err)
	}
	for i := range all {
		if all[i].ID == id {
			r := all[i]
			return &r, nil
		}
	}
	return nil, notFoundErr(id)
}

// ListActive returns every active rule.
func (s *Store) ListActive(ctx context.Context) ([]rule.Rule, error) {
	all, err := s.rules.LoadRules(ctx)
	if err != nil {
		return nil, storageErr("load rules", err)
	}
	active := make([]rule.Rule, 0, len(all))
	for _, r := range all {
		if r.IsActive {
			active = append(active, r)
		}
	}
	return active, nil
}

// UpdateRule applies a partial update. When the name changes, uniqueness is
// re-checked within the rule's current scope.
func (s *Store) UpdateRule(ctx context.Context, id string, input UpdateRuleInput) (*rule.Rule, error) {
	ctx, span := s.tracer.StartStoreSpan(ctx, "store.update_rule",
		attribute.String("rule.id", id))
	var err error
	defer func() { span.End(err) }()

	all, loadErr := s.rules.LoadRules(ctx)
	if loadErr != nil {
		err = storageErr("load rules", loadErr)
		return nil, err
	}

	idx := -1
	for i := range all {
		if all[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		err = notFoundErr(id)
		return nil, err
	}

	updated := all[idx]
	if input.Name != nil {
		updated.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		updated.Description = *input.Description
	}
	if input.Type != nil {
		updated.Type = *input.Type
	}
	if err = updated.Validate(); err != nil {
		return nil, err
	}
	if input.Name != nil && NormalizeName(updated.Name) != NormalizeName(all[idx].Name) {
		if err = ensureNameUnique(all, updated.Name, updated.Scope, updated.ChainID, id); err != nil {
			return nil, err
		}
	}

	all[idx] = updated
	if saveErr := s.rules.SaveRules(ctx, all); saveErr != nil {
		err = storageErr("save rules", saveErr)
		return nil, err
	}

	s.logger.InfoContext(ctx, "rule updated", "rule_id", id)
	return &updated, nil
}

// DeleteRule soft-deletes a rule by flipping its active flag. Deleting an
// absent or already-inactive rule fails with a not-found error.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	ctx, span := s.tracer.StartStoreSpan(ctx, "store.delete_rule",
		attribute.String("rule.id", id))
	var err error
	defer func() { span.End(err) }()

	all, loadErr := s.rules.LoadRules(ctx)
	if loadErr != nil {
		err = storageErr("load rules", loadErr)
		return err
	}

	for i := range all {
		if all[i].ID == id && all[i].IsActive {
			all[i].IsActive = false
			if saveErr := s.rules.SaveRules(ctx, all); saveErr != nil {
				err = storageErr("save rules", saveErr)
				return err
			}
			s.logger.InfoContext(ctx, "rule deleted", "rule_id", id)
			return nil
		}
	}
	err = notFoundErr(id)
	return err
}

// PermanentlyDeleteRule physically removes a rule and its usage records.
// This path is reserved for the recycle-bin collaborator; normal deletion is
// always soft.
func (s *Store) PermanentlyDeleteRule(ctx context.Context, id string) error {
	ctx, span := s.tracer.StartStoreSpan(ctx, "store.permanently_delete_rule",
		attribute.String("rule.id", id))
	var err error
	defer func() { span.End(err) }()

	all, loadErr := s.rules.LoadRules(ctx)
	if loadErr != nil {
		err = storageErr("load rules", loadErr)
		return err
	}

	kept := all[:0]
	found := false
	for _, r := range all {
		if r.ID == id {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		err = notFoundErr(id)
		return err
	}
	if saveErr := s.rules.SaveRules(ctx, kept); saveErr != nil {
		err = storageErr("save rules", saveErr)
		return err
	}

	records, loadErr := s.usage.LoadRecords(ctx)
	if loadErr != nil {
		err = storageErr("load usage records", loadErr)
		return err
	}
	keptRecords := records[:0]
	for _, rec := range records {
		if rec.RuleID != id {
			keptRecords = append(keptRecords, rec)
		}
	}
	if saveErr := s.usage.SaveRecords(ctx, keptRecords); saveErr != nil {
		err = storageErr("save usage records", saveErr)
		return err
	}

	s.logger.InfoContext(ctx, "rule permanently deleted", "rule_id", id)
	return nil
}

// searchRank orders matches: exact beats prefix beats substring.
func searchRank(name, query string) int {
	n := strings.ToLower(strings.TrimSpace(name))
	q := strings.ToLower(strings.TrimSpace(query))
	switch {
	case n == q:
		return 0
	case strings.HasPrefix(n, q):
		return 1
	case strings.Contains(n, q):
		return 2
	default:
		return -1
	}
}

// Search returns active rules matching the query, ranked exact > prefix >
// substring with ties broken by descending usage count. An empty query
// returns all active rules sorted by usage count, then recency. A non-nil
// typeFilter restricts results to that rule type.
func (s *Store) Search(ctx context.Context, query string, typeFilter *rule.Type) ([]rule.Rule, error) {
	ctx, span := s.tracer.StartStoreSpan(ctx, "store.search")
	var err error
	defer func() { span.End(err) }()

	active, listErr := s.ListActive(ctx)
	if listErr != nil {
		err = listErr
		return nil, err
	}
	if typeFilter != nil {
		filtered := active[:0]
		for _, r := range active {
			if r.Type == *typeFilter {
				filtered = append(filtered, r)
			}
		}
		active = filtered
	}

	if strings.TrimSpace(query) == "" {
		sort.SliceStable(active, func(i, j int) bool {
			if active[i].UsageCount != active[j].UsageCount {
				return active[i].UsageCount > active[j].UsageCount
			}
			return lastActivity(active[i]).After(lastActivity(active[j]))
		})
		span.SetResultCount(len(active))
		return active, nil
	}

	type ranked struct {
		r    rule.Rule
		rank int
	}
	var matches []ranked
	for _, r := range active {
		if rank := searchRank(r.Name, query); rank >= 0 {
			matches = append(matches, ranked{r: r, rank: rank})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].rank != matches[j].rank {
			return matches[i].rank < matches[j].rank
		}
		return matches[i].r.UsageCount > matches[j].r.UsageCount
	})

	results := make([]rule.Rule, len(matches))
	for i, m := range matches {
		results[i] = m.r
	}
	span.SetResultCount(len(results))
	return results, nil
}

// lastActivity is the recency key for search ordering: last use when known,
// otherwise creation time.
func lastActivity(r rule.Rule) time.Time {
	if r.LastUsedAt != nil {
		return *r.LastUsedAt
	}
	return r.CreatedAt
}

// RecordUsage appends a usage record and, as a side effect of rule use,
// increments the rule's usage count and updates its last-used time. The
// action type must match the rule's type.
func (s *Store) RecordUsage(ctx context.Context, input RecordUsageInput) (*rule.UsageRecord, error) {
	ctx, span := s.tracer.StartStoreSpan(ctx, "store.record_usage",
		attribute.String("rule.id", input.RuleID))
	var err error
	defer func() { span.End(err) }()

	all, loadErr := s.rules.LoadRules(ctx)
	if loadErr != nil {
		err = storageErr("load rules", loadErr)
		return nil, err
	}

	idx := -1
	for i := range all {
		if all[i].ID == input.RuleID && all[i].IsActive {
			idx = i
			break
		}
	}
	if idx < 0 {
		err = notFoundErr(input.RuleID)
		return nil, err
	}
	if all[idx].Type != input.ActionType {
		err = domainErrors.Newf(domainErrors.KindTypeMismatch,
			"rule %s is %s but the requested action is %s",
			input.RuleID, all[idx].Type, input.ActionType).
			WithContext("rule_type", string(all[idx].Type)).
			WithContext("action_type", string(input.ActionType))
		return nil, err
	}

	now := s.now()
	record := rule.UsageRecord{
		ID:            s.newID(),
		RuleID:        input.RuleID,
		ChainID:       input.ChainID,
		SessionID:     input.SessionID,
		UsedAt:        now,
		ActionType:    input.ActionType,
		ElapsedTime:   input.ElapsedTime,
		RemainingTime: input.RemainingTime,
		RuleScope:     all[idx].Scope,
	}

	records, loadErr := s.usage.LoadRecords(ctx)
	if loadErr != nil {
		err = storageErr("load usage records", loadErr)
		return nil, err
	}
	records = append(records, record)
	if saveErr := s.usage.SaveRecords(ctx, records); saveErr != nil {
		err = storageErr("save usage records", saveErr)
		return nil, err
	}

	all[idx].MarkUsed(now)
	if saveErr := s.rules.SaveRules(ctx, all); saveErr != nil {
		err = storageErr("save rules", saveErr)
		return nil, err
	}

	s.logger.InfoContext(ctx, "rule usage recorded",
		"rule_id", input.RuleID, "session_id", input.SessionID, "action", input.ActionType)
	return &record, nil
}

// ArchiveChainRules marks every active chain rule of the given task as
// archived and inactive. Invoked when the owning task is archived.
func (s *Store) ArchiveChainRules(ctx context.Context, chainID string) (int, error) {
	all, err := s.rules.LoadRules(ctx)
	if err != nil {
		return 0, storageErr("load rules", err)
	}

	changed := 0
	for i := range all {
		if all[i].Scope == rule.ScopeChain && all[i].ChainID == chainID && all[i].IsActive {
			all[i].IsActive = false
			all[i].IsArchived = true
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}
	if err := s.rules.SaveRules(ctx, all); err != nil {
		return 0, storageErr("save rules", err)
	}
	s.logger.InfoContext(ctx, "chain rules archived", "chain_id", chainID, "count", changed)
	return changed, nil
}

// RestoreChainRules reverses ArchiveChainRules when the owning task is
// restored.
func (s *Store) RestoreChainRules(ctx context.Context, chainID string) (int, error) {
	all, err := s.rules.LoadRules(ctx)
	if err != nil {
		return 0, storageErr("load rules", err)
	}

	changed := 0
	for i := range all {
		if all[i].Scope == rule.ScopeChain && all[i].ChainID == chainID && all[i].IsArchived {
			all[i].IsActive = true
			all[i].IsArchived = false
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}
	if err := s.rules.SaveRules(ctx, all); err != nil {
		return 0, storageErr("save rules", err)
	}
	s.logger.InfoContext(ctx, "chain rules restored", "chain_id", chainID, "count", changed)
	return changed, nil
}

// ExportData returns both collections as an opaque snapshot for external
// import/export and synchronization callers.
func (s *Store) ExportData(ctx context.Context) (*DataExport, error) {
	rulesData, err := s.rules.LoadRules(ctx)
	if err != nil {
		return nil, storageErr("load rules", err)
	}
	records, err := s.usage.LoadRecords(ctx)
	if err != nil {
		return nil, storageErr("load usage records", err)
	}
	return &DataExport{Rules: rulesData, Records: records}, nil
}

// ImportData replaces both collections wholesale. The caller is responsible
// for having validated the snapshot; a follow-up integrity scan is advised.
func (s *Store) ImportData(ctx context.Context, data *DataExport) error {
	if data == nil {
		return domainErrors.New(domainErrors.KindValidation, "import data is required")
	}
	if err := s.rules.SaveRules(ctx, data.Rules); err != nil {
		return storageErr("save rules", err)
	}
	if err := s.usage.SaveRecords(ctx, data.Records); err != nil {
		return storageErr("save usage records", err)
	}
	s.logger.InfoContext(ctx, "data imported",
		"rules", len(data.Rules), "usage_records", len(data.Records))
	return nil
}

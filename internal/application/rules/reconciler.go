package rules

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	domainErrors "github.com/streakworks/chainrules/internal/domain/errors"
	"github.com/streakworks/chainrules/internal/domain/rule"
	"github.com/streakworks/chainrules/internal/infrastructure/logging"
	"github.com/streakworks/chainrules/internal/infrastructure/tracing"
)

// TempIDPrefix namespaces temporary identifiers so they can never collide
// with, or be mistaken for, durable identifiers (which are bare UUIDs).
const TempIDPrefix = "temp_"

// DefaultStateTTL is how long transient reconciliation bookkeeping survives
// before the periodic sweep forgets it.
const DefaultStateTTL = 10 * time.Minute

// DefaultSweepInterval is how often the cleanup sweep runs.
const DefaultSweepInterval = time.Minute

// NewTempID generates a temporary identifier in the temp namespace.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// IsTemporaryID reports whether id belongs to the temporary namespace.
func IsTemporaryID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// CreationHandle is the two-part result of an optimistic creation: a
// provisional rule that is immediately usable, plus a separately awaitable
// resolution carrying the durably persisted rule or the creation error.
type CreationHandle struct {
	// Provisional is the fully-formed rule under its temporary identifier.
	Provisional *rule.Rule

	done   chan struct{}
	result *rule.Rule
	err    error
}

// Await blocks until the underlying persistence resolves and returns the
// persisted rule or the creation error. The creation itself is not
// cancellable; ctx only bounds the wait.
func (h *CreationHandle) Await(ctx context.Context) (*rule.Rule, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return nil, domainErrors.Wrap(domainErrors.KindOperationTimeout,
			"awaiting rule creation", ctx.Err())
	}
}

// Done returns a channel closed once the creation has resolved.
func (h *CreationHandle) Done() <-chan struct{} {
	return h.done
}

// resolved reports non-blockingly whether the creation has finished.
func (h *CreationHandle) resolved() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// pendingCreation tracks one in-flight optimistic creation. There is exactly
// one entry (and one shared handle) per temporary identifier, so concurrent
// queries fan in to a single persistence attempt.
type pendingCreation struct {
	tempID    string
	input     CreateRuleInput
	handle    *CreationHandle
	createdAt time.Time
}

// IDValidation is the result of validating an identifier against the
// reconciler's bookkeeping.
type IDValidation struct {
	IsValid     bool
	IsTemporary bool
	RealID      string
	Err         string
}

// Reconciler issues temporary identifiers for in-flight rule creation,
// tracks pending creation futures, and maps temporary identifiers to their
// durable counterparts once the store confirms persistence.
//
// All registries are fields of the instance, not package state, so
// independent engines (for example under test) never interfere.
type Reconciler struct {
	store  *Store
	logger *logging.Logger
	tracer *tracing.Tracer
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	states   map[string]*rule.State
	mappings map[string]rule.IDMapping
	pending  map[string]*pendingCreation
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithStateTTL overrides the transient-state TTL.
func WithStateTTL(ttl time.Duration) ReconcilerOption {
	return func(r *Reconciler) { r.ttl = ttl }
}

// NewReconciler creates a reconciler wrapping the given store. It inherits
// the store's logger, tracer, and clock.
func NewReconciler(store *Store, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:    store,
		logger:   store.logger,
		tracer:   store.tracer,
		ttl:      DefaultStateTTL,
		now:      store.now,
		states:   make(map[string]*rule.State),
		mappings: make(map[string]rule.IDMapping),
		pending:  make(map[string]*pendingCreation),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StartOptimisticCreation synchronously returns a fully-formed rule under a
// temporary identifier, immediately usable by the caller, while the real
// persistence proceeds in the background. The returned handle resolves to
// the persisted rule or the creation error; a failed creation is never
// retried automatically.
func (r *Reconciler) StartOptimisticCreation(ctx context.Context, input CreateRuleInput) (*CreationHandle, error) {
	ctx, span := r.tracer.StartStoreSpan(ctx, "reconciler.start_optimistic_creation",
		attribute.String("rule.name", input.Name))
	var err error
	defer func() { span.End(err) }()

	tempID := NewTempID()
	scope := input.Scope
	if scope == "" {
		scope = rule.ScopeGlobal
	}

	provisional := &rule.Rule{
		ID:          tempID,
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Type:        input.Type,
		Scope:       scope,
		ChainID:     input.ChainID,
		CreatedAt:   r.now(),
		UsageCount:  0,
		IsActive:    true,
	}
	if err = provisional.Validate(); err != nil {
		return nil, err
	}

	handle := &CreationHandle{
		Provisional: provisional,
		done:        make(chan struct{}),
	}

	r.mu.Lock()
	if _, exists := r.pending[tempID]; exists {
		r.mu.Unlock()
		err = domainErrors.Newf(domainErrors.KindTemporaryIDConflict,
			"temporary id %s already pending", tempID)
		return nil, err
	}
	now := r.now()
	r.states[tempID] = &rule.State{
		ID:        tempID,
		Status:    rule.StatusCreating,
		TempID:    tempID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.pending[tempID] = &pendingCreation{
		tempID:    tempID,
		input:     input,
		handle:    handle,
		createdAt: now,
	}
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "optimistic creation started",
		"temp_id", tempID, "name", provisional.Name)

	// The persistence must outlive the caller's request; per engine policy
	// no operation is cancellable once started.
	go r.persist(context.WithoutCancel(ctx), tempID, input, handle)

	return handle, nil
}

// persist runs the real creation exactly once and publishes the shared
// outcome through the handle.
func (r *Reconciler) persist(ctx context.Context, tempID string, input CreateRuleInput, handle *CreationHandle) {
	created, err := r.store.CreateRule(ctx, input)

	r.mu.Lock()
	now := r.now()
	if err != nil {
		if st, ok := r.states[tempID]; ok {
			st.Status = rule.StatusError
			st.UpdatedAt = now
			st.ValidationErrors = append(st.ValidationErrors, err.Error())
		}
	} else {
		r.mappings[tempID] = rule.IDMapping{
			TempID:   tempID,
			RealID:   created.ID,
			MappedAt: now,
		}
		if st, ok := r.states[tempID]; ok {
			st.Status = rule.StatusActive
			st.RealID = created.ID
			st.UpdatedAt = now
		}
		r.states[created.ID] = &rule.State{
			ID:        created.ID,
			Status:    rule.StatusActive,
			TempID:    tempID,
			RealID:    created.ID,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	r.mu.Unlock()

	handle.result = created
	handle.err = err
	close(handle.done)

	if err != nil {
		r.logger.ErrorContext(ctx, "optimistic creation failed",
			"temp_id", tempID, "error", err)
	} else {
		r.logger.InfoContext(ctx, "optimistic creation reconciled",
			"temp_id", tempID, "rule_id", created.ID)
	}
}

// GetRealRuleID resolves an identifier to its durable form: first via the
// id mapping, then via the recorded state, then unchanged if it is not
// temporary. The second return value is false when a temporary identifier
// cannot (yet) be resolved.
func (r *Reconciler) GetRealRuleID(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.mappings[id]; ok {
		return m.RealID, true
	}
	if st, ok := r.states[id]; ok && st.RealID != "" {
		return st.RealID, true
	}
	if !IsTemporaryID(id) {
		return id, true
	}
	return "", false
}

// pendingFor returns the in-flight entry for id, if any.
func (r *Reconciler) pendingFor(id string) *pendingCreation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending[id]
}

// RuleExists reports whether the identifier denotes a rule that exists or
// will exist. A pending creation is awaited, so the answer reflects the
// shared outcome of the single underlying persistence attempt.
func (r *Reconciler) RuleExists(ctx context.Context, id string) (bool, error) {
	if p := r.pendingFor(id); p != nil && !p.handle.resolved() {
		// The provisional rule is usable while creation is in flight.
		return true, nil
	}
	if p := r.pendingFor(id); p != nil {
		if _, err := p.handle.Await(ctx); err != nil {
			if domainErrors.IsKind(err, domainErrors.KindOperationTimeout) {
				return false, err
			}
			return false, nil
		}
		return true, nil
	}

	realID, ok := r.GetRealRuleID(id)
	if !ok {
		return false, nil
	}
	_, err := r.store.GetRule(ctx, realID)
	if err != nil {
		if domainErrors.IsKind(err, domainErrors.KindRuleNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetRule fetches a rule by temporary or durable identifier. Queries against
// a still-pending temporary identifier await the shared creation outcome
// rather than triggering another persistence attempt.
func (r *Reconciler) GetRule(ctx context.Context, id string) (*rule.Rule, error) {
	if p := r.pendingFor(id); p != nil {
		return p.handle.Await(ctx)
	}

	realID, ok := r.GetRealRuleID(id)
	if !ok {
		return nil, domainErrors.Newf(domainErrors.KindRuleNotFound,
			"temporary id %s is unresolved", id).
			WithContext("temp_id", id)
	}
	return r.store.GetRule(ctx, realID)
}

// ValidateRuleID classifies an identifier, distinguishing "still creating"
// (valid, temporary, no real id yet) from "failed or expired" (invalid).
func (r *Reconciler) ValidateRuleID(id string) IDValidation {
	if !IsTemporaryID(id) {
		return IDValidation{IsValid: true, RealID: id}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.mappings[id]; ok {
		return IDValidation{IsValid: true, IsTemporary: true, RealID: m.RealID}
	}
	if st, ok := r.states[id]; ok {
		switch st.Status {
		case rule.StatusCreating:
			return IDValidation{IsValid: true, IsTemporary: true}
		case rule.StatusError:
			msg := "creation failed"
			if len(st.ValidationErrors) > 0 {
				msg = st.ValidationErrors[len(st.ValidationErrors)-1]
			}
			return IDValidation{IsTemporary: true, Err: msg}
		default:
			return IDValidation{IsValid: true, IsTemporary: true, RealID: st.RealID}
		}
	}
	return IDValidation{IsTemporary: true, Err: "unknown or expired temporary id"}
}

// CleanupExpiredStates removes transient bookkeeping older than the TTL,
// whether or not it ever resolved. It never mutates an in-flight operation:
// goroutines and handle holders keep working off their own references.
// Returns how many entries were removed.
func (r *Reconciler) CleanupExpiredStates() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, st := range r.states {
		if st.CreatedAt.Before(cutoff) {
			delete(r.states, id)
			removed++
		}
	}
	for id, m := range r.mappings {
		if m.MappedAt.Before(cutoff) {
			delete(r.mappings, id)
			removed++
		}
	}
	for id, p := range r.pending {
		if p.createdAt.Before(cutoff) {
			delete(r.pending, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs the cleanup sweep on a fixed interval until ctx is
// cancelled. Safe to run concurrently with any foreground operation.
func (r *Reconciler) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.CleanupExpiredStates(); n > 0 {
					r.logger.Debug("expired reconciliation state swept", "removed", n)
				}
			}
		}
	}()
}

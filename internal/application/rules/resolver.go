package rules

import (
	"context"
	"sort"
	"strings"

	"github.com/streakworks/chainrules/internal/domain/rule"
)

// ScopeResolver computes which rules are available to a given task and
// action, and offers thin scope-tagging wrappers over rule creation.
type ScopeResolver struct {
	store *Store
}

// NewScopeResolver creates a resolver over the given store.
func NewScopeResolver(store *Store) *ScopeResolver {
	return &ScopeResolver{store: store}
}

// GetAvailableRules returns the active rules of the requested type that are
// global or chain-scoped to the given task. Chain rules come first, then
// descending usage count within each group.
func (r *ScopeResolver) GetAvailableRules(ctx context.Context, chainID string, action rule.Type) ([]rule.Rule, error) {
	active, err := r.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	var available []rule.Rule
	for _, candidate := range active {
		if candidate.AppliesTo(chainID, action) {
			available = append(available, candidate)
		}
	}

	sort.SliceStable(available, func(i, j int) bool {
		iChain := available[i].Scope == rule.ScopeChain
		jChain := available[j].Scope == rule.ScopeChain
		if iChain != jChain {
			return iChain
		}
		return available[i].UsageCount > available[j].UsageCount
	})
	return available, nil
}

// CreateChainRule creates a rule scoped to one owning task.
func (r *ScopeResolver) CreateChainRule(ctx context.Context, chainID string, input CreateRuleInput) (*rule.Rule, error) {
	input.Scope = rule.ScopeChain
	input.ChainID = chainID
	return r.store.CreateRule(ctx, input)
}

// CreateGlobalRule creates a rule available to every task.
func (r *ScopeResolver) CreateGlobalRule(ctx context.Context, input CreateRuleInput) (*rule.Rule, error) {
	input.Scope = rule.ScopeGlobal
	input.ChainID = ""
	return r.store.CreateRule(ctx, input)
}

// CheckNameDuplication reports whether an active rule with the given name
// (case-insensitive) already exists in the given scope, restricted to the
// owning task when chain-scoped.
func (r *ScopeResolver) CheckNameDuplication(ctx context.Context, name string, scope rule.Scope, chainID string) (bool, error) {
	active, err := r.store.ListActive(ctx)
	if err != nil {
		return false, err
	}

	target := strings.ToLower(strings.TrimSpace(name))
	for _, candidate := range active {
		if candidate.Scope != scope {
			continue
		}
		if scope == rule.ScopeChain && candidate.ChainID != chainID {
			continue
		}
		if strings.ToLower(strings.TrimSpace(candidate.Name)) == target {
			return true, nil
		}
	}
	return false, nil
}

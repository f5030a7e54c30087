// Package rule provides the domain entities for exception rules and their
// usage records. An exception rule is a named, user-defined condition that
// justifies pausing or early-completing a tracked chain activity.
package rule

import (
	"strings"
	"time"
)

// Type categorizes what kind of action a rule can justify.
type Type string

const (
	// TypePauseOnly rules can only justify pausing an activity.
	TypePauseOnly Type = "pause_only"

	// TypeEarlyCompletionOnly rules can only justify completing an activity early.
	TypeEarlyCompletionOnly Type = "early_completion_only"
)

// ValidTypes returns all valid rule types.
func ValidTypes() []Type {
	return []Type{TypePauseOnly, TypeEarlyCompletionOnly}
}

// IsValid reports whether t is a member of the type enum.
func (t Type) IsValid() bool {
	return t == TypePauseOnly || t == TypeEarlyCompletionOnly
}

// Scope determines which tasks a rule applies to.
type Scope string

const (
	// ScopeChain rules apply to exactly one owning task.
	ScopeChain Scope = "chain"

	// ScopeGlobal rules apply to every task.
	ScopeGlobal Scope = "global"
)

// IsValid reports whether s is a member of the scope enum.
func (s Scope) IsValid() bool {
	return s == ScopeChain || s == ScopeGlobal
}

// Validation limits for rule fields.
const (
	MaxNameLength        = 100
	MaxDescriptionLength = 500
)

// Rule represents an exception rule. Among active rules the normalized name
// is unique within the global pool and, independently, within each owning
// task's chain pool. Cross-task duplicates are allowed.
type Rule struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Type        Type       `json:"type"`
	Scope       Scope      `json:"scope"`
	ChainID     string     `json:"chain_id,omitempty"` // owning task, required iff Scope == ScopeChain
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	UsageCount  int        `json:"usage_count"`
	IsActive    bool       `json:"is_active"`
	IsArchived  bool       `json:"is_archived,omitempty"`
}

// Validate checks the structural invariants of a rule independent of any
// collection-level uniqueness rules.
func (r *Rule) Validate() error {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return errRequired("name")
	}
	if len([]rune(r.Name)) > MaxNameLength {
		return errTooLong("name", MaxNameLength)
	}
	if len([]rune(r.Description)) > MaxDescriptionLength {
		return errTooLong("description", MaxDescriptionLength)
	}
	if !r.Type.IsValid() {
		return errInvalidType(string(r.Type))
	}
	if !r.Scope.IsValid() {
		return errInvalidScope(string(r.Scope))
	}
	if r.Scope == ScopeChain && r.ChainID == "" {
		return errRequired("chain_id")
	}
	if r.Scope == ScopeGlobal && r.ChainID != "" {
		return errScopeMismatch()
	}
	if r.UsageCount < 0 {
		return errNegativeUsage(r.UsageCount)
	}
	return nil
}

// AppliesTo reports whether the rule is usable from the given task for the
// given action type. Inactive rules never apply.
func (r *Rule) AppliesTo(chainID string, action Type) bool {
	if !r.IsActive || r.Type != action {
		return false
	}
	return r.Scope == ScopeGlobal || r.ChainID == chainID
}

// MarkUsed records one use of the rule at the given time.
func (r *Rule) MarkUsed(at time.Time) {
	r.UsageCount++
	t := at
	r.LastUsedAt = &t
}

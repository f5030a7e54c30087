package rule

import (
	"strings"
	"testing"
	"time"

	domainErrors "github.com/streakworks/chainrules/internal/domain/errors"
)

func validGlobalRule() Rule {
	return Rule{
		ID:        "r1",
		Name:      "Bathroom break",
		Type:      TypePauseOnly,
		Scope:     ScopeGlobal,
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		IsActive:  true,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Rule)
		wantKind domainErrors.Kind
		wantOK   bool
	}{
		{
			name:   "valid global rule",
			mutate: func(r *Rule) {},
			wantOK: true,
		},
		{
			name: "valid chain rule",
			mutate: func(r *Rule) {
				r.Scope = ScopeChain
				r.ChainID = "chain-1"
			},
			wantOK: true,
		},
		{
			name:     "empty name",
			mutate:   func(r *Rule) { r.Name = "   " },
			wantKind: domainErrors.KindValidation,
		},
		{
			name:     "name too long",
			mutate:   func(r *Rule) { r.Name = strings.Repeat("x", MaxNameLength+1) },
			wantKind: domainErrors.KindValidation,
		},
		{
			name:   "name at limit",
			mutate: func(r *Rule) { r.Name = strings.Repeat("x", MaxNameLength) },
			wantOK: true,
		},
		{
			name:     "description too long",
			mutate:   func(r *Rule) { r.Description = strings.Repeat("d", MaxDescriptionLength+1) },
			wantKind: domainErrors.KindValidation,
		},
		{
			name:     "invalid type",
			mutate:   func(r *Rule) { r.Type = "both" },
			wantKind: domainErrors.KindInvalidType,
		},
		{
			name:     "invalid scope",
			mutate:   func(r *Rule) { r.Scope = "team" },
			wantKind: domainErrors.KindValidation,
		},
		{
			name:     "chain scope without owning task",
			mutate:   func(r *Rule) { r.Scope = ScopeChain },
			wantKind: domainErrors.KindValidation,
		},
		{
			name:     "global scope with owning task",
			mutate:   func(r *Rule) { r.ChainID = "chain-1" },
			wantKind: domainErrors.KindValidation,
		},
		{
			name:     "negative usage count",
			mutate:   func(r *Rule) { r.UsageCount = -1 },
			wantKind: domainErrors.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validGlobalRule()
			tt.mutate(&r)
			err := r.Validate()

			if tt.wantOK {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error but got nil")
			}
			if !domainErrors.IsKind(err, tt.wantKind) {
				t.Fatalf("got error %v, want kind %s", err, tt.wantKind)
			}
		})
	}
}

func TestAppliesTo(t *testing.T) {
	chainRule := Rule{
		ID: "r1", Name: "Phone call", Type: TypePauseOnly,
		Scope: ScopeChain, ChainID: "chain-1", IsActive: true,
	}
	globalRule := Rule{
		ID: "r2", Name: "Emergency", Type: TypeEarlyCompletionOnly,
		Scope: ScopeGlobal, IsActive: true,
	}
	inactive := globalRule
	inactive.IsActive = false

	tests := []struct {
		name    string
		rule    Rule
		chainID string
		action  Type
		want    bool
	}{
		{"chain rule matches own task", chainRule, "chain-1", TypePauseOnly, true},
		{"chain rule rejects other task", chainRule, "chain-2", TypePauseOnly, false},
		{"chain rule rejects other action", chainRule, "chain-1", TypeEarlyCompletionOnly, false},
		{"global rule matches any task", globalRule, "chain-7", TypeEarlyCompletionOnly, true},
		{"global rule rejects other action", globalRule, "chain-7", TypePauseOnly, false},
		{"inactive rule never applies", inactive, "chain-7", TypeEarlyCompletionOnly, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.AppliesTo(tt.chainID, tt.action); got != tt.want {
				t.Fatalf("AppliesTo(%q, %s) = %v, want %v", tt.chainID, tt.action, got, tt.want)
			}
		})
	}
}

func TestMarkUsed(t *testing.T) {
	r := validGlobalRule()
	first := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	r.MarkUsed(first)
	if r.UsageCount != 1 {
		t.Fatalf("usage count = %d, want 1", r.UsageCount)
	}
	if r.LastUsedAt == nil || !r.LastUsedAt.Equal(first) {
		t.Fatalf("last used at = %v, want %v", r.LastUsedAt, first)
	}

	r.MarkUsed(second)
	if r.UsageCount != 2 {
		t.Fatalf("usage count = %d, want 2", r.UsageCount)
	}
	if !r.LastUsedAt.Equal(second) {
		t.Fatalf("last used at = %v, want %v", r.LastUsedAt, second)
	}
}

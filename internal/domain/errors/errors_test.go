package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	plain := New(KindRuleNotFound, "rule r1 not found")
	if got, want := plain.Error(), "[RULE_NOT_FOUND] rule r1 not found"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}

	cause := errors.New("disk full")
	wrapped := Wrap(KindStorage, "save rules", cause)
	if got, want := wrapped.Error(), "[STORAGE_ERROR] save rules: disk full"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := Wrap(KindStorage, "save rules", cause)

	if !errors.Is(wrapped, cause) {
		t.Fatal("wrapped error should match its cause via errors.Is")
	}

	// Kind survives an extra fmt wrapping layer
	outer := fmt.Errorf("operation failed: %w", wrapped)
	kind, ok := KindOf(outer)
	if !ok || kind != KindStorage {
		t.Fatalf("KindOf = (%s, %v), want (STORAGE_ERROR, true)", kind, ok)
	}
}

func TestKindOf(t *testing.T) {
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Fatal("KindOf should report false for non-RuleError chains")
	}
	if _, ok := KindOf(nil); ok {
		t.Fatal("KindOf should report false for nil")
	}
	if !IsKind(New(KindDuplicateName, "dup"), KindDuplicateName) {
		t.Fatal("IsKind should match the error's own kind")
	}
	if IsKind(New(KindDuplicateName, "dup"), KindStorage) {
		t.Fatal("IsKind should not match a different kind")
	}
}

func TestWithContext(t *testing.T) {
	err := Newf(KindTypeMismatch, "rule %s mismatch", "r1").
		WithContext("rule_id", "r1").
		WithContext("action_type", "pause_only")

	if err.Context["rule_id"] != "r1" {
		t.Fatalf("context rule_id = %v, want r1", err.Context["rule_id"])
	}
	if err.Context["action_type"] != "pause_only" {
		t.Fatalf("context action_type = %v, want pause_only", err.Context["action_type"])
	}
}

func TestKindsCoversTaxonomy(t *testing.T) {
	kinds := Kinds()
	if len(kinds) != 12 {
		t.Fatalf("taxonomy has %d kinds, want 12", len(kinds))
	}
	seen := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		if seen[k] {
			t.Fatalf("duplicate kind %s", k)
		}
		seen[k] = true
	}
}

func TestEnhance(t *testing.T) {
	base := New(KindDataIntegrity, "stored data inconsistent")
	action := RecoveryAction{ID: "repair", Label: "Repair now", Rank: RankPrimary}

	enhanced := Enhance(base, SeverityCritical, "Stored data is inconsistent.", action)

	if enhanced.Kind != KindDataIntegrity {
		t.Fatalf("kind = %s, want DATA_INTEGRITY_ERROR", enhanced.Kind)
	}
	if enhanced.Severity != SeverityCritical {
		t.Fatalf("severity = %s, want critical", enhanced.Severity)
	}
	if enhanced.UserMessage != "Stored data is inconsistent." {
		t.Fatalf("user message = %q", enhanced.UserMessage)
	}
	if len(enhanced.Actions) != 1 || enhanced.Actions[0].ID != "repair" {
		t.Fatalf("actions = %+v", enhanced.Actions)
	}
}

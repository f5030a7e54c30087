package rules

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	domainErrors "github.com/streakworks/chainrules/internal/domain/errors"
	"github.com/streakworks/chainrules/internal/domain/rule"
	"github.com/streakworks/chainrules/internal/infrastructure/testutil"
)

// newTestReconciler builds a reconciler whose clock can be moved by tests.
func newTestReconciler(seed ...rule.Rule) (*Reconciler, *testutil.MemoryStore, *time.Time) {
	mem := testutil.NewMemoryStore(seed...)
	current := testClock()
	n := 0
	store := NewStore(mem, mem,
		WithLogger(quietLogger()),
		WithClock(func() time.Time { return current }),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("real-%03d", n)
		}),
	)
	return NewReconciler(store), mem, &current
}

func TestTemporaryIDNamespace(t *testing.T) {
	tempID := NewTempID()
	if !strings.HasPrefix(tempID, TempIDPrefix) {
		t.Fatalf("temp id %q lacks the namespace prefix", tempID)
	}
	if !IsTemporaryID(tempID) {
		t.Fatal("generated temp id not recognized as temporary")
	}
	if IsTemporaryID("real-001") {
		t.Fatal("durable id misclassified as temporary")
	}
}

func TestOptimisticCreationSuccess(t *testing.T) {
	ctx := context.Background()
	reconciler, mem, _ := newTestReconciler()

	handle, err := reconciler.StartOptimisticCreation(ctx, CreateRuleInput{
		Name: "Bathroom break",
		Type: rule.TypePauseOnly,
	})
	testutil.AssertNoError(t, err)

	if !IsTemporaryID(handle.Provisional.ID) {
		t.Fatalf("provisional id %q should be temporary", handle.Provisional.ID)
	}
	testutil.AssertEqual(t, "Bathroom break", handle.Provisional.Name)
	if !handle.Provisional.IsActive {
		t.Fatal("provisional rule should be active")
	}

	created, err := handle.Await(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, "real-001", created.ID)

	realID, ok := reconciler.GetRealRuleID(handle.Provisional.ID)
	if !ok {
		t.Fatal("temp id should resolve after reconciliation")
	}
	testutil.AssertEqual(t, "real-001", realID)

	validation := reconciler.ValidateRuleID(handle.Provisional.ID)
	if !validation.IsValid || !validation.IsTemporary {
		t.Fatalf("validation = %+v, want valid temporary", validation)
	}
	testutil.AssertEqual(t, "real-001", validation.RealID)

	testutil.AssertEqual(t, 1, len(mem.Rules()))
}

func TestOptimisticCreationFailure(t *testing.T) {
	ctx := context.Background()
	reconciler, mem, _ := newTestReconciler(testutil.NewTestRule("Bathroom break"))

	handle, err := reconciler.StartOptimisticCreation(ctx, CreateRuleInput{
		Name: "Bathroom break",
		Type: rule.TypePauseOnly,
	})
	testutil.AssertNoError(t, err)

	_, err = handle.Await(ctx)
	if !domainErrors.IsKind(err, domainErrors.KindDuplicateName) {
		t.Fatalf("got %v, want DUPLICATE_NAME", err)
	}

	if _, ok := reconciler.GetRealRuleID(handle.Provisional.ID); ok {
		t.Fatal("failed creation must not resolve to a real id")
	}

	validation := reconciler.ValidateRuleID(handle.Provisional.ID)
	if validation.IsValid {
		t.Fatalf("validation = %+v, want invalid", validation)
	}
	if validation.Err == "" {
		t.Fatal("failed creation should carry a validation error message")
	}

	// the pre-seeded rule is the only one on record
	testutil.AssertEqual(t, 1, len(mem.Rules()))
}

func TestOptimisticCreationRejectsInvalidInput(t *testing.T) {
	reconciler, _, _ := newTestReconciler()

	_, err := reconciler.StartOptimisticCreation(context.Background(), CreateRuleInput{
		Name: "   ",
		Type: rule.TypePauseOnly,
	})
	if !domainErrors.IsKind(err, domainErrors.KindValidation) {
		t.Fatalf("got %v, want VALIDATION_ERROR", err)
	}
}

func TestConcurrentQueriesShareOnePersistence(t *testing.T) {
	ctx := context.Background()
	reconciler, mem, _ := newTestReconciler()

	handle, err := reconciler.StartOptimisticCreation(ctx, CreateRuleInput{
		Name: "Bathroom break",
		Type: rule.TypePauseOnly,
	})
	testutil.AssertNoError(t, err)

	const queries = 16
	var wg sync.WaitGroup
	results := make([]*rule.Rule, queries)
	errs := make([]error, queries)
	for i := 0; i < queries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = reconciler.GetRule(ctx, handle.Provisional.ID)
		}(i)
	}
	wg.Wait()

	for i := 0; i < queries; i++ {
		testutil.AssertNoError(t, errs[i])
		testutil.AssertEqual(t, "real-001", results[i].ID)
	}
	testutil.AssertEqual(t, 1, mem.SaveCount)
	testutil.AssertEqual(t, 1, len(mem.Rules()))
}

func TestRuleExists(t *testing.T) {
	ctx := context.Background()

	t.Run("pending creation counts as existing", func(t *testing.T) {
		reconciler, _, _ := newTestReconciler()
		handle, err := reconciler.StartOptimisticCreation(ctx, CreateRuleInput{
			Name: "Bathroom break",
			Type: rule.TypePauseOnly,
		})
		testutil.AssertNoError(t, err)

		exists, err := reconciler.RuleExists(ctx, handle.Provisional.ID)
		testutil.AssertNoError(t, err)
		if !exists {
			t.Fatal("in-flight rule should exist")
		}
	})

	t.Run("failed creation does not exist", func(t *testing.T) {
		reconciler, _, _ := newTestReconciler(testutil.NewTestRule("Bathroom break"))
		handle, err := reconciler.StartOptimisticCreation(ctx, CreateRuleInput{
			Name: "Bathroom break",
			Type: rule.TypePauseOnly,
		})
		testutil.AssertNoError(t, err)
		_, _ = handle.Await(ctx)

		exists, err := reconciler.RuleExists(ctx, handle.Provisional.ID)
		testutil.AssertNoError(t, err)
		if exists {
			t.Fatal("failed creation should not exist")
		}
	})

	t.Run("durable identifiers hit the store", func(t *testing.T) {
		seed := testutil.NewTestRule("Bathroom break")
		reconciler, _, _ := newTestReconciler(seed)

		exists, err := reconciler.RuleExists(ctx, seed.ID)
		testutil.AssertNoError(t, err)
		if !exists {
			t.Fatal("stored rule should exist")
		}

		exists, err = reconciler.RuleExists(ctx, "missing")
		testutil.AssertNoError(t, err)
		if exists {
			t.Fatal("unknown durable id should not exist")
		}
	})

	t.Run("unknown temporary id does not exist", func(t *testing.T) {
		reconciler, _, _ := newTestReconciler()
		exists, err := reconciler.RuleExists(ctx, NewTempID())
		testutil.AssertNoError(t, err)
		if exists {
			t.Fatal("unknown temp id should not exist")
		}
	})
}

func TestValidateRuleID(t *testing.T) {
	reconciler, _, _ := newTestReconciler()

	t.Run("durable id is valid as-is", func(t *testing.T) {
		validation := reconciler.ValidateRuleID("real-001")
		if !validation.IsValid || validation.IsTemporary {
			t.Fatalf("validation = %+v, want valid durable", validation)
		}
		testutil.AssertEqual(t, "real-001", validation.RealID)
	})

	t.Run("unknown temp id is invalid", func(t *testing.T) {
		validation := reconciler.ValidateRuleID(NewTempID())
		if validation.IsValid {
			t.Fatalf("validation = %+v, want invalid", validation)
		}
		testutil.AssertEqual(t, "unknown or expired temporary id", validation.Err)
	})
}

func TestCleanupExpiredStates(t *testing.T) {
	ctx := context.Background()
	reconciler, _, clock := newTestReconciler()

	handle, err := reconciler.StartOptimisticCreation(ctx, CreateRuleInput{
		Name: "Bathroom break",
		Type: rule.TypePauseOnly,
	})
	testutil.AssertNoError(t, err)
	_, err = handle.Await(ctx)
	testutil.AssertNoError(t, err)

	// nothing has aged past the TTL yet
	testutil.AssertEqual(t, 0, reconciler.CleanupExpiredStates())

	*clock = clock.Add(DefaultStateTTL + time.Second)

	// temp state, real state, mapping, and the pending entry all expire
	testutil.AssertEqual(t, 4, reconciler.CleanupExpiredStates())

	if _, ok := reconciler.GetRealRuleID(handle.Provisional.ID); ok {
		t.Fatal("expired temp id should no longer resolve")
	}
	validation := reconciler.ValidateRuleID(handle.Provisional.ID)
	if validation.IsValid {
		t.Fatalf("validation = %+v, want invalid after expiry", validation)
	}

	// the durable rule itself is untouched
	got, err := reconciler.GetRule(ctx, "real-001")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, "Bathroom break", got.Name)
}

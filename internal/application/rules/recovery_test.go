package rules

import (
	"context"
	"errors"
	"testing"

	domainErrors "github.com/streakworks/chainrules/internal/domain/errors"
	"github.com/streakworks/chainrules/internal/infrastructure/testutil"
)

// stubStrategy is a scripted strategy that records whether it ran.
type stubStrategy struct {
	name     string
	priority int
	outcome  RecoveryOutcome
	calls    *[]string
}

func (s *stubStrategy) Name() string  { return s.name }
func (s *stubStrategy) Priority() int { return s.priority }
func (s *stubStrategy) Attempt(_ context.Context, _ error) RecoveryOutcome {
	if s.calls != nil {
		*s.calls = append(*s.calls, s.name)
	}
	return s.outcome
}

func TestClassify(t *testing.T) {
	classifier := NewErrorClassifier()

	tests := []struct {
		name            string
		err             error
		wantCategory    ErrorCategory
		wantRecoverable bool
	}{
		{"not found", domainErrors.New(domainErrors.KindRuleNotFound, "missing"), CategoryValidation, false},
		{"duplicate name", domainErrors.New(domainErrors.KindDuplicateName, "dup"), CategoryValidation, true},
		{"storage", domainErrors.New(domainErrors.KindStorage, "io"), CategoryStorage, true},
		{"integrity", domainErrors.New(domainErrors.KindDataIntegrity, "bad"), CategoryIntegrity, true},
		{"concurrent modify", domainErrors.New(domainErrors.KindConcurrentModify, "race"), CategoryConcurrency, true},
		{"network", domainErrors.New(domainErrors.KindNetwork, "down"), CategoryNetwork, true},
		{"plain error falls back", errors.New("boom"), CategoryUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := classifier.Classify(tt.err)
			testutil.AssertEqual(t, tt.wantCategory, cls.Category)
			testutil.AssertEqual(t, tt.wantRecoverable, cls.Recoverable)
			if cls.UserMessage == "" {
				t.Fatal("classification has no user message")
			}
		})
	}
}

func TestClassifierEnhance(t *testing.T) {
	classifier := NewErrorClassifier()

	enhanced := classifier.Enhance(domainErrors.New(domainErrors.KindDataIntegrity, "bad"))
	testutil.AssertEqual(t, domainErrors.KindDataIntegrity, enhanced.Kind)
	testutil.AssertEqual(t, domainErrors.SeverityCritical, enhanced.Severity)
	if enhanced.UserMessage == "" {
		t.Fatal("enhanced error has no user message")
	}

	// errors without a kind get wrapped before enhancement
	enhanced = classifier.Enhance(errors.New("boom"))
	testutil.AssertEqual(t, domainErrors.KindStorage, enhanced.Kind)
}

func TestRecoverNonRecoverable(t *testing.T) {
	coordinator := NewRecoveryCoordinator(NewErrorClassifier(), quietLogger())
	failure := domainErrors.New(domainErrors.KindRuleNotFound, "rule r1 not found")

	outcome, err := coordinator.Recover(context.Background(), failure)
	if !errors.Is(err, failure) {
		t.Fatalf("got %v, want the original failure back", err)
	}
	if outcome.Resolved || outcome.RequiresUser {
		t.Fatalf("outcome = %+v, want neither resolved nor user-facing", outcome)
	}
	if outcome.Message == "" {
		t.Fatal("outcome has no message")
	}
}

func TestRecoverResolvedByStrategy(t *testing.T) {
	coordinator := NewRecoveryCoordinator(NewErrorClassifier(), quietLogger())
	coordinator.Register(domainErrors.KindStorage, &stubStrategy{
		name: "fixer", priority: 1,
		outcome: RecoveryOutcome{Resolved: true, Message: "fixed"},
	})

	outcome, err := coordinator.Recover(context.Background(),
		domainErrors.New(domainErrors.KindStorage, "io"))
	testutil.AssertNoError(t, err)
	if !outcome.Resolved {
		t.Fatalf("outcome = %+v, want resolved", outcome)
	}
}

func TestRecoverTriesStrategiesByPriority(t *testing.T) {
	var calls []string
	coordinator := NewRecoveryCoordinator(NewErrorClassifier(), quietLogger())
	coordinator.Register(domainErrors.KindStorage, &stubStrategy{
		name: "low", priority: 1, calls: &calls,
	})
	coordinator.Register(domainErrors.KindStorage, &stubStrategy{
		name: "high", priority: 10, calls: &calls,
		outcome: RecoveryOutcome{Resolved: true},
	})

	_, err := coordinator.Recover(context.Background(),
		domainErrors.New(domainErrors.KindStorage, "io"))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, len(calls))
	testutil.AssertEqual(t, "high", calls[0])
}

func TestRecoverExhaustedFallsBack(t *testing.T) {
	var calls []string
	coordinator := NewRecoveryCoordinator(NewErrorClassifier(), quietLogger())
	coordinator.Register(domainErrors.KindStorage, &stubStrategy{name: "a", priority: 2, calls: &calls})
	coordinator.Register(domainErrors.KindStorage, &stubStrategy{name: "b", priority: 1, calls: &calls})

	failure := domainErrors.New(domainErrors.KindStorage, "io")
	outcome, err := coordinator.Recover(context.Background(), failure)
	if !errors.Is(err, failure) {
		t.Fatalf("got %v, want the original failure back", err)
	}
	if !outcome.RequiresUser {
		t.Fatalf("outcome = %+v, want user intervention", outcome)
	}
	testutil.AssertEqual(t, 2, len(outcome.Actions))
	testutil.AssertEqual(t, 2, len(calls))
}

func TestIntegrityRepairStrategy(t *testing.T) {
	ctx := context.Background()

	t.Run("clean data resolves immediately", func(t *testing.T) {
		checker, _ := newTestChecker(testutil.NewTestRule("Bathroom break"))
		strategy := NewIntegrityRepairStrategy(checker)

		outcome := strategy.Attempt(ctx, domainErrors.New(domainErrors.KindDataIntegrity, "bad"))
		if !outcome.Resolved {
			t.Fatalf("outcome = %+v, want resolved", outcome)
		}
	})

	t.Run("repairs detected issues", func(t *testing.T) {
		broken := testutil.NewTestRule("Bad type")
		broken.Type = "both"
		checker, mem := newTestChecker(broken)
		strategy := NewIntegrityRepairStrategy(checker)

		outcome := strategy.Attempt(ctx, domainErrors.New(domainErrors.KindDataIntegrity, "bad"))
		if !outcome.Resolved {
			t.Fatalf("outcome = %+v, want resolved", outcome)
		}
		if got := mem.Rules()[0].Type; !got.IsValid() {
			t.Fatalf("rule type %q still invalid after repair", got)
		}
	})
}

func TestReloadStrategy(t *testing.T) {
	ctx := context.Background()

	t.Run("consistent data resolves", func(t *testing.T) {
		checker, _ := newTestChecker(testutil.NewTestRule("Bathroom break"))
		outcome := NewReloadStrategy(checker).Attempt(ctx,
			domainErrors.New(domainErrors.KindConcurrentModify, "race"))
		if !outcome.Resolved {
			t.Fatalf("outcome = %+v, want resolved", outcome)
		}
	})

	t.Run("critical issues hand control to the user", func(t *testing.T) {
		broken := testutil.NewTestRule("Bad type")
		broken.Type = "both"
		checker, _ := newTestChecker(broken)
		outcome := NewReloadStrategy(checker).Attempt(ctx,
			domainErrors.New(domainErrors.KindConcurrentModify, "race"))
		if !outcome.RequiresUser {
			t.Fatalf("outcome = %+v, want user intervention", outcome)
		}
		testutil.AssertEqual(t, 2, len(outcome.Actions))
	})
}

func TestDefaultStrategiesAreUserFacing(t *testing.T) {
	checker, _ := newTestChecker()
	coordinator := NewRecoveryCoordinator(NewErrorClassifier(), quietLogger())
	RegisterDefaultStrategies(coordinator, checker)

	// transient kinds funnel into an explicit retry decision
	for _, kind := range []domainErrors.Kind{
		domainErrors.KindNetwork,
		domainErrors.KindOperationTimeout,
		domainErrors.KindTemporaryIDConflict,
	} {
		outcome, err := coordinator.Recover(context.Background(),
			domainErrors.New(kind, "transient"))
		testutil.AssertNoError(t, err)
		if !outcome.RequiresUser {
			t.Fatalf("kind %s: outcome = %+v, want retry decision", kind, outcome)
		}
	}

	outcome, err := coordinator.Recover(context.Background(),
		domainErrors.New(domainErrors.KindDuplicateName, "dup"))
	testutil.AssertNoError(t, err)
	if !outcome.RequiresUser || len(outcome.Actions) != 2 {
		t.Fatalf("outcome = %+v, want use-existing or rename choice", outcome)
	}
}

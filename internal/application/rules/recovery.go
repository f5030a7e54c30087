package rules

import (
	"context"
	"sort"

	domainErrors "github.com/streakworks/chainrules/internal/domain/errors"
	"github.com/streakworks/chainrules/internal/infrastructure/logging"
)

// ErrorCategory groups error kinds for classification.
type ErrorCategory string

const (
	CategoryValidation     ErrorCategory = "validation"
	CategoryStorage        ErrorCategory = "storage"
	CategoryIntegrity      ErrorCategory = "integrity"
	CategoryReconciliation ErrorCategory = "reconciliation"
	CategoryConcurrency    ErrorCategory = "concurrency"
	CategoryNetwork        ErrorCategory = "network"
	CategoryUnknown        ErrorCategory = "unknown"
)

// Classification describes how an error kind should be handled and
// presented.
type Classification struct {
	Category    ErrorCategory
	Severity    domainErrors.Severity
	Priority    int
	Recoverable bool
	UserMessage string
}

// classificationTable is the fixed mapping from error kind to handling
// policy. Kinds absent from this table fall back to a structural default.
var classificationTable = map[domainErrors.Kind]Classification{
	domainErrors.KindRuleNotFound: {
		Category: CategoryValidation, Severity: domainErrors.SeverityWarning,
		Priority: 3, Recoverable: false,
		UserMessage: "The rule could not be found. It may have been deleted.",
	},
	domainErrors.KindDuplicateName: {
		Category: CategoryValidation, Severity: domainErrors.SeverityWarning,
		Priority: 3, Recoverable: true,
		UserMessage: "A rule with this name already exists.",
	},
	domainErrors.KindInvalidType: {
		Category: CategoryValidation, Severity: domainErrors.SeverityError,
		Priority: 3, Recoverable: false,
		UserMessage: "The rule type is not valid.",
	},
	domainErrors.KindTypeMismatch: {
		Category: CategoryValidation, Severity: domainErrors.SeverityWarning,
		Priority: 3, Recoverable: false,
		UserMessage: "This rule cannot be used for that action.",
	},
	domainErrors.KindValidation: {
		Category: CategoryValidation, Severity: domainErrors.SeverityWarning,
		Priority: 3, Recoverable: false,
		UserMessage: "The rule details are invalid. Please review and try again.",
	},
	domainErrors.KindStorage: {
		Category: CategoryStorage, Severity: domainErrors.SeverityError,
		Priority: 1, Recoverable: true,
		UserMessage: "Saving your data failed. Your changes may not have been stored.",
	},
	domainErrors.KindDataIntegrity: {
		Category: CategoryIntegrity, Severity: domainErrors.SeverityCritical,
		Priority: 1, Recoverable: true,
		UserMessage: "Stored data is inconsistent. An automatic repair can be attempted.",
	},
	domainErrors.KindTemporaryIDConflict: {
		Category: CategoryReconciliation, Severity: domainErrors.SeverityError,
		Priority: 2, Recoverable: true,
		UserMessage: "A temporary identifier conflict occurred. Please retry.",
	},
	domainErrors.KindRuleStateInconsistent: {
		Category: CategoryReconciliation, Severity: domainErrors.SeverityError,
		Priority: 2, Recoverable: true,
		UserMessage: "The rule is in an inconsistent state.",
	},
	domainErrors.KindOperationTimeout: {
		Category: CategoryStorage, Severity: domainErrors.SeverityError,
		Priority: 2, Recoverable: true,
		UserMessage: "The operation timed out. Please retry.",
	},
	domainErrors.KindConcurrentModify: {
		Category: CategoryConcurrency, Severity: domainErrors.SeverityError,
		Priority: 1, Recoverable: true,
		UserMessage: "The data was changed by another process. It will be reloaded.",
	},
	domainErrors.KindNetwork: {
		Category: CategoryNetwork, Severity: domainErrors.SeverityError,
		Priority: 2, Recoverable: true,
		UserMessage: "A network problem occurred. Please check your connection.",
	},
}

// defaultClassification is the structural fallback for kinds missing from
// the table and for errors that carry no kind at all.
var defaultClassification = Classification{
	Category: CategoryUnknown, Severity: domainErrors.SeverityError,
	Priority: 2, Recoverable: false,
	UserMessage: "An unexpected error occurred.",
}

// ErrorClassifier maps raised faults into the fixed taxonomy.
type ErrorClassifier struct{}

// NewErrorClassifier creates a classifier.
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// Classify looks up the handling policy for an error.
func (c *ErrorClassifier) Classify(err error) Classification {
	kind, ok := domainErrors.KindOf(err)
	if !ok {
		return defaultClassification
	}
	if cls, found := classificationTable[kind]; found {
		return cls
	}
	return defaultClassification
}

// Enhance wraps an error with its classification's severity and user-facing
// message, plus the given recovery actions.
func (c *ErrorClassifier) Enhance(err error, actions ...domainErrors.RecoveryAction) *domainErrors.EnhancedError {
	cls := c.Classify(err)
	var re *domainErrors.RuleError
	if !domainErrors.As(err, &re) {
		re = domainErrors.Wrap(domainErrors.KindStorage, "unclassified error", err)
	}
	return domainErrors.Enhance(re, cls.Severity, cls.UserMessage, actions...)
}

// RecoveryOutcome is the result of a recovery attempt.
type RecoveryOutcome struct {
	Resolved     bool
	Message      string
	RequiresUser bool
	Actions      []domainErrors.RecoveryAction
}

// RecoveryStrategy attempts to resolve one class of failure. A strategy
// either resolves the problem, signals that user action is required, or
// reports that it could not help (neither flag set).
type RecoveryStrategy interface {
	Name() string
	Priority() int
	Attempt(ctx context.Context, failure error) RecoveryOutcome
}

// fallbackActions is the terminal offer when no strategy resolves a
// recoverable failure.
var fallbackActions = []domainErrors.RecoveryAction{
	{ID: "manual", Label: "Resolve manually", Rank: domainErrors.RankPrimary,
		Description: "Inspect the data and resolve the problem by hand."},
	{ID: "reset", Label: "Reset local data", Rank: domainErrors.RankDanger,
		Description: "Discard local rule data and start over."},
}

// RecoveryCoordinator tries registered strategies per error kind in
// descending priority. Unresolved failures are re-raised with their
// original kind intact; no error is silently discarded.
type RecoveryCoordinator struct {
	classifier *ErrorClassifier
	strategies map[domainErrors.Kind][]RecoveryStrategy
	logger     *logging.Logger
}

// NewRecoveryCoordinator creates a coordinator with no strategies
// registered.
func NewRecoveryCoordinator(classifier *ErrorClassifier, logger *logging.Logger) *RecoveryCoordinator {
	if logger == nil {
		logger = logging.Default()
	}
	return &RecoveryCoordinator{
		classifier: classifier,
		strategies: make(map[domainErrors.Kind][]RecoveryStrategy),
		logger:     logger,
	}
}

// Register adds a strategy for an error kind, kept in descending priority
// order.
func (rc *RecoveryCoordinator) Register(kind domainErrors.Kind, strategy RecoveryStrategy) {
	rc.strategies[kind] = append(rc.strategies[kind], strategy)
	sort.SliceStable(rc.strategies[kind], func(i, j int) bool {
		return rc.strategies[kind][i].Priority() > rc.strategies[kind][j].Priority()
	})
}

// Recover attempts to handle a failure. The returned outcome describes what
// happened; the returned error is the original failure when it remains
// unresolved (kind intact), and nil when a strategy resolved it or handed a
// decision to the user.
func (rc *RecoveryCoordinator) Recover(ctx context.Context, failure error) (*RecoveryOutcome, error) {
	cls := rc.classifier.Classify(failure)
	kind, _ := domainErrors.KindOf(failure)

	if !cls.Recoverable {
		return &RecoveryOutcome{Message: cls.UserMessage}, failure
	}

	for _, strategy := range rc.strategies[kind] {
		outcome := strategy.Attempt(ctx, failure)
		if outcome.Resolved {
			rc.logger.InfoContext(ctx, "failure recovered",
				"kind", string(kind), "strategy", strategy.Name())
			return &outcome, nil
		}
		if outcome.RequiresUser {
			rc.logger.InfoContext(ctx, "recovery requires user action",
				"kind", string(kind), "strategy", strategy.Name())
			return &outcome, nil
		}
		rc.logger.WarnContext(ctx, "recovery strategy failed",
			"kind", string(kind), "strategy", strategy.Name())
	}

	return &RecoveryOutcome{
		RequiresUser: true,
		Message:      "No automatic recovery succeeded; manual intervention required.",
		Actions:      fallbackActions,
	}, failure
}

// --- Built-in strategies ---

// IntegrityRepairStrategy resolves data-integrity failures by running a full
// scan and applying every auto-fix.
type IntegrityRepairStrategy struct {
	checker *IntegrityChecker
}

// NewIntegrityRepairStrategy creates the repair strategy over a checker.
func NewIntegrityRepairStrategy(checker *IntegrityChecker) *IntegrityRepairStrategy {
	return &IntegrityRepairStrategy{checker: checker}
}

func (s *IntegrityRepairStrategy) Name() string  { return "integrity_repair" }
func (s *IntegrityRepairStrategy) Priority() int { return 10 }

func (s *IntegrityRepairStrategy) Attempt(ctx context.Context, failure error) RecoveryOutcome {
	report, err := s.checker.Check(ctx)
	if err != nil {
		return RecoveryOutcome{}
	}
	if len(report.Issues) == 0 {
		return RecoveryOutcome{Resolved: true, Message: "No integrity issues remain."}
	}

	results := s.checker.AutoFixIssues(ctx, report.Issues)
	for _, res := range results {
		if res.Err != nil {
			return RecoveryOutcome{
				RequiresUser: true,
				Message:      "Some integrity issues could not be repaired automatically.",
				Actions:      fallbackActions,
			}
		}
	}
	return RecoveryOutcome{Resolved: true, Message: "Integrity issues repaired."}
}

// ReloadStrategy resolves concurrent-modification failures: the engine
// reads collections from the backend on every operation, so acknowledging
// the external change and rescanning is sufficient.
type ReloadStrategy struct {
	checker *IntegrityChecker
}

// NewReloadStrategy creates the reload strategy over a checker.
func NewReloadStrategy(checker *IntegrityChecker) *ReloadStrategy {
	return &ReloadStrategy{checker: checker}
}

func (s *ReloadStrategy) Name() string  { return "reload_and_rescan" }
func (s *ReloadStrategy) Priority() int { return 10 }

func (s *ReloadStrategy) Attempt(ctx context.Context, failure error) RecoveryOutcome {
	report, err := s.checker.Check(ctx)
	if err != nil {
		return RecoveryOutcome{}
	}
	if report.HasCritical() {
		return RecoveryOutcome{
			RequiresUser: true,
			Message:      "External changes left the data inconsistent.",
			Actions: []domainErrors.RecoveryAction{
				{ID: "repair", Label: "Repair now", Rank: domainErrors.RankPrimary,
					Description: "Run the automatic integrity repair."},
				{ID: "ignore", Label: "Ignore", Rank: domainErrors.RankSecondary,
					Description: "Continue without repairing."},
			},
		}
	}
	return RecoveryOutcome{Resolved: true, Message: "Data reloaded after external change."}
}

// ResubmitStrategy offers a retry decision for transient storage, network,
// and timeout failures. Retrying is always an explicit caller decision.
type ResubmitStrategy struct{}

// NewResubmitStrategy creates the resubmit strategy.
func NewResubmitStrategy() *ResubmitStrategy {
	return &ResubmitStrategy{}
}

func (s *ResubmitStrategy) Name() string  { return "resubmit" }
func (s *ResubmitStrategy) Priority() int { return 5 }

func (s *ResubmitStrategy) Attempt(ctx context.Context, failure error) RecoveryOutcome {
	return RecoveryOutcome{
		RequiresUser: true,
		Message:      "The operation did not complete.",
		Actions: []domainErrors.RecoveryAction{
			{ID: "retry", Label: "Try again", Rank: domainErrors.RankPrimary,
				Description: "Resubmit the operation."},
			{ID: "cancel", Label: "Cancel", Rank: domainErrors.RankSecondary,
				Description: "Abandon the operation."},
		},
	}
}

// DuplicateNameStrategy turns duplicate-name failures into a user decision
// between reusing the existing rule and picking a different name.
type DuplicateNameStrategy struct{}

// NewDuplicateNameStrategy creates the duplicate-name strategy.
func NewDuplicateNameStrategy() *DuplicateNameStrategy {
	return &DuplicateNameStrategy{}
}

func (s *DuplicateNameStrategy) Name() string  { return "duplicate_name_choice" }
func (s *DuplicateNameStrategy) Priority() int { return 5 }

func (s *DuplicateNameStrategy) Attempt(ctx context.Context, failure error) RecoveryOutcome {
	return RecoveryOutcome{
		RequiresUser: true,
		Message:      "A rule with this name already exists.",
		Actions: []domainErrors.RecoveryAction{
			{ID: "use_existing", Label: "Use the existing rule", Rank: domainErrors.RankPrimary,
				Description: "Select the rule that already has this name."},
			{ID: "rename", Label: "Choose another name", Rank: domainErrors.RankSecondary,
				Description: "Pick one of the suggested alternative names."},
		},
	}
}

// RegisterDefaultStrategies wires the built-in strategies onto a
// coordinator.
func RegisterDefaultStrategies(rc *RecoveryCoordinator, checker *IntegrityChecker) {
	rc.Register(domainErrors.KindDataIntegrity, NewIntegrityRepairStrategy(checker))
	rc.Register(domainErrors.KindConcurrentModify, NewReloadStrategy(checker))
	rc.Register(domainErrors.KindStorage, NewResubmitStrategy())
	rc.Register(domainErrors.KindNetwork, NewResubmitStrategy())
	rc.Register(domainErrors.KindOperationTimeout, NewResubmitStrategy())
	rc.Register(domainErrors.KindDuplicateName, NewDuplicateNameStrategy())
	rc.Register(domainErrors.KindTemporaryIDConflict, NewResubmitStrategy())
	rc.Register(domainErrors.KindRuleStateInconsistent, NewResubmitStrategy())
}

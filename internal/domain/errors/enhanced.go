package errors

// Severity grades how serious an error is for the user.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// ActionRank orders recovery actions for presentation.
type ActionRank string

const (
	RankPrimary   ActionRank = "primary"
	RankSecondary ActionRank = "secondary"
	RankDanger    ActionRank = "danger"
)

// RecoveryAction is a suggested remediation the caller may present to the user.
type RecoveryAction struct {
	ID          string
	Label       string
	Description string
	Rank        ActionRank
}

// EnhancedError is a RuleError enriched with user-facing detail produced by
// the error classifier.
type EnhancedError struct {
	RuleError
	Severity    Severity
	UserMessage string
	Actions     []RecoveryAction
}

// Enhance wraps a RuleError with severity, a user-facing message, and
// suggested recovery actions.
func Enhance(err *RuleError, severity Severity, userMessage string, actions ...RecoveryAction) *EnhancedError {
	return &EnhancedError{
		RuleError:   *err,
		Severity:    severity,
		UserMessage: userMessage,
		Actions:     actions,
	}
}

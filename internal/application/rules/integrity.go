package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/streakworks/chainrules/internal/application/ports"
	domainErrors "github.com/streakworks/chainrules/internal/domain/errors"
	"github.com/streakworks/chainrules/internal/domain/rule"
	"github.com/streakworks/chainrules/internal/infrastructure/logging"
	"github.com/streakworks/chainrules/internal/infrastructure/tracing"
)

// IssueKind identifies a class of invariant violation.
type IssueKind string

const (
	IssueMissingID         IssueKind = "missing_id"
	IssueDuplicateName     IssueKind = "duplicate_name"
	IssueInvalidType       IssueKind = "invalid_type"
	IssueOrphanedRecord    IssueKind = "orphaned_record"
	IssueMissingCreatedAt  IssueKind = "missing_created_at"
	IssueInvalidUsageCount IssueKind = "invalid_usage_count"
)

// IssueSeverity grades an integrity issue.
type IssueSeverity string

const (
	SeverityCritical IssueSeverity = "critical"
	SeverityWarning  IssueSeverity = "warning"
	SeverityInfo     IssueSeverity = "info"
)

// Issue describes one detected invariant violation and, when auto-fixable,
// the remediation that will be applied.
type Issue struct {
	Kind        IssueKind
	Severity    IssueSeverity
	Description string
	AffectedIDs []string
	AutoFixable bool
	FixAction   string
}

// IntegrityReport is the result of one full scan of both collections.
type IntegrityReport struct {
	CheckedAt   time.Time
	RuleCount   int
	RecordCount int
	Issues      []Issue
}

// AutoFixableCount returns how many issues carry an automatic remediation.
func (r *IntegrityReport) AutoFixableCount() int {
	n := 0
	for _, issue := range r.Issues {
		if issue.AutoFixable {
			n++
		}
	}
	return n
}

// HasCritical reports whether the scan found any critical issue.
func (r *IntegrityReport) HasCritical() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// FixResult reports the outcome of applying one issue's remediation.
type FixResult struct {
	Issue Issue
	Fixed bool
	Err   error
}

// IntegrityChecker scans the rule and usage-record collections for
// structural invariant violations and can repair the auto-fixable ones. It
// works directly over the persistence ports so it can see data the store's
// validated paths would reject.
type IntegrityChecker struct {
	rules  ports.RuleCollectionPort
	usage  ports.UsageCollectionPort
	logger *logging.Logger
	tracer *tracing.Tracer
	now    func() time.Time
	newID  func() string
}

// NewIntegrityChecker creates a checker over the given ports. It shares the
// store's logger, tracer, clock, and id generator.
func NewIntegrityChecker(store *Store) *IntegrityChecker {
	return &IntegrityChecker{
		rules:  store.rules,
		usage:  store.usage,
		logger: store.logger,
		tracer: store.tracer,
		now:    store.now,
		newID:  store.newID,
	}
}

// Check scans both collections and produces a report of every violation
// found.
func (c *IntegrityChecker) Check(ctx context.Context) (*IntegrityReport, error) {
	ctx, span := c.tracer.StartIntegritySpan(ctx, "integrity.check")
	var err error
	defer func() { span.End(err) }()

	allRules, loadErr := c.rules.LoadRules(ctx)
	if loadErr != nil {
		err = domainErrors.Wrap(domainErrors.KindStorage, "load rules", loadErr)
		return nil, err
	}
	records, loadErr := c.usage.LoadRecords(ctx)
	if loadErr != nil {
		err = domainErrors.Wrap(domainErrors.KindStorage, "load usage records", loadErr)
		return nil, err
	}

	report := &IntegrityReport{
		CheckedAt:   c.now(),
		RuleCount:   len(allRules),
		RecordCount: len(records),
	}

	report.Issues = append(report.Issues, checkIdentifiers(allRules)...)
	report.Issues = append(report.Issues, checkTypes(allRules)...)
	report.Issues = append(report.Issues, checkCreatedAt(allRules)...)
	report.Issues = append(report.Issues, checkDuplicateNames(allRules)...)
	report.Issues = append(report.Issues, checkUsageCounts(allRules, records)...)
	report.Issues = append(report.Issues, checkOrphanedRecords(allRules, records)...)

	span.SetIssueCounts(len(report.Issues), report.AutoFixableCount())
	if len(report.Issues) > 0 {
		c.logger.WarnContext(ctx, "integrity issues detected",
			"issues", len(report.Issues), "auto_fixable", report.AutoFixableCount())
	}
	return report, nil
}

func checkIdentifiers(allRules []rule.Rule) []Issue {
	var issues []Issue

	missing := 0
	seen := make(map[string][]string, len(allRules))
	for _, r := range allRules {
		if r.ID == "" {
			missing++
			continue
		}
		seen[r.ID] = append(seen[r.ID], r.Name)
	}
	if missing > 0 {
		issues = append(issues, Issue{
			Kind:        IssueMissingID,
			Severity:    SeverityCritical,
			Description: fmt.Sprintf("%d rule(s) have no identifier", missing),
			AutoFixable: true,
			FixAction:   "assign a new identifier",
		})
	}
	for id, names := range seen {
		if len(names) > 1 {
			issues = append(issues, Issue{
				Kind:        IssueMissingID,
				Severity:    SeverityCritical,
				Description: fmt.Sprintf("identifier %s is shared by %d rules", id, len(names)),
				AffectedIDs: []string{id},
				AutoFixable: true,
				FixAction:   "reassign identifiers and remap dependent usage records",
			})
		}
	}
	return issues
}

func checkTypes(allRules []rule.Rule) []Issue {
	var issues []Issue
	for _, r := range allRules {
		if !r.Type.IsValid() {
			issues = append(issues, Issue{
				Kind:        IssueInvalidType,
				Severity:    SeverityCritical,
				Description: fmt.Sprintf("rule %s has missing or invalid type %q", r.ID, r.Type),
				AffectedIDs: []string{r.ID},
				AutoFixable: true,
				FixAction:   "set the default type",
			})
		}
	}
	return issues
}

func checkCreatedAt(allRules []rule.Rule) []Issue {
	var issues []Issue
	for _, r := range allRules {
		if r.CreatedAt.IsZero() {
			issues = append(issues, Issue{
				Kind:        IssueMissingCreatedAt,
				Severity:    SeverityWarning,
				Description: fmt.Sprintf("rule %s has no creation time", r.ID),
				AffectedIDs: []string{r.ID},
				AutoFixable: true,
				FixAction:   "set creation time to now",
			})
		}
	}
	return issues
}

// poolKey identifies a uniqueness pool: the global pool, or one pool per
// owning task for chain rules.
func poolKey(r rule.Rule) string {
	if r.Scope == rule.ScopeChain {
		return "chain:" + r.ChainID
	}
	return "global"
}

func checkDuplicateNames(allRules []rule.Rule) []Issue {
	var issues []Issue
	byName := make(map[string][]string)
	for _, r := range allRules {
		if !r.IsActive || r.Name == "" {
			continue
		}
		key := poolKey(r) + "|" + NormalizeName(r.Name)
		byName[key] = append(byName[key], r.ID)
	}
	for _, ids := range byName {
		if len(ids) > 1 {
			issues = append(issues, Issue{
				Kind:        IssueDuplicateName,
				Severity:    SeverityWarning,
				Description: fmt.Sprintf("%d active rules share a normalized name in the same scope", len(ids)),
				AffectedIDs: ids,
				AutoFixable: true,
				FixAction:   "append a numeric suffix to the later duplicates",
			})
		}
	}
	return issues
}

func checkUsageCounts(allRules []rule.Rule, records []rule.UsageRecord) []Issue {
	counts := make(map[string]int, len(records))
	for _, rec := range records {
		counts[rec.RuleID]++
	}

	var issues []Issue
	for _, r := range allRules {
		if r.UsageCount < 0 {
			issues = append(issues, Issue{
				Kind:        IssueInvalidUsageCount,
				Severity:    SeverityWarning,
				Description: fmt.Sprintf("rule %s has negative usage count %d", r.ID, r.UsageCount),
				AffectedIDs: []string{r.ID},
				AutoFixable: true,
				FixAction:   "reset usage count to 0",
			})
			continue
		}
		if actual := counts[r.ID]; r.UsageCount != actual {
			issues = append(issues, Issue{
				Kind:     IssueInvalidUsageCount,
				Severity: SeverityInfo,
				Description: fmt.Sprintf("rule %s records usage count %d but %d usage record(s) exist",
					r.ID, r.UsageCount, actual),
				AffectedIDs: []string{r.ID},
				AutoFixable: true,
				FixAction:   "recompute usage count from usage records",
			})
		}
	}
	return issues
}

func checkOrphanedRecords(allRules []rule.Rule, records []rule.UsageRecord) []Issue {
	known := make(map[string]bool, len(allRules))
	for _, r := range allRules {
		known[r.ID] = true
	}

	var issues []Issue
	for _, rec := range records {
		if !known[rec.RuleID] {
			issues = append(issues, Issue{
				Kind:        IssueOrphanedRecord,
				Severity:    SeverityWarning,
				Description: fmt.Sprintf("usage record %s references missing rule %s", rec.ID, rec.RuleID),
				AffectedIDs: []string{rec.ID},
				AutoFixable: true,
				FixAction:   "delete the orphaned record",
			})
		}
	}
	return issues
}

// AutoFixIssues applies each issue's remediation independently and reports
// per-issue success or failure. A failure on one issue never aborts the
// remaining fixes.
func (c *IntegrityChecker) AutoFixIssues(ctx context.Context, issues []Issue) []FixResult {
	ctx, span := c.tracer.StartIntegritySpan(ctx, "integrity.auto_fix")
	defer span.End(nil)

	results := make([]FixResult, 0, len(issues))
	succeeded, failed := 0, 0
	for _, issue := range issues {
		res := FixResult{Issue: issue}
		if !issue.AutoFixable {
			res.Err = domainErrors.Newf(domainErrors.KindDataIntegrity,
				"issue %s is not auto-fixable", issue.Kind)
			failed++
			results = append(results, res)
			continue
		}
		if err := c.applyFix(ctx, issue); err != nil {
			res.Err = err
			failed++
		} else {
			res.Fixed = true
			succeeded++
		}
		results = append(results, res)
	}

	span.SetFixCounts(succeeded, failed)
	c.logger.InfoContext(ctx, "integrity fixes applied",
		"succeeded", succeeded, "failed", failed)
	return results
}

// applyFix loads, repairs, and saves for one issue, so each fix stands on
// its own snapshot of the collections.
func (c *IntegrityChecker) applyFix(ctx context.Context, issue Issue) error {
	switch issue.Kind {
	case IssueMissingID:
		return c.fixIdentifiers(ctx)
	case IssueInvalidType:
		return c.fixTypes(ctx)
	case IssueMissingCreatedAt:
		return c.fixCreatedAt(ctx)
	case IssueDuplicateName:
		return c.fixDuplicateNames(ctx, issue.AffectedIDs)
	case IssueInvalidUsageCount:
		return c.fixUsageCounts(ctx, issue.AffectedIDs)
	case IssueOrphanedRecord:
		return c.fixOrphanedRecords(ctx, issue.AffectedIDs)
	default:
		return domainErrors.Newf(domainErrors.KindDataIntegrity,
			"unknown issue kind %q", issue.Kind)
	}
}

// fixIdentifiers assigns fresh identifiers to rules without one and to the
// later holders of a shared identifier. Usage records keep referencing the
// original identifier, which stays with its first holder.
func (c *IntegrityChecker) fixIdentifiers(ctx context.Context) error {
	allRules, err := c.rules.LoadRules(ctx)
	if err != nil {
		return domainErrors.Wrap(domainErrors.KindStorage, "load rules", err)
	}

	seen := make(map[string]bool, len(allRules))
	for i := range allRules {
		id := allRules[i].ID
		if id == "" {
			allRules[i].ID = c.newID()
			continue
		}
		if seen[id] {
			// Records for a shared id stay with the first holder; there is
			// no way to tell which duplicate they belonged to.
			allRules[i].ID = c.newID()
			continue
		}
		seen[id] = true
	}
	if err := c.rules.SaveRules(ctx, allRules); err != nil {
		return domainErrors.Wrap(domainErrors.KindStorage, "save rules", err)
	}
	return nil
}

func (c *IntegrityChecker) fixTypes(ctx context.Context) error {
	allRules, err := c.rules.LoadRules(ctx)
	if err != nil {
		return domainErrors.Wrap(domainErrors.KindStorage, "load rules", err)
	}
	for i := range allRules {
		if !allRules[i].Type.IsValid() {
			allRules[i].Type = rule.TypePauseOnly
		}
	}
	if err := c.rules.SaveRules(ctx, allRules); err != nil {
		return domainErrors.Wrap(domainErrors.KindStorage, "save rules", err)
	}
	return nil
}

func (c *IntegrityChecker) fixCreatedAt(ctx context.Context) error {
	allRules, err := c.rules.LoadRules(ctx)
	if err != nil {
		return domainErrors.Wrap(domainErrors.KindStorage, "load rules", err)
	}
	now := c.now()
	for i := range allRules {
		if allRules[i].CreatedAt.IsZero() {
			allRules[i].CreatedAt = now
		}
	}
	if err := c.rules.SaveRules(ctx, allRules); err != nil {
		return domainErrors.Wrap(domainErrors.KindStorage, "save rules", err)
	}
	return nil
}

// fixDuplicateNames keeps the oldest duplicate untouched and appends the
// first free numeric suffix to the others.
func (c *IntegrityChecker) fixDuplicateNames(ctx context.Context, affectedIDs []string) error {
	allRules, err := c.rules.LoadRules(ctx)
	if err != nil {
		return domainErrors.Wrap(domainErrors.KindStorage, "load rules", err)
	}

	affected := make(map[string]bool, len(affectedIDs))
	for _, id := range affectedIDs {
		affected[id] = true
	}

	taken := make(map[string]bool, len(allRules))
	for _, r := range allRules {
		if r.IsActive {
			taken[poolKey(r)+"|"+NormalizeName(r.Name)] = true
		}
	}

	first := true
	for i := range allRules {
		if !affected[allRules[i].ID] {
			continue
		}
		if first {
			first = false
			continue
		}
		base := allRules[i].Name
		for n := 2; n <= 100; n++ {
			candidate := fmt.Sprintf("%s %d", base, n)
			key := poolKey(allRules[i]) + "|" + NormalizeName(candidate)
			if !taken[key] {
				taken[key] = true
				allRules[i].Name = candidate
				break
			}
		}
	}
	if err := c.rules.SaveRules(ctx, allRules); err != nil {
		return domainErrors.Wrap(domainErrors.KindStorage, "save rules", err)
	}
	return nil
}

// fixUsageCounts resets negative counts to zero and recomputes mismatched
// counts from the usage records.
func (c *IntegrityChecker) fixUsageCounts(ctx context.Context, affectedIDs []string) error {
	allRules, err := c.rules.LoadRules(ctx)
	if err != nil {
		return domainErrors.Wrap(domainErrors.KindStorage, "load rules", err)
	}
	records, err := c.usage.LoadRecords(ctx)
	if err != nil {
		return domainErrors.Wrap(domainErrors.KindStorage, "load usage records", err)
	}

	counts := make(map[string]int, len(records))
	for _, rec := range records {
		counts[rec.RuleID]++
	}
	affected := make(map[string]bool, len(affectedIDs))
	for _, id := range affectedIDs {
		affected[id] = true
	}

	for i := range allRules {
		if !affected[allRules[i].ID] {
			continue
		}
		allRules[i].UsageCount = counts[allRules[i].ID]
	}
	if err := c.rules.SaveRules(ctx, allRules); err != nil {
		return domainErrors.Wrap(domainErrors.KindStorage, "save rules", err)
	}
	return nil
}

func (c *IntegrityChecker) fixOrphanedRecords(ctx context.Context, affectedIDs []string) error {
	records, err := c.usage.LoadRecords(ctx)
	if err != nil {
		return domainErrors.Wrap(domainErrors.KindStorage, "load usage records", err)
	}

	affected := make(map[string]bool, len(affectedIDs))
	for _, id := range affectedIDs {
		affected[id] = true
	}

	kept := records[:0]
	for _, rec := range records {
		if !affected[rec.ID] {
			kept = append(kept, rec)
		}
	}
	if err := c.usage.SaveRecords(ctx, kept); err != nil {
		return domainErrors.Wrap(domainErrors.KindStorage, "save usage records", err)
	}
	return nil
}

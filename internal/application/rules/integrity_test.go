package rules

import (
	"context"
	"testing"
	"time"

	domainErrors "github.com/streakworks/chainrules/internal/domain/errors"
	"github.com/streakworks/chainrules/internal/domain/rule"
	"github.com/streakworks/chainrules/internal/infrastructure/testutil"
)

func newTestChecker(seed ...rule.Rule) (*IntegrityChecker, *testutil.MemoryStore) {
	store, mem := newTestStore(seed...)
	return NewIntegrityChecker(store), mem
}

func issuesOfKind(report *IntegrityReport, kind IssueKind) []Issue {
	var out []Issue
	for _, issue := range report.Issues {
		if issue.Kind == kind {
			out = append(out, issue)
		}
	}
	return out
}

func TestCheckCleanData(t *testing.T) {
	seed := testutil.NewTestRule("Bathroom break")
	seed.UsageCount = 1
	checker, mem := newTestChecker(seed)
	mem.SetRecords([]rule.UsageRecord{testutil.NewUsageRecord(seed, "chain-1")})

	report, err := checker.Check(context.Background())
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, report.RuleCount)
	testutil.AssertEqual(t, 1, report.RecordCount)
	testutil.AssertEqual(t, 0, len(report.Issues))
	if report.HasCritical() {
		t.Fatal("clean data reported a critical issue")
	}
}

func TestCheckDetectsViolations(t *testing.T) {
	noID := testutil.NewTestRule("No identifier")
	noID.ID = ""
	sharedA := testutil.NewTestRule("First holder")
	sharedA.ID = "shared"
	sharedB := testutil.NewTestRule("Second holder")
	sharedB.ID = "shared"
	badType := testutil.NewTestRule("Bad type")
	badType.Type = "both"
	noCreated := testutil.NewTestRule("No timestamp")
	noCreated.CreatedAt = time.Time{}
	dupA := testutil.NewTestRule("Water break")
	dupB := testutil.NewTestRule("water-break")
	negative := testutil.NewTestRule("Negative")
	negative.UsageCount = -3
	mismatch := testutil.NewTestRule("Mismatch")
	mismatch.UsageCount = 5

	checker, mem := newTestChecker(noID, sharedA, sharedB, badType, noCreated, dupA, dupB, negative, mismatch)
	mem.SetRecords([]rule.UsageRecord{
		{ID: "orphan-rec", RuleID: "gone", ChainID: "chain-1", ActionType: rule.TypePauseOnly},
	})

	report, err := checker.Check(context.Background())
	testutil.AssertNoError(t, err)

	idIssues := issuesOfKind(report, IssueMissingID)
	testutil.AssertEqual(t, 2, len(idIssues))
	for _, issue := range idIssues {
		testutil.AssertEqual(t, SeverityCritical, issue.Severity)
	}

	typeIssues := issuesOfKind(report, IssueInvalidType)
	testutil.AssertEqual(t, 1, len(typeIssues))
	testutil.AssertEqual(t, SeverityCritical, typeIssues[0].Severity)
	testutil.AssertContains(t, typeIssues[0].AffectedIDs, badType.ID)

	createdIssues := issuesOfKind(report, IssueMissingCreatedAt)
	testutil.AssertEqual(t, 1, len(createdIssues))
	testutil.AssertEqual(t, SeverityWarning, createdIssues[0].Severity)

	dupIssues := issuesOfKind(report, IssueDuplicateName)
	testutil.AssertEqual(t, 1, len(dupIssues))
	testutil.AssertEqual(t, SeverityWarning, dupIssues[0].Severity)
	testutil.AssertContains(t, dupIssues[0].AffectedIDs, dupA.ID)
	testutil.AssertContains(t, dupIssues[0].AffectedIDs, dupB.ID)

	usageIssues := issuesOfKind(report, IssueInvalidUsageCount)
	testutil.AssertEqual(t, 2, len(usageIssues))
	for _, issue := range usageIssues {
		switch issue.AffectedIDs[0] {
		case negative.ID:
			testutil.AssertEqual(t, SeverityWarning, issue.Severity)
		case mismatch.ID:
			testutil.AssertEqual(t, SeverityInfo, issue.Severity)
		default:
			t.Fatalf("unexpected usage-count issue for %v", issue.AffectedIDs)
		}
	}

	orphanIssues := issuesOfKind(report, IssueOrphanedRecord)
	testutil.AssertEqual(t, 1, len(orphanIssues))
	testutil.AssertContains(t, orphanIssues[0].AffectedIDs, "orphan-rec")

	if !report.HasCritical() {
		t.Fatal("expected critical issues")
	}
	testutil.AssertEqual(t, len(report.Issues), report.AutoFixableCount())
}

func TestDuplicateNamesSeparatePools(t *testing.T) {
	global := testutil.NewTestRule("Phone call")
	chained := testutil.NewChainRule("Phone call", "chain-1")
	otherChain := testutil.NewChainRule("Phone call", "chain-2")
	inactive := testutil.NewTestRule("phone-call")
	inactive.IsActive = false

	checker, _ := newTestChecker(global, chained, otherChain, inactive)
	report, err := checker.Check(context.Background())
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 0, len(issuesOfKind(report, IssueDuplicateName)))
}

func TestAutoFixRepairsEverything(t *testing.T) {
	ctx := context.Background()

	noID := testutil.NewTestRule("No identifier")
	noID.ID = ""
	sharedA := testutil.NewTestRule("First holder")
	sharedA.ID = "shared"
	sharedB := testutil.NewTestRule("Second holder")
	sharedB.ID = "shared"
	badType := testutil.NewTestRule("Bad type")
	badType.Type = ""
	noCreated := testutil.NewTestRule("No timestamp")
	noCreated.CreatedAt = time.Time{}
	dupA := testutil.NewTestRule("Water break")
	dupB := testutil.NewTestRule("water-break")
	negative := testutil.NewTestRule("Negative")
	negative.UsageCount = -3

	checker, mem := newTestChecker(noID, sharedA, sharedB, badType, noCreated, dupA, dupB, negative)
	mem.SetRecords([]rule.UsageRecord{
		{ID: "orphan-rec", RuleID: "gone", ChainID: "chain-1", ActionType: rule.TypePauseOnly},
	})

	report, err := checker.Check(ctx)
	testutil.AssertNoError(t, err)
	if len(report.Issues) == 0 {
		t.Fatal("expected issues to repair")
	}

	results := checker.AutoFixIssues(ctx, report.Issues)
	testutil.AssertEqual(t, len(report.Issues), len(results))
	for _, res := range results {
		if !res.Fixed {
			t.Fatalf("fix for %s failed: %v", res.Issue.Kind, res.Err)
		}
	}

	// a second scan over the repaired data comes back clean
	after, err := checker.Check(ctx)
	testutil.AssertNoError(t, err)
	if len(after.Issues) != 0 {
		t.Fatalf("issues remain after repair: %+v", after.Issues)
	}

	// one holder kept the shared identifier, the other got a fresh one
	ids := make(map[string]int)
	for _, r := range mem.Rules() {
		if r.ID == "" {
			t.Fatal("a rule still has no identifier")
		}
		ids[r.ID]++
	}
	testutil.AssertEqual(t, 1, ids["shared"])

	// the orphaned record is gone
	testutil.AssertEqual(t, 0, len(mem.Records()))
}

func TestFixDuplicateNamesKeepsFirstHolder(t *testing.T) {
	ctx := context.Background()
	dupA := testutil.NewTestRule("Water break")
	dupB := testutil.NewTestRule("Water break")
	dupC := testutil.NewTestRule("water-break")

	checker, mem := newTestChecker(dupA, dupB, dupC)
	report, err := checker.Check(ctx)
	testutil.AssertNoError(t, err)

	results := checker.AutoFixIssues(ctx, report.Issues)
	for _, res := range results {
		testutil.AssertNoError(t, res.Err)
	}

	names := make(map[string]string)
	for _, r := range mem.Rules() {
		names[r.ID] = r.Name
	}
	testutil.AssertEqual(t, "Water break", names[dupA.ID])
	if names[dupB.ID] == "Water break" || names[dupC.ID] == "water-break" {
		t.Fatalf("later duplicates were not renamed: %v", names)
	}
	if NormalizeName(names[dupB.ID]) == NormalizeName(names[dupC.ID]) {
		t.Fatalf("renamed duplicates still collide: %v", names)
	}
}

func TestAutoFixRejectsNonFixableIssues(t *testing.T) {
	checker, _ := newTestChecker()
	results := checker.AutoFixIssues(context.Background(), []Issue{
		{Kind: IssueOrphanedRecord, Severity: SeverityWarning, AutoFixable: false},
	})
	testutil.AssertEqual(t, 1, len(results))
	if results[0].Fixed {
		t.Fatal("non-fixable issue reported as fixed")
	}
	if !domainErrors.IsKind(results[0].Err, domainErrors.KindDataIntegrity) {
		t.Fatalf("got %v, want DATA_INTEGRITY_ERROR", results[0].Err)
	}
}

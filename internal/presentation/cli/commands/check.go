package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/streakworks/chainrules/internal/application/rules"
	"github.com/streakworks/chainrules/internal/presentation/cli/output"
)

// NewCheckCmd creates the check command, which scans stored data for
// integrity issues.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Scan stored data for integrity issues",
		Long: `Scan the stored rule and usage-record collections for integrity issues:
missing or duplicate identifiers, invalid types, duplicate names within a
scope, orphaned usage records, missing timestamps, and wrong usage counts.

The scan is read-only. Run 'chainrules fix' to repair auto-fixable issues.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd)
		},
	}

	return cmd
}

func runCheck(cmd *cobra.Command) error {
	container, err := requireContainer()
	if err != nil {
		return err
	}
	formatter := GetFormatter()
	jsonMode := formatter.Format() == output.FormatJSON

	var spinner *output.Spinner
	if !jsonMode {
		spinner = output.NewSpinner("Scanning stored data...")
		spinner.Start()
	}

	report, err := container.Checker().Check(cmd.Context())
	if err != nil {
		if spinner != nil {
			spinner.StopWithError("Scan failed")
		}
		return err
	}
	if spinner != nil {
		spinner.Stop()
	}

	if jsonMode {
		return formatter.JSON(report)
	}

	formatter.Header("Integrity Report")
	formatter.Item("Checked at", report.CheckedAt.Format("2006-01-02 15:04:05"))
	formatter.Item("Rules", strconv.Itoa(report.RuleCount))
	formatter.Item("Usage records", strconv.Itoa(report.RecordCount))
	formatter.Println("")

	if len(report.Issues) == 0 {
		formatter.Success("No integrity issues found")
		return nil
	}

	for _, issue := range report.Issues {
		renderIssue(formatter, issue)
	}

	formatter.Println("")
	formatter.Println("%s", formatter.Dim(fmt.Sprintf(
		"%d issue(s), %d auto-fixable", len(report.Issues), report.AutoFixableCount())))
	if report.AutoFixableCount() > 0 {
		formatter.Println("Run 'chainrules fix' to repair them.")
	}
	return nil
}

// renderIssue prints one issue with severity-appropriate styling.
func renderIssue(formatter *output.Formatter, issue rules.Issue) {
	switch issue.Severity {
	case rules.SeverityCritical:
		formatter.Error("[%s] %s", string(issue.Kind), issue.Description)
	case rules.SeverityWarning:
		formatter.Warning("[%s] %s", string(issue.Kind), issue.Description)
	default:
		formatter.Info("[%s] %s", string(issue.Kind), issue.Description)
	}
	if len(issue.AffectedIDs) > 0 {
		formatter.Item("Affected", fmt.Sprintf("%d record(s)", len(issue.AffectedIDs)))
	}
	if issue.AutoFixable {
		formatter.Item("Fix", issue.FixAction)
	}
}

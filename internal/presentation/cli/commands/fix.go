package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/streakworks/chainrules/internal/application/rules"
	"github.com/streakworks/chainrules/internal/presentation/cli/output"
)

// NewFixCmd creates the fix command, which repairs auto-fixable integrity
// issues.
func NewFixCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "fix",
		Short: "Repair auto-fixable integrity issues",
		Long: `Scan the stored data and apply the automatic remediation for every
auto-fixable issue. Each fix is applied independently: one failing fix
does not stop the others.

Pass --dry-run to see what would be repaired without changing anything.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFix(cmd, dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be fixed without applying changes")

	return cmd
}

func runFix(cmd *cobra.Command, dryRun bool) error {
	container, err := requireContainer()
	if err != nil {
		return err
	}
	formatter := GetFormatter()
	jsonMode := formatter.Format() == output.FormatJSON
	ctx := cmd.Context()

	report, err := container.Checker().Check(ctx)
	if err != nil {
		return err
	}

	var fixable []rules.Issue
	for _, issue := range report.Issues {
		if issue.AutoFixable {
			fixable = append(fixable, issue)
		}
	}

	if len(fixable) == 0 {
		if jsonMode {
			return formatter.JSON(map[string]any{"fixed": 0, "failed": 0})
		}
		formatter.Success("Nothing to fix")
		return nil
	}

	if dryRun {
		if jsonMode {
			return formatter.JSON(fixable)
		}
		formatter.Header("Would fix")
		for _, issue := range fixable {
			formatter.BulletItem(fmt.Sprintf("[%s] %s", string(issue.Kind), issue.FixAction))
		}
		return nil
	}

	var bar *output.ProgressBar
	if !jsonMode {
		bar = output.NewProgressBar(len(fixable), "Repairing")
	}

	results := container.Checker().AutoFixIssues(ctx, fixable)

	fixed, failed := 0, 0
	for _, result := range results {
		if bar != nil {
			bar.Increment()
		}
		if result.Fixed {
			fixed++
		} else {
			failed++
		}
	}
	if bar != nil {
		bar.Complete()
	}

	if jsonMode {
		return formatter.JSON(map[string]any{"fixed": fixed, "failed": failed})
	}

	if failed == 0 {
		formatter.Success("Repaired %d issue(s)", fixed)
		return nil
	}
	formatter.Warning("Repaired %d issue(s), %d failed", fixed, failed)
	for _, result := range results {
		if result.Err != nil {
			formatter.Error("[%s] %v", string(result.Issue.Kind), result.Err)
		}
	}
	return nil
}

package commands

import (
	"github.com/spf13/cobra"

	"github.com/streakworks/chainrules/internal/presentation/cli/output"
)

// NewDeleteCmd creates the delete command.
func NewDeleteCmd() *cobra.Command {
	var permanent bool

	cmd := &cobra.Command{
		Use:   "delete <rule-id>",
		Short: "Delete a rule",
		Long: `Delete a rule.

By default the rule is deactivated but its usage history is kept for
auditing. Pass --permanent to remove the rule and its usage records
entirely.`,
		Aliases: []string{"rm"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd, args[0], permanent)
		},
	}

	cmd.Flags().BoolVar(&permanent, "permanent", false, "remove the rule and its usage records entirely")

	return cmd
}

func runDelete(cmd *cobra.Command, id string, permanent bool) error {
	container, err := requireContainer()
	if err != nil {
		return err
	}
	formatter := GetFormatter()
	ctx := cmd.Context()

	if realID, ok := container.Reconciler().GetRealRuleID(id); ok {
		id = realID
	}

	if permanent {
		if err := container.Store().PermanentlyDeleteRule(ctx, id); err != nil {
			return reportFailure(ctx, container, err, formatter)
		}
	} else {
		if err := container.Store().DeleteRule(ctx, id); err != nil {
			return reportFailure(ctx, container, err, formatter)
		}
	}

	if formatter.Format() == output.FormatJSON {
		return formatter.JSON(map[string]any{"deleted": id, "permanent": permanent})
	}
	if permanent {
		formatter.Success("Permanently deleted rule %s", id)
	} else {
		formatter.Success("Deleted rule %s", id)
	}
	return nil
}

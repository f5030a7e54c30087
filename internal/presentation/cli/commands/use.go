package commands

import (
	"github.com/spf13/cobra"

	"github.com/streakworks/chainrules/internal/application/rules"
	"github.com/streakworks/chainrules/internal/presentation/cli/output"
)

// NewUseCmd creates the use command, which records a rule application.
func NewUseCmd() *cobra.Command {
	var (
		chainID   string
		sessionID string
		action    string
		elapsed   int64
		remaining int64
	)

	cmd := &cobra.Command{
		Use:   "use <rule-id>",
		Short: "Record that a rule was applied",
		Long: `Record that a rule was applied during an activity session.

The action must match the rule's type: a pause rule cannot justify an
early completion and vice versa. Each use increments the rule's usage
count and appends an audit record.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUse(cmd, args[0], chainID, sessionID, action, elapsed, remaining)
		},
	}

	cmd.Flags().StringVar(&chainID, "chain", "", "owning task the activity belongs to")
	cmd.Flags().StringVar(&sessionID, "session", "", "activity session identifier")
	cmd.Flags().StringVarP(&action, "action", "a", "pause", "action taken: pause, early-completion")
	cmd.Flags().Int64Var(&elapsed, "elapsed", 0, "elapsed seconds at the moment of use")
	cmd.Flags().Int64Var(&remaining, "remaining", 0, "remaining seconds at the moment of use")
	_ = cmd.MarkFlagRequired("chain")

	return cmd
}

func runUse(cmd *cobra.Command, id, chainID, sessionID, action string, elapsed, remaining int64) error {
	container, err := requireContainer()
	if err != nil {
		return err
	}
	formatter := GetFormatter()
	ctx := cmd.Context()

	actionType, err := parseRuleType(action)
	if err != nil {
		return err
	}

	if realID, ok := container.Reconciler().GetRealRuleID(id); ok {
		id = realID
	}

	record, err := container.Store().RecordUsage(ctx, rules.RecordUsageInput{
		RuleID:        id,
		ChainID:       chainID,
		SessionID:     sessionID,
		ActionType:    actionType,
		ElapsedTime:   elapsed,
		RemainingTime: remaining,
	})
	if err != nil {
		return reportFailure(ctx, container, err, formatter)
	}

	if formatter.Format() == output.FormatJSON {
		return formatter.JSON(record)
	}
	formatter.Success("Recorded %s for rule %s", string(record.ActionType), record.RuleID)
	return nil
}

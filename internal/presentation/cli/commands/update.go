package commands

import (
	"github.com/spf13/cobra"

	"github.com/streakworks/chainrules/internal/application/rules"
	"github.com/streakworks/chainrules/internal/presentation/cli/output"
)

// NewUpdateCmd creates the update command.
func NewUpdateCmd() *cobra.Command {
	var (
		name        string
		description string
		ruleType    string
	)

	cmd := &cobra.Command{
		Use:   "update <rule-id>",
		Short: "Update an existing rule",
		Long: `Update the name, description, or type of an existing rule.

Only the flags you pass are changed. Renaming is subject to the same
scoped uniqueness check as creation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd, args[0], name, description, ruleType)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "new rule name")
	cmd.Flags().StringVarP(&description, "description", "d", "", "new rule description")
	cmd.Flags().StringVarP(&ruleType, "type", "t", "", "new rule type: pause, early-completion")

	return cmd
}

func runUpdate(cmd *cobra.Command, id, name, description, ruleType string) error {
	container, err := requireContainer()
	if err != nil {
		return err
	}
	formatter := GetFormatter()
	ctx := cmd.Context()

	var input rules.UpdateRuleInput
	if cmd.Flags().Changed("name") {
		input.Name = &name
	}
	if cmd.Flags().Changed("description") {
		input.Description = &description
	}
	if cmd.Flags().Changed("type") {
		parsed, err := parseRuleType(ruleType)
		if err != nil {
			return err
		}
		input.Type = &parsed
	}

	// Accept temporary IDs from optimistic creations still in flight
	if realID, ok := container.Reconciler().GetRealRuleID(id); ok {
		id = realID
	}

	updated, err := container.Store().UpdateRule(ctx, id, input)
	if err != nil {
		return reportFailure(ctx, container, err, formatter)
	}

	if formatter.Format() == output.FormatJSON {
		return formatter.JSON(updated)
	}
	formatter.Success("Updated rule %q", updated.Name)
	return nil
}

package commands

import (
	"github.com/spf13/cobra"

	"github.com/streakworks/chainrules/internal/domain/rule"
	"github.com/streakworks/chainrules/internal/presentation/cli/output"
)

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	var ruleType string

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search active rules by name",
		Long: `Search active rules by name.

Exact matches rank first, then prefix matches, then substring matches.
An empty query lists the most used rules.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			return runSearch(cmd, query, ruleType)
		},
	}

	cmd.Flags().StringVarP(&ruleType, "type", "t", "", "filter by rule type: pause, early-completion")

	return cmd
}

func runSearch(cmd *cobra.Command, query, ruleType string) error {
	container, err := requireContainer()
	if err != nil {
		return err
	}
	formatter := GetFormatter()

	var typeFilter *rule.Type
	if ruleType != "" {
		parsed, err := parseRuleType(ruleType)
		if err != nil {
			return err
		}
		typeFilter = &parsed
	}

	matches, err := container.Store().Search(cmd.Context(), query, typeFilter)
	if err != nil {
		return err
	}

	infos := make([]RuleInfo, 0, len(matches))
	for _, r := range matches {
		infos = append(infos, RuleInfo{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			Type:        string(r.Type),
			Scope:       string(r.Scope),
			ChainID:     r.ChainID,
			UsageCount:  r.UsageCount,
		})
	}

	if formatter.Format() == output.FormatJSON {
		return formatter.JSON(RuleListOutput{Rules: infos, Count: len(infos)})
	}
	return renderRulesTable(formatter, infos)
}

package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/streakworks/chainrules/internal/application"
	"github.com/streakworks/chainrules/internal/application/rules"
	"github.com/streakworks/chainrules/internal/domain/rule"
	"github.com/streakworks/chainrules/internal/presentation/cli/output"
)

// similarityWarningThreshold is the similarity score above which existing
// rules are surfaced before creating a new one.
const similarityWarningThreshold = 0.7

// NewCreateCmd creates the create command.
func NewCreateCmd() *cobra.Command {
	var (
		description string
		ruleType    string
		chainID     string
		force       bool
		optimistic  bool
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new exception rule",
		Long: `Create a new exception rule.

Rules are global by default; pass --chain to scope the rule to a single
task. Before creating, similar existing rules are surfaced so duplicates
can be avoided; pass --force to skip that check.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(cmd.Context(), args[0], description, ruleType, chainID, force, optimistic)
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "rule description")
	cmd.Flags().StringVarP(&ruleType, "type", "t", "pause", "rule type: pause, early-completion")
	cmd.Flags().StringVar(&chainID, "chain", "", "scope the rule to this task")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip the similar-rule check")
	cmd.Flags().BoolVar(&optimistic, "optimistic", false, "return a temporary ID immediately and persist in the background")

	return cmd
}

// parseRuleType maps user-facing type names to domain types.
func parseRuleType(s string) (rule.Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pause", "pause_only":
		return rule.TypePauseOnly, nil
	case "early-completion", "early_completion", "early_completion_only":
		return rule.TypeEarlyCompletionOnly, nil
	default:
		return "", fmt.Errorf("unknown rule type %q (valid: pause, early-completion)", s)
	}
}

func runCreate(ctx context.Context, name, description, ruleType, chainID string, force, optimistic bool) error {
	container, err := requireContainer()
	if err != nil {
		return err
	}
	formatter := GetFormatter()

	parsedType, err := parseRuleType(ruleType)
	if err != nil {
		return err
	}

	if !force {
		if err := warnAboutSimilarRules(ctx, container.Detector(), name, formatter); err != nil {
			return err
		}
	}

	input := rules.CreateRuleInput{
		Name:        name,
		Description: description,
		Type:        parsedType,
	}

	if optimistic {
		return runOptimisticCreate(ctx, container, input, chainID, formatter)
	}

	var created *rule.Rule
	if chainID != "" {
		created, err = container.Resolver().CreateChainRule(ctx, chainID, input)
	} else {
		created, err = container.Resolver().CreateGlobalRule(ctx, input)
	}
	if err != nil {
		return reportFailure(ctx, container, err, formatter)
	}

	if formatter.Format() == output.FormatJSON {
		return formatter.JSON(created)
	}

	formatter.Success("Created rule %q", created.Name)
	formatter.Item("ID", created.ID)
	formatter.Item("Type", string(created.Type))
	formatter.Item("Scope", string(created.Scope))
	if created.ChainID != "" {
		formatter.Item("Chain", created.ChainID)
	}
	return nil
}

// runOptimisticCreate registers the rule under a temporary ID and waits for
// the background persistence to settle before reporting.
func runOptimisticCreate(ctx context.Context, container *application.Container, input rules.CreateRuleInput, chainID string, formatter *output.Formatter) error {
	if chainID != "" {
		input.Scope = rule.ScopeChain
		input.ChainID = chainID
	} else {
		input.Scope = rule.ScopeGlobal
	}

	handle, err := container.Reconciler().StartOptimisticCreation(ctx, input)
	if err != nil {
		return reportFailure(ctx, container, err, formatter)
	}

	formatter.Info("Provisional rule %s registered", handle.Provisional.ID)

	created, err := handle.Await(ctx)
	if err != nil {
		return reportFailure(ctx, container, err, formatter)
	}

	if formatter.Format() == output.FormatJSON {
		return formatter.JSON(created)
	}
	formatter.Success("Created rule %q", created.Name)
	formatter.Item("ID", created.ID)
	return nil
}

// warnAboutSimilarRules surfaces existing rules similar to the requested name
// along with alternative name suggestions.
func warnAboutSimilarRules(ctx context.Context, detector *rules.DuplicationDetector, name string, formatter *output.Formatter) error {
	similar, err := detector.FindSimilarRules(ctx, name, similarityWarningThreshold)
	if err != nil {
		return err
	}
	if len(similar) == 0 {
		return nil
	}

	formatter.Warning("Similar rules already exist:")
	var existingNames []string
	for _, match := range similar {
		formatter.BulletItem(fmt.Sprintf("%s (%.0f%% similar)", match.Rule.Name, match.Similarity*100))
		existingNames = append(existingNames, match.Rule.Name)
	}

	suggestions := detector.GenerateNameSuggestions(name, existingNames)
	if len(suggestions) > 0 {
		formatter.Println("")
		formatter.Println("Alternative names:")
		for _, suggestion := range suggestions {
			formatter.BulletItem(suggestion)
		}
	}
	formatter.Println("")
	formatter.Println("Re-run with --force to create anyway.")
	return fmt.Errorf("similar rules exist for %q", name)
}

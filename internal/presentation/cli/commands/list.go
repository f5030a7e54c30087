package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/streakworks/chainrules/internal/domain/rule"
	"github.com/streakworks/chainrules/internal/presentation/cli/output"
)

// RuleInfo represents information about a rule for display.
type RuleInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	Scope       string `json:"scope"`
	ChainID     string `json:"chain_id,omitempty"`
	UsageCount  int    `json:"usage_count"`
}

// RuleListOutput represents the output for the list command.
type RuleListOutput struct {
	Rules []RuleInfo `json:"rules"`
	Count int        `json:"count"`
}

// NewListCmd creates the list command for displaying available rules.
func NewListCmd() *cobra.Command {
	var (
		format   string
		chainID  string
		ruleType string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active exception rules",
		Long: `Display the active exception rules.

Without flags every active rule is shown. Pass --chain and --type to see
the rules available to a specific task and action, chain-scoped rules
first.`,
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, format, chainID, ruleType)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: text, json, table (default: uses global --output flag)")
	cmd.Flags().StringVar(&chainID, "chain", "", "show rules available to this task")
	cmd.Flags().StringVarP(&ruleType, "type", "t", "", "filter by rule type: pause, early-completion")

	return cmd
}

func runList(cmd *cobra.Command, formatFlag, chainID, ruleType string) error {
	container, err := requireContainer()
	if err != nil {
		return err
	}

	format := output.FormatText
	if formatFlag != "" {
		parsedFormat, err := output.ParseFormat(formatFlag)
		if err != nil {
			return fmt.Errorf("invalid format: %s (valid options: text, json, table)", formatFlag)
		}
		format = parsedFormat
	} else if globalFlags.Output == "json" {
		format = output.FormatJSON
	} else if globalFlags.Output == "table" {
		format = output.FormatTable
	}

	formatter := output.NewFormatter(
		output.WithFormat(format),
		output.WithColor(format != output.FormatJSON),
	)

	ctx := cmd.Context()

	var listed []rule.Rule
	if chainID != "" {
		action := rule.TypePauseOnly
		if ruleType != "" {
			action, err = parseRuleType(ruleType)
			if err != nil {
				return err
			}
		}
		listed, err = container.Resolver().GetAvailableRules(ctx, chainID, action)
	} else {
		listed, err = container.Store().ListActive(ctx)
	}
	if err != nil {
		return err
	}

	infos := make([]RuleInfo, 0, len(listed))
	for _, r := range listed {
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

	if format == output.FormatJSON {
		return formatter.JSON(RuleListOutput{Rules: infos, Count: len(infos)})
	}
	return renderRulesTable(formatter, infos)
}

// renderRulesTable renders rules as a formatted table.
func renderRulesTable(formatter *output.Formatter, infos []RuleInfo) error {
	if len(infos) == 0 {
		formatter.Info("No rules found")
		formatter.Println("")
		formatter.Println("Run 'chainrules create <name>' to add one.")
		return nil
	}

	tableData := output.TableData{
		Columns: []output.TableColumn{
			{Header: "NAME", Width: 20, Align: output.AlignLeft},
			{Header: "TYPE", Width: 20, Align: output.AlignLeft},
			{Header: "SCOPE", Width: 8, Align: output.AlignLeft},
			{Header: "USES", Width: 5, Align: output.AlignRight},
			{Header: "ID", Width: 36, Align: output.AlignLeft},
		},
		Rows: make([][]string, 0, len(infos)),
	}

	for _, info := range infos {
		tableData.Rows = append(tableData.Rows, []string{
			truncateString(info.Name, 30),
			info.Type,
			info.Scope,
			strconv.Itoa(info.UsageCount),
			info.ID,
		})
	}

	formatter.Println("")
	formatter.Println("%s", formatter.Bold("Exception Rules"))
	formatter.Println("")

	if err := formatter.Table(tableData); err != nil {
		return err
	}

	formatter.Println("")
	formatter.Println("%s", formatter.Dim(fmt.Sprintf("Total: %d rule(s)", len(infos))))

	return nil
}

// truncateString truncates a string to the specified length with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

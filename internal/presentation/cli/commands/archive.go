package commands

import (
	"github.com/spf13/cobra"

	"github.com/streakworks/chainrules/internal/presentation/cli/output"
)

// NewArchiveCmd creates the archive command with its restore subcommand.
func NewArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <chain-id>",
		Short: "Archive the chain-scoped rules of a task",
		Long: `Archive every active rule scoped to the given task.

Archived rules stop appearing in listings and searches but keep their
usage history. Use 'chainrules archive restore <chain-id>' to bring
them back.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArchive(cmd, args[0], false)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "restore <chain-id>",
		Short: "Restore the archived rules of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArchive(cmd, args[0], true)
		},
	})

	return cmd
}

func runArchive(cmd *cobra.Command, chainID string, restore bool) error {
	container, err := requireContainer()
	if err != nil {
		return err
	}
	formatter := GetFormatter()
	ctx := cmd.Context()

	var count int
	if restore {
		count, err = container.Store().RestoreChainRules(ctx, chainID)
	} else {
		count, err = container.Store().ArchiveChainRules(ctx, chainID)
	}
	if err != nil {
		return reportFailure(ctx, container, err, formatter)
	}

	if formatter.Format() == output.FormatJSON {
		return formatter.JSON(map[string]any{"chain_id": chainID, "count": count, "restored": restore})
	}
	if restore {
		formatter.Success("Restored %d rule(s) for task %s", count, chainID)
	} else {
		formatter.Success("Archived %d rule(s) for task %s", count, chainID)
	}
	return nil
}

package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/streakworks/chainrules/internal/application"
	"github.com/streakworks/chainrules/internal/application/rules"
	"github.com/streakworks/chainrules/internal/domain/rule"
	"github.com/streakworks/chainrules/internal/presentation/cli/output"
)

// createShellInput builds the input for the shell's quick-create command,
// which always makes a global pause rule.
func createShellInput(name string) rules.CreateRuleInput {
	return rules.CreateRuleInput{
		Name: name,
		Type: rule.TypePauseOnly,
	}
}

// NewShellCmd creates the shell command, an interactive REPL over the rule
// engine.
func NewShellCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive shell",
		Long: `Start an interactive shell for working with rules.

Available commands:
  list                 list active rules
  search <query>       search rules by name
  create <name>        create a global pause rule
  delete <id>          deactivate a rule
  check                run an integrity scan
  fix                  repair auto-fixable issues
  resolve <id>         resolve a temporary rule ID
  help                 show this help
  exit                 leave the shell`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd.Context())
		},
	}

	return cmd
}

func runShell(ctx context.Context) error {
	container, err := requireContainer()
	if err != nil {
		return err
	}
	formatter := GetFormatter()

	formatter.Header("Chainrules Shell")
	formatter.Info("Type 'help' for commands, 'exit' to leave.")
	formatter.Println("")

	rl, err := readline.New("chainrules> ")
	if err != nil {
		return fmt.Errorf("could not create readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == io.EOF || err == readline.ErrInterrupt {
			break
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		command, rest := fields[0], strings.TrimSpace(strings.TrimPrefix(line, fields[0]))

		if command == "exit" || command == "quit" {
			break
		}
		if err := dispatchShellCommand(ctx, container, formatter, command, rest); err != nil {
			formatter.Error("%v", err)
		}
	}

	formatter.Println("Bye.")
	return nil
}

// dispatchShellCommand executes one shell command line.
func dispatchShellCommand(ctx context.Context, container *application.Container, formatter *output.Formatter, command, arg string) error {
	switch command {
	case "help":
		formatter.Println("Commands: list, search <query>, create <name>, delete <id>, check, fix, resolve <id>, exit")
		return nil

	case "list":
		active, err := container.Store().ListActive(ctx)
		if err != nil {
			return err
		}
		for _, r := range active {
			formatter.BulletItem(fmt.Sprintf("%s [%s/%s] %s", r.Name, r.Type, r.Scope, formatter.Dim(r.ID)))
		}
		if len(active) == 0 {
			formatter.Info("No active rules")
		}
		return nil

	case "search":
		matches, err := container.Store().Search(ctx, arg, nil)
		if err != nil {
			return err
		}
		for _, r := range matches {
			formatter.BulletItem(fmt.Sprintf("%s (%d uses) %s", r.Name, r.UsageCount, formatter.Dim(r.ID)))
		}
		if len(matches) == 0 {
			formatter.Info("No matches")
		}
		return nil

	case "create":
		if arg == "" {
			return fmt.Errorf("usage: create <name>")
		}
		created, err := container.Resolver().CreateGlobalRule(ctx, createShellInput(arg))
		if err != nil {
			return err
		}
		formatter.Success("Created %q (%s)", created.Name, created.ID)
		return nil

	case "delete":
		if arg == "" {
			return fmt.Errorf("usage: delete <id>")
		}
		if realID, ok := container.Reconciler().GetRealRuleID(arg); ok {
			arg = realID
		}
		if err := container.Store().DeleteRule(ctx, arg); err != nil {
			return err
		}
		formatter.Success("Deleted %s", arg)
		return nil

	case "check":
		report, err := container.Checker().Check(ctx)
		if err != nil {
			return err
		}
		if len(report.Issues) == 0 {
			formatter.Success("No integrity issues")
			return nil
		}
		for _, issue := range report.Issues {
			formatter.BulletItem(fmt.Sprintf("[%s/%s] %s", issue.Severity, issue.Kind, issue.Description))
		}
		return nil

	case "fix":
		report, err := container.Checker().Check(ctx)
		if err != nil {
			return err
		}
		results := container.Checker().AutoFixIssues(ctx, report.Issues)
		fixed := 0
		for _, result := range results {
			if result.Fixed {
				fixed++
			}
		}
		formatter.Success("Repaired %d issue(s)", fixed)
		return nil

	case "resolve":
		if arg == "" {
			return fmt.Errorf("usage: resolve <id>")
		}
		validation := container.Reconciler().ValidateRuleID(arg)
		if !validation.IsValid {
			return fmt.Errorf("invalid rule ID: %s", validation.Err)
		}
		if validation.IsTemporary {
			formatter.Item("Temporary", arg)
			formatter.Item("Resolves to", validation.RealID)
		} else {
			formatter.Item("Durable", arg)
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q (try 'help')", command)
	}
}

package commands

import (
	"context"

	"github.com/streakworks/chainrules/internal/application"
	"github.com/streakworks/chainrules/internal/presentation/cli/output"
)

// reportFailure runs a failed operation through the recovery coordinator and
// renders the outcome. The returned error is nil when recovery resolved the
// problem or handed the decision to the user.
func reportFailure(ctx context.Context, container *application.Container, failure error, formatter *output.Formatter) error {
	outcome, remaining := container.Coordinator().Recover(ctx, failure)

	if outcome.Resolved {
		formatter.Success("%s", outcome.Message)
		return nil
	}

	if outcome.Message != "" {
		formatter.Error("%s", outcome.Message)
	}
	for _, action := range outcome.Actions {
		formatter.BulletItem(action.Label + ": " + action.Description)
	}

	return remaining
}

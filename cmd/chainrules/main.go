// Chainrules CLI entry point
//
// Chainrules manages exception rules for tracked chain activities: rules
// that grant permission to pause an activity or complete it early without
// breaking the chain.
package main

import "github.com/streakworks/chainrules/internal/presentation/cli/commands"

func main() {
	commands.Execute()
}

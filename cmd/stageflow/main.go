// Command stageflow drives project stage transitions from the terminal.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "transition":
		err = runTransition(os.Args[2:])
	case "secrets":
		err = runSecrets(os.Args[2:])
	case "metrics":
		err = runMetrics(os.Args[2:])
	case "help", "-h", "-help", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command '%s'\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `stageflow - project stage transition workflow

Usage:
  stageflow transition -project <id> -stage <id> -reason <id> [options]
  stageflow secrets set <NAME>
  stageflow secrets list
  stageflow metrics [-config <file>] [-limit <n>]

Transition options:
  -config <file>          Configuration file (default: ./stageflow.yaml, ~/.config/stageflow/stageflow.yaml)
  -bundle <file>          Run offline against a YAML fixture instead of the HTTP backend
  -project <id>           Project to transition
  -stage <id>             Target stage
  -reason <id>            Change reason
  -notes <text>           Free-text notes recorded with the transition
  -field <id=value>       Custom field answer (repeatable; multi-select values separated by '|')
  -approval <id=value>    Approval checklist answer (repeatable)
  -file <path>            Attach a file (repeatable)
  -query <title>          Create a follow-up query after the commit (repeatable)
  -notify <action>        Notification step: send, suppress or skip (default: skip)
  -refine <instruction>   Ask the drafting provider to revise the notification first
  -audio <file>           Draft the notification from a recorded voice note
  -metrics                Print Prometheus metrics when done

Examples:
  stageflow transition -project p-42 -stage review -reason client_requested
  stageflow transition -bundle fixtures/atlas.yaml -project p-1 -stage approved -reason signed_off \
      -approval budget_ok=yes -notify send
  stageflow secrets set ANTHROPIC_API_KEY
`)
}

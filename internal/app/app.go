// Package app implements the storymill CLI commands.
package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "ingest":
		return runIngest(args[1:])
	case "moderate":
		return runModerate(args[1:])
	case "duplicates":
		return runDuplicates(args[1:])
	case "sweep":
		return runSweep(args[1:])
	case "queue":
		return runQueue(args[1:])
	case "stats":
		return runStats(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "storymill CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  storymill <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health      Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  ingest      Run one article payload through the full pipeline")
	fmt.Fprintln(os.Stderr, "  moderate    Discard or restore a topic article")
	fmt.Fprintln(os.Stderr, "  duplicates  List or resolve pending duplicate findings")
	fmt.Fprintln(os.Stderr, "  sweep       Recover stalled queue work and prune retention windows")
	fmt.Fprintln(os.Stderr, "  queue       Inspect the generation queue or requeue a failed item")
	fmt.Fprintln(os.Stderr, "  stats       Print pipeline counters")
	fmt.Fprintln(os.Stderr, "  serve       Start the Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"storymill <command> -h\" for command-specific flags.")
}

package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/storymill/storymill/internal/cli"
)

func runDuplicates(args []string) int {
	fs := flag.NewFlagSet("duplicates", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	limit := fs.Int("limit", 50, "Maximum findings to list")
	resolve := fs.String("resolve", "", "Duplicate finding UUID to resolve")
	resolution := fs.String("as", "", "Resolution: merged or ignored")
	timeout := fs.Duration("timeout", 30*time.Second, "Overall timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, err := newRuntime(ctx, envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer rt.close()

	detector := rt.newDetector()

	if uuid := strings.TrimSpace(*resolve); uuid != "" {
		if err := detector.Resolve(ctx, uuid, *resolution); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to resolve duplicate: %v\n", err)
			return 1
		}
		fmt.Printf("resolved %s as %s\n", uuid, strings.TrimSpace(*resolution))
		return 0
	}

	items, err := detector.ListPending(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list duplicates: %v\n", err)
		return 1
	}

	if err := printJSON(map[string]any{"duplicates": items, "count": len(items)}); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	return 0
}

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

func runQueue(args []string) int {
	fs := flag.NewFlagSet("queue", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	status := fs.String("status", "", "Filter by queue status (pending, processing, completed, failed)")
	limit := fs.Int("limit", 50, "Maximum items to list")
	requeue := fs.String("requeue", "", "Failed queue item UUID to return to pending")
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

	queueSvc := rt.newQueue()

	if uuid := strings.TrimSpace(*requeue); uuid != "" {
		if err := queueSvc.Requeue(ctx, uuid); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to requeue: %v\n", err)
			return 1
		}
		fmt.Printf("requeued %s\n", uuid)
		return 0
	}

	items, err := queueSvc.List(ctx, strings.TrimSpace(*status), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list queue items: %v\n", err)
		return 1
	}

	if err := printJSON(map[string]any{"items": items, "count": len(items)}); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	return 0
}

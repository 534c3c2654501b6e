package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/storymill/storymill/internal/cli"
)

func runSweep(args []string) int {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	daemon := fs.Bool("daemon", false, "Keep running on the configured cron schedule")
	timeout := fs.Duration("timeout", 2*time.Minute, "Timeout for a single sweep pass")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	rt, err := newRuntime(context.Background(), envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer rt.close()

	sweeper := rt.newSweeper()

	runOnce := func() (int, error) {
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()

		report, runErr := sweeper.Run(ctx)
		if runErr != nil {
			return 1, runErr
		}
		return 0, printJSON(report)
	}

	if !*daemon {
		code, runErr := runOnce()
		if runErr != nil {
			rt.logger.Error().Err(runErr).Msg("sweep failed")
			fmt.Fprintf(os.Stderr, "Sweep failed: %v\n", runErr)
		}
		return code
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(rt.cfg.SweepCron, func() {
		if _, runErr := runOnce(); runErr != nil {
			rt.logger.Error().Err(runErr).Msg("scheduled sweep failed")
		}
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid sweep schedule %q: %v\n", rt.cfg.SweepCron, err)
		return 2
	}
	scheduler.Start()

	rt.logger.Info().Str("schedule", rt.cfg.SweepCron).Msg("sweep daemon started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	rt.logger.Info().Msg("sweep daemon stopped")
	return 0
}

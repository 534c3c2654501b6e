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
	"github.com/storymill/storymill/internal/gate"
	"github.com/storymill/storymill/internal/pipeline"
)

func runModerate(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: storymill moderate discard|restore <topic-article-uuid> [flags]")
		return 2
	}

	action := strings.ToLower(strings.TrimSpace(args[0]))
	if action != "discard" && action != "restore" {
		fmt.Fprintf(os.Stderr, "unknown moderate action: %s\n", args[0])
		return 2
	}

	fs := flag.NewFlagSet("moderate "+action, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	reason := fs.String("reason", "", "Moderation reason")
	moderator := fs.String("moderator", "", "Moderator identity recorded in the suppression ledger")
	clearLedger := fs.Bool("clear-ledger", false, "Remove the suppression entry before restoring")
	timeout := fs.Duration("timeout", 30*time.Second, "Overall timeout")

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	uuid := strings.TrimSpace(fs.Arg(0))
	if uuid == "" {
		fmt.Fprintln(os.Stderr, "topic article UUID is required")
		return 2
	}
	if action == "discard" && strings.TrimSpace(*reason) == "" {
		fmt.Fprintln(os.Stderr, "--reason is required for discard")
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

	if action == "restore" && *clearLedger {
		if err := clearLedgerForArticle(ctx, rt, uuid); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to clear suppression entry: %v\n", err)
			return 1
		}
	}

	newStatus := gate.StatusDiscarded
	if action == "restore" {
		newStatus = gate.StatusNew
	}

	req := pipeline.TransitionRequest{
		NewStatus: newStatus,
		Reason:    strings.TrimSpace(*reason),
	}
	if actor := strings.TrimSpace(*moderator); actor != "" {
		req.Actor = &actor
	}

	result, err := rt.newPipeline().SetStatus(ctx, uuid, req)
	if err != nil {
		rt.logger.Error().Err(err).Str("topic_article_uuid", uuid).Msg("moderation failed")
		fmt.Fprintf(os.Stderr, "Moderation failed: %v\n", err)
		return 1
	}

	if result.Vetoed {
		fmt.Fprintln(os.Stderr, "restore vetoed: article is in the suppression ledger (use --clear-ledger to override)")
		return 1
	}

	if err := printJSON(result); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	return 0
}

func clearLedgerForArticle(ctx context.Context, rt *runtime, topicArticleUUID string) error {
	var (
		topicID       int
		normalizedURL string
	)
	err := rt.pool.QueryRow(ctx, `
		SELECT ta.topic_id, sac.normalized_url
		FROM mill.topic_articles ta
		JOIN mill.shared_article_content sac ON sac.content_id = ta.content_id
		WHERE ta.topic_article_uuid = $1`,
		topicArticleUUID,
	).Scan(&topicID, &normalizedURL)
	if err != nil {
		return fmt.Errorf("lookup article: %w", err)
	}

	removed, err := rt.newLedger().Remove(ctx, topicID, normalizedURL)
	if err != nil {
		return err
	}
	if removed {
		rt.logger.Info().
			Str("topic_article_uuid", topicArticleUUID).
			Str("normalized_url", normalizedURL).
			Msg("suppression entry removed")
	}
	return nil
}

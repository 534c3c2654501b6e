// Package sweep runs the periodic maintenance pass: stalled generation
// work is recovered, exhausted failures are purged and the suppression
// ledger is pruned to its retention window.
package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/storymill/storymill/internal/db"
	"github.com/storymill/storymill/internal/globaltime"
	"github.com/storymill/storymill/internal/metrics"
	"github.com/storymill/storymill/internal/queue"
	"github.com/storymill/storymill/internal/suppress"
)

// Options are the sweep retention windows resolved from config.
type Options struct {
	StaleAfter      time.Duration
	FailedRetention time.Duration
	LedgerRetention time.Duration
}

type Sweeper struct {
	pool   *db.Pool
	logger zerolog.Logger
	ledger *suppress.Ledger
	opts   Options
}

func NewSweeper(pool *db.Pool, logger zerolog.Logger, ledger *suppress.Ledger, opts Options) *Sweeper {
	return &Sweeper{
		pool:   pool,
		logger: logger,
		ledger: ledger,
		opts:   opts,
	}
}

// Report summarizes one sweep pass.
type Report struct {
	RanAt           time.Time `json:"ran_at"`
	StalledRequeued int64     `json:"stalled_requeued"`
	StalledFailed   int64     `json:"stalled_failed"`
	FailedPurged    int64     `json:"failed_purged"`
	LedgerPurged    int64     `json:"ledger_purged"`
}

// Run executes every sweep stage. A failing stage aborts the pass so
// partial reports never hide an error.
func (s *Sweeper) Run(ctx context.Context) (*Report, error) {
	now := globaltime.UTC()
	report := &Report{RanAt: now}

	requeued, failed, err := s.recoverStalled(ctx, now)
	if err != nil {
		return nil, err
	}
	report.StalledRequeued = requeued
	report.StalledFailed = failed

	purged, err := s.purgeFailed(ctx, now)
	if err != nil {
		return nil, err
	}
	report.FailedPurged = purged

	ledgerPurged, err := s.ledger.CleanupBefore(ctx, now.Add(-s.opts.LedgerRetention))
	if err != nil {
		return nil, err
	}
	report.LedgerPurged = ledgerPurged

	s.logger.Info().
		Int64("stalled_requeued", report.StalledRequeued).
		Int64("stalled_failed", report.StalledFailed).
		Int64("failed_purged", report.FailedPurged).
		Int64("ledger_purged", report.LedgerPurged).
		Msg("sweep pass complete")

	if report.StalledRequeued+report.StalledFailed+report.FailedPurged+report.LedgerPurged > 0 {
		s.logEvent(ctx, "info", "sweep recovered pipeline state", "Run", map[string]any{
			"stalled_requeued": report.StalledRequeued,
			"stalled_failed":   report.StalledFailed,
			"failed_purged":    report.FailedPurged,
			"ledger_purged":    report.LedgerPurged,
		})
	}

	return report, nil
}

// recoverStalled returns processing items whose worker went silent to the
// pending state, or fails them outright when attempts are exhausted. The
// updated_at guard keeps actively worked items untouched.
func (s *Sweeper) recoverStalled(ctx context.Context, now time.Time) (requeued int64, failed int64, err error) {
	cutoff := now.Add(-s.opts.StaleAfter)

	tag, err := s.pool.Exec(ctx, `
		UPDATE mill.content_generation_queue
		SET status = $1, updated_at = $2
		WHERE status = $3
		  AND updated_at < $4
		  AND attempts < max_attempts`,
		queue.StatusPending, now, queue.StatusProcessing, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("requeue stalled items: %w", err)
	}
	requeued = tag.RowsAffected()

	tag, err = s.pool.Exec(ctx, `
		UPDATE mill.content_generation_queue
		SET status = $1, updated_at = $2, error_message = $3
		WHERE status = $4
		  AND updated_at < $5
		  AND attempts >= max_attempts`,
		queue.StatusFailed, now, "stalled with no attempts remaining", queue.StatusProcessing, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("fail stalled items: %w", err)
	}
	failed = tag.RowsAffected()

	if total := requeued + failed; total > 0 {
		metrics.StalledQueueResets.Add(float64(total))
	}
	return requeued, failed, nil
}

// purgeFailed deletes failed items past the retention window. Failed rows
// are kept for a while so operators can inspect error messages.
func (s *Sweeper) purgeFailed(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.opts.FailedRetention)

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM mill.content_generation_queue
		WHERE status = $1
		  AND updated_at < $2`,
		queue.StatusFailed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge failed items: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Sweeper) logEvent(ctx context.Context, level, message, functionName string, eventContext map[string]any) {
	if err := db.InsertPipelineEvent(ctx, s.pool, level, message, functionName, eventContext); err != nil {
		s.logger.Error().Err(err).Str("event_message", message).Msg("failed to record pipeline event")
	}
}

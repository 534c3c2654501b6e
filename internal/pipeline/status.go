// Package pipeline drives topic articles through the processing state
// machine and runs the trigger-style side effects that hang off status
// transitions: suppression ledger upserts, the reactivation veto and
// generation queue population.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/storymill/storymill/internal/db"
	"github.com/storymill/storymill/internal/gate"
	"github.com/storymill/storymill/internal/globaltime"
	"github.com/storymill/storymill/internal/metrics"
	"github.com/storymill/storymill/internal/queue"
	"github.com/storymill/storymill/internal/suppress"
)

// Options carries the pipeline tunables resolved from config.
type Options struct {
	Thresholds             gate.Thresholds
	QueueMinQualityScore   int
	QueueMinRelevanceScore int
	QueueDefaults          queue.GenerationDefaults
}

type Service struct {
	pool   *db.Pool
	logger zerolog.Logger
	opts   Options
}

func NewService(pool *db.Pool, logger zerolog.Logger, opts Options) *Service {
	return &Service{
		pool:   pool,
		logger: logger,
		opts:   opts,
	}
}

// TransitionRequest describes one status change command.
type TransitionRequest struct {
	NewStatus string
	Reason    string
	// Actor is nil for system transitions and carries the moderator
	// identity for human ones.
	Actor *string
	// MetadataPatch, when set, replaces import_metadata. Callers build it
	// additively (see gate.AppendRejection) so prior metadata survives.
	MetadataPatch json.RawMessage
}

// TransitionResult reports what actually happened; Vetoed means the
// suppression ledger forced the article back to discarded.
type TransitionResult struct {
	TopicArticleID   int64
	PreviousStatus   string
	Status           string
	Vetoed           bool
	QueueItemCreated bool
}

type articleRow struct {
	TopicArticleID         int64
	TopicID                int
	ProcessingStatus       string
	RegionalRelevanceScore *int
	ContentQualityScore    *int
	NormalizedURL          string
	Title                  string
	SlideType              *string
	Tone                   *string
	WritingStyle           *string
	AudienceExpertise      *string
	AIProvider             *string
}

func validStatus(status string) bool {
	switch status {
	case gate.StatusNew, gate.StatusProcessed, gate.StatusDiscarded:
		return true
	}
	return false
}

// SetStatus applies one state machine transition with all of its side
// effects in a single transaction. The row is locked for the duration so
// concurrent scraper updates serialize per article.
func (s *Service) SetStatus(ctx context.Context, topicArticleUUID string, req TransitionRequest) (*TransitionResult, error) {
	uuid := strings.TrimSpace(topicArticleUUID)
	if uuid == "" {
		return nil, fmt.Errorf("topic article UUID is required")
	}
	newStatus := strings.ToLower(strings.TrimSpace(req.NewStatus))
	if !validStatus(newStatus) {
		return nil, fmt.Errorf("invalid processing status %q", req.NewStatus)
	}
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("pipeline service is not initialized")
	}

	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin status tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	row, err := lockArticleTx(ctx, tx, uuid)
	if err != nil {
		return nil, err
	}

	result, err := s.transitionTx(ctx, tx, row, req, newStatus)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit status tx: %w", err)
	}
	return result, nil
}

func (s *Service) transitionTx(ctx context.Context, tx db.Tx, row articleRow, req TransitionRequest, newStatus string) (*TransitionResult, error) {
	now := globaltime.UTC()
	result := &TransitionResult{
		TopicArticleID: row.TopicArticleID,
		PreviousStatus: row.ProcessingStatus,
		Status:         newStatus,
	}

	if row.ProcessingStatus == newStatus {
		result.Status = row.ProcessingStatus
		return result, nil
	}

	// Reactivation veto: once suppressed, a URL stays discarded until the
	// ledger entry is removed. The caller sees no error; this is policy,
	// not a caller mistake.
	if row.ProcessingStatus == gate.StatusDiscarded {
		suppressed, err := suppress.IsSuppressedTx(ctx, tx, row.TopicID, row.NormalizedURL)
		if err != nil {
			return nil, err
		}
		if suppressed {
			result.Status = gate.StatusDiscarded
			result.Vetoed = true
			s.logEventTx(ctx, tx, "warn", "reactivation prevented by suppression ledger", "transitionTx", map[string]any{
				"topic_article_id": row.TopicArticleID,
				"topic_id":         row.TopicID,
				"normalized_url":   row.NormalizedURL,
				"requested_status": newStatus,
			})
			metrics.ReactivationsPrevented.Inc()
			s.logger.Warn().
				Int64("topic_article_id", row.TopicArticleID).
				Str("normalized_url", row.NormalizedURL).
				Str("requested_status", newStatus).
				Msg("reactivation vetoed")
			return result, nil
		}
	}

	if err := updateStatusTx(ctx, tx, row.TopicArticleID, newStatus, req.Reason, req.MetadataPatch, now); err != nil {
		return nil, err
	}

	if newStatus == gate.StatusDiscarded {
		if err := suppress.DiscardTx(ctx, tx, row.TopicID, row.NormalizedURL, row.Title, req.Reason, req.Actor, now); err != nil {
			return nil, err
		}
		s.logEventTx(ctx, tx, "info", "article auto-suppressed on discard", "transitionTx", map[string]any{
			"topic_article_id": row.TopicArticleID,
			"topic_id":         row.TopicID,
			"normalized_url":   row.NormalizedURL,
			"discard_reason":   req.Reason,
			"discarded_by":     req.Actor,
		})
		metrics.ArticlesDiscarded.Inc()
	}

	if newStatus == gate.StatusProcessed {
		created, err := s.populateQueueTx(ctx, tx, row, now)
		if err != nil {
			return nil, err
		}
		result.QueueItemCreated = created
	}

	return result, nil
}

// populateQueueTx enqueues generation work when the article clears both
// score floors. Returning false is not an error; the article stays
// processed and can be requeued once its scores improve.
func (s *Service) populateQueueTx(ctx context.Context, tx db.Tx, row articleRow, now time.Time) (bool, error) {
	if row.ContentQualityScore == nil || *row.ContentQualityScore < s.opts.QueueMinQualityScore {
		return false, nil
	}
	if row.RegionalRelevanceScore == nil || *row.RegionalRelevanceScore < s.opts.QueueMinRelevanceScore {
		return false, nil
	}

	params := s.opts.QueueDefaults.Resolve(queue.TopicOverrides{
		SlideType:         row.SlideType,
		Tone:              row.Tone,
		WritingStyle:      row.WritingStyle,
		AudienceExpertise: row.AudienceExpertise,
		AIProvider:        row.AIProvider,
	})

	created, err := queue.PopulateTx(ctx, tx, row.TopicArticleID, params, now)
	if err != nil {
		return false, err
	}
	if created {
		s.logEventTx(ctx, tx, "info", "generation queue item created", "populateQueueTx", map[string]any{
			"topic_article_id": row.TopicArticleID,
			"topic_id":         row.TopicID,
			"quality_score":    *row.ContentQualityScore,
			"relevance_score":  *row.RegionalRelevanceScore,
		})
		metrics.QueueItemsPopulated.Inc()
	}
	return created, nil
}

// lockArticleTx loads the transition inputs with a row lock so a
// concurrent command on the same article waits for this one.
func lockArticleTx(ctx context.Context, tx db.Tx, topicArticleUUID string) (articleRow, error) {
	var row articleRow
	err := tx.QueryRow(ctx, `
		SELECT ta.topic_article_id,
		       ta.topic_id,
		       ta.processing_status,
		       ta.regional_relevance_score,
		       ta.content_quality_score,
		       sac.normalized_url,
		       sac.title,
		       t.slide_type,
		       t.tone,
		       t.writing_style,
		       t.audience_expertise,
		       t.ai_provider
		FROM mill.topic_articles ta
		JOIN mill.shared_article_content sac ON sac.content_id = ta.content_id
		JOIN mill.topics t ON t.topic_id = ta.topic_id
		WHERE ta.topic_article_uuid = $1
		FOR UPDATE OF ta`,
		topicArticleUUID,
	).Scan(
		&row.TopicArticleID,
		&row.TopicID,
		&row.ProcessingStatus,
		&row.RegionalRelevanceScore,
		&row.ContentQualityScore,
		&row.NormalizedURL,
		&row.Title,
		&row.SlideType,
		&row.Tone,
		&row.WritingStyle,
		&row.AudienceExpertise,
		&row.AIProvider,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return row, fmt.Errorf("topic article %s not found", topicArticleUUID)
		}
		return row, fmt.Errorf("lock topic article %s: %w", topicArticleUUID, err)
	}
	return row, nil
}

func updateStatusTx(ctx context.Context, tx db.Tx, topicArticleID int64, newStatus, reason string, metadataPatch json.RawMessage, now time.Time) error {
	var discardReason *string
	if newStatus == gate.StatusDiscarded && strings.TrimSpace(reason) != "" {
		r := strings.TrimSpace(reason)
		discardReason = &r
	}

	var err error
	if metadataPatch != nil {
		_, err = tx.Exec(ctx, `
			UPDATE mill.topic_articles
			SET processing_status = $2,
			    discard_reason = $3,
			    import_metadata = $4,
			    updated_at = $5
			WHERE topic_article_id = $1`,
			topicArticleID, newStatus, discardReason, string(metadataPatch), now)
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE mill.topic_articles
			SET processing_status = $2,
			    discard_reason = $3,
			    updated_at = $4
			WHERE topic_article_id = $1`,
			topicArticleID, newStatus, discardReason, now)
	}
	if err != nil {
		return fmt.Errorf("update status of topic article %d: %w", topicArticleID, err)
	}
	return nil
}

// logEventTx writes an audit event inside the transition transaction.
// Event failures are logged but never abort the transition itself.
func (s *Service) logEventTx(ctx context.Context, tx db.Tx, level, message, functionName string, eventContext map[string]any) {
	if err := db.InsertPipelineEvent(ctx, tx, level, message, functionName, eventContext); err != nil {
		s.logger.Error().Err(err).Str("event_message", message).Msg("failed to record pipeline event")
	}
}

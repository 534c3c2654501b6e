// Package queue manages the content generation work queue that feeds the
// external story generation worker.
package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/storymill/storymill/internal/db"
	"github.com/storymill/storymill/internal/globaltime"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

const maxErrorMessageLength = 4000

// GenerationDefaults are the parameters stamped onto new queue items. Topic
// overrides win over these global defaults.
type GenerationDefaults struct {
	SlideType         string
	Tone              string
	WritingStyle      string
	AudienceExpertise string
	AIProvider        string
	MaxAttempts       int
}

// TopicOverrides carries optional per-topic generation parameters.
type TopicOverrides struct {
	SlideType         *string
	Tone              *string
	WritingStyle      *string
	AudienceExpertise *string
	AIProvider        *string
}

// Resolve merges topic overrides over the global defaults.
func (d GenerationDefaults) Resolve(overrides TopicOverrides) GenerationDefaults {
	resolved := d
	if v := deref(overrides.SlideType); v != "" {
		resolved.SlideType = v
	}
	if v := deref(overrides.Tone); v != "" {
		resolved.Tone = v
	}
	if v := deref(overrides.WritingStyle); v != "" {
		resolved.WritingStyle = v
	}
	if v := deref(overrides.AudienceExpertise); v != "" {
		resolved.AudienceExpertise = v
	}
	if v := deref(overrides.AIProvider); v != "" {
		resolved.AIProvider = v
	}
	return resolved
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

type Service struct {
	pool   *db.Pool
	logger zerolog.Logger
}

func NewService(pool *db.Pool, logger zerolog.Logger) *Service {
	return &Service{
		pool:   pool,
		logger: logger,
	}
}

// PopulateTx inserts a queue item for a topic article. Idempotency is
// enforced by the partial unique index on (topic_article_id) for live
// statuses, so a concurrent double-fire degrades to a no-op instead of a
// duplicate generation job.
func PopulateTx(ctx context.Context, execer db.Execer, topicArticleID int64, params GenerationDefaults, now time.Time) (bool, error) {
	const q = `
INSERT INTO mill.content_generation_queue (
	topic_article_id,
	status,
	attempts,
	max_attempts,
	slide_type,
	tone,
	writing_style,
	audience_expertise,
	ai_provider,
	created_at,
	updated_at
)
VALUES ($1, 'pending', 0, $2, $3, $4, $5, $6, $7, $8, $8)
ON CONFLICT (topic_article_id) WHERE status IN ('pending', 'processing') DO NOTHING
`

	tag, err := execer.Exec(
		ctx,
		q,
		topicArticleID,
		params.MaxAttempts,
		params.SlideType,
		params.Tone,
		params.WritingStyle,
		params.AudienceExpertise,
		params.AIProvider,
		now.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("insert generation queue item: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Item is a claimed or listed queue row.
type Item struct {
	QueueItemID       int64      `json:"queue_item_id"`
	QueueItemUUID     string     `json:"queue_item_uuid"`
	TopicArticleID    int64      `json:"topic_article_id"`
	TopicArticleUUID  string     `json:"topic_article_uuid"`
	Status            string     `json:"status"`
	Attempts          int        `json:"attempts"`
	MaxAttempts       int        `json:"max_attempts"`
	ErrorMessage      *string    `json:"error_message,omitempty"`
	SlideType         string     `json:"slide_type"`
	Tone              string     `json:"tone"`
	WritingStyle      string     `json:"writing_style"`
	AudienceExpertise string     `json:"audience_expertise"`
	AIProvider        string     `json:"ai_provider"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// Claim moves the oldest pending item to processing and returns it. Safe
// under concurrent workers via FOR UPDATE SKIP LOCKED. Returns nil when the
// queue is empty.
func (s *Service) Claim(ctx context.Context) (*Item, error) {
	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const selectQ = `
SELECT q.queue_item_id
FROM mill.content_generation_queue q
WHERE q.status = 'pending'
ORDER BY q.queue_item_id
LIMIT 1
FOR UPDATE SKIP LOCKED
`

	var queueItemID int64
	if err := tx.QueryRow(ctx, selectQ).Scan(&queueItemID); err != nil {
		if db.IsNoRows(err) {
			if commitErr := tx.Commit(ctx); commitErr != nil {
				return nil, fmt.Errorf("commit empty claim tx: %w", commitErr)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("select pending queue item: %w", err)
	}

	now := globaltime.UTC()
	const updateQ = `
UPDATE mill.content_generation_queue q
SET
	status = 'processing',
	attempts = q.attempts + 1,
	started_at = $2,
	updated_at = $2
FROM mill.topic_articles ta
WHERE q.queue_item_id = $1
  AND ta.topic_article_id = q.topic_article_id
RETURNING
	q.queue_item_id,
	q.queue_item_uuid::text,
	q.topic_article_id,
	ta.topic_article_uuid::text,
	q.status,
	q.attempts,
	q.max_attempts,
	q.error_message,
	q.slide_type,
	q.tone,
	q.writing_style,
	q.audience_expertise,
	q.ai_provider,
	q.created_at,
	q.started_at,
	q.completed_at
`

	var item Item
	if err := tx.QueryRow(ctx, updateQ, queueItemID, now).Scan(
		&item.QueueItemID,
		&item.QueueItemUUID,
		&item.TopicArticleID,
		&item.TopicArticleUUID,
		&item.Status,
		&item.Attempts,
		&item.MaxAttempts,
		&item.ErrorMessage,
		&item.SlideType,
		&item.Tone,
		&item.WritingStyle,
		&item.AudienceExpertise,
		&item.AIProvider,
		&item.CreatedAt,
		&item.StartedAt,
		&item.CompletedAt,
	); err != nil {
		return nil, fmt.Errorf("claim queue item %d: %w", queueItemID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}

	s.logger.Info().
		Int64("queue_item_id", item.QueueItemID).
		Int("attempt", item.Attempts).
		Msg("queue item claimed")
	return &item, nil
}

// Complete marks a processing item completed.
func (s *Service) Complete(ctx context.Context, queueItemUUID string) error {
	uuid := strings.TrimSpace(queueItemUUID)
	if uuid == "" {
		return fmt.Errorf("queue item UUID is required")
	}

	now := globaltime.UTC()
	const q = `
UPDATE mill.content_generation_queue
SET
	status = 'completed',
	completed_at = $2,
	updated_at = $2,
	error_message = NULL
WHERE queue_item_uuid = $1::uuid
  AND status = 'processing'
`
	tag, err := s.pool.Exec(ctx, q, uuid, now)
	if err != nil {
		return fmt.Errorf("complete queue item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNoRows
	}
	return nil
}

// Fail records a generation failure. Items with attempts left go back to
// pending; exhausted items become terminal failed.
func (s *Service) Fail(ctx context.Context, queueItemUUID, errorMessage string) (string, error) {
	uuid := strings.TrimSpace(queueItemUUID)
	if uuid == "" {
		return "", fmt.Errorf("queue item UUID is required")
	}

	message := strings.TrimSpace(errorMessage)
	if len(message) > maxErrorMessageLength {
		message = message[:maxErrorMessageLength]
	}

	now := globaltime.UTC()
	const q = `
UPDATE mill.content_generation_queue
SET
	status = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
	error_message = $2,
	started_at = NULL,
	updated_at = $3
WHERE queue_item_uuid = $1::uuid
  AND status = 'processing'
RETURNING status
`

	var status string
	if err := s.pool.QueryRow(ctx, q, uuid, message, now).Scan(&status); err != nil {
		if db.IsNoRows(err) {
			return "", db.ErrNoRows
		}
		return "", fmt.Errorf("fail queue item: %w", err)
	}

	s.logger.Warn().
		Str("queue_item_uuid", uuid).
		Str("status", status).
		Str("error", message).
		Msg("queue item failed")
	return status, nil
}

// Requeue resets a terminal failed item to pending with a clean attempt
// counter. Manual operator action only.
func (s *Service) Requeue(ctx context.Context, queueItemUUID string) error {
	uuid := strings.TrimSpace(queueItemUUID)
	if uuid == "" {
		return fmt.Errorf("queue item UUID is required")
	}

	now := globaltime.UTC()
	const q = `
UPDATE mill.content_generation_queue
SET
	status = 'pending',
	attempts = 0,
	error_message = NULL,
	started_at = NULL,
	completed_at = NULL,
	updated_at = $2
WHERE queue_item_uuid = $1::uuid
  AND status = 'failed'
`
	tag, err := s.pool.Exec(ctx, q, uuid, now)
	if err != nil {
		return fmt.Errorf("requeue queue item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNoRows
	}
	return nil
}

// List returns queue items, newest first, optionally filtered by status.
func (s *Service) List(ctx context.Context, status string, limit int) ([]Item, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT
	q.queue_item_id,
	q.queue_item_uuid::text,
	q.topic_article_id,
	ta.topic_article_uuid::text,
	q.status,
	q.attempts,
	q.max_attempts,
	q.error_message,
	q.slide_type,
	q.tone,
	q.writing_style,
	q.audience_expertise,
	q.ai_provider,
	q.created_at,
	q.started_at,
	q.completed_at
FROM mill.content_generation_queue q
JOIN mill.topic_articles ta ON ta.topic_article_id = q.topic_article_id
WHERE ($1 = '' OR q.status = $1)
ORDER BY q.queue_item_id DESC
LIMIT $2
`

	rows, err := s.pool.Query(ctx, q, strings.ToLower(strings.TrimSpace(status)), limit)
	if err != nil {
		return nil, fmt.Errorf("query queue items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0, limit)
	for rows.Next() {
		var item Item
		if err := rows.Scan(
			&item.QueueItemID,
			&item.QueueItemUUID,
			&item.TopicArticleID,
			&item.TopicArticleUUID,
			&item.Status,
			&item.Attempts,
			&item.MaxAttempts,
			&item.ErrorMessage,
			&item.SlideType,
			&item.Tone,
			&item.WritingStyle,
			&item.AudienceExpertise,
			&item.AIProvider,
			&item.CreatedAt,
			&item.StartedAt,
			&item.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan queue item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue item rows: %w", err)
	}

	return items, nil
}

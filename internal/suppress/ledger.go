// Package suppress maintains the durable discard memory: once a URL has been
// discarded for a topic, re-scraped copies stay discarded until the ledger
// entry is deleted.
package suppress

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/storymill/storymill/internal/db"
)

type Ledger struct {
	pool   *db.Pool
	logger zerolog.Logger
}

// Entry describes one suppressed URL for a topic.
type Entry struct {
	TopicID         int        `json:"topic_id"`
	NormalizedURL   string     `json:"normalized_url"`
	Title           *string    `json:"title,omitempty"`
	DiscardedBy     *string    `json:"discarded_by,omitempty"`
	DiscardedReason *string    `json:"discarded_reason,omitempty"`
	DiscardedAt     time.Time  `json:"discarded_at"`
}

func NewLedger(pool *db.Pool, logger zerolog.Logger) *Ledger {
	return &Ledger{
		pool:   pool,
		logger: logger,
	}
}

// Discard upserts a ledger row. A repeat discard of the same (topic, url)
// refreshes discarded_at, reason and actor instead of duplicating.
func (l *Ledger) Discard(ctx context.Context, topicID int, normalizedURL, title, reason string, discardedBy *string, now time.Time) error {
	return DiscardTx(ctx, l.pool, topicID, normalizedURL, title, reason, discardedBy, now)
}

// DiscardTx is the transactional variant used by status-transition handlers.
func DiscardTx(ctx context.Context, execer db.Execer, topicID int, normalizedURL, title, reason string, discardedBy *string, now time.Time) error {
	url := strings.TrimSpace(normalizedURL)
	if url == "" {
		return fmt.Errorf("normalized URL is required")
	}

	const q = `
INSERT INTO mill.discarded_articles (
	topic_id,
	normalized_url,
	title,
	discarded_by,
	discarded_reason,
	discarded_at
)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (topic_id, normalized_url) DO UPDATE
SET
	title = COALESCE(EXCLUDED.title, mill.discarded_articles.title),
	discarded_by = EXCLUDED.discarded_by,
	discarded_reason = EXCLUDED.discarded_reason,
	discarded_at = EXCLUDED.discarded_at
`

	if _, err := execer.Exec(ctx, q, topicID, url, nullableString(title), discardedBy, nullableString(reason), now.UTC()); err != nil {
		return fmt.Errorf("upsert suppression ledger: %w", err)
	}
	return nil
}

// IsSuppressed checks whether a (topic, url) pair is in the ledger.
func (l *Ledger) IsSuppressed(ctx context.Context, topicID int, normalizedURL string) (bool, error) {
	return isSuppressed(ctx, l.pool, topicID, normalizedURL)
}

// IsSuppressedTx is the transactional variant used by the reactivation veto.
func IsSuppressedTx(ctx context.Context, tx db.Tx, topicID int, normalizedURL string) (bool, error) {
	return isSuppressed(ctx, tx, topicID, normalizedURL)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, query string, args ...any) db.Row
}

func isSuppressed(ctx context.Context, querier rowQuerier, topicID int, normalizedURL string) (bool, error) {
	url := strings.TrimSpace(normalizedURL)
	if url == "" {
		return false, nil
	}

	const q = `
SELECT EXISTS (
	SELECT 1
	FROM mill.discarded_articles d
	WHERE d.topic_id = $1
	  AND d.normalized_url = $2
)
`

	var suppressed bool
	if err := querier.QueryRow(ctx, q, topicID, url).Scan(&suppressed); err != nil {
		return false, fmt.Errorf("check suppression ledger: %w", err)
	}
	return suppressed, nil
}

// Remove deletes a ledger entry. This is the only way a suppressed URL can
// be revived.
func (l *Ledger) Remove(ctx context.Context, topicID int, normalizedURL string) (bool, error) {
	url := strings.TrimSpace(normalizedURL)
	if url == "" {
		return false, fmt.Errorf("normalized URL is required")
	}

	const q = `
DELETE FROM mill.discarded_articles
WHERE topic_id = $1
  AND normalized_url = $2
`
	tag, err := l.pool.Exec(ctx, q, topicID, url)
	if err != nil {
		return false, fmt.Errorf("delete suppression ledger entry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CleanupBefore deletes ledger entries older than the retention cutoff and
// returns the count removed.
func (l *Ledger) CleanupBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `
DELETE FROM mill.discarded_articles
WHERE discarded_at < $1
`
	tag, err := l.pool.Exec(ctx, q, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup suppression ledger: %w", err)
	}

	removed := tag.RowsAffected()
	if removed > 0 {
		l.logger.Info().
			Int64("removed", removed).
			Time("cutoff", cutoff.UTC()).
			Msg("suppression ledger cleanup")
	}
	return removed, nil
}

// List returns the newest ledger entries for a topic.
func (l *Ledger) List(ctx context.Context, topicID int, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT
	d.topic_id,
	d.normalized_url,
	d.title,
	d.discarded_by,
	d.discarded_reason,
	d.discarded_at
FROM mill.discarded_articles d
WHERE d.topic_id = $1
ORDER BY d.discarded_at DESC
LIMIT $2
`

	rows, err := l.pool.Query(ctx, q, topicID, limit)
	if err != nil {
		return nil, fmt.Errorf("query suppression ledger: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(
			&entry.TopicID,
			&entry.NormalizedURL,
			&entry.Title,
			&entry.DiscardedBy,
			&entry.DiscardedReason,
			&entry.DiscardedAt,
		); err != nil {
			return nil, fmt.Errorf("scan suppression ledger row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suppression ledger rows: %w", err)
	}

	return entries, nil
}

func nullableString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

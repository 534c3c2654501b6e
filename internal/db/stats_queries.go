package db

import (
	"context"
	"fmt"
	"time"
)

// PipelineStats aggregates pipeline-wide counters for the stats command and
// the HTTP API.
type PipelineStats struct {
	Topics             int64            `json:"topics"`
	Sources            int64            `json:"sources"`
	SharedContent      int64            `json:"shared_content"`
	TopicArticles      int64            `json:"topic_articles"`
	ArticlesByStatus   map[string]int64 `json:"articles_by_status"`
	SuppressedURLs     int64            `json:"suppressed_urls"`
	PendingDuplicates  int64            `json:"pending_duplicates"`
	QueueByStatus      map[string]int64 `json:"queue_by_status"`
	LastArticleAt      *time.Time       `json:"last_article_at,omitempty"`
	LastQueueActivity  *time.Time       `json:"last_queue_activity,omitempty"`
	LastPipelineEvent  *time.Time       `json:"last_pipeline_event,omitempty"`
}

// GetPipelineStats collects the aggregate counters in one round trip per
// grouped query.
func (p *Pool) GetPipelineStats(ctx context.Context) (*PipelineStats, error) {
	stats := &PipelineStats{
		ArticlesByStatus: map[string]int64{},
		QueueByStatus:    map[string]int64{},
	}

	const totals = `
SELECT
	(SELECT COUNT(*) FROM mill.topics),
	(SELECT COUNT(*) FROM mill.sources),
	(SELECT COUNT(*) FROM mill.shared_article_content),
	(SELECT COUNT(*) FROM mill.topic_articles),
	(SELECT COUNT(*) FROM mill.discarded_articles),
	(SELECT COUNT(*) FROM mill.article_duplicates WHERE status = 'pending'),
	(SELECT MAX(created_at) FROM mill.topic_articles),
	(SELECT MAX(updated_at) FROM mill.content_generation_queue),
	(SELECT MAX(created_at) FROM mill.pipeline_events)
`
	err := p.QueryRow(ctx, totals).Scan(
		&stats.Topics,
		&stats.Sources,
		&stats.SharedContent,
		&stats.TopicArticles,
		&stats.SuppressedURLs,
		&stats.PendingDuplicates,
		&stats.LastArticleAt,
		&stats.LastQueueActivity,
		&stats.LastPipelineEvent,
	)
	if err != nil {
		return nil, fmt.Errorf("query pipeline totals: %w", err)
	}

	if err := p.scanStatusCounts(ctx, `SELECT processing_status, COUNT(*) FROM mill.topic_articles GROUP BY 1`, stats.ArticlesByStatus); err != nil {
		return nil, fmt.Errorf("query article status counts: %w", err)
	}
	if err := p.scanStatusCounts(ctx, `SELECT status, COUNT(*) FROM mill.content_generation_queue GROUP BY 1`, stats.QueueByStatus); err != nil {
		return nil, fmt.Errorf("query queue status counts: %w", err)
	}

	return stats, nil
}

func (p *Pool) scanStatusCounts(ctx context.Context, query string, dest map[string]int64) error {
	rows, err := p.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return err
		}
		dest[status] = count
	}
	return rows.Err()
}

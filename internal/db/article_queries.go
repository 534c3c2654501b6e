package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/storymill/storymill/internal/globaltime"
)

// resolveListWindow fills in an open-ended listing window: a zero from
// means the beginning of time, a zero to means now. An explicit inverted
// window is still rejected.
func resolveListWindow(from, to, now time.Time) (time.Time, time.Time, error) {
	if to.IsZero() {
		to = now
	}
	from = from.UTC()
	to = to.UTC()
	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("from must be before to")
	}
	return from, to, nil
}

// ArticleListOptions controls article listing queries.
type ArticleListOptions struct {
	TopicSlug string
	Status    string
	From      time.Time
	To        time.Time
	Limit     int
}

// ArticleListItem is used by the articles CLI command and the HTTP API.
type ArticleListItem struct {
	TopicArticleID         int64      `json:"topic_article_id"`
	TopicArticleUUID       string     `json:"topic_article_uuid"`
	TopicSlug              string     `json:"topic_slug"`
	Title                  string     `json:"title"`
	NormalizedURL          string     `json:"normalized_url"`
	ProcessingStatus       string     `json:"processing_status"`
	RegionalRelevanceScore *int       `json:"regional_relevance_score,omitempty"`
	ContentQualityScore    *int       `json:"content_quality_score,omitempty"`
	WordCount              int        `json:"word_count"`
	DiscardReason          *string    `json:"discard_reason,omitempty"`
	PublishedAt            *time.Time `json:"published_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
}

// ListArticles lists topic articles in a UTC created_at window.
func (p *Pool) ListArticles(ctx context.Context, opts ArticleListOptions) ([]ArticleListItem, error) {
	if opts.Limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	from, to, err := resolveListWindow(opts.From, opts.To, globaltime.UTC())
	if err != nil {
		return nil, err
	}

	const q = `
SELECT
	ta.topic_article_id,
	ta.topic_article_uuid::text,
	t.topic_slug,
	c.title,
	c.normalized_url,
	ta.processing_status,
	ta.regional_relevance_score,
	ta.content_quality_score,
	c.word_count,
	ta.discard_reason,
	c.published_at,
	ta.created_at
FROM mill.topic_articles ta
JOIN mill.shared_article_content c ON c.content_id = ta.content_id
JOIN mill.topics t ON t.topic_id = ta.topic_id
WHERE ta.created_at >= $1
  AND ta.created_at < $2
  AND ($3 = '' OR t.topic_slug = $3)
  AND ($4 = '' OR ta.processing_status = $4)
ORDER BY ta.created_at DESC, ta.topic_article_id DESC
LIMIT $5
`

	slug := strings.ToLower(strings.TrimSpace(opts.TopicSlug))
	status := strings.ToLower(strings.TrimSpace(opts.Status))
	rows, err := p.Query(ctx, q, from, to, slug, status, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("query topic articles: %w", err)
	}
	defer rows.Close()

	items := make([]ArticleListItem, 0, opts.Limit)
	for rows.Next() {
		var row ArticleListItem
		if err := rows.Scan(
			&row.TopicArticleID,
			&row.TopicArticleUUID,
			&row.TopicSlug,
			&row.Title,
			&row.NormalizedURL,
			&row.ProcessingStatus,
			&row.RegionalRelevanceScore,
			&row.ContentQualityScore,
			&row.WordCount,
			&row.DiscardReason,
			&row.PublishedAt,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan topic article row: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topic article rows: %w", err)
	}

	return items, nil
}

// TopicSettings is the per-topic configuration the pipeline consults.
type TopicSettings struct {
	TopicID           int
	TopicSlug         string
	TopicType         string
	Region            *string
	CompetingRegions  []string
	MinWordCount      *int
	MaxArticleAgeDays *int
	SlideType         *string
	Tone              *string
	WritingStyle      *string
	AudienceExpertise *string
	AIProvider        *string
	Enabled           bool
}

// GetTopicBySlug loads a topic's pipeline settings.
func (p *Pool) GetTopicBySlug(ctx context.Context, slug string) (*TopicSettings, error) {
	trimmed := strings.ToLower(strings.TrimSpace(slug))
	if trimmed == "" {
		return nil, fmt.Errorf("topic slug is required")
	}

	const q = `
SELECT
	t.topic_id,
	t.topic_slug,
	t.topic_type,
	t.region,
	t.competing_regions,
	t.min_word_count,
	t.max_article_age_days,
	t.slide_type,
	t.tone,
	t.writing_style,
	t.audience_expertise,
	t.ai_provider,
	t.enabled
FROM mill.topics t
WHERE t.topic_slug = $1
`

	var settings TopicSettings
	var competingRegions []byte
	err := p.QueryRow(ctx, q, trimmed).Scan(
		&settings.TopicID,
		&settings.TopicSlug,
		&settings.TopicType,
		&settings.Region,
		&competingRegions,
		&settings.MinWordCount,
		&settings.MaxArticleAgeDays,
		&settings.SlideType,
		&settings.Tone,
		&settings.WritingStyle,
		&settings.AudienceExpertise,
		&settings.AIProvider,
		&settings.Enabled,
	)
	if err != nil {
		return nil, err
	}

	if len(competingRegions) > 0 {
		if err := json.Unmarshal(competingRegions, &settings.CompetingRegions); err != nil {
			return nil, fmt.Errorf("decode competing_regions for topic %q: %w", trimmed, err)
		}
	}

	return &settings, nil
}

// SourceSettings is the per-source slice of configuration the gate consults.
type SourceSettings struct {
	SourceID         int64
	SourceName       string
	SourceType       string
	CredibilityScore int
	Enabled          bool
}

// GetSourceByName loads a source scoped to a topic.
func (p *Pool) GetSourceByName(ctx context.Context, topicID int, name string) (*SourceSettings, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, fmt.Errorf("source name is required")
	}

	const q = `
SELECT
	s.source_id,
	s.source_name,
	s.source_type,
	s.credibility_score,
	s.enabled
FROM mill.sources s
WHERE s.topic_id = $1
  AND s.source_name = $2
`

	var settings SourceSettings
	err := p.QueryRow(ctx, q, topicID, trimmed).Scan(
		&settings.SourceID,
		&settings.SourceName,
		&settings.SourceType,
		&settings.CredibilityScore,
		&settings.Enabled,
	)
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

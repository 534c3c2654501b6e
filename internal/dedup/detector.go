// Package dedup finds likely duplicate articles. Findings are advisory: they
// are recorded for review, never auto-merged, so a false positive can't lose
// content.
package dedup

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/storymill/storymill/internal/content"
	"github.com/storymill/storymill/internal/db"
	"github.com/storymill/storymill/internal/globaltime"
)

const (
	MethodChecksum        = "checksum"
	MethodTitleSimilarity = "title_similarity"
)

const (
	StatusPending = "pending"
	StatusMerged  = "merged"
	StatusIgnored = "ignored"
)

// fuzzyCandidateLimit bounds the number of new-article titles compared per
// detection run.
const fuzzyCandidateLimit = 500

type Detector struct {
	pool      *db.Pool
	logger    zerolog.Logger
	threshold float64
}

// Candidate is one duplicate finding.
type Candidate struct {
	OriginalArticleID  int64   `json:"original_article_id"`
	DuplicateArticleID int64   `json:"duplicate_article_id"`
	SimilarityScore    float64 `json:"similarity_score"`
	DetectionMethod    string  `json:"detection_method"`
}

func NewDetector(pool *db.Pool, logger zerolog.Logger, threshold float64) *Detector {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.7
	}
	return &Detector{
		pool:      pool,
		logger:    logger,
		threshold: threshold,
	}
}

type subjectArticle struct {
	TopicArticleID  int64
	TopicID         int
	Title           string
	ContentChecksum *string
}

// FindDuplicates runs both detection stages for one topic article and records
// the findings as pending review rows. Checksum matches come first, then
// fuzzy title matches in descending similarity order.
func (d *Detector) FindDuplicates(ctx context.Context, topicArticleID int64) ([]Candidate, error) {
	if d == nil || d.pool == nil {
		return nil, fmt.Errorf("duplicate detector is not initialized")
	}

	subject, err := d.loadSubject(ctx, topicArticleID)
	if err != nil {
		return nil, err
	}

	candidates, err := d.checksumMatches(ctx, subject)
	if err != nil {
		return nil, err
	}

	fuzzy, err := d.titleMatches(ctx, subject)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, fuzzy...)

	for _, candidate := range candidates {
		if err := d.recordPending(ctx, candidate); err != nil {
			return nil, err
		}
		d.logger.Info().
			Int64("original_article_id", candidate.OriginalArticleID).
			Int64("duplicate_article_id", candidate.DuplicateArticleID).
			Float64("similarity", candidate.SimilarityScore).
			Str("method", candidate.DetectionMethod).
			Msg("duplicate candidate found")
	}

	return candidates, nil
}

func (d *Detector) loadSubject(ctx context.Context, topicArticleID int64) (subjectArticle, error) {
	const q = `
SELECT
	ta.topic_article_id,
	ta.topic_id,
	c.title,
	c.content_checksum
FROM mill.topic_articles ta
JOIN mill.shared_article_content c ON c.content_id = ta.content_id
WHERE ta.topic_article_id = $1
`

	var subject subjectArticle
	err := d.pool.QueryRow(ctx, q, topicArticleID).Scan(
		&subject.TopicArticleID,
		&subject.TopicID,
		&subject.Title,
		&subject.ContentChecksum,
	)
	if err != nil {
		return subjectArticle{}, fmt.Errorf("load article %d for dedup: %w", topicArticleID, err)
	}
	return subject, nil
}

// checksumMatches finds non-discarded articles in the same topic sharing the
// subject's content checksum: verbatim re-syndication under a new URL.
func (d *Detector) checksumMatches(ctx context.Context, subject subjectArticle) ([]Candidate, error) {
	if subject.ContentChecksum == nil || strings.TrimSpace(*subject.ContentChecksum) == "" {
		return nil, nil
	}

	const q = `
SELECT ta.topic_article_id
FROM mill.topic_articles ta
JOIN mill.shared_article_content c ON c.content_id = ta.content_id
WHERE ta.topic_id = $1
  AND ta.topic_article_id <> $2
  AND ta.processing_status <> 'discarded'
  AND c.content_checksum = $3
ORDER BY ta.topic_article_id
`

	rows, err := d.pool.Query(ctx, q, subject.TopicID, subject.TopicArticleID, *subject.ContentChecksum)
	if err != nil {
		return nil, fmt.Errorf("query checksum matches: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var matchID int64
		if err := rows.Scan(&matchID); err != nil {
			return nil, fmt.Errorf("scan checksum match: %w", err)
		}
		candidates = append(candidates, Candidate{
			OriginalArticleID:  matchID,
			DuplicateArticleID: subject.TopicArticleID,
			SimilarityScore:    1.0,
			DetectionMethod:    MethodChecksum,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checksum matches: %w", err)
	}

	return candidates, nil
}

// titleMatches compares the subject title against other new articles in the
// topic. Restricting to new articles keeps already-resolved stories from
// being flagged against incoming noise.
func (d *Detector) titleMatches(ctx context.Context, subject subjectArticle) ([]Candidate, error) {
	const q = `
SELECT
	ta.topic_article_id,
	c.title
FROM mill.topic_articles ta
JOIN mill.shared_article_content c ON c.content_id = ta.content_id
WHERE ta.topic_id = $1
  AND ta.topic_article_id <> $2
  AND ta.processing_status = 'new'
ORDER BY ta.topic_article_id DESC
LIMIT $3
`

	rows, err := d.pool.Query(ctx, q, subject.TopicID, subject.TopicArticleID, fuzzyCandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("query title candidates: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var matchID int64
		var title string
		if err := rows.Scan(&matchID, &title); err != nil {
			return nil, fmt.Errorf("scan title candidate: %w", err)
		}

		similarity := content.TrigramSimilarity(subject.Title, title)
		if similarity < d.threshold {
			continue
		}
		candidates = append(candidates, Candidate{
			OriginalArticleID:  matchID,
			DuplicateArticleID: subject.TopicArticleID,
			SimilarityScore:    similarity,
			DetectionMethod:    MethodTitleSimilarity,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate title candidates: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].SimilarityScore > candidates[j].SimilarityScore
	})
	return candidates, nil
}

func (d *Detector) recordPending(ctx context.Context, candidate Candidate) error {
	const q = `
INSERT INTO mill.article_duplicates (
	original_article_id,
	duplicate_article_id,
	similarity_score,
	detection_method,
	status,
	created_at,
	updated_at
)
VALUES ($1, $2, $3, $4, 'pending', $5, $5)
ON CONFLICT (original_article_id, duplicate_article_id) WHERE status = 'pending' DO NOTHING
`

	now := globaltime.UTC()
	if _, err := d.pool.Exec(ctx, q, candidate.OriginalArticleID, candidate.DuplicateArticleID, candidate.SimilarityScore, candidate.DetectionMethod, now); err != nil {
		return fmt.Errorf("record duplicate candidate: %w", err)
	}
	return nil
}

// PendingItem is a recorded finding awaiting resolution.
type PendingItem struct {
	ArticleDuplicateUUID string  `json:"article_duplicate_uuid"`
	OriginalArticleID    int64   `json:"original_article_id"`
	DuplicateArticleID   int64   `json:"duplicate_article_id"`
	OriginalTitle        string  `json:"original_title"`
	DuplicateTitle       string  `json:"duplicate_title"`
	SimilarityScore      float64 `json:"similarity_score"`
	DetectionMethod      string  `json:"detection_method"`
	Status               string  `json:"status"`
}

// ListPending returns unresolved findings, highest similarity first.
func (d *Detector) ListPending(ctx context.Context, limit int) ([]PendingItem, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT
	ad.article_duplicate_uuid::text,
	ad.original_article_id,
	ad.duplicate_article_id,
	co.title,
	cd.title,
	ad.similarity_score,
	ad.detection_method,
	ad.status
FROM mill.article_duplicates ad
JOIN mill.topic_articles tao ON tao.topic_article_id = ad.original_article_id
JOIN mill.shared_article_content co ON co.content_id = tao.content_id
JOIN mill.topic_articles tad ON tad.topic_article_id = ad.duplicate_article_id
JOIN mill.shared_article_content cd ON cd.content_id = tad.content_id
WHERE ad.status = 'pending'
ORDER BY ad.similarity_score DESC, ad.article_duplicate_id
LIMIT $1
`

	rows, err := d.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending duplicates: %w", err)
	}
	defer rows.Close()

	items := make([]PendingItem, 0, limit)
	for rows.Next() {
		var item PendingItem
		if err := rows.Scan(
			&item.ArticleDuplicateUUID,
			&item.OriginalArticleID,
			&item.DuplicateArticleID,
			&item.OriginalTitle,
			&item.DuplicateTitle,
			&item.SimilarityScore,
			&item.DetectionMethod,
			&item.Status,
		); err != nil {
			return nil, fmt.Errorf("scan pending duplicate row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending duplicate rows: %w", err)
	}

	return items, nil
}

// Resolve marks a pending finding merged or ignored.
func (d *Detector) Resolve(ctx context.Context, duplicateUUID, resolution string) error {
	uuid := strings.TrimSpace(duplicateUUID)
	if uuid == "" {
		return fmt.Errorf("duplicate UUID is required")
	}
	resolved := strings.ToLower(strings.TrimSpace(resolution))
	if resolved != StatusMerged && resolved != StatusIgnored {
		return fmt.Errorf("resolution must be %q or %q", StatusMerged, StatusIgnored)
	}

	const q = `
UPDATE mill.article_duplicates
SET
	status = $2,
	updated_at = $3
WHERE article_duplicate_uuid = $1::uuid
  AND status = 'pending'
`
	tag, err := d.pool.Exec(ctx, q, uuid, resolved, globaltime.UTC())
	if err != nil {
		return fmt.Errorf("resolve duplicate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNoRows
	}
	return nil
}

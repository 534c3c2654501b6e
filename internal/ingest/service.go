// Package ingest accepts scraped article payloads and runs them through
// the full intake sequence: URL normalization, suppression short-circuit,
// content deduplication by storage, the quality and relevance gate,
// duplicate detection and promotion into the generation queue.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/storymill/storymill/internal/content"
	"github.com/storymill/storymill/internal/db"
	"github.com/storymill/storymill/internal/dedup"
	"github.com/storymill/storymill/internal/gate"
	"github.com/storymill/storymill/internal/globaltime"
	"github.com/storymill/storymill/internal/langdetect"
	"github.com/storymill/storymill/internal/language"
	"github.com/storymill/storymill/internal/metrics"
	"github.com/storymill/storymill/internal/pipeline"
	"github.com/storymill/storymill/internal/reader"
	"github.com/storymill/storymill/internal/suppress"
	"github.com/storymill/storymill/internal/urlnorm"
	payloadschema "github.com/storymill/storymill/schema"
)

const suppressedDiscardReason = "previously discarded for this topic"

type Service struct {
	pool     *db.Pool
	logger   zerolog.Logger
	ledger   *suppress.Ledger
	detector *dedup.Detector
	status   *pipeline.Service
	gates    gate.Thresholds
}

func NewService(pool *db.Pool, logger zerolog.Logger, ledger *suppress.Ledger, detector *dedup.Detector, status *pipeline.Service, gates gate.Thresholds) *Service {
	return &Service{
		pool:     pool,
		logger:   logger,
		ledger:   ledger,
		detector: detector,
		status:   status,
		gates:    gates,
	}
}

// Result reports what happened to one ingested payload.
type Result struct {
	TopicArticleUUID string  `json:"topic_article_uuid"`
	Status           string  `json:"status"`
	AlreadyIngested  bool    `json:"already_ingested"`
	ShortCircuited   bool    `json:"short_circuited"`
	QueueItemCreated bool    `json:"queue_item_created"`
	DuplicateCount   int     `json:"duplicate_count"`
	DiscardReason    *string `json:"discard_reason,omitempty"`
	WordCount        int     `json:"word_count"`
	Language         string  `json:"language"`
}

// IngestOne processes a single validated payload. The caller validates the
// payload against the schema first; this method assumes required fields
// are present.
func (s *Service) IngestOne(ctx context.Context, payload *payloadschema.ArticlePayload) (*Result, error) {
	if payload == nil {
		return nil, fmt.Errorf("payload is nil")
	}

	topic, err := s.pool.GetTopicBySlug(ctx, payload.TopicSlug)
	if err != nil {
		return nil, err
	}
	if !topic.Enabled {
		return nil, fmt.Errorf("topic %s is disabled", topic.TopicSlug)
	}

	var source *db.SourceSettings
	if payload.SourceName != nil {
		source, err = s.pool.GetSourceByName(ctx, topic.TopicID, *payload.SourceName)
		if err != nil && !db.IsNoRows(err) {
			return nil, err
		}
	}

	normalized := urlnorm.Normalize(payload.URL)
	if normalized == "" {
		return nil, fmt.Errorf("payload URL normalizes to an empty string")
	}

	now := globaltime.UTC()

	suppressed, err := s.ledger.IsSuppressed(ctx, topic.TopicID, normalized)
	if err != nil {
		return nil, err
	}
	if suppressed {
		return s.ingestSuppressed(ctx, topic, source, payload, normalized, now)
	}

	body := s.resolveBody(payload)
	wordCount := content.WordCount(body)
	checksum := content.Checksum(body)
	lang := resolveLanguage(payload.Language, body)

	contentID, err := findOrCreateContent(ctx, s.pool, payload, normalized, body, wordCount, checksum, lang, now)
	if err != nil {
		return nil, err
	}

	articleID, uuid, existingStatus, created, err := s.insertTopicArticle(ctx, topic.TopicID, contentID, source, payload, now)
	if err != nil {
		return nil, err
	}
	if !created {
		return &Result{
			TopicArticleUUID: uuid,
			Status:           existingStatus,
			AlreadyIngested:  true,
			WordCount:        wordCount,
			Language:         lang,
		}, nil
	}

	metrics.ArticlesIngested.Inc()

	if region, hit := gate.CompetingRegionMention(payload.Title, topic.CompetingRegions); hit {
		s.logEvent(ctx, "warn", "title mentions a competing region", "IngestOne", map[string]any{
			"topic_article_uuid": uuid,
			"topic_id":           topic.TopicID,
			"competing_region":   region,
			"title":              payload.Title,
		})
		s.logger.Warn().
			Str("topic_article_uuid", uuid).
			Str("competing_region", region).
			Msg("competing region mentioned in title")
	}

	result := &Result{
		TopicArticleUUID: uuid,
		Status:           gate.StatusNew,
		WordCount:        wordCount,
		Language:         lang,
	}

	sourceType := gate.SourceTypeNational
	if source != nil {
		sourceType = source.SourceType
	}
	decision := gate.Evaluate(gate.Input{
		ProcessingStatus:  gate.StatusNew,
		WordCount:         wordCount,
		RelevanceScore:    payload.RegionalRelevanceScore,
		SourceType:        sourceType,
		TopicMinWordCount: topic.MinWordCount,
	}, s.gates)

	if decision.Discard {
		req := pipeline.TransitionRequest{
			NewStatus: gate.StatusDiscarded,
			Reason:    decision.Reason,
		}
		if decision.Rejection != nil {
			req.MetadataPatch = gate.AppendRejection(marshalMetadata(payload.ImportMetadata), *decision.Rejection)
		}
		transition, err := s.status.SetStatus(ctx, uuid, req)
		if err != nil {
			return nil, err
		}
		metrics.DiscardsByReason.WithLabelValues(discardReasonLabel(decision)).Inc()
		reason := decision.Reason
		result.Status = transition.Status
		result.DiscardReason = &reason
		return result, nil
	}

	matches, err := s.detector.FindDuplicates(ctx, articleID)
	if err != nil {
		// Detection failures are logged but never lose the article.
		s.logger.Error().Err(err).Str("topic_article_uuid", uuid).Msg("duplicate detection failed")
	} else {
		result.DuplicateCount = len(matches)
		if len(matches) > 0 {
			metrics.DuplicatesFlagged.Add(float64(len(matches)))
		}
	}

	// Articles arriving with a relevance score have cleared every gate and
	// advance immediately; unscored ones stay new for the scoring worker.
	if payload.RegionalRelevanceScore != nil {
		transition, err := s.status.SetStatus(ctx, uuid, pipeline.TransitionRequest{NewStatus: gate.StatusProcessed})
		if err != nil {
			return nil, err
		}
		result.Status = transition.Status
		result.QueueItemCreated = transition.QueueItemCreated
	}

	s.logEvent(ctx, "info", "article ingested", "IngestOne", map[string]any{
		"topic_article_uuid": uuid,
		"topic_id":           topic.TopicID,
		"normalized_url":     normalized,
		"status":             result.Status,
		"word_count":         wordCount,
		"language":           lang,
	})

	return result, nil
}

// ingestSuppressed records the article directly as discarded. Gate and
// duplicate detection are skipped; the suppression ledger already decided.
func (s *Service) ingestSuppressed(ctx context.Context, topic *db.TopicSettings, source *db.SourceSettings, payload *payloadschema.ArticlePayload, normalized string, now time.Time) (*Result, error) {
	body := s.resolveBody(payload)
	wordCount := content.WordCount(body)
	checksum := content.Checksum(body)
	lang := resolveLanguage(payload.Language, body)

	contentID, err := findOrCreateContent(ctx, s.pool, payload, normalized, body, wordCount, checksum, lang, now)
	if err != nil {
		return nil, err
	}

	_, uuid, existingStatus, created, err := s.insertTopicArticleWithStatus(ctx, s.pool, topic.TopicID, contentID, source, payload, gate.StatusDiscarded, suppressedDiscardReason, now)
	if err != nil {
		return nil, err
	}

	status := gate.StatusDiscarded
	if !created {
		status = existingStatus
	} else {
		metrics.SuppressedShortCircuits.Inc()
		s.logEvent(ctx, "info", "ingest short-circuited by suppression ledger", "ingestSuppressed", map[string]any{
			"topic_article_uuid": uuid,
			"topic_id":           topic.TopicID,
			"normalized_url":     normalized,
		})
	}

	reason := suppressedDiscardReason
	return &Result{
		TopicArticleUUID: uuid,
		Status:           status,
		AlreadyIngested:  !created,
		ShortCircuited:   created,
		DiscardReason:    &reason,
		WordCount:        wordCount,
		Language:         lang,
	}, nil
}

// resolveBody prefers supplied plain text, then readability over supplied
// HTML, then the title.
func (s *Service) resolveBody(payload *payloadschema.ArticlePayload) string {
	if payload.BodyText != nil {
		if text := reader.CleanText(*payload.BodyText); text != "" {
			return text
		}
	}
	if payload.BodyHTML != nil {
		text, err := reader.ExtractText(*payload.BodyHTML, payload.URL, payload.Title)
		if err != nil {
			s.logger.Warn().Err(err).Str("url", payload.URL).Msg("readability extraction failed")
		} else if text != "" {
			return text
		}
	}
	return strings.TrimSpace(payload.Title)
}

func resolveLanguage(declared *string, body string) string {
	if declared != nil {
		if code := language.NormalizeCode(*declared); code != "" {
			return code
		}
	}
	if code := langdetect.DetectISO6391(body); code != "" {
		return code
	}
	return "und"
}

type rowQuerier interface {
	QueryRow(ctx context.Context, query string, args ...any) db.Row
}

// findOrCreateContent stores shared content once per normalized URL. A body
// that resurfaces under a different URL gets its own row so the duplicate
// detector can flag the checksum match for review instead of the rows being
// silently folded together.
func findOrCreateContent(ctx context.Context, q rowQuerier, payload *payloadschema.ArticlePayload, normalized, body string, wordCount int, checksum, lang string, now time.Time) (int64, error) {
	var contentID int64
	err := q.QueryRow(ctx, `
		SELECT content_id FROM mill.shared_article_content
		WHERE normalized_url = $1`,
		normalized,
	).Scan(&contentID)
	if err == nil {
		return contentID, nil
	}
	if !db.IsNoRows(err) {
		return 0, fmt.Errorf("lookup content by normalized url: %w", err)
	}

	var checksumParam *string
	if checksum != "" {
		checksumParam = &checksum
	}
	var publishedAt *time.Time
	if payload.PublishedAt != nil {
		if parsed, parseErr := time.Parse(time.RFC3339, strings.TrimSpace(*payload.PublishedAt)); parseErr == nil {
			utc := parsed.UTC()
			publishedAt = &utc
		}
	}

	err = q.QueryRow(ctx, `
		INSERT INTO mill.shared_article_content
			(url, normalized_url, title, body, author, published_at, word_count, content_checksum, language, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (normalized_url) DO NOTHING
		RETURNING content_id`,
		strings.TrimSpace(payload.URL), normalized, strings.TrimSpace(payload.Title), body,
		payload.Author, publishedAt, wordCount, checksumParam, lang, now,
	).Scan(&contentID)
	if err == nil {
		return contentID, nil
	}
	if !db.IsNoRows(err) {
		return 0, fmt.Errorf("insert shared content: %w", err)
	}

	// Lost the insert race; the winning row is committed by now.
	if err := q.QueryRow(ctx, `
		SELECT content_id FROM mill.shared_article_content
		WHERE normalized_url = $1`,
		normalized,
	).Scan(&contentID); err != nil {
		return 0, fmt.Errorf("reread content after conflict: %w", err)
	}
	return contentID, nil
}

func (s *Service) insertTopicArticle(ctx context.Context, topicID int, contentID int64, source *db.SourceSettings, payload *payloadschema.ArticlePayload, now time.Time) (int64, string, string, bool, error) {
	return s.insertTopicArticleWithStatus(ctx, s.pool, topicID, contentID, source, payload, gate.StatusNew, "", now)
}

// insertTopicArticleWithStatus is idempotent per (topic, content): a repeat
// ingest returns the existing row untouched.
func (s *Service) insertTopicArticleWithStatus(ctx context.Context, q rowQuerier, topicID int, contentID int64, source *db.SourceSettings, payload *payloadschema.ArticlePayload, status, discardReason string, now time.Time) (int64, string, string, bool, error) {
	var (
		existingID     int64
		existingUUID   string
		existingStatus string
	)
	err := q.QueryRow(ctx, `
		SELECT topic_article_id, topic_article_uuid, processing_status
		FROM mill.topic_articles
		WHERE topic_id = $1 AND content_id = $2
		LIMIT 1`,
		topicID, contentID,
	).Scan(&existingID, &existingUUID, &existingStatus)
	if err == nil {
		return existingID, existingUUID, existingStatus, false, nil
	}
	if !db.IsNoRows(err) {
		return 0, "", "", false, fmt.Errorf("lookup topic article: %w", err)
	}

	var sourceID *int64
	if source != nil {
		sourceID = &source.SourceID
	}
	var reasonParam *string
	if discardReason != "" {
		reasonParam = &discardReason
	}
	metadata := marshalMetadata(payload.ImportMetadata)

	var (
		articleID int64
		uuid      string
	)
	err = q.QueryRow(ctx, `
		INSERT INTO mill.topic_articles
			(topic_id, content_id, source_id, processing_status, regional_relevance_score, content_quality_score, discard_reason, import_metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (topic_id, content_id) DO NOTHING
		RETURNING topic_article_id, topic_article_uuid`,
		topicID, contentID, sourceID, status,
		payload.RegionalRelevanceScore, payload.ContentQualityScore,
		reasonParam, metadataParam(metadata), now,
	).Scan(&articleID, &uuid)
	if db.IsNoRows(err) {
		// A concurrent ingest of the same pairing won; report its row.
		if err := q.QueryRow(ctx, `
			SELECT topic_article_id, topic_article_uuid, processing_status
			FROM mill.topic_articles
			WHERE topic_id = $1 AND content_id = $2`,
			topicID, contentID,
		).Scan(&existingID, &existingUUID, &existingStatus); err != nil {
			return 0, "", "", false, fmt.Errorf("reread topic article after conflict: %w", err)
		}
		return existingID, existingUUID, existingStatus, false, nil
	}
	if err != nil {
		return 0, "", "", false, fmt.Errorf("insert topic article: %w", err)
	}

	if status == gate.StatusDiscarded {
		// The suppressed path bypasses the state machine, so refresh the
		// ledger entry here to keep discarded_at current.
		if ledgerErr := s.ledger.Discard(ctx, topicID, urlnorm.Normalize(payload.URL), payload.Title, discardReason, nil, now); ledgerErr != nil {
			s.logger.Error().Err(ledgerErr).Str("topic_article_uuid", uuid).Msg("failed to refresh suppression entry")
		}
	}

	return articleID, uuid, status, true, nil
}

func marshalMetadata(metadata map[string]any) json.RawMessage {
	if len(metadata) == 0 {
		return nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil
	}
	return raw
}

func metadataParam(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	s := string(raw)
	return &s
}

func discardReasonLabel(decision gate.Decision) string {
	if decision.Rejection != nil {
		return decision.Rejection.RejectionReason
	}
	return "below_word_count"
}

func (s *Service) logEvent(ctx context.Context, level, message, functionName string, eventContext map[string]any) {
	if err := db.InsertPipelineEvent(ctx, s.pool, level, message, functionName, eventContext); err != nil {
		s.logger.Error().Err(err).Str("event_message", message).Msg("failed to record pipeline event")
	}
}

package db

import (
	"encoding/json"
	"time"
)

// Topic maps mill.topics.
type Topic struct {
	TopicID           int             `gorm:"column:topic_id;primaryKey;autoIncrement"`
	TopicUUID         string          `gorm:"column:topic_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	TopicSlug         string          `gorm:"column:topic_slug;type:text;not null;unique"`
	TopicName         string          `gorm:"column:topic_name;type:text;not null"`
	TopicType         string          `gorm:"column:topic_type;type:text;not null;default:regional"`
	Region            *string         `gorm:"column:region;type:text"`
	CompetingRegions  json.RawMessage `gorm:"column:competing_regions;type:jsonb"`
	MinWordCount      *int            `gorm:"column:min_word_count;type:integer"`
	MaxArticleAgeDays *int            `gorm:"column:max_article_age_days;type:integer"`
	SlideType         *string         `gorm:"column:slide_type;type:text"`
	Tone              *string         `gorm:"column:tone;type:text"`
	WritingStyle      *string         `gorm:"column:writing_style;type:text"`
	AudienceExpertise *string         `gorm:"column:audience_expertise;type:text"`
	AIProvider        *string         `gorm:"column:ai_provider;type:text"`
	Enabled           bool            `gorm:"column:enabled;type:boolean;not null;default:true"`
	CreatedAt         time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Topic) TableName() string { return "mill.topics" }

// Source maps mill.sources.
type Source struct {
	SourceID         int64     `gorm:"column:source_id;primaryKey;autoIncrement"`
	SourceUUID       string    `gorm:"column:source_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	TopicID          int       `gorm:"column:topic_id;type:integer;not null;index"`
	SourceName       string    `gorm:"column:source_name;type:text;not null"`
	FeedURL          string    `gorm:"column:feed_url;type:text;not null"`
	SourceType       string    `gorm:"column:source_type;type:text;not null;default:national"`
	CredibilityScore int       `gorm:"column:credibility_score;type:integer;not null;default:50"`
	Enabled          bool      `gorm:"column:enabled;type:boolean;not null;default:true"`
	CreatedAt        time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt        time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Source) TableName() string { return "mill.sources" }

// SharedArticleContent maps mill.shared_article_content. One row per scraped
// document; topic_articles reference it so the same content seen by several
// topics is stored once.
type SharedArticleContent struct {
	ContentID       int64      `gorm:"column:content_id;primaryKey;autoIncrement"`
	ContentUUID     string     `gorm:"column:content_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	URL             string     `gorm:"column:url;type:text;not null"`
	NormalizedURL   string     `gorm:"column:normalized_url;type:text;not null;uniqueIndex:uq_shared_content_normalized_url"`
	Title           string     `gorm:"column:title;type:text;not null"`
	Body            string     `gorm:"column:body;type:text;not null;default:''"`
	Author          *string    `gorm:"column:author;type:text"`
	PublishedAt     *time.Time `gorm:"column:published_at;type:timestamptz"`
	WordCount       int        `gorm:"column:word_count;type:integer;not null;default:0"`
	ContentChecksum *string    `gorm:"column:content_checksum;type:text;index"`
	Language        string     `gorm:"column:language;type:text;not null;default:und"`
	CreatedAt       time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (SharedArticleContent) TableName() string { return "mill.shared_article_content" }

// TopicArticle maps mill.topic_articles.
type TopicArticle struct {
	TopicArticleID         int64           `gorm:"column:topic_article_id;primaryKey;autoIncrement"`
	TopicArticleUUID       string          `gorm:"column:topic_article_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	TopicID                int             `gorm:"column:topic_id;type:integer;not null;index:idx_topic_articles_topic_status;uniqueIndex:uq_topic_articles_topic_content"`
	ContentID              int64           `gorm:"column:content_id;type:bigint;not null;uniqueIndex:uq_topic_articles_topic_content"`
	SourceID               *int64          `gorm:"column:source_id;type:bigint"`
	ProcessingStatus       string          `gorm:"column:processing_status;type:text;not null;default:new;index:idx_topic_articles_topic_status"`
	RegionalRelevanceScore *int            `gorm:"column:regional_relevance_score;type:integer"`
	ContentQualityScore    *int            `gorm:"column:content_quality_score;type:integer"`
	OriginalityConfidence  int             `gorm:"column:originality_confidence;type:integer;not null;default:100"`
	DiscardReason          *string         `gorm:"column:discard_reason;type:text"`
	ImportMetadata         json.RawMessage `gorm:"column:import_metadata;type:jsonb"`
	CreatedAt              time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt              time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (TopicArticle) TableName() string { return "mill.topic_articles" }

// DiscardedArticle maps mill.discarded_articles, the suppression ledger.
// A nil DiscardedBy means the system discarded the URL, not a human.
type DiscardedArticle struct {
	DiscardedArticleID int64     `gorm:"column:discarded_article_id;primaryKey;autoIncrement"`
	TopicID            int       `gorm:"column:topic_id;type:integer;not null;uniqueIndex:uq_discarded_topic_url"`
	NormalizedURL      string    `gorm:"column:normalized_url;type:text;not null;uniqueIndex:uq_discarded_topic_url"`
	Title              *string   `gorm:"column:title;type:text"`
	DiscardedBy        *string   `gorm:"column:discarded_by;type:text"`
	DiscardedReason    *string   `gorm:"column:discarded_reason;type:text"`
	DiscardedAt        time.Time `gorm:"column:discarded_at;type:timestamptz;not null;default:now()"`
}

func (DiscardedArticle) TableName() string { return "mill.discarded_articles" }

// ArticleDuplicate maps mill.article_duplicates, the pending-review table
// the duplicate detector writes to. Resolution stays a human/policy step.
type ArticleDuplicate struct {
	ArticleDuplicateID   int64     `gorm:"column:article_duplicate_id;primaryKey;autoIncrement"`
	ArticleDuplicateUUID string    `gorm:"column:article_duplicate_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	OriginalArticleID    int64     `gorm:"column:original_article_id;type:bigint;not null"`
	DuplicateArticleID   int64     `gorm:"column:duplicate_article_id;type:bigint;not null"`
	SimilarityScore      float64   `gorm:"column:similarity_score;type:double precision;not null"`
	DetectionMethod      string    `gorm:"column:detection_method;type:text;not null"`
	Status               string    `gorm:"column:status;type:text;not null;default:pending"`
	CreatedAt            time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt            time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (ArticleDuplicate) TableName() string { return "mill.article_duplicates" }

// ContentGenerationQueueItem maps mill.content_generation_queue.
type ContentGenerationQueueItem struct {
	QueueItemID       int64      `gorm:"column:queue_item_id;primaryKey;autoIncrement"`
	QueueItemUUID     string     `gorm:"column:queue_item_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	TopicArticleID    int64      `gorm:"column:topic_article_id;type:bigint;not null;index"`
	Status            string     `gorm:"column:status;type:text;not null;default:pending"`
	Attempts          int        `gorm:"column:attempts;type:integer;not null;default:0"`
	MaxAttempts       int        `gorm:"column:max_attempts;type:integer;not null;default:3"`
	ErrorMessage      *string    `gorm:"column:error_message;type:text"`
	SlideType         string     `gorm:"column:slide_type;type:text;not null"`
	Tone              string     `gorm:"column:tone;type:text;not null"`
	WritingStyle      string     `gorm:"column:writing_style;type:text;not null"`
	AudienceExpertise string     `gorm:"column:audience_expertise;type:text;not null"`
	AIProvider        string     `gorm:"column:ai_provider;type:text;not null"`
	CreatedAt         time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	StartedAt         *time.Time `gorm:"column:started_at;type:timestamptz"`
	CompletedAt       *time.Time `gorm:"column:completed_at;type:timestamptz"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (ContentGenerationQueueItem) TableName() string { return "mill.content_generation_queue" }

// PipelineEvent maps mill.pipeline_events, the structured audit trail.
type PipelineEvent struct {
	PipelineEventID int64           `gorm:"column:pipeline_event_id;primaryKey;autoIncrement"`
	Level           string          `gorm:"column:level;type:text;not null"`
	Message         string          `gorm:"column:message;type:text;not null"`
	Context         json.RawMessage `gorm:"column:context;type:jsonb"`
	FunctionName    string          `gorm:"column:function_name;type:text;not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now();index"`
}

func (PipelineEvent) TableName() string { return "mill.pipeline_events" }

func autoMigrateModels() []any {
	return []any{
		&Topic{},
		&Source{},
		&SharedArticleContent{},
		&TopicArticle{},
		&DiscardedArticle{},
		&ArticleDuplicate{},
		&ContentGenerationQueueItem{},
		&PipelineEvent{},
	}
}

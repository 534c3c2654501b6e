package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Config carries every tunable of the ingestion pipeline. Gate thresholds
// live here rather than as constants so threshold changes are a deploy-time
// setting, not a code change.
type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"SM_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"SM_DB_MAX_CONNS" default:"8"`

	HTTPHost string `envconfig:"HTTP_HOST" default:"0.0.0.0"`
	HTTPPort int    `envconfig:"HTTP_PORT" default:"8090"`

	MinWordCount                 int     `envconfig:"MIN_WORD_COUNT" default:"150"`
	RelevanceThresholdHyperlocal int     `envconfig:"RELEVANCE_THRESHOLD_HYPERLOCAL" default:"10"`
	RelevanceThresholdRegional   int     `envconfig:"RELEVANCE_THRESHOLD_REGIONAL" default:"20"`
	RelevanceThresholdNational   int     `envconfig:"RELEVANCE_THRESHOLD_NATIONAL" default:"30"`
	TitleSimilarityThreshold     float64 `envconfig:"TITLE_SIMILARITY_THRESHOLD" default:"0.70"`

	QueueMinQualityScore   int `envconfig:"QUEUE_MIN_QUALITY_SCORE" default:"50"`
	QueueMinRelevanceScore int `envconfig:"QUEUE_MIN_RELEVANCE_SCORE" default:"10"`
	QueueMaxAttempts       int `envconfig:"QUEUE_MAX_ATTEMPTS" default:"3"`

	QueueStaleAfterMinutes    int    `envconfig:"QUEUE_STALE_AFTER_MINUTES" default:"30"`
	QueueFailedRetentionHours int    `envconfig:"QUEUE_FAILED_RETENTION_HOURS" default:"72"`
	LedgerRetentionDays       int    `envconfig:"LEDGER_RETENTION_DAYS" default:"365"`
	SweepCron                 string `envconfig:"SWEEP_CRON" default:"*/10 * * * *"`

	DefaultSlideType         string `envconfig:"DEFAULT_SLIDE_TYPE" default:"carousel"`
	DefaultTone              string `envconfig:"DEFAULT_TONE" default:"informative"`
	DefaultWritingStyle      string `envconfig:"DEFAULT_WRITING_STYLE" default:"journalistic"`
	DefaultAudienceExpertise string `envconfig:"DEFAULT_AUDIENCE_EXPERTISE" default:"general"`
	DefaultAIProvider        string `envconfig:"DEFAULT_AI_PROVIDER" default:"openai"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("SM_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("SM_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("SM_DB_MIN_CONNS (%d) cannot exceed SM_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.MinWordCount < 0 {
		return fmt.Errorf("MIN_WORD_COUNT must be >= 0")
	}
	for name, value := range map[string]int{
		"RELEVANCE_THRESHOLD_HYPERLOCAL": c.RelevanceThresholdHyperlocal,
		"RELEVANCE_THRESHOLD_REGIONAL":   c.RelevanceThresholdRegional,
		"RELEVANCE_THRESHOLD_NATIONAL":   c.RelevanceThresholdNational,
		"QUEUE_MIN_QUALITY_SCORE":        c.QueueMinQualityScore,
		"QUEUE_MIN_RELEVANCE_SCORE":      c.QueueMinRelevanceScore,
	} {
		if value < 0 || value > 100 {
			return fmt.Errorf("%s must be between 0 and 100", name)
		}
	}
	if c.TitleSimilarityThreshold <= 0 || c.TitleSimilarityThreshold > 1 {
		return fmt.Errorf("TITLE_SIMILARITY_THRESHOLD must be in (0, 1]")
	}
	if c.QueueMaxAttempts < 1 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be >= 1")
	}
	if c.QueueStaleAfterMinutes < 1 {
		return fmt.Errorf("QUEUE_STALE_AFTER_MINUTES must be >= 1")
	}
	if c.QueueFailedRetentionHours < 1 {
		return fmt.Errorf("QUEUE_FAILED_RETENTION_HOURS must be >= 1")
	}
	if c.LedgerRetentionDays < 1 {
		return fmt.Errorf("LEDGER_RETENTION_DAYS must be >= 1")
	}
	if strings.TrimSpace(c.SweepCron) == "" {
		return fmt.Errorf("SWEEP_CRON is required")
	}
	return nil
}

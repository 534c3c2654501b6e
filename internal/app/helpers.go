package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/storymill/storymill/internal/cli"
	"github.com/storymill/storymill/internal/config"
	"github.com/storymill/storymill/internal/db"
	"github.com/storymill/storymill/internal/dedup"
	"github.com/storymill/storymill/internal/gate"
	"github.com/storymill/storymill/internal/ingest"
	"github.com/storymill/storymill/internal/logging"
	"github.com/storymill/storymill/internal/pipeline"
	"github.com/storymill/storymill/internal/queue"
	"github.com/storymill/storymill/internal/suppress"
	"github.com/storymill/storymill/internal/sweep"
)

// runtime is the bootstrapped state every command shares: config, logger
// and a migrated connection pool.
type runtime struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *db.Pool
}

func newRuntime(ctx context.Context, envLoader *cli.EnvLoader) (*runtime, error) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	return &runtime{cfg: cfg, logger: logger, pool: pool}, nil
}

func (r *runtime) close() {
	if r != nil && r.pool != nil {
		r.pool.Close()
	}
}

func (r *runtime) gateThresholds() gate.Thresholds {
	return gate.Thresholds{
		MinWordCount:        r.cfg.MinWordCount,
		HyperlocalRelevance: r.cfg.RelevanceThresholdHyperlocal,
		RegionalRelevance:   r.cfg.RelevanceThresholdRegional,
		NationalRelevance:   r.cfg.RelevanceThresholdNational,
	}
}

func (r *runtime) queueDefaults() queue.GenerationDefaults {
	return queue.GenerationDefaults{
		SlideType:         r.cfg.DefaultSlideType,
		Tone:              r.cfg.DefaultTone,
		WritingStyle:      r.cfg.DefaultWritingStyle,
		AudienceExpertise: r.cfg.DefaultAudienceExpertise,
		AIProvider:        r.cfg.DefaultAIProvider,
		MaxAttempts:       r.cfg.QueueMaxAttempts,
	}
}

func (r *runtime) newLedger() *suppress.Ledger {
	return suppress.NewLedger(r.pool, r.logger)
}

func (r *runtime) newDetector() *dedup.Detector {
	return dedup.NewDetector(r.pool, r.logger, r.cfg.TitleSimilarityThreshold)
}

func (r *runtime) newPipeline() *pipeline.Service {
	return pipeline.NewService(r.pool, r.logger, pipeline.Options{
		Thresholds:             r.gateThresholds(),
		QueueMinQualityScore:   r.cfg.QueueMinQualityScore,
		QueueMinRelevanceScore: r.cfg.QueueMinRelevanceScore,
		QueueDefaults:          r.queueDefaults(),
	})
}

func (r *runtime) newQueue() *queue.Service {
	return queue.NewService(r.pool, r.logger)
}

func (r *runtime) newIngest() *ingest.Service {
	return ingest.NewService(r.pool, r.logger, r.newLedger(), r.newDetector(), r.newPipeline(), r.gateThresholds())
}

func (r *runtime) newSweeper() *sweep.Sweeper {
	return sweep.NewSweeper(r.pool, r.logger, r.newLedger(), sweep.Options{
		StaleAfter:      time.Duration(r.cfg.QueueStaleAfterMinutes) * time.Minute,
		FailedRetention: time.Duration(r.cfg.QueueFailedRetentionHours) * time.Hour,
		LedgerRetention: time.Duration(r.cfg.LedgerRetentionDays) * 24 * time.Hour,
	})
}

// printJSON writes an indented JSON document to stdout for operator use.
func printJSON(value any) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(encoded))
	return nil
}

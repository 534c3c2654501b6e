package queue

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/storymill/storymill/internal/db"
)

func strPtr(v string) *string { return &v }

func TestGenerationDefaults_Resolve(t *testing.T) {
	t.Parallel()

	defaults := GenerationDefaults{
		SlideType:         "carousel",
		Tone:              "informative",
		WritingStyle:      "journalistic",
		AudienceExpertise: "general",
		AIProvider:        "openai",
		MaxAttempts:       3,
	}

	resolved := defaults.Resolve(TopicOverrides{
		Tone:       strPtr("casual"),
		AIProvider: strPtr("anthropic"),
	})
	if resolved.Tone != "casual" || resolved.AIProvider != "anthropic" {
		t.Fatalf("expected overrides to win, got %+v", resolved)
	}
	if resolved.SlideType != "carousel" || resolved.WritingStyle != "journalistic" {
		t.Fatalf("expected unset overrides to keep defaults, got %+v", resolved)
	}
	if resolved.MaxAttempts != 3 {
		t.Fatalf("max attempts must come from config, got %d", resolved.MaxAttempts)
	}
}

func TestGenerationDefaults_Resolve_BlankOverrideIgnored(t *testing.T) {
	t.Parallel()

	defaults := GenerationDefaults{Tone: "informative"}
	resolved := defaults.Resolve(TopicOverrides{Tone: strPtr("   ")})
	if resolved.Tone != "informative" {
		t.Fatalf("blank override must not clear the default, got %q", resolved.Tone)
	}
}

type recordingExecer struct {
	rows    int64
	queries []string
}

func (e *recordingExecer) Exec(_ context.Context, query string, _ ...any) (db.CommandTag, error) {
	e.queries = append(e.queries, query)
	return db.CommandTag{Rows: e.rows}, nil
}

func TestPopulateTx_SecondInsertIsNoOp(t *testing.T) {
	t.Parallel()

	params := GenerationDefaults{SlideType: "carousel", Tone: "informative", MaxAttempts: 3}
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	execer := &recordingExecer{rows: 1}
	created, err := PopulateTx(context.Background(), execer, 99, params, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("expected first insert to create a queue item")
	}
	if !strings.Contains(execer.queries[0], "ON CONFLICT (topic_article_id) WHERE status IN ('pending', 'processing') DO NOTHING") {
		t.Fatalf("insert must defer to the live-item index, got query:\n%s", execer.queries[0])
	}

	// A live item already holds the slot; the conflict clause absorbs the
	// insert without an error.
	execer.rows = 0
	created, err = PopulateTx(context.Background(), execer, 99, params, now)
	if err != nil {
		t.Fatalf("unexpected error on duplicate insert: %v", err)
	}
	if created {
		t.Fatal("expected duplicate insert to report no item created")
	}
}

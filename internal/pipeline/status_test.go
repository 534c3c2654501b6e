package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/storymill/storymill/internal/db"
	"github.com/storymill/storymill/internal/gate"
	"github.com/storymill/storymill/internal/queue"
)

func TestValidStatus(t *testing.T) {
	t.Parallel()

	for _, status := range []string{"new", "processed", "discarded"} {
		if !validStatus(status) {
			t.Fatalf("expected %q to be valid", status)
		}
	}
	for _, status := range []string{"", "archived", "pending", "NEW "} {
		if validStatus(status) {
			t.Fatalf("expected %q to be invalid", status)
		}
	}
}

func TestSetStatusRejectsBadArguments(t *testing.T) {
	t.Parallel()

	svc := &Service{}

	if _, err := svc.SetStatus(context.Background(), "  ", TransitionRequest{NewStatus: "new"}); err == nil {
		t.Fatal("expected error for blank UUID")
	}

	_, err := svc.SetStatus(context.Background(), "8d1f0a7e-0000-0000-0000-000000000000", TransitionRequest{NewStatus: "archived"})
	if err == nil {
		t.Fatal("expected error for invalid status")
	}
	if !strings.Contains(err.Error(), "invalid processing status") {
		t.Fatalf("unexpected error: %v", err)
	}

	// Mixed case and padding normalize before validation.
	_, err = svc.SetStatus(context.Background(), "8d1f0a7e-0000-0000-0000-000000000000", TransitionRequest{NewStatus: " Processed "})
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("expected uninitialized service error, got %v", err)
	}
}

type execCall struct {
	query string
	args  []any
}

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }

// stubTx fakes the transactional surface so transitions can be exercised
// without a live database.
type stubTx struct {
	suppressed   bool
	queueHasLive bool
	execs        []execCall
}

func (t *stubTx) QueryRow(_ context.Context, query string, _ ...any) db.Row {
	if strings.Contains(query, "discarded_articles") {
		return scanFunc(func(dest ...any) error {
			out, ok := dest[0].(*bool)
			if !ok {
				return fmt.Errorf("unexpected scan target %T", dest[0])
			}
			*out = t.suppressed
			return nil
		})
	}
	return scanFunc(func(...any) error { return db.ErrNoRows })
}

func (t *stubTx) Query(context.Context, string, ...any) (*db.Rows, error) {
	return nil, fmt.Errorf("unexpected multi-row query")
}

func (t *stubTx) Exec(_ context.Context, query string, args ...any) (db.CommandTag, error) {
	t.execs = append(t.execs, execCall{query: query, args: args})
	if strings.Contains(query, "content_generation_queue") && t.queueHasLive {
		// Simulates the partial unique index swallowing the insert.
		return db.CommandTag{Rows: 0}, nil
	}
	return db.CommandTag{Rows: 1}, nil
}

func (t *stubTx) Commit(context.Context) error   { return nil }
func (t *stubTx) Rollback(context.Context) error { return nil }

func (t *stubTx) execsMatching(fragment string) []execCall {
	var matched []execCall
	for _, call := range t.execs {
		if strings.Contains(call.query, fragment) {
			matched = append(matched, call)
		}
	}
	return matched
}

func newStubService() *Service {
	return &Service{
		logger: zerolog.Nop(),
		opts: Options{
			QueueMinQualityScore:   50,
			QueueMinRelevanceScore: 60,
			QueueDefaults: queue.GenerationDefaults{
				SlideType:         "carousel",
				Tone:              "informative",
				WritingStyle:      "journalistic",
				AudienceExpertise: "general",
				AIProvider:        "openai",
				MaxAttempts:       3,
			},
		},
	}
}

func intPtr(v int) *int { return &v }

func discardedRow() articleRow {
	return articleRow{
		TopicArticleID:   41,
		TopicID:          7,
		ProcessingStatus: gate.StatusDiscarded,
		NormalizedURL:    "https://example.com/story",
		Title:            "Story",
	}
}

func TestTransitionRestoreVetoedWhileSuppressed(t *testing.T) {
	t.Parallel()

	svc := newStubService()
	tx := &stubTx{suppressed: true}

	result, err := svc.transitionTx(context.Background(), tx, discardedRow(), TransitionRequest{NewStatus: gate.StatusNew}, gate.StatusNew)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Vetoed {
		t.Fatal("expected the ledger entry to veto the restore")
	}
	if result.Status != gate.StatusDiscarded {
		t.Fatalf("expected article to stay discarded, got %q", result.Status)
	}
	if updates := tx.execsMatching("UPDATE mill.topic_articles"); len(updates) != 0 {
		t.Fatalf("vetoed transition must not touch the article row, got %d updates", len(updates))
	}
}

func TestTransitionRestoreAfterLedgerCleared(t *testing.T) {
	t.Parallel()

	svc := newStubService()
	tx := &stubTx{suppressed: false}

	result, err := svc.transitionTx(context.Background(), tx, discardedRow(), TransitionRequest{NewStatus: gate.StatusNew}, gate.StatusNew)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Vetoed {
		t.Fatal("restore must pass once the ledger entry is gone")
	}
	if result.Status != gate.StatusNew {
		t.Fatalf("expected status new, got %q", result.Status)
	}
	if updates := tx.execsMatching("UPDATE mill.topic_articles"); len(updates) != 1 {
		t.Fatalf("expected exactly one article update, got %d", len(updates))
	}
}

func TestTransitionDiscardWritesLedger(t *testing.T) {
	t.Parallel()

	svc := newStubService()
	tx := &stubTx{}
	row := articleRow{
		TopicArticleID:   42,
		TopicID:          7,
		ProcessingStatus: gate.StatusNew,
		NormalizedURL:    "https://example.com/story",
		Title:            "Story",
	}

	result, err := svc.transitionTx(context.Background(), tx, row, TransitionRequest{NewStatus: gate.StatusDiscarded, Reason: "duplicate"}, gate.StatusDiscarded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != gate.StatusDiscarded {
		t.Fatalf("expected status discarded, got %q", result.Status)
	}
	if upserts := tx.execsMatching("mill.discarded_articles"); len(upserts) != 1 {
		t.Fatalf("expected one ledger upsert, got %d", len(upserts))
	}
}

func TestTransitionProcessedPopulatesQueue(t *testing.T) {
	t.Parallel()

	svc := newStubService()
	tx := &stubTx{}
	row := articleRow{
		TopicArticleID:         43,
		TopicID:                7,
		ProcessingStatus:       gate.StatusNew,
		RegionalRelevanceScore: intPtr(80),
		ContentQualityScore:    intPtr(70),
		NormalizedURL:          "https://example.com/story",
	}

	result, err := svc.transitionTx(context.Background(), tx, row, TransitionRequest{NewStatus: gate.StatusProcessed}, gate.StatusProcessed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.QueueItemCreated {
		t.Fatal("expected a queue item for an article above both score floors")
	}
	if inserts := tx.execsMatching("mill.content_generation_queue"); len(inserts) != 1 {
		t.Fatalf("expected one queue insert, got %d", len(inserts))
	}
}

func TestTransitionProcessedQueueAlreadyLive(t *testing.T) {
	t.Parallel()

	svc := newStubService()
	tx := &stubTx{queueHasLive: true}
	row := articleRow{
		TopicArticleID:         44,
		TopicID:                7,
		ProcessingStatus:       gate.StatusNew,
		RegionalRelevanceScore: intPtr(80),
		ContentQualityScore:    intPtr(70),
		NormalizedURL:          "https://example.com/story",
	}

	result, err := svc.transitionTx(context.Background(), tx, row, TransitionRequest{NewStatus: gate.StatusProcessed}, gate.StatusProcessed)
	if err != nil {
		t.Fatalf("a swallowed duplicate insert must not fail the transition: %v", err)
	}
	if result.QueueItemCreated {
		t.Fatal("expected no new queue item while one is already live")
	}
	if result.Status != gate.StatusProcessed {
		t.Fatalf("expected status processed, got %q", result.Status)
	}
}

func TestTransitionProcessedSkipsQueueBelowFloors(t *testing.T) {
	t.Parallel()

	svc := newStubService()

	rows := []articleRow{
		{TopicArticleID: 45, TopicID: 7, ProcessingStatus: gate.StatusNew, RegionalRelevanceScore: intPtr(80), ContentQualityScore: intPtr(40)},
		{TopicArticleID: 46, TopicID: 7, ProcessingStatus: gate.StatusNew, RegionalRelevanceScore: intPtr(30), ContentQualityScore: intPtr(70)},
		{TopicArticleID: 47, TopicID: 7, ProcessingStatus: gate.StatusNew, RegionalRelevanceScore: nil, ContentQualityScore: intPtr(70)},
	}
	for _, row := range rows {
		tx := &stubTx{}
		result, err := svc.transitionTx(context.Background(), tx, row, TransitionRequest{NewStatus: gate.StatusProcessed}, gate.StatusProcessed)
		if err != nil {
			t.Fatalf("article %d: unexpected error: %v", row.TopicArticleID, err)
		}
		if result.QueueItemCreated {
			t.Fatalf("article %d: below-floor scores must not enqueue", row.TopicArticleID)
		}
		if inserts := tx.execsMatching("mill.content_generation_queue"); len(inserts) != 0 {
			t.Fatalf("article %d: expected no queue insert, got %d", row.TopicArticleID, len(inserts))
		}
	}
}

package ingest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/storymill/storymill/internal/db"
	"github.com/storymill/storymill/internal/gate"
	payloadschema "github.com/storymill/storymill/schema"
)

func TestResolveLanguage(t *testing.T) {
	t.Parallel()

	declared := "EN-us"
	if got := resolveLanguage(&declared, ""); got != "en" {
		t.Fatalf("expected declared language to win, got %q", got)
	}

	blank := "  "
	sample := "The council met on Tuesday to approve the annual budget for the coming fiscal year."
	if got := resolveLanguage(&blank, sample); got != "en" {
		t.Fatalf("expected detection fallback to return en, got %q", got)
	}

	if got := resolveLanguage(nil, "xq"); got != "und" {
		t.Fatalf("expected und for undetectable text, got %q", got)
	}
}

func TestMarshalMetadata(t *testing.T) {
	t.Parallel()

	if got := marshalMetadata(nil); got != nil {
		t.Fatalf("expected nil for empty metadata, got %s", got)
	}
	got := marshalMetadata(map[string]any{"job_run_id": "run_1"})
	if string(got) != `{"job_run_id":"run_1"}` {
		t.Fatalf("unexpected metadata JSON: %s", got)
	}
}

func TestDiscardReasonLabel(t *testing.T) {
	t.Parallel()

	wordFloor := gate.Decision{Discard: true, Reason: "word count 80 below minimum 150"}
	if got := discardReasonLabel(wordFloor); got != "below_word_count" {
		t.Fatalf("unexpected label: %q", got)
	}

	relevance := gate.Decision{
		Discard:   true,
		Rejection: &gate.Rejection{RejectionReason: "below_relevance_threshold"},
	}
	if got := discardReasonLabel(relevance); got != "below_relevance_threshold" {
		t.Fatalf("unexpected label: %q", got)
	}
}

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }

// stubContentStore serves the normalized-URL lookup and insert queries
// from memory.
type stubContentStore struct {
	rowsByURL map[string]int64
	nextID    int64
	queries   []string
}

func (s *stubContentStore) QueryRow(_ context.Context, query string, args ...any) db.Row {
	s.queries = append(s.queries, query)
	switch {
	case strings.Contains(query, "INSERT INTO mill.shared_article_content"):
		id := s.nextID
		s.nextID++
		return scanFunc(func(dest ...any) error {
			*(dest[0].(*int64)) = id
			return nil
		})
	case strings.Contains(query, "SELECT content_id"):
		url, _ := args[0].(string)
		if id, ok := s.rowsByURL[url]; ok {
			return scanFunc(func(dest ...any) error {
				*(dest[0].(*int64)) = id
				return nil
			})
		}
		return scanFunc(func(...any) error { return db.ErrNoRows })
	}
	return scanFunc(func(...any) error { return db.ErrNoRows })
}

func TestFindOrCreateContent_SameBodyNewURLGetsOwnRow(t *testing.T) {
	t.Parallel()

	// An earlier row holds this exact body under a different URL. The new
	// URL must still get its own content row so duplicate detection can
	// surface the checksum match for review.
	store := &stubContentStore{
		rowsByURL: map[string]int64{"https://other-feed.example.com/story": 11},
		nextID:    12,
	}
	payload := &payloadschema.ArticlePayload{
		TopicSlug: "harbor-city",
		URL:       "https://example.com/story",
		Title:     "Story",
	}
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	contentID, err := findOrCreateContent(context.Background(), store, payload, "https://example.com/story", "body text", 2, "abc123checksum", "en", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contentID != 12 {
		t.Fatalf("expected a fresh content row, got id %d", contentID)
	}
	for _, q := range store.queries {
		if strings.Contains(q, "WHERE content_checksum") {
			t.Fatalf("content lookup must not match on checksum, got query:\n%s", q)
		}
	}
}

func TestFindOrCreateContent_ExistingURLReused(t *testing.T) {
	t.Parallel()

	store := &stubContentStore{
		rowsByURL: map[string]int64{"https://example.com/story": 7},
		nextID:    8,
	}
	payload := &payloadschema.ArticlePayload{TopicSlug: "harbor-city", URL: "https://example.com/story", Title: "Story"}

	contentID, err := findOrCreateContent(context.Background(), store, payload, "https://example.com/story", "body", 1, "", "en", time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contentID != 7 {
		t.Fatalf("expected existing content row 7, got %d", contentID)
	}
}

func TestFindOrCreateContent_InsertRaceFallsBackToWinner(t *testing.T) {
	t.Parallel()

	// First lookup misses, the insert hits the unique index, the reread
	// finds the row a concurrent ingest committed in between.
	payload := &payloadschema.ArticlePayload{TopicSlug: "harbor-city", URL: "https://example.com/story", Title: "Story"}

	missOnce := true
	querier := querierFunc(func(ctx context.Context, query string, args ...any) db.Row {
		if strings.Contains(query, "SELECT content_id") && missOnce {
			missOnce = false
			return scanFunc(func(...any) error { return db.ErrNoRows })
		}
		if strings.Contains(query, "INSERT INTO") {
			return scanFunc(func(...any) error { return db.ErrNoRows })
		}
		return scanFunc(func(dest ...any) error {
			*(dest[0].(*int64)) = 21
			return nil
		})
	})

	contentID, err := findOrCreateContent(context.Background(), querier, payload, "https://example.com/story", "body", 1, "", "en", time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contentID != 21 {
		t.Fatalf("expected the winning row 21, got %d", contentID)
	}
}

type querierFunc func(ctx context.Context, query string, args ...any) db.Row

func (f querierFunc) QueryRow(ctx context.Context, query string, args ...any) db.Row {
	return f(ctx, query, args...)
}

func TestInsertTopicArticle_ConflictReturnsExistingRow(t *testing.T) {
	t.Parallel()

	// Lookup misses, the insert loses the unique-index race, the reread
	// reports the winner with created=false.
	svc := &Service{}
	calls := 0
	querier := querierFunc(func(ctx context.Context, query string, args ...any) db.Row {
		calls++
		switch {
		case strings.Contains(query, "INSERT INTO mill.topic_articles"):
			if !strings.Contains(query, "ON CONFLICT (topic_id, content_id) DO NOTHING") {
				return scanFunc(func(...any) error {
					return fmt.Errorf("insert must tolerate the unique pairing index, got query:\n%s", query)
				})
			}
			return scanFunc(func(...any) error { return db.ErrNoRows })
		case calls == 1:
			return scanFunc(func(...any) error { return db.ErrNoRows })
		default:
			return scanFunc(func(dest ...any) error {
				*(dest[0].(*int64)) = 31
				*(dest[1].(*string)) = "3f6f3f3a-0000-0000-0000-000000000000"
				*(dest[2].(*string)) = gate.StatusNew
				return nil
			})
		}
	})

	payload := &payloadschema.ArticlePayload{TopicSlug: "harbor-city", URL: "https://example.com/story", Title: "Story"}
	articleID, uuid, status, created, err := svc.insertTopicArticleWithStatus(context.Background(), querier, 7, 12, nil, payload, gate.StatusNew, "", time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatal("losing the insert race must report the row as pre-existing")
	}
	if articleID != 31 || uuid != "3f6f3f3a-0000-0000-0000-000000000000" || status != gate.StatusNew {
		t.Fatalf("unexpected winner row: id=%d uuid=%s status=%s", articleID, uuid, status)
	}
}

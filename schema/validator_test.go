package payloadschema

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidateArticlePayload_Valid(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"topic_slug":"springfield-local",
		"source_name":"Springfield Gazette",
		"url":"https://www.gazette.example.com/news/budget-vote",
		"title":"Council approves budget",
		"body_text":"The council met on Tuesday to approve the annual budget.",
		"published_at":"2026-08-12T14:00:00Z",
		"regional_relevance_score":22,
		"content_quality_score":70,
		"import_metadata":{"job_run_id":"run_2026_08_12_001"}
	}`)

	item, err := ValidateArticlePayload(payload)
	if err != nil {
		t.Fatalf("expected payload to be valid, got error: %v", err)
	}

	if item.TopicSlug != "springfield-local" {
		t.Fatalf("expected topic_slug=springfield-local, got %q", item.TopicSlug)
	}
	if item.RegionalRelevanceScore == nil || *item.RegionalRelevanceScore != 22 {
		t.Fatalf("unexpected relevance score: %v", item.RegionalRelevanceScore)
	}
}

func TestValidateArticlePayload_MissingRequired(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"topic_slug":"springfield-local",
		"title":"Missing url"
	}`)

	if _, err := ValidateArticlePayload(payload); err == nil {
		t.Fatal("expected validation to fail for missing url")
	}
}

func TestValidateArticlePayload_WhitespaceTitle(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"topic_slug":"springfield-local",
		"url":"https://example.com/a",
		"title":"   "
	}`)

	if _, err := ValidateArticlePayload(payload); err == nil {
		t.Fatal("expected validation to fail for whitespace title")
	}
}

func TestValidateArticlePayload_WrongVersion(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v2",
		"topic_slug":"springfield-local",
		"url":"https://example.com/a",
		"title":"t"
	}`)

	if _, err := ValidateArticlePayload(payload); err == nil {
		t.Fatal("expected validation to fail for unsupported payload_version")
	}
}

func TestValidateArticlePayload_TrailingContent(t *testing.T) {
	payload := json.RawMessage(`{"payload_version":"v1","topic_slug":"s","url":"https://example.com/a","title":"t"} {}`)

	_, err := ValidateArticlePayload(payload)
	if err == nil {
		t.Fatal("expected validation to fail for trailing content")
	}
	if !strings.Contains(err.Error(), "trailing") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateArticlePayload_ScoreOutOfRange(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"topic_slug":"springfield-local",
		"url":"https://example.com/a",
		"title":"t",
		"content_quality_score":120
	}`)

	if _, err := ValidateArticlePayload(payload); err == nil {
		t.Fatal("expected validation to fail for out-of-range score")
	}
}

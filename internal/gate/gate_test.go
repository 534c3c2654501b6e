package gate

import (
	"encoding/json"
	"strings"
	"testing"
)

func testThresholds() Thresholds {
	return Thresholds{
		MinWordCount:        150,
		HyperlocalRelevance: 10,
		RegionalRelevance:   20,
		NationalRelevance:   30,
	}
}

func intPtr(v int) *int { return &v }

func TestEvaluate_WordCountFloor(t *testing.T) {
	t.Parallel()

	decision := Evaluate(Input{ProcessingStatus: StatusNew, WordCount: 149}, testThresholds())
	if !decision.Discard {
		t.Fatal("expected 149-word article to be discarded")
	}
	if !strings.Contains(decision.Reason, "149") || !strings.Contains(decision.Reason, "150") {
		t.Fatalf("expected reason to cite measured count and minimum, got %q", decision.Reason)
	}

	decision = Evaluate(Input{ProcessingStatus: StatusNew, WordCount: 150}, testThresholds())
	if decision.Discard {
		t.Fatalf("did not expect 150-word article to be discarded: %q", decision.Reason)
	}
}

func TestEvaluate_TopicWordCountOverride(t *testing.T) {
	t.Parallel()

	decision := Evaluate(Input{
		ProcessingStatus:  StatusNew,
		WordCount:         220,
		TopicMinWordCount: intPtr(300),
	}, testThresholds())
	if !decision.Discard {
		t.Fatal("expected topic-level minimum to apply")
	}
	if !strings.Contains(decision.Reason, "300") {
		t.Fatalf("expected reason to cite topic minimum, got %q", decision.Reason)
	}
}

func TestEvaluate_SourceTypeAwareRelevance(t *testing.T) {
	t.Parallel()

	thresholds := testThresholds()

	// Score 12 from a hyperlocal source clears the floor of 10.
	decision := Evaluate(Input{
		ProcessingStatus: StatusNew,
		WordCount:        500,
		RelevanceScore:   intPtr(12),
		SourceType:       SourceTypeHyperlocal,
	}, thresholds)
	if decision.Discard {
		t.Fatalf("expected hyperlocal score 12 to pass, got discard: %q", decision.Reason)
	}

	// The identical score from a national source is discarded.
	decision = Evaluate(Input{
		ProcessingStatus: StatusNew,
		WordCount:        500,
		RelevanceScore:   intPtr(12),
		SourceType:       SourceTypeNational,
	}, thresholds)
	if !decision.Discard {
		t.Fatal("expected national score 12 to be discarded")
	}
	if decision.Rejection == nil {
		t.Fatal("expected a structured rejection")
	}
	if decision.Rejection.MinThreshold != 30 || decision.Rejection.RelevanceScore != 12 {
		t.Fatalf("unexpected rejection: %+v", decision.Rejection)
	}
	if decision.Rejection.SourceType != SourceTypeNational {
		t.Fatalf("unexpected rejection source type: %q", decision.Rejection.SourceType)
	}

	// A raised hyperlocal floor flips the same article to discarded.
	thresholds.HyperlocalRelevance = 15
	decision = Evaluate(Input{
		ProcessingStatus: StatusNew,
		WordCount:        500,
		RelevanceScore:   intPtr(12),
		SourceType:       SourceTypeHyperlocal,
	}, thresholds)
	if !decision.Discard {
		t.Fatal("expected hyperlocal score 12 to fail a floor of 15")
	}
}

func TestEvaluate_UnknownSourceTypeUsesNationalFloor(t *testing.T) {
	t.Parallel()

	decision := Evaluate(Input{
		ProcessingStatus: StatusNew,
		WordCount:        500,
		RelevanceScore:   intPtr(25),
		SourceType:       "syndicated",
	}, testThresholds())
	if !decision.Discard {
		t.Fatal("expected unknown source type to be held to the national floor")
	}
	if decision.Rejection.SourceType != "syndicated" {
		t.Fatalf("unexpected rejection source type: %q", decision.Rejection.SourceType)
	}
}

func TestEvaluate_DiscardedIsIdempotent(t *testing.T) {
	t.Parallel()

	decision := Evaluate(Input{
		ProcessingStatus: StatusDiscarded,
		WordCount:        3,
		RelevanceScore:   intPtr(0),
	}, testThresholds())
	if decision.Discard {
		t.Fatal("already-discarded articles must pass through untouched")
	}
}

func TestEvaluate_RelevanceSkippedWhenProcessed(t *testing.T) {
	t.Parallel()

	decision := Evaluate(Input{
		ProcessingStatus: StatusProcessed,
		WordCount:        500,
		RelevanceScore:   intPtr(1),
		SourceType:       SourceTypeNational,
	}, testThresholds())
	if decision.Discard {
		t.Fatal("relevance floor only applies to new articles")
	}
}

func TestCompetingRegionMention(t *testing.T) {
	t.Parallel()

	region, found := CompetingRegionMention(
		"Rivertown council approves stadium deal",
		[]string{"Lakeside", "Rivertown"},
	)
	if !found || region != "Rivertown" {
		t.Fatalf("expected Rivertown mention, got %q found=%t", region, found)
	}

	if _, found := CompetingRegionMention("County budget passes", []string{"Lakeside"}); found {
		t.Fatal("did not expect a competing region mention")
	}
}

func TestAppendRejection_Additive(t *testing.T) {
	t.Parallel()

	existing := json.RawMessage(`{"scraper":"rss-worker","rejections":[{"rejection_reason":"old","relevance_score":1,"min_threshold":2,"source_type":"regional"}]}`)
	merged := AppendRejection(existing, Rejection{
		RejectionReason: "below_relevance_threshold",
		RelevanceScore:  12,
		MinThreshold:    30,
		SourceType:      SourceTypeNational,
	})

	var decoded struct {
		Scraper    string      `json:"scraper"`
		Rejections []Rejection `json:"rejections"`
	}
	if err := json.Unmarshal(merged, &decoded); err != nil {
		t.Fatalf("merged metadata is not valid JSON: %v", err)
	}
	if decoded.Scraper != "rss-worker" {
		t.Fatalf("prior metadata key was lost: %+v", decoded)
	}
	if len(decoded.Rejections) != 2 {
		t.Fatalf("expected 2 rejections, got %d", len(decoded.Rejections))
	}
	if decoded.Rejections[1].MinThreshold != 30 {
		t.Fatalf("unexpected appended rejection: %+v", decoded.Rejections[1])
	}
}

func TestAppendRejection_EmptyAndInvalidMetadata(t *testing.T) {
	t.Parallel()

	merged := AppendRejection(nil, Rejection{RejectionReason: "below_relevance_threshold"})
	var decoded map[string]any
	if err := json.Unmarshal(merged, &decoded); err != nil {
		t.Fatalf("merged metadata is not valid JSON: %v", err)
	}
	if _, ok := decoded["rejections"]; !ok {
		t.Fatal("expected rejections key")
	}

	merged = AppendRejection(json.RawMessage(`not json`), Rejection{RejectionReason: "x"})
	if err := json.Unmarshal(merged, &decoded); err != nil {
		t.Fatalf("expected invalid metadata to be replaced, got: %v", err)
	}
}

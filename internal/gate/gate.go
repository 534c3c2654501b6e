// Package gate decides whether an ingested article clears the word-count and
// regional-relevance floors. Failing the gate is a status demotion, never an
// insertion error.
package gate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/storymill/storymill/internal/content"
)

const (
	StatusNew       = "new"
	StatusProcessed = "processed"
	StatusDiscarded = "discarded"
)

const (
	SourceTypeHyperlocal = "hyperlocal"
	SourceTypeRegional   = "regional"
	SourceTypeNational   = "national"
)

// Thresholds is the versioned gate configuration. All values come from
// config, never from constants scattered through the pipeline.
type Thresholds struct {
	MinWordCount        int
	HyperlocalRelevance int
	RegionalRelevance   int
	NationalRelevance   int
}

// RelevanceFloor resolves the source-type-aware relevance minimum. Unknown
// source types are held to the national floor, the strictest default.
func (t Thresholds) RelevanceFloor(sourceType string) int {
	switch strings.ToLower(strings.TrimSpace(sourceType)) {
	case SourceTypeHyperlocal:
		return t.HyperlocalRelevance
	case SourceTypeRegional:
		return t.RegionalRelevance
	default:
		return t.NationalRelevance
	}
}

// Input is the slice of article state the gate inspects.
type Input struct {
	ProcessingStatus  string
	WordCount         int
	RelevanceScore    *int
	SourceType        string
	TopicMinWordCount *int
}

// Rejection is the structured reason appended to the article's metadata when
// the relevance floor demotes it.
type Rejection struct {
	RejectionReason string `json:"rejection_reason"`
	RelevanceScore  int    `json:"relevance_score"`
	MinThreshold    int    `json:"min_threshold"`
	SourceType      string `json:"source_type"`
}

// Decision is the gate outcome. A nil Rejection with Discard set means the
// word-count floor fired; Reason is always human-readable.
type Decision struct {
	Discard   bool
	Reason    string
	Rejection *Rejection
}

// Evaluate applies the word-count floor and then the relevance floor.
// Articles already discarded pass through untouched so re-evaluation never
// rewrites an existing discard reason.
func Evaluate(in Input, t Thresholds) Decision {
	if strings.EqualFold(strings.TrimSpace(in.ProcessingStatus), StatusDiscarded) {
		return Decision{}
	}

	minWords := t.MinWordCount
	if in.TopicMinWordCount != nil && *in.TopicMinWordCount > 0 {
		minWords = *in.TopicMinWordCount
	}
	if in.WordCount < minWords {
		return Decision{
			Discard: true,
			Reason:  fmt.Sprintf("word count %d below minimum %d", in.WordCount, minWords),
		}
	}

	if in.RelevanceScore != nil && strings.EqualFold(strings.TrimSpace(in.ProcessingStatus), StatusNew) {
		floor := t.RelevanceFloor(in.SourceType)
		if *in.RelevanceScore < floor {
			sourceType := strings.ToLower(strings.TrimSpace(in.SourceType))
			if sourceType == "" {
				sourceType = SourceTypeNational
			}
			return Decision{
				Discard: true,
				Reason:  fmt.Sprintf("relevance score %d below %s threshold %d", *in.RelevanceScore, sourceType, floor),
				Rejection: &Rejection{
					RejectionReason: "below_relevance_threshold",
					RelevanceScore:  *in.RelevanceScore,
					MinThreshold:    floor,
					SourceType:      sourceType,
				},
			}
		}
	}

	return Decision{}
}

// CompetingRegionMention reports the first competing region named in the
// title. Advisory only: substring matches on region names false-positive too
// often to gate on.
func CompetingRegionMention(title string, competingRegions []string) (string, bool) {
	for _, region := range competingRegions {
		if content.ContainsRegion(title, region) {
			return region, true
		}
	}
	return "", false
}

// AppendRejection merges a rejection object into the article's import
// metadata under the "rejections" array. Existing metadata keys are never
// overwritten; invalid existing metadata is replaced with a fresh object
// rather than failing the demotion.
func AppendRejection(metadata json.RawMessage, rejection Rejection) json.RawMessage {
	blob := map[string]json.RawMessage{}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &blob); err != nil {
			blob = map[string]json.RawMessage{}
		}
	}

	var rejections []Rejection
	if existing, ok := blob["rejections"]; ok {
		_ = json.Unmarshal(existing, &rejections)
	}
	rejections = append(rejections, rejection)

	encoded, err := json.Marshal(rejections)
	if err != nil {
		return metadata
	}
	blob["rejections"] = encoded

	merged, err := json.Marshal(blob)
	if err != nil {
		return metadata
	}
	return merged
}

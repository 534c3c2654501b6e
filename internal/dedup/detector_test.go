package dedup

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/storymill/storymill/internal/content"
)

func TestNewDetector_ThresholdFallback(t *testing.T) {
	t.Parallel()

	d := NewDetector(nil, zerolog.Nop(), 0)
	if d.threshold != 0.7 {
		t.Fatalf("expected fallback threshold 0.7, got %f", d.threshold)
	}
	d = NewDetector(nil, zerolog.Nop(), 1.5)
	if d.threshold != 0.7 {
		t.Fatalf("expected out-of-range threshold to fall back, got %f", d.threshold)
	}
	d = NewDetector(nil, zerolog.Nop(), 0.85)
	if d.threshold != 0.85 {
		t.Fatalf("expected configured threshold to be kept, got %f", d.threshold)
	}
}

// The detector flags pairs at or above the threshold and skips pairs below
// it; near-identical titles must land on the flagged side.
func TestThresholdSeparatesNearDuplicates(t *testing.T) {
	t.Parallel()

	const threshold = 0.7

	same := content.TrigramSimilarity(
		"City council approves new downtown housing development",
		"City council approves new downtown housing developments",
	)
	if same < threshold {
		t.Fatalf("expected near-identical titles above threshold, got %f", same)
	}

	different := content.TrigramSimilarity(
		"City council approves new downtown housing development",
		"Road closures expected during marathon weekend",
	)
	if different >= threshold {
		t.Fatalf("expected unrelated titles below threshold, got %f", different)
	}
}

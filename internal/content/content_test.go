package content

import "testing"

func TestNormalizeText(t *testing.T) {
	t.Parallel()

	if got := NormalizeText("  City\tCouncil \n Votes  "); got != "city council votes" {
		t.Fatalf("unexpected normalized text: %q", got)
	}
	if got := NormalizeText("   "); got != "" {
		t.Fatalf("expected empty result for blank input, got %q", got)
	}
}

func TestWordCount(t *testing.T) {
	t.Parallel()

	if got := WordCount("one two  three\nfour"); got != 4 {
		t.Fatalf("unexpected word count: %d", got)
	}
	if got := WordCount(" "); got != 0 {
		t.Fatalf("expected 0 for blank input, got %d", got)
	}
}

func TestChecksum(t *testing.T) {
	t.Parallel()

	// Whitespace and casing differences must not change the checksum.
	a := Checksum("The  Quick Brown Fox")
	b := Checksum("the quick\tbrown fox")
	if a == "" || a != b {
		t.Fatalf("expected equal checksums, got %q and %q", a, b)
	}

	if got := Checksum(""); got != "" {
		t.Fatalf("expected empty checksum for empty body, got %q", got)
	}
	if Checksum("alpha") == Checksum("beta") {
		t.Fatal("expected different checksums for different bodies")
	}
}

func TestTrigramSimilarity(t *testing.T) {
	t.Parallel()

	if got := TrigramSimilarity("city approves budget", "city approves budget"); got != 1 {
		t.Fatalf("expected 1.0 for identical titles, got %f", got)
	}

	partial := TrigramSimilarity("city approves new budget", "city approves new park")
	if partial <= 0 || partial >= 1 {
		t.Fatalf("expected partial similarity in (0,1), got %f", partial)
	}

	if got := TrigramSimilarity("", "anything"); got != 0 {
		t.Fatalf("expected 0 for empty input, got %f", got)
	}
	if got := TrigramSimilarity("zzzz", "qqqq"); got != 0 {
		t.Fatalf("expected 0 for disjoint trigrams, got %f", got)
	}
}

func TestTrigramSimilarity_Ordering(t *testing.T) {
	t.Parallel()

	base := "mayor announces downtown revitalization plan"
	closer := TrigramSimilarity(base, "mayor announces downtown revitalization plans")
	further := TrigramSimilarity(base, "mayor announces a downtown plan")
	if closer <= further {
		t.Fatalf("expected closer title to score higher: %f vs %f", closer, further)
	}
}

func TestContainsRegion(t *testing.T) {
	t.Parallel()

	if !ContainsRegion("Flood warnings issued for Springfield county", "springfield") {
		t.Fatal("expected region mention to be found")
	}
	if ContainsRegion("Flood warnings issued", "springfield") {
		t.Fatal("did not expect region mention")
	}
	if ContainsRegion("anything", "") {
		t.Fatal("blank region must never match")
	}
}

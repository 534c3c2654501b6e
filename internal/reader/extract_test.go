package reader

import "testing"

func TestCleanText(t *testing.T) {
	t.Parallel()

	raw := "  First   line \r\n\r\n Second\tline \r trailing  "
	want := "First line\n\nSecond line\n\ntrailing"
	if got := CleanText(raw); got != want {
		t.Fatalf("unexpected cleaned text: %q", got)
	}
	if got := CleanText(" \n \r\n "); got != "" {
		t.Fatalf("expected empty result for whitespace input, got %q", got)
	}
}

func TestExtractTextFallsBackToTitle(t *testing.T) {
	t.Parallel()

	got, err := ExtractText("", "https://example.com/a", "Council Approves Budget")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Council Approves Budget" {
		t.Fatalf("unexpected fallback text: %q", got)
	}
}

func TestExtractTextFromHTML(t *testing.T) {
	t.Parallel()

	html := `<html><head><title>t</title></head><body><article><p>The council met on Tuesday to approve the annual budget.</p><p>Residents raised concerns about road maintenance funding.</p></article></body></html>`
	got, err := ExtractText(html, "https://example.com/news/budget", "Budget")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == "" {
		t.Fatal("expected extracted text, got empty string")
	}
}

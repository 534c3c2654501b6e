package urlnorm

import "testing"

func TestNormalize_EquivalenceClasses(t *testing.T) {
	t.Parallel()

	left := Normalize("https://www.example.com/a?utm_source=x")
	right := Normalize("http://example.com/a")
	if left != right {
		t.Fatalf("expected equal normalized URLs, got %q and %q", left, right)
	}
	if left != "example.com/a" {
		t.Fatalf("unexpected normalized URL: %q", left)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"https://WWW.Example.com:443/News/Story/?utm_campaign=x&id=7#comments",
		"http://m.site.org:80/a/b?fbclid=abc&page=2",
		"amp.news.example/path/",
		"example.com/plain",
	}
	for _, input := range inputs {
		once := Normalize(input)
		twice := Normalize(once)
		if once != twice {
			t.Fatalf("normalize not idempotent for %q: %q vs %q", input, once, twice)
		}
	}
}

func TestNormalize_StripsTrackingKeepsOthers(t *testing.T) {
	t.Parallel()

	got := Normalize("https://site.com/x?utm_source=fb&gclid=1&page=3&ref=home&q=term")
	if got != "site.com/x?page=3&q=term" {
		t.Fatalf("unexpected normalized URL: %q", got)
	}
}

func TestNormalize_DanglingSeparators(t *testing.T) {
	t.Parallel()

	if got := Normalize("https://site.com/x?utm_source=fb"); got != "site.com/x" {
		t.Fatalf("expected dangling ? to be removed, got %q", got)
	}
	if got := Normalize("https://site.com/x?utm_source=fb&_ga=2.1"); got != "site.com/x" {
		t.Fatalf("expected all-tracking query to be removed, got %q", got)
	}
}

func TestNormalize_HostPrefixesAndPorts(t *testing.T) {
	t.Parallel()

	if got := Normalize("https://www.m.portal.example:443/story"); got != "portal.example/story" {
		t.Fatalf("unexpected normalized URL: %q", got)
	}
	// "m." must only match as a label prefix, not inside a hostname.
	if got := Normalize("https://medium.com/story"); got != "medium.com/story" {
		t.Fatalf("unexpected normalized URL: %q", got)
	}
	if got := Normalize("http://site.com:8080/story"); got != "site.com:8080/story" {
		t.Fatalf("expected non-default port to survive, got %q", got)
	}
}

func TestNormalize_Blank(t *testing.T) {
	t.Parallel()

	if got := Normalize("   "); got != "" {
		t.Fatalf("expected empty result for blank input, got %q", got)
	}
	if got := Normalize(""); got != "" {
		t.Fatalf("expected empty result for empty input, got %q", got)
	}
}

func TestNormalize_TrailingSlashAndFragment(t *testing.T) {
	t.Parallel()

	if got := Normalize("https://site.com/a/b/#section"); got != "site.com/a/b" {
		t.Fatalf("unexpected normalized URL: %q", got)
	}
}

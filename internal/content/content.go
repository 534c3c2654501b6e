// Package content provides the derived-content primitives the pipeline
// computes on ingested article text: normalization, word counts, checksums
// and trigram similarity.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// NormalizeText lower-cases, collapses whitespace and drops control runes.
func NormalizeText(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	lastSpace := false
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}

// WordCount counts whitespace-separated words in free text.
func WordCount(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return len(strings.Fields(text))
}

// Checksum returns the hex sha256 of the normalized body, or "" for empty
// bodies so that empty content never checksum-matches other empty content.
func Checksum(body string) string {
	normalized := NormalizeText(body)
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// TrigramSimilarity is the Jaccard similarity of the character trigram sets
// of both inputs, after text normalization. Range [0, 1].
func TrigramSimilarity(left, right string) float64 {
	leftSet := trigramSet(left)
	rightSet := trigramSet(right)
	if len(leftSet) == 0 || len(rightSet) == 0 {
		return 0
	}

	intersection := 0
	for token := range leftSet {
		if _, ok := rightSet[token]; ok {
			intersection++
		}
	}
	if intersection == 0 {
		return 0
	}

	union := len(leftSet) + len(rightSet) - intersection
	if union <= 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func trigramSet(text string) map[string]struct{} {
	normalized := NormalizeText(text)
	if normalized == "" {
		return nil
	}

	runes := []rune(normalized)
	if len(runes) < 3 {
		return map[string]struct{}{string(runes): {}}
	}

	set := make(map[string]struct{}, len(runes)-2)
	for i := 0; i <= len(runes)-3; i++ {
		set[string(runes[i:i+3])] = struct{}{}
	}
	return set
}

// ContainsRegion reports whether a normalized title mentions a region name.
// Plain substring matching; callers treat hits as advisory only because
// region names show up in unrelated contexts.
func ContainsRegion(title, region string) bool {
	normalizedTitle := NormalizeText(title)
	normalizedRegion := NormalizeText(region)
	if normalizedTitle == "" || normalizedRegion == "" {
		return false
	}
	return strings.Contains(normalizedTitle, normalizedRegion)
}

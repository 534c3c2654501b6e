// Package language normalizes the language tags arriving on scraped
// payloads. Scrapers report anything from bare ISO 639-1 codes to full
// BCP 47 tags, with inconsistent casing and separators.
package language

import "strings"

// NormalizeTag lowercases a language tag and settles on "-" between
// subtags. Blank or malformed tags normalize to "".
func NormalizeTag(raw string) string {
	subtags := strings.FieldsFunc(strings.ToLower(strings.TrimSpace(raw)), func(r rune) bool {
		return r == '-' || r == '_'
	})
	if len(subtags) == 0 {
		return ""
	}
	for _, subtag := range subtags {
		for _, r := range subtag {
			if r < 'a' || r > 'z' {
				return ""
			}
		}
	}
	return strings.Join(subtags, "-")
}

// NormalizeCode reduces a tag to its primary subtag, so "en-US" and
// "en_gb" both come back as "en". Shared content rows store only the
// primary code.
func NormalizeCode(raw string) string {
	tag := NormalizeTag(raw)
	if tag == "" {
		return ""
	}
	code, _, _ := strings.Cut(tag, "-")
	return code
}

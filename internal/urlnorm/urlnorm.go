// Package urlnorm canonicalizes raw article URLs into stable dedup keys.
package urlnorm

import "strings"

var trackingParamKeys = map[string]struct{}{
	"fbclid": {},
	"gclid":  {},
	"ref":    {},
	"source": {},
	"_ga":    {},
	"_gid":   {},
}

var hostPrefixes = []string{"www.", "m.", "amp."}

// Normalize canonicalizes a raw URL: lower-case, no scheme, no www/mobile/AMP
// prefix, no default port, no tracking params, no fragment, no trailing slash.
// Returns "" for blank input. Never fails; unparseable input comes back
// under-normalized, which only costs dedup recall.
//
// Normalize is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}

	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}

	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "https://")

	for stripped := true; stripped; {
		stripped = false
		for _, prefix := range hostPrefixes {
			if strings.HasPrefix(s, prefix) && len(s) > len(prefix) {
				s = s[len(prefix):]
				stripped = true
			}
		}
	}

	path := s
	query := ""
	if i := strings.IndexByte(s, '?'); i >= 0 {
		path = s[:i]
		query = s[i+1:]
	}

	path = stripDefaultPort(path)
	if strings.HasSuffix(path, "/") && path != "/" {
		path = strings.TrimSuffix(path, "/")
	}

	query = filterTrackingParams(query)
	if query == "" {
		return path
	}
	return path + "?" + query
}

func stripDefaultPort(path string) string {
	host := path
	rest := ""
	if i := strings.IndexByte(path, '/'); i >= 0 {
		host = path[:i]
		rest = path[i:]
	}
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimSuffix(host, ":443")
	return host + rest
}

func filterTrackingParams(query string) string {
	if query == "" {
		return ""
	}

	parts := strings.Split(query, "&")
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		key := part
		if i := strings.IndexByte(part, '='); i >= 0 {
			key = part[:i]
		}
		if strings.HasPrefix(key, "utm_") {
			continue
		}
		if _, tracking := trackingParamKeys[key]; tracking {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, "&")
}

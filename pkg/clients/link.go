package clients

import (
	"net/http"
	"strings"
)

// ParseLinkHeader parses an RFC 5988 Link header into a map of rel to URL.
//
//	<https://shop/admin/api/2024-01/orders.json?page_info=abc&limit=250>; rel="next"
func ParseLinkHeader(header string) map[string]string {
	links := make(map[string]string)
	for _, part := range splitLinks(header) {
		target, params, ok := splitLink(strings.TrimSpace(part))
		if !ok {
			continue
		}

		for _, param := range strings.Split(params, ";") {
			key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
			if !ok || !strings.EqualFold(strings.TrimSpace(key), "rel") {
				continue
			}
			value = strings.Trim(strings.TrimSpace(value), `"`)
			// rel may hold several space separated relation types
			for _, rel := range strings.Fields(value) {
				links[strings.ToLower(rel)] = target
			}
		}
	}
	return links
}

// splitLink separates the target of one link from its parameters. Targets
// without angle brackets are accepted up to the first semicolon.
func splitLink(part string) (target, params string, ok bool) {
	if strings.HasPrefix(part, "<") {
		end := strings.Index(part, ">")
		if end < 0 {
			return "", "", false
		}
		return part[1:end], part[end+1:], true
	}
	target, params, ok = strings.Cut(part, ";")
	target = strings.TrimSpace(target)
	return target, params, ok && target != ""
}

// NextLink returns the rel="next" URL of a response, or "" on the last page.
func NextLink(h http.Header) string {
	var next string
	for _, v := range h.Values("Link") {
		if u, ok := ParseLinkHeader(v)["next"]; ok {
			next = u
		}
	}
	return next
}

// splitLinks splits on commas that are outside <...>, since page_info
// cursors and query strings may contain commas.
func splitLinks(header string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range header {
		switch r {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, header[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, header[start:])
}

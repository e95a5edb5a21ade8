// Package sanitize recursively cleans user-echoed strings and structures
// before they reach an error body or log line, per the specification's
// error-handling design (§7).
package sanitize

import (
	"regexp"
	"strings"
)

const (
	maxStringLen = 512
	maxArrayLen  = 3
)

var dangerousSchemes = []string{"javascript:", "data:", "vbscript:", "file:"}

var (
	eventHandlerPattern = regexp.MustCompile(`(?i)on[a-z]+\s*=`)
	traversalPattern    = regexp.MustCompile(`\.\./|\.\.\\`)
	controlCharPattern  = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
)

// String HTML-escapes, strips dangerous URL schemes and event-handler
// patterns, removes path-traversal sequences and control characters, and
// bounds the result's length. Repeated application is idempotent.
func String(s string) string {
	s = controlCharPattern.ReplaceAllString(s, "")
	s = traversalPattern.ReplaceAllString(s, "")
	s = eventHandlerPattern.ReplaceAllString(s, "[FILTERED]")

	lower := strings.ToLower(s)
	for _, scheme := range dangerousSchemes {
		if strings.Contains(lower, scheme) {
			s = replaceFold(s, scheme, "[FILTERED]")
			lower = strings.ToLower(s)
		}
	}

	s = escapeAngleBrackets(s)
	// collapse repeated filter markers left by the passes above.
	s = collapseRepeats(s, "[FILTERED]")

	if len(s) > maxStringLen {
		s = s[:maxStringLen]
	}
	return s
}

// escapeAngleBrackets escapes "<", ">", '"', and "'" but deliberately
// leaves "&" alone, unlike html.EscapeString. Escaping "&" would turn a
// prior pass's "&lt;" into "&amp;lt;" on the next pass, breaking
// idempotence; since only the four quoting characters are ever
// rewritten, and none of them appear in the entities this function
// produces, re-applying it is a no-op.
func escapeAngleBrackets(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&#34;")
		case '\'':
			b.WriteString("&#39;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func replaceFold(s, old, new string) string {
	lower := strings.ToLower(s)
	oldLower := strings.ToLower(old)
	var b strings.Builder
	i := 0
	for {
		idx := strings.Index(lower[i:], oldLower)
		if idx < 0 {
			b.WriteString(s[i:])
			break
		}
		b.WriteString(s[i : i+idx])
		b.WriteString(new)
		i += idx + len(old)
	}
	return b.String()
}

func collapseRepeats(s, marker string) string {
	doubled := marker + marker
	for strings.Contains(s, doubled) {
		s = strings.ReplaceAll(s, doubled, marker)
	}
	return s
}

// Value recursively sanitizes strings, maps, and slices. Arrays longer
// than three entries are truncated with a synthetic sentinel so large
// payloads cannot be used to inflate error bodies or logs.
func Value(v any) any {
	switch t := v.(type) {
	case string:
		return String(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[String(k)] = Value(val)
		}
		return out
	case []any:
		n := len(t)
		limit := n
		truncated := false
		if n > maxArrayLen {
			limit = maxArrayLen
			truncated = true
		}
		out := make([]any, 0, limit+1)
		for i := 0; i < limit; i++ {
			out = append(out, Value(t[i]))
		}
		if truncated {
			out = append(out, "… and more")
		}
		return out
	default:
		return v
	}
}

// Package extract pulls structured payloads out of free-form model output.
// Classifier and generator responses sometimes arrive wrapped in markdown
// code fences or with prose around the JSON body; every call site that needs
// a structured value goes through this package rather than scattering ad hoc
// parsing through the codebase.
package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JSON unmarshals the first JSON object or array found in text into v.
// It tolerates markdown code fences and leading/trailing prose. When no
// parseable JSON payload exists, an error is returned and the caller should
// fall back to treating the text as plain output.
func JSON(text string, v any) error {
	candidate := StripFences(text)

	// Fast path: the whole (fence-stripped) text is the payload.
	if err := json.Unmarshal([]byte(candidate), v); err == nil {
		return nil
	}

	// Slow path: find the outermost object or array embedded in prose.
	if payload, ok := firstJSONSpan(candidate); ok {
		if err := json.Unmarshal([]byte(payload), v); err == nil {
			return nil
		}
	}

	return fmt.Errorf("extract: no parseable JSON payload in model output")
}

// StripFences removes a surrounding markdown code fence (``` or ```json)
// from text, returning the inner content trimmed. Text without a fence is
// returned trimmed but otherwise unchanged.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	// Drop an optional language tag on the opening fence line.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		firstLine := strings.TrimSpace(s[:idx])
		if firstLine == "" || isLanguageTag(firstLine) {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Answer normalizes a free-text model response: fences stripped, surrounding
// quotes removed, whitespace trimmed.
func Answer(text string) string {
	s := StripFences(text)
	s = strings.Trim(s, "\"")
	return strings.TrimSpace(s)
}

// firstJSONSpan returns the first balanced {...} or [...] span in s.
func firstJSONSpan(s string) (string, bool) {
	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			open = s[i]
			close = '}'
			if open == '[' {
				close = ']'
			}
			break
		}
	}
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// isLanguageTag reports whether s looks like a fence language identifier
// (short, single token, no spaces).
func isLanguageTag(s string) bool {
	return len(s) <= 12 && !strings.ContainsAny(s, " \t{[")
}

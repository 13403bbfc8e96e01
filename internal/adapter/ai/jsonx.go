package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// ExtractJSON parses an LLM text response into an object. It tries a direct
// parse, then the outermost balanced {...} block, then truncation repair.
// The second return reports whether repair was needed.
func ExtractJSON(s string) (map[string]any, bool, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, false, fmt.Errorf("%w: empty response", domain.ErrSchemaInvalid)
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
		return out, false, nil
	}

	if block, ok := outermostObject(trimmed); ok {
		if err := json.Unmarshal([]byte(block), &out); err == nil {
			return out, false, nil
		}
		if repaired, ok := repairTruncated(block); ok {
			if err := json.Unmarshal([]byte(repaired), &out); err == nil {
				return out, true, nil
			}
		}
	}

	snippet := trimmed
	if len(snippet) > 500 {
		snippet = snippet[:500]
	}
	return nil, false, fmt.Errorf("%w: unparseable response: %s", domain.ErrSchemaInvalid, snippet)
}

// outermostObject returns the substring from the first '{' to its matching
// brace, tracking string and escape state. When the input ends before the
// braces balance it returns the open tail so repair can finish it.
func outermostObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '{':
			depth++
		case !inString && c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return s[start:], true
}

// repairTruncated closes an unterminated string, then appends the missing
// ']' and '}' in the order the open brackets were entered.
func repairTruncated(s string) (string, bool) {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && (c == '{' || c == '['):
			stack = append(stack, c)
		case !inString && (c == '}' || c == ']'):
			if len(stack) == 0 {
				return "", false
			}
			open := stack[len(stack)-1]
			if (c == '}' && open != '{') || (c == ']' && open != '[') {
				return "", false
			}
			stack = stack[:len(stack)-1]
		}
	}
	if !inString && len(stack) == 0 {
		return s, true
	}
	var b strings.Builder
	b.WriteString(s)
	if escaped {
		// drop the dangling backslash so the closing quote is not escaped
		b.Reset()
		b.WriteString(s[:len(s)-1])
	}
	if inString {
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '[' {
			b.WriteByte(']')
		} else {
			b.WriteByte('}')
		}
	}
	return b.String(), true
}

// Package contract implements the completion contract codec. Workers
// embed a small JSON envelope in otherwise free-form output to mark a
// capability as finished; the supervisor only advances a plan step when
// it decodes one. Worker output is untrusted free text, so decoding
// never fails hard: malformed input yields an absence signal.
package contract

import (
	"encoding/json"
	"strings"
)

// Contract is the completion signal a worker embeds in its final output.
type Contract struct {
	CompletedCapability string                 `json:"completed_capability"`
	Data                map[string]interface{} `json:"data,omitempty"`
}

// Decode extracts a completion contract from raw worker output. It
// first tries the whole text as one JSON object, then scans for the
// first top-level balanced {...} span. Returns false when no contract
// is present or the completed_capability field is missing, empty, or
// not a string; all of these mean the worker has not finished.
func Decode(raw string) (Contract, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Contract{}, false
	}

	if c, ok := parseContract(trimmed); ok {
		return c, true
	}

	span, ok := FirstJSONObject(trimmed)
	if !ok {
		return Contract{}, false
	}
	return parseContract(span)
}

// Encode serializes a contract canonically. Workers use this to emit
// their completion signal; it also anchors round-trip tests.
func Encode(c Contract) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func parseContract(s string) (Contract, bool) {
	var generic map[string]interface{}
	if err := json.Unmarshal([]byte(s), &generic); err != nil {
		return Contract{}, false
	}
	cap, ok := generic["completed_capability"].(string)
	if !ok || strings.TrimSpace(cap) == "" {
		return Contract{}, false
	}
	data, _ := generic["data"].(map[string]interface{})
	return Contract{CompletedCapability: cap, Data: data}, true
}

// FirstJSONObject returns the first top-level balanced {...} span in s,
// tracking brace depth and skipping braces inside quoted strings. The
// scan is bounded by the input length and never panics on unbalanced
// or truncated text.
func FirstJSONObject(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue // stray closer before any opener
			}
			depth--
			if depth == 0 && start != -1 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

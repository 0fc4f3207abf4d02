package classify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// decodeJSON locates the JSON object in noisy model output and decodes
// it into out. Malformed JSON gets one repair attempt before the
// original parse error is surfaced.
func decodeJSON(text string, out any) error {
	jsonStr := extractJSON(text)
	if jsonStr == "" {
		return fmt.Errorf("no JSON object found in model output (%d chars)", len(text))
	}

	err := json.Unmarshal([]byte(jsonStr), out)
	if err == nil {
		return nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(jsonStr)
	if repairErr != nil {
		return fmt.Errorf("parsing model output (%d chars): %w", len(jsonStr), err)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("parsing repaired model output: %w", err)
	}
	return nil
}

// extractJSON pulls a JSON object out of a response that may wrap it in
// markdown fences or surrounding prose. Returns "" when no object is
// found.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if idx := strings.Index(response, "```json"); idx != -1 {
		start := idx + len("```json")
		if end := strings.Index(response[start:], "```"); end != -1 {
			return strings.TrimSpace(response[start : start+end])
		}
	}

	if idx := strings.Index(response, "```"); idx != -1 {
		start := idx + 3
		if nl := strings.Index(response[start:], "\n"); nl != -1 {
			start += nl + 1
		}
		if end := strings.Index(response[start:], "```"); end != -1 {
			candidate := strings.TrimSpace(response[start : start+end])
			if strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	// Walk to the matching closing brace, ignoring braces inside strings.
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = inString
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return response[start : i+1]
				}
			}
		}
	}

	// Unbalanced object; hand the fragment to the repair pass.
	return response[start:]
}

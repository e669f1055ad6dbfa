// Package llmjson decodes JSON payloads produced by generative models. Models
// occasionally wrap the object in a code fence or prose; Decode tolerates that
// wrapping but nothing else.
package llmjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed marks content that is not a JSON object.
var ErrMalformed = errors.New("malformed json")

// Decode unmarshals content into target. Syntax problems wrap ErrMalformed;
// type mismatches are returned as *json.UnmarshalTypeError so callers can
// tell a broken payload from a schema violation.
func Decode(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	err := json.Unmarshal([]byte(trimmed), target)
	if err == nil {
		return nil
	}
	if sanitized := sanitize(trimmed); sanitized != "" && sanitized != trimmed {
		err = json.Unmarshal([]byte(sanitized), target)
		if err == nil {
			return nil
		}
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return typeErr
	}
	return fmt.Errorf("%w: %v (payload: %s)", ErrMalformed, err, snippet(trimmed))
}

func sanitize(content string) string {
	trimmed := stripCodeFence(content)
	if trimmed == "" || trimmed[0] == '{' {
		return trimmed
	}
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return strings.TrimSpace(trimmed[start : end+1])
		}
	}
	return trimmed
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimLeft(trimmed[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = strings.TrimLeft(body[4:], " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func snippet(s string) string {
	const max = 160
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

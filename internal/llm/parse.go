package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrMalformedReply = errors.New("malformed model reply")

// ParsePairs reads a "key: value" reply into a map with lower-cased keys.
// Pairs may be given one per line or comma separated on a single line.
func ParsePairs(text string) map[string]string {
	text = strings.TrimSpace(StripFences(text))

	var pairs []string
	if strings.Contains(text, "\n") {
		pairs = strings.Split(text, "\n")
	} else {
		pairs = strings.Split(text, ", ")
	}

	data := make(map[string]string)
	for _, pair := range pairs {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(strings.Trim(parts[0], "-*` ")))
		value := strings.TrimSpace(strings.Trim(strings.TrimSpace(parts[1]), "\"'`"))
		if key != "" {
			data[key] = value
		}
	}
	return data
}

// StripFences removes a surrounding markdown code fence, if any.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.Index(text, "\n"); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// DecodeJSON unmarshals the first JSON object found in a reply.
func DecodeJSON(text string, v any) error {
	text = StripFences(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return fmt.Errorf("%w: no JSON object", ErrMalformedReply)
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	return nil
}

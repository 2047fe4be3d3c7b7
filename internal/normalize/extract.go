package normalize

import (
	"strings"

	"github.com/ashureev/mentor-relay/internal/agent"
)

// extractor pulls text out of one field of a result. A present field ends
// the chain even when it yields no text.
type extractor struct {
	field string
	pull  func(v any) string
}

// extractors run in this order; an earlier match short-circuits later ones.
var extractors = []extractor{
	{field: "message", pull: fromMessage},
	{field: "content", pull: fromContent},
	{field: "text", pull: stringify},
	{field: "output", pull: stringify},
	{field: "data", pull: stringify},
}

// Extract returns the text carried by an agent result. When no known field
// is present, or the matched field yields nothing, the whole result is
// stringified.
func Extract(r agent.Result) string {
	if r == nil {
		return ""
	}
	for _, ex := range extractors {
		v, ok := r[ex.field]
		if !ok {
			continue
		}
		if text := ex.pull(v); text != "" {
			return text
		}
		break
	}
	return stringify(r)
}

// Response is Extract followed by Clean.
func Response(r agent.Result) string {
	return Clean(Extract(r))
}

func fromMessage(v any) string {
	switch m := v.(type) {
	case string:
		return m
	case map[string]any:
		content, ok := m["content"]
		if !ok {
			return stringify(m)
		}
		return fromContent(content)
	default:
		return stringify(v)
	}
}

// fromContent joins a non-empty list of {text} blocks with newlines. Blocks
// without text are stringified in place; any other shape is stringified.
func fromContent(v any) string {
	var blocks []any
	switch c := v.(type) {
	case []any:
		blocks = c
	case []map[string]any:
		for _, b := range c {
			blocks = append(blocks, b)
		}
	}
	if len(blocks) == 0 {
		return stringify(v)
	}

	parts := make([]string, 0, len(blocks))
	for _, block := range blocks {
		if m, ok := block.(map[string]any); ok {
			if text, ok := m["text"]; ok {
				parts = append(parts, stringify(text))
				continue
			}
		}
		parts = append(parts, stringify(block))
	}
	return strings.Join(parts, "\n")
}

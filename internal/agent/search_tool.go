package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/mentor-relay/internal/catalog"
	"github.com/ollama/ollama/api"
)

const (
	searchToolName    = "search_catalog"
	maxRenderedItems  = 10
	maxDescriptionLen = 280
)

// Searcher is the catalog surface the search tool needs.
type Searcher interface {
	Search(ctx context.Context, q catalog.Query) ([]catalog.Item, error)
	CoverURL(path string) string
}

// searchTool describes search_catalog to the model.
func searchTool() api.Tool {
	tool := api.Tool{
		Type: "function",
		Function: api.ToolFunction{
			Name:        searchToolName,
			Description: "Search the learning catalog for live content on a topic.",
		},
	}
	tool.Function.Parameters.Type = "object"
	tool.Function.Parameters.Properties = map[string]api.ToolProperty{
		"topic": {
			Type:        api.PropertyType{"string"},
			Description: `Topic slug, e.g. "python", "kubernetes", "machine-learning".`,
		},
		"content_format": {
			Type:        api.PropertyType{"string"},
			Description: `Optional format: "book", "video", "audiobook", "live-training" or "learning-path".`,
		},
	}
	tool.Function.Parameters.Required = []string{"topic"}
	return tool
}

// runSearchTool executes one tool call and renders the outcome as text for
// the model. Failures are reported in-band so the model can recover.
func runSearchTool(ctx context.Context, searcher Searcher, profile Profile, call api.ToolCall) string {
	if call.Function.Name != searchToolName {
		return fmt.Sprintf("unknown tool %q", call.Function.Name)
	}
	if searcher == nil {
		return "catalog search is unavailable"
	}

	topic := topicSlug(stringArg(call.Function.Arguments, "topic"))
	if topic == "" {
		return "search_catalog needs a topic"
	}
	format := stringArg(call.Function.Arguments, "content_format")
	if profile.ContentFormat != "" {
		format = profile.ContentFormat
	}

	items, err := searcher.Search(ctx, catalog.Query{TopicSlug: topic, ContentFormat: format})
	if err != nil {
		return fmt.Sprintf("search failed: %v", err)
	}
	if len(items) == 0 {
		return fmt.Sprintf("no %s results for %q", orDefault(format, "catalog"), topic)
	}
	return renderItems(searcher, items)
}

func renderItems(searcher Searcher, items []catalog.Item) string {
	if len(items) > maxRenderedItems {
		items = items[:maxRenderedItems]
	}
	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, orDefault(item.Title, "Untitled"))
		fmt.Fprintf(&b, "   type: %s | level: %s | length: %s\n",
			orDefault(item.ContentFormat, "unknown"), orDefault(item.Level, "unknown"), itemLength(item))
		if len(item.Authors) > 0 {
			fmt.Fprintf(&b, "   by: %s\n", strings.Join(item.Authors, ", "))
		}
		if desc := truncate(strings.TrimSpace(item.Description), maxDescriptionLen); desc != "" {
			fmt.Fprintf(&b, "   about: %s\n", desc)
		}
		if cover := searcher.CoverURL(item.Cover); cover != "" {
			fmt.Fprintf(&b, "   cover: %s\n", cover)
		}
		if item.WebURL != "" {
			fmt.Fprintf(&b, "   link: %s\n", item.WebURL)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func itemLength(item catalog.Item) string {
	switch {
	case item.DurationSeconds > 0:
		return formatDuration(int(item.DurationSeconds))
	case item.VirtualPages > 0:
		return fmt.Sprintf("%d pages", item.VirtualPages)
	default:
		return "unknown"
	}
}

func formatDuration(seconds int) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

func stringArg(args api.ToolCallFunctionArguments, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// topicSlug turns "Machine Learning" into "machine-learning".
func topicSlug(topic string) string {
	return strings.Join(strings.Fields(strings.ToLower(topic)), "-")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

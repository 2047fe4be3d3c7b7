// Package agent implements the content-search agents a session binds to.
package agent

import (
	"strings"
)

// Result is the output of a capability invocation. Its shape is not fixed:
// callers probe the message, content, text, output and data keys in order.
type Result map[string]any

// Content types accepted from clients.
const (
	ContentTypeAll             = "all"
	ContentTypeBooks           = "books"
	ContentTypeCourses         = "courses"
	ContentTypeAudiobooks      = "audiobooks"
	ContentTypeLiveEventSeries = "live-event-series"
)

// NormalizeContentType lowercases and trims a content type and maps the
// general-purpose values ("" and "all") to "".
func NormalizeContentType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == ContentTypeAll {
		return ""
	}
	return ct
}

// AssistantResult wraps text in the record shape agents return:
// {"message": {"role": "assistant", "content": [{"text": ...}]}}.
func AssistantResult(text string) Result {
	return Result{
		"message": map[string]any{
			"role": "assistant",
			"content": []any{
				map[string]any{"text": text},
			},
		},
	}
}

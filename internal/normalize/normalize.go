// Package normalize turns loosely shaped agent output into display text.
package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ashureev/mentor-relay/internal/agent"
)

var metaCommentary = []*regexp.Regexp{
	regexp.MustCompile(`(?im)^Thank you for providing.*`),
	regexp.MustCompile(`(?im)^I'll now (?:summarize|present|provide).*`),
	regexp.MustCompile(`(?im)^Let me (?:summarize|present|provide).*`),
	regexp.MustCompile(`(?im)^Here's (?:a summary|what I found).*search results.*`),
	regexp.MustCompile(`(?im)^Based on (?:the|your) search results.*`),
}

// Record-wrapper fragments left behind when a result was stringified
// instead of unwrapped. Keys may be single or double quoted.
var (
	leadingArtifacts = []*regexp.Regexp{
		regexp.MustCompile(`^['"]role['"]\s*:\s*['"]assistant['"]\s*,?\s*['"]?content['"]?\s*:\s*\[\s*\{\s*['"]text['"]\s*:\s*["']`),
		regexp.MustCompile(`^\{\s*['"]content['"]\s*:\s*\[\s*\{\s*['"]text['"]\s*:\s*["']`),
		regexp.MustCompile(`^\[\s*\{\s*['"]text['"]\s*:\s*["']`),
	}
	trailingArtifacts = []*regexp.Regexp{
		regexp.MustCompile(`["']\s*\}\s*\]\s*\}\s*$`),
		regexp.MustCompile(`["']\s*\}\s*\]\s*$`),
	}
)

var (
	unescaper  = strings.NewReplacer(`\n`, "\n", `\t`, " ", `\"`, `"`, `\'`, `'`)
	blankLines = regexp.MustCompile(`\n{4,}`)
)

// Clean normalizes raw agent output for display. It never fails: nil and
// empty input produce "", anything else is stringified first.
//
// Every step only shortens the text, so the pass is repeated until nothing
// changes; that makes Clean(Clean(x)) == Clean(x).
func Clean(raw any) string {
	text := stringify(raw)
	for {
		next := cleanOnce(text)
		if next == text {
			return next
		}
		text = next
	}
}

func cleanOnce(text string) string {
	if text == "" {
		return ""
	}

	// Meta lines before artifacts before unescaping: the patterns expect
	// the raw tokens.
	for _, re := range metaCommentary {
		text = re.ReplaceAllString(text, "")
	}
	for _, re := range leadingArtifacts {
		text = re.ReplaceAllString(text, "")
	}
	for _, re := range trailingArtifacts {
		text = re.ReplaceAllString(text, "")
	}

	text = unescaper.Replace(text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r\v\f")
	}
	text = strings.Join(lines, "\n")

	text = blankLines.ReplaceAllString(text, "\n\n\n")
	return strings.TrimSpace(text)
}

// stringify coerces a value to text. Structured values are rendered as JSON
// so the artifact patterns above still recognise them.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	case error:
		return t.Error()
	case agent.Result, map[string]any, []any, []map[string]any:
		var b strings.Builder
		enc := json.NewEncoder(&b)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(t); err != nil {
			return fmt.Sprint(t)
		}
		return strings.TrimSuffix(b.String(), "\n")
	default:
		return fmt.Sprint(t)
	}
}

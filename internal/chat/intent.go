package chat

import "strings"

var searchIndicators = []string{
	// requests
	"find", "search", "looking for", "need", "want to learn", "show me", "recommend",
	// content types
	"book", "course", "tutorial", "video", "learning path", "training",
	// topics
	"python", "javascript", "java", "react", "node", "docker", "kubernetes", "aws", "azure",
	"machine learning", "ai", "data science", "web development", "programming", "coding",
	"cybersecurity", "cloud", "devops", "database", "sql", "mongodb", "api", "rest",
	// learning verbs
	"learn", "study", "understand", "master", "practice", "guide", "introduction",
	// question lead-ins
	"how to", "what is", "explain", "teach me", "help me with",
}

var learningWords = []string{"learn", "tutorial", "course", "book"}

// SearchIntent guesses whether a message will make the agent search the
// catalog. It is advisory and never drives control flow.
func SearchIntent(message string) bool {
	lower := strings.ToLower(message)
	if containsAny(lower, searchIndicators) {
		return true
	}
	return strings.HasSuffix(strings.TrimSpace(message), "?") && containsAny(lower, learningWords)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

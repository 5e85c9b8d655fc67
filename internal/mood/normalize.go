package mood

import (
	"math"
	"regexp"
	"strings"
)

// whitespaceRegex matches one or more whitespace characters
var whitespaceRegex = regexp.MustCompile(`\s+`)

var underscoreReplacer = strings.NewReplacer(" ", "_", "-", "_")

// Normalize trims, lowercases and collapses internal whitespace to single spaces.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// EstimateTokens estimates token count using a word-based heuristic (1.3x words).
// Used to log prompt sizes.
func EstimateTokens(text string) int {
	words := strings.Fields(strings.TrimSpace(text))
	return int(math.Ceil(float64(len(words)) * 1.3))
}

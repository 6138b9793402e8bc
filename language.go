package watchdog

import (
	"regexp"
	"strings"
)

var (
	devanagariPattern = regexp.MustCompile(`[\x{0900}-\x{097F}]`)
	gurmukhiPattern   = regexp.MustCompile(`[\x{0A00}-\x{0A7F}]`)
	hinglishPattern   = regexp.MustCompile(`\b(bsdk|bkl|mc|bc|chutiya|madarchod|behenchod|randi|chod)\b`)
)

// GuessLanguage is a best-effort hint for the remote classifier: "hindi",
// "hinglish", "punjabi" or "other". It makes no claim of linguistic accuracy.
func GuessLanguage(text string) string {
	t := strings.ToLower(text)
	switch {
	case devanagariPattern.MatchString(t):
		return "hindi"
	case hinglishPattern.MatchString(t):
		return "hinglish"
	case gurmukhiPattern.MatchString(t):
		return "punjabi"
	default:
		return "other"
	}
}

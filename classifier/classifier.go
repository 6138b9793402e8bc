// Package classifier scores text against a lexicon and produces a verdict
// without any I/O. It is the fallback whenever a remote classifier is not
// configured or not reachable.
package classifier

import (
	"sort"
	"strings"

	"github.com/docutag/watchdog/lexicon"
	"github.com/docutag/watchdog/models"
)

const (
	// FlagThreshold is the weighted score at which the top category flags the text
	FlagThreshold = 1.0
	// ProfanityCountThreshold flags text on combined sexual + hinglishProfanity hits
	ProfanityCountThreshold = 2
	// PreviewLength caps the preview in runes
	PreviewLength = 300
	// MaxTopTerms caps the surfaced terms
	MaxTopTerms = 10
)

// Classifier scores text against a fixed lexicon. It holds no mutable state
// and is safe for concurrent use.
type Classifier struct {
	lex *lexicon.Lexicon
}

// New creates a Classifier for lex, or for the default lexicon when lex is nil
func New(lex *lexicon.Lexicon) *Classifier {
	if lex == nil {
		lex = lexicon.Default()
	}
	return &Classifier{lex: lex}
}

// Score classifies text with the default lexicon
func Score(text string) models.AnalysisResult {
	return New(nil).Score(text)
}

// Score counts whole-word lexicon hits, ranks categories and applies the
// flagging rule.
func (c *Classifier) Score(text string) models.AnalysisResult {
	lower := strings.ToLower(text)

	cats := c.lex.Categories()
	counts := make(map[string]int, len(cats))
	ranked := make([]models.CategoryScore, 0, len(cats))
	for _, cat := range cats {
		n := 0
		for _, term := range cat.Terms {
			n += CountWholeWord(lower, term)
		}
		counts[cat.Name] = n
		ranked = append(ranked, models.CategoryScore{
			Category:      cat.Name,
			RawCount:      n,
			WeightedScore: float64(n) * cat.Weight,
		})
	}

	// Stable: equal scores keep lexicon order
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].WeightedScore > ranked[j].WeightedScore
	})

	flagged := false
	label := models.LabelSafe
	if len(ranked) > 0 {
		top := ranked[0]
		// Both clauses are evaluated independently of which category ranks first
		strongHit := top.WeightedScore >= FlagThreshold
		profanityHits := counts[lexicon.Sexual]+counts[lexicon.HinglishProfanity] >= ProfanityCountThreshold
		flagged = strongHit || profanityHits
		if flagged {
			label = top.Category
		}
	}

	return models.AnalysisResult{
		Flagged: flagged,
		Label:   label,
		Preview: Preview(text),
		Scores: models.Scores{
			Counts:     counts,
			Categories: ranked,
		},
		TopTerms: c.topTerms(lower),
		Status:   models.StatusScanned,
		Route:    models.RouteLocal,
	}
}

// topTerms collects lexicon terms contained anywhere in lower.
// This pass uses substring containment, not word boundaries, so partial
// hits surface for human review.
func (c *Classifier) topTerms(lower string) []string {
	terms := make([]string, 0, MaxTopTerms)
	seen := make(map[string]bool)
	for _, term := range c.lex.Terms() {
		if seen[term] || !strings.Contains(lower, term) {
			continue
		}
		seen[term] = true
		terms = append(terms, term)
		if len(terms) == MaxTopTerms {
			break
		}
	}
	return terms
}

// CountWholeWord counts occurrences of term in text that are preceded and
// followed by a non-letter or a string edge. Letters are ASCII a-z/A-Z; the
// boundary characters are not consumed, so adjacent matches both count.
func CountWholeWord(text, term string) int {
	if term == "" {
		return 0
	}
	count := 0
	for i := 0; i <= len(text)-len(term); {
		j := strings.Index(text[i:], term)
		if j < 0 {
			break
		}
		start := i + j
		end := start + len(term)
		if (start == 0 || !isASCIILetter(text[start-1])) && (end == len(text) || !isASCIILetter(text[end])) {
			count++
		}
		i = start + 1
	}
	return count
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// Preview returns the first PreviewLength runes of text
func Preview(text string) string {
	return TruncateRunes(text, PreviewLength)
}

// TruncateRunes cuts s to at most n runes
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

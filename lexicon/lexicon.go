// Package lexicon holds the category → trigger term tables used by the
// heuristic classifier.
package lexicon

import "strings"

// DefaultWeight applies to any category without an explicit weight
const DefaultWeight = 0.5

// Category is one named group of trigger terms
type Category struct {
	Name   string
	Terms  []string
	Weight float64
}

// Lexicon is an ordered list of categories. Order is significant: it breaks
// ties between equally scored categories and fixes the topTerms scan order.
type Lexicon struct {
	categories []Category
}

// New builds a lexicon from categories in declared order.
// Terms are lowercased and a zero weight is replaced with DefaultWeight.
func New(categories ...Category) *Lexicon {
	lex := &Lexicon{categories: make([]Category, 0, len(categories))}
	for _, c := range categories {
		terms := make([]string, 0, len(c.Terms))
		for _, term := range c.Terms {
			term = strings.ToLower(strings.TrimSpace(term))
			if term != "" {
				terms = append(terms, term)
			}
		}
		weight := c.Weight
		if weight <= 0 {
			weight = DefaultWeight
		}
		lex.categories = append(lex.categories, Category{Name: c.Name, Terms: terms, Weight: weight})
	}
	return lex
}

// Categories returns the categories in declared order
func (l *Lexicon) Categories() []Category {
	return l.categories
}

// Weight returns the weight of a category, or DefaultWeight when unknown
func (l *Lexicon) Weight(name string) float64 {
	for _, c := range l.categories {
		if c.Name == name {
			return c.Weight
		}
	}
	return DefaultWeight
}

// Terms returns every term across all categories in declared order.
// Duplicates across categories are kept.
func (l *Lexicon) Terms() []string {
	var all []string
	for _, c := range l.categories {
		all = append(all, c.Terms...)
	}
	return all
}

// Category names of the default lexicon
const (
	Sexual            = "sexual"
	Insults           = "insults"
	HinglishProfanity = "hinglishProfanity"
	Hate              = "hate"
	SelfHarm          = "selfharm"
)

var defaultLexicon = New(
	Category{
		Name: Sexual,
		Terms: []string{
			"nsfw", "porn", "sex", "nude", "boobs", "tits", "ass", "dick", "cock", "pussy", "fuck", "suck",
			"deepthroat", "blowjob", "handjob", "randi", "randwa", "bhosdi", "lund", "chut", "chod", "chudai",
		},
		Weight: 0.7,
	},
	Category{
		Name: Insults,
		Terms: []string{
			"idiot", "moron", "stupid", "dumb", "loser", "trash", "garbage", "bastard", "asshole", "retard", "fool",
		},
		Weight: 0.5,
	},
	Category{
		Name: HinglishProfanity,
		Terms: []string{
			"bsdk", "bkl", "mc", "bc", "chutiya", "madarchod", "behenchod", "gaandu", "harami", "kamina", "kutte",
			"gandu", "saala",
		},
		Weight: 0.9,
	},
	Category{
		Name: Hate,
		Terms: []string{
			"kill", "rape", "lynch", "genocide", "exterminate", "gas them", "hate", "nazis", "jews", "muslims",
			"hindus", "sikhs", "christians", "dalit", "casteist", "terrorist",
		},
		Weight: 1.0,
	},
	Category{
		Name: SelfHarm,
		Terms: []string{
			"suicide", "kill myself", "kms", "end it", "cutting", "self harm", "self-harm", "no reason to live",
		},
		Weight: 1.0,
	},
)

// Default returns the built-in abuse lexicon. It is shared and must not be modified.
func Default() *Lexicon {
	return defaultLexicon
}

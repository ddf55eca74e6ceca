package classifier

import (
	"context"
	"strings"
	"unicode"

	"github.com/BaSui01/agentrouter/dispatch"
	"github.com/BaSui01/agentrouter/types"
)

// KeywordRule scores one label by counting keyword hits in the text.
type KeywordRule struct {
	Label    string   `json:"label" yaml:"label"`
	Keywords []string `json:"keywords" yaml:"keywords"`
}

// KeywordSet is the rule set of one dimension. Rules are scored in order;
// on a tie the earlier rule wins. Fallback is used when nothing matches.
type KeywordSet struct {
	Rules    []KeywordRule `json:"rules" yaml:"rules"`
	Fallback string        `json:"fallback" yaml:"fallback"`
}

// KeywordClassifier is a case-insensitive whole-word scorer. A keyword is a
// word or phrase; it matches a run of whole words in the text, so "card"
// does not hit "discard". A trailing "s" or "es" on a text word is tolerated.
type KeywordClassifier struct {
	sets map[string]compiledSet
}

type compiledSet struct {
	rules    []compiledRule
	fallback string
}

type compiledRule struct {
	label    string
	keywords [][]string
}

// NewKeywordClassifier creates a classifier from per-dimension rule sets.
// Keywords are tokenized once here.
func NewKeywordClassifier(sets map[string]KeywordSet) *KeywordClassifier {
	compiled := make(map[string]compiledSet, len(sets))
	for dim, set := range sets {
		cs := compiledSet{rules: make([]compiledRule, len(set.Rules)), fallback: set.Fallback}
		for i, r := range set.Rules {
			cr := compiledRule{label: r.Label}
			for _, kw := range r.Keywords {
				if words := tokenize(kw); len(words) > 0 {
					cr.keywords = append(cr.keywords, words)
				}
			}
			cs.rules[i] = cr
		}
		compiled[dim] = cs
	}
	return &KeywordClassifier{sets: compiled}
}

// Classify implements dispatch.Classifier.
func (c *KeywordClassifier) Classify(ctx context.Context, text string, dim dispatch.Dimension) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	set, ok := c.sets[dim.Name]
	if !ok {
		return "", types.Errorf(types.ErrClassifierFailure, "no keyword rules for dimension %q", dim.Name)
	}

	words := tokenize(text)
	best, bestScore := "", 0
	for _, rule := range set.rules {
		score := 0
		for _, kw := range rule.keywords {
			score += countPhrase(words, kw)
		}
		if score > bestScore {
			best, bestScore = rule.label, score
		}
	}
	if bestScore > 0 {
		return best, nil
	}
	if set.fallback != "" {
		return set.fallback, nil
	}
	return "", types.Errorf(types.ErrUnrecognizedLabel, "dimension %q: no keyword matched", dim.Name)
}

// tokenize lowercases s and splits it on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// countPhrase counts occurrences of phrase as consecutive whole words.
func countPhrase(words, phrase []string) int {
	n := 0
	for i := 0; i+len(phrase) <= len(words); i++ {
		match := true
		for j, p := range phrase {
			if !wordMatches(words[i+j], p) {
				match = false
				break
			}
		}
		if match {
			n++
		}
	}
	return n
}

func wordMatches(word, kw string) bool {
	if word == kw {
		return true
	}
	rest, ok := strings.CutPrefix(word, kw)
	return ok && (rest == "s" || rest == "es")
}

// FintechKeywords returns the keyword sets for the urgency and topic
// dimensions of the FinTechCorp support desk.
func FintechKeywords() map[string]KeywordSet {
	return map[string]KeywordSet{
		"urgency": {
			Rules: []KeywordRule{
				{Label: "urgent", Keywords: []string{
					"urgent", "critical", "emergency", "asap", "immediate", "stolen", "fraud", "fraudulent",
					"security breach", "can't access", "cannot access", "locked out", "unauthorized",
				}},
				{Label: "normal", Keywords: []string{
					"routine", "general", "standard", "regular", "how to", "how do", "what are", "help with",
				}},
			},
			Fallback: "normal",
		},
		"topic": {
			Rules: []KeywordRule{
				{Label: "credit_card", Keywords: []string{
					"credit card", "card", "charge", "fraud", "fraudulent", "stolen", "reward", "dispute",
					"credit limit", "cvv", "expiration",
				}},
				{Label: "account", Keywords: []string{
					"account", "login", "password", "security", "verification", "settings",
					"profile", "personal info", "personal information", "contact info", "contact information",
				}},
				{Label: "loan", Keywords: []string{
					"loan", "mortgage", "refinance", "refinancing", "payment", "application", "documentation",
					"interest rate", "approval",
				}},
				{Label: "general", Keywords: []string{
					"product", "service", "company", "balance", "statement", "general inquiry", "what is",
				}},
			},
			Fallback: "general",
		},
	}
}

// Package keywords classifies story titles against the AI keyword vocabulary.
package keywords

import (
	"log/slog"
	"regexp"
	"sort"
)

// Vocabulary lists the canonical keyword labels.
var Vocabulary = []string{
	"chatgpt", "gpt-4", "gpt-3", "openai", "claude", "anthropic",
	"gemini", "bard", "llm", "large language model", "artificial intelligence",
	"machine learning", "deep learning", "neural network", "transformer",
	"diffusion", "midjourney", "stable diffusion", "dalle", "dall-e",
}

type aliasRule struct {
	pattern *regexp.Regexp
	labels  []string
}

// Alias rules contribute labels that need not appear literally in the text.
var aliases = []aliasRule{
	{pattern: bounded(`llms?`), labels: []string{"llm", "large language model"}},
	{pattern: bounded(`ml`), labels: []string{"machine learning"}},
	{pattern: bounded(`dall-e`), labels: []string{"dall-e", "dalle"}},
}

type literalRule struct {
	label   string
	pattern *regexp.Regexp
}

var (
	literals  = compileLiterals(Vocabulary, slog.Default())
	canonical = toSet(Vocabulary)
)

func compileLiterals(vocabulary []string, logger *slog.Logger) []literalRule {
	rules := make([]literalRule, 0, len(vocabulary))
	for _, keyword := range vocabulary {
		re, err := compileLiteral(keyword)
		if err != nil {
			logger.Error("skip keyword with invalid pattern", "keyword", keyword, "error", err)
			continue
		}
		rules = append(rules, literalRule{label: keyword, pattern: re})
	}
	return rules
}

// Word characters are Unicode letters, digits and underscore. RE2's \b is
// ASCII only, so the boundaries are spelled out.
const (
	wordStart = `(?i)(?:^|[^\p{L}\p{N}_])`
	wordEnd   = `(?:$|[^\p{L}\p{N}_])`
)

func bounded(expr string) *regexp.Regexp {
	return regexp.MustCompile(wordStart + expr + wordEnd)
}

func compileLiteral(keyword string) (*regexp.Regexp, error) {
	return regexp.Compile(wordStart + regexp.QuoteMeta(keyword) + wordEnd)
}

// Classify returns the sorted canonical labels found in text.
func Classify(text string) []string {
	found := []string{}
	if text == "" {
		return found
	}

	seen := map[string]struct{}{}
	for _, rule := range literals {
		if rule.pattern.MatchString(text) {
			seen[rule.label] = struct{}{}
		}
	}

	for _, rule := range aliases {
		if !rule.pattern.MatchString(text) {
			continue
		}
		for _, label := range rule.labels {
			if _, ok := canonical[label]; ok {
				seen[label] = struct{}{}
			}
		}
	}

	for label := range seen {
		found = append(found, label)
	}
	sort.Strings(found)
	return found
}

// IsMatch reports whether text contains any keyword.
func IsMatch(text string) bool {
	return len(Classify(text)) > 0
}

// Classifier exposes the package functions as ports.Classifier.
type Classifier struct{}

// Classify delegates to the package-level Classify.
func (Classifier) Classify(text string) []string {
	return Classify(text)
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

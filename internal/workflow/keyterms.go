package workflow

import (
	"regexp"
	"strings"
)

// domainKeywords are research-vocabulary terms worth carrying into a
// search query when they appear in highlighted text.
var domainKeywords = []string{
	"algorithm", "analysis", "attention", "baseline", "bayesian",
	"classification", "cluster", "convergence", "correlation", "dataset",
	"distribution", "embedding", "entropy", "experiment", "gradient",
	"hypothesis", "inference", "learning", "likelihood", "methodology",
	"model", "network", "neural", "optimization", "parameter",
	"probability", "protein", "quantum", "regression", "sample",
	"sequence", "significance", "simulation", "statistical", "stochastic",
	"theorem", "training", "transformer", "validation", "variance",
}

var (
	capitalizedWordRe = regexp.MustCompile(`\b[A-Z][a-z]{2,}\b`)
	acronymRe         = regexp.MustCompile(`\b[A-Z]{2,}\b`)
)

// ExtractKeyTerms pulls searchable terms out of free text: known domain
// keywords, capitalized words, and acronyms, deduplicated in order of
// first appearance.
func ExtractKeyTerms(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var terms []string
	seen := make(map[string]struct{})
	add := func(term string) {
		key := strings.ToLower(term)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		terms = append(terms, term)
	}

	lower := strings.ToLower(text)
	for _, kw := range domainKeywords {
		if strings.Contains(lower, kw) {
			add(kw)
		}
	}
	for _, match := range capitalizedWordRe.FindAllString(text, -1) {
		add(match)
	}
	for _, match := range acronymRe.FindAllString(text, -1) {
		add(match)
	}
	return terms
}

// containsTermFold reports whether text contains the term, ignoring case.
func containsTermFold(text, term string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(term))
}

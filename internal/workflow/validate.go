package workflow

import (
	"fmt"
	"strings"
)

// minTermOverlapRatio is the fraction of highlighted-text key terms an
// explanation must restate to count as contextually relevant.
const minTermOverlapRatio = 0.25

// genericPhrases flag boilerplate that signals the explanation ignored the
// highlighted passage.
var genericPhrases = []string{
	"as an ai language model",
	"in general terms",
	"generally speaking",
	"it is important to note that",
	"this is a complex topic",
	"without more context",
	"based on the information provided",
	"research in this area",
}

// ContextualRelevance is the deterministic (non-LLM) validation of an
// explanation against the user's highlighted text.
type ContextualRelevance struct {
	Relevant       bool     `json:"relevant"`
	TermOverlap    float64  `json:"term_overlap"`
	MissingTerms   []string `json:"missing_terms,omitempty"`
	GenericPhrases []string `json:"generic_phrases,omitempty"`
}

// ValidateContextualRelevance checks that the explanation restates at
// least minTermOverlapRatio of the highlighted text's key terms
// (case-insensitively) and contains no generic filler phrase. Both
// conditions must hold.
func ValidateContextualRelevance(highlightedText, explanation string) ContextualRelevance {
	result := ContextualRelevance{Relevant: true, TermOverlap: 1}

	terms := ExtractKeyTerms(highlightedText)
	if len(terms) > 0 {
		matched := 0
		for _, term := range terms {
			if containsTermFold(explanation, term) {
				matched++
			} else {
				result.MissingTerms = append(result.MissingTerms, term)
			}
		}
		result.TermOverlap = float64(matched) / float64(len(terms))
	}

	lower := strings.ToLower(explanation)
	for _, phrase := range genericPhrases {
		if strings.Contains(lower, phrase) {
			result.GenericPhrases = append(result.GenericPhrases, phrase)
		}
	}

	result.Relevant = result.TermOverlap >= minTermOverlapRatio && len(result.GenericPhrases) == 0
	return result
}

// improvements converts a failed relevance check into refinement
// instructions; empty when the check passed.
func (r ContextualRelevance) improvements() []string {
	if r.Relevant {
		return nil
	}
	var out []string
	if r.TermOverlap < minTermOverlapRatio {
		out = append(out, fmt.Sprintf(
			"address the highlighted text directly; mention these terms: %s",
			strings.Join(r.MissingTerms, ", ")))
	}
	if len(r.GenericPhrases) > 0 {
		out = append(out, fmt.Sprintf(
			"remove generic filler (%s) and be specific to the passage",
			strings.Join(r.GenericPhrases, "; ")))
	}
	return out
}

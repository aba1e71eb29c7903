// Package workflow runs the adaptive explanation pipeline: assess the
// query's complexity, retrieve document context, generate an explanation
// tuned to the reader's education level, validate it, and refine it once
// when validation finds problems. The pipeline is linear with that single
// conditional branch and always terminates within four model calls.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"paperchat/internal/retrieval"
)

const (
	maxListItems = 5

	initialConfidence = 0.8
	refinedConfidence = 0.9

	highlightThreshold = 0.5
	highlightLimit     = 8
	plainThreshold     = 0.6
	plainLimit         = 6

	defaultComplexity = 5
)

// LLMClient is the single operation the workflow needs from the model.
type LLMClient interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// Retriever is satisfied by the retrieval engine.
type Retriever interface {
	Search(ctx context.Context, query string, documentID uint, opts retrieval.SearchOptions) ([]retrieval.SearchResult, error)
}

// Request is one chat turn entering the pipeline.
type Request struct {
	Query           string
	DocumentID      uint
	HighlightedText string
	EducationLevel  EducationLevel
}

// State accumulates across stages; each stage writes its own fields and
// never rewrites earlier ones except refine, which sets FinalExplanation.
type State struct {
	Request Request

	// assess_complexity
	Complexity         int
	UserKnowledge      int
	RequiredBackground []string
	AdaptationStrategy string

	// retrieve_context
	SearchQuery   string
	ContextChunks []retrieval.SearchResult

	// generate_explanation
	Explanation       string
	Analogies         []string
	Examples          []string
	FollowUpQuestions []string
	Confidence        float64

	// validate_explanation
	IsAccurate    bool
	IsAppropriate bool
	Improvements  []string
	Relevance     ContextualRelevance

	// refine_explanation
	Refined          bool
	FinalExplanation string
}

// FinalText is the terminal explanation: the refined text when refinement
// ran, the draft otherwise.
func (s *State) FinalText() string {
	if s.Refined && s.FinalExplanation != "" {
		return s.FinalExplanation
	}
	return s.Explanation
}

type Workflow struct {
	llm       LLMClient
	retriever Retriever
}

func NewWorkflow(llm LLMClient, retriever Retriever) *Workflow {
	return &Workflow{llm: llm, retriever: retriever}
}

// Run executes the pipeline for one request. Any model or retrieval error
// aborts the run; partial state is discarded by the caller.
func (w *Workflow) Run(ctx context.Context, req Request) (*State, error) {
	state := &State{Request: req}

	if err := w.assessComplexity(ctx, state); err != nil {
		return nil, err
	}
	if err := w.retrieveContext(ctx, state); err != nil {
		return nil, err
	}
	if err := w.generateExplanation(ctx, state); err != nil {
		return nil, err
	}
	if err := w.validateExplanation(ctx, state); err != nil {
		return nil, err
	}
	if shouldRefine(state) {
		if err := w.refineExplanation(ctx, state); err != nil {
			return nil, err
		}
	}
	return state, nil
}

type assessment struct {
	Complexity         int      `json:"complexity"`
	RequiredBackground []string `json:"required_background"`
	AdaptationStrategy string   `json:"adaptation_strategy"`
}

func (w *Workflow) assessComplexity(ctx context.Context, state *State) error {
	state.UserKnowledge = state.Request.EducationLevel.KnowledgeScore()

	prompt := fmt.Sprintf(`Assess the question below, asked by a reader at the %q education level, about a research paper.

Question: %s

Respond with JSON only, no prose:
{"complexity": <1-10>, "required_background": ["..."], "adaptation_strategy": "<one sentence>"}`,
		state.Request.EducationLevel, state.Request.Query)

	raw, err := w.llm.Invoke(ctx, prompt)
	if err != nil {
		return fmt.Errorf("assess complexity failed: %w", err)
	}

	var parsed assessment
	if err := unmarshalLoose(raw, &parsed); err != nil {
		// Unparseable assessments fall back to the mid-scale default
		// rather than aborting the turn.
		state.Complexity = defaultComplexity
		return nil
	}
	if parsed.Complexity < 1 || parsed.Complexity > 10 {
		// Only the score is out of range; the narrative fields still apply.
		parsed.Complexity = defaultComplexity
	}
	state.Complexity = parsed.Complexity
	state.RequiredBackground = parsed.RequiredBackground
	state.AdaptationStrategy = parsed.AdaptationStrategy
	return nil
}

func (w *Workflow) retrieveContext(ctx context.Context, state *State) error {
	threshold := plainThreshold
	limit := plainLimit
	query := state.Request.Query

	if highlight := strings.TrimSpace(state.Request.HighlightedText); highlight != "" {
		// Favor recall when the user pinned a passage: widen the query
		// with its key terms and lower the bar.
		parts := []string{highlight}
		if terms := ExtractKeyTerms(highlight); len(terms) > 0 {
			parts = append(parts, strings.Join(terms, " "))
		}
		parts = append(parts, state.Request.Query)
		query = strings.Join(parts, " ")
		threshold = highlightThreshold
		limit = highlightLimit
	}

	results, err := w.retriever.Search(ctx, query, state.Request.DocumentID, retrieval.SearchOptions{
		Strategy:            retrieval.StrategyContextual,
		Limit:               limit,
		SimilarityThreshold: threshold,
	})
	if err != nil {
		return fmt.Errorf("retrieve context failed: %w", err)
	}

	state.SearchQuery = query
	state.ContextChunks = results
	return nil
}

type generation struct {
	Explanation       string   `json:"explanation"`
	Analogies         []string `json:"analogies"`
	Examples          []string `json:"examples"`
	FollowUpQuestions []string `json:"follow_up_questions"`
}

func (w *Workflow) generateExplanation(ctx context.Context, state *State) error {
	var contextBlock strings.Builder
	for i, r := range state.ContextChunks {
		fmt.Fprintf(&contextBlock, "[%d] (page %d, %s) %s\n", i+1, r.Chunk.PageNumber, r.Chunk.SectionType, r.Chunk.Content)
	}
	if contextBlock.Len() == 0 {
		contextBlock.WriteString("(no context retrieved)\n")
	}

	var highlightBlock string
	if strings.TrimSpace(state.Request.HighlightedText) != "" {
		highlightBlock = fmt.Sprintf("\nThe reader highlighted this passage and the explanation must address it directly:\n%s\n", state.Request.HighlightedText)
	}

	prompt := fmt.Sprintf(`You are explaining a research paper.

Context chunks:
%s
Question: %s
%s
%s
The question's complexity is %d/10 and the reader's knowledge is %d/10; pitch the depth accordingly.

Respond with JSON only:
{"explanation": "...", "analogies": ["..."], "examples": ["..."], "follow_up_questions": ["..."]}`,
		contextBlock.String(), state.Request.Query, highlightBlock,
		state.Request.EducationLevel.Guidance(), state.Complexity, state.UserKnowledge)

	raw, err := w.llm.Invoke(ctx, prompt)
	if err != nil {
		return fmt.Errorf("generate explanation failed: %w", err)
	}

	var parsed generation
	if err := unmarshalLoose(raw, &parsed); err == nil && strings.TrimSpace(parsed.Explanation) != "" {
		state.Explanation = strings.TrimSpace(parsed.Explanation)
		state.Analogies = capList(parsed.Analogies)
		state.Examples = capList(parsed.Examples)
		state.FollowUpQuestions = capList(parsed.FollowUpQuestions)
	} else {
		explanation, analogies, examples, followUps := parseSections(raw)
		state.Explanation = explanation
		state.Analogies = capList(analogies)
		state.Examples = capList(examples)
		state.FollowUpQuestions = capList(followUps)
	}
	if strings.TrimSpace(state.Explanation) == "" {
		state.Explanation = strings.TrimSpace(raw)
	}
	state.Confidence = initialConfidence
	return nil
}

type validation struct {
	IsAccurate    *bool    `json:"is_accurate"`
	IsAppropriate *bool    `json:"is_appropriate"`
	Improvements  []string `json:"improvements"`
}

func (w *Workflow) validateExplanation(ctx context.Context, state *State) error {
	prompt := fmt.Sprintf(`Judge the explanation below, written for a %q reader, against the context chunks it was generated from.

Question: %s

Explanation:
%s

Respond with JSON only:
{"is_accurate": true|false, "is_appropriate": true|false, "improvements": ["..."]}`,
		state.Request.EducationLevel, state.Request.Query, state.Explanation)

	raw, err := w.llm.Invoke(ctx, prompt)
	if err != nil {
		return fmt.Errorf("validate explanation failed: %w", err)
	}

	// Parse failures default to accurate/appropriate with no improvements,
	// so a malformed judgment never forces a refinement pass by itself.
	state.IsAccurate = true
	state.IsAppropriate = true
	var parsed validation
	if err := unmarshalLoose(raw, &parsed); err == nil {
		if parsed.IsAccurate != nil {
			state.IsAccurate = *parsed.IsAccurate
		}
		if parsed.IsAppropriate != nil {
			state.IsAppropriate = *parsed.IsAppropriate
		}
		state.Improvements = parsed.Improvements
	}

	if strings.TrimSpace(state.Request.HighlightedText) != "" {
		state.Relevance = ValidateContextualRelevance(state.Request.HighlightedText, state.Explanation)
		state.Improvements = append(state.Improvements, state.Relevance.improvements()...)
	} else {
		state.Relevance = ContextualRelevance{Relevant: true, TermOverlap: 1}
	}
	return nil
}

// shouldRefine selects the refinement branch. A failed contextual check
// reaches this through the improvements it appended, even when the model
// judged itself accurate and appropriate.
func shouldRefine(state *State) bool {
	return !state.IsAccurate || !state.IsAppropriate || len(state.Improvements) > 0
}

func (w *Workflow) refineExplanation(ctx context.Context, state *State) error {
	var termsBlock string
	if strings.TrimSpace(state.Request.HighlightedText) != "" {
		if terms := ExtractKeyTerms(state.Request.HighlightedText); len(terms) > 0 {
			termsBlock = fmt.Sprintf("\nUse these terms from the highlighted passage explicitly: %s\n", strings.Join(terms, ", "))
		}
	}

	prompt := fmt.Sprintf(`Rewrite the explanation below, applying every improvement. Keep it correct and keep the reader level (%s).

Explanation:
%s

Improvements:
- %s
%s
Respond with the rewritten explanation only.`,
		state.Request.EducationLevel.Guidance(), state.Explanation,
		strings.Join(state.Improvements, "\n- "), termsBlock)

	raw, err := w.llm.Invoke(ctx, prompt)
	if err != nil {
		return fmt.Errorf("refine explanation failed: %w", err)
	}

	state.FinalExplanation = strings.TrimSpace(raw)
	state.Refined = true
	state.Confidence = refinedConfidence
	return nil
}

// unmarshalLoose parses JSON that may be wrapped in code fences or
// surrounded by prose; it extracts the outermost object first.
func unmarshalLoose(raw string, v interface{}) error {
	s := strings.TrimSpace(raw)
	if start := strings.Index(s, "{"); start >= 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return json.Unmarshal([]byte(s), v)
}

func capList(items []string) []string {
	out := make([]string, 0, maxListItems)
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
		if len(out) == maxListItems {
			break
		}
	}
	return out
}

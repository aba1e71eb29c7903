package retrieval

import "paperchat/internal/model"

// Strategy selects how Search scores and gathers chunks.
type Strategy string

const (
	StrategySemanticOnly Strategy = "semantic_only"
	StrategyTextOnly     Strategy = "text_only"
	StrategyHybrid       Strategy = "hybrid"
	StrategyContextual   Strategy = "contextual"
)

// Score fusion and re-ranking constants. Hybrid fusion weighs semantic
// similarity over term overlap 70/30; contextual expansion admits adjacent
// chunks above 0.5 similarity at a 0.8 discount; re-ranking prefers chunks
// near 500 characters.
const (
	hybridSemanticWeight = 0.7
	hybridTextWeight     = 0.3

	adjacentMinSimilarity = 0.5
	adjacentScoreFactor   = 0.8

	optimalChunkLength = 500
	lengthDecayScale   = 1000
	lengthBlendBase    = 0.7
	lengthBlendWeight  = 0.3

	minTermLength = 2
)

// PageRange filters chunks to pages in [Start, End] inclusive.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// BoostFactors multiply a result's score after strategy execution.
// SectionTypes maps a section type to its multiplier (absent = 1.0).
// KeywordMatch scales score by 1 + overlapRatio*(KeywordMatch-1), where
// overlapRatio is the fraction of query terms present in the chunk.
type BoostFactors struct {
	SectionTypes map[model.SectionType]float64 `json:"section_types,omitempty"`
	KeywordMatch float64                       `json:"keyword_match,omitempty"`
}

type SearchOptions struct {
	Strategy            Strategy            `json:"strategy"`
	Limit               int                 `json:"limit"`
	SimilarityThreshold float64             `json:"similarity_threshold"`
	SectionTypes        []model.SectionType `json:"section_types,omitempty"`
	PageRange           *PageRange          `json:"page_range,omitempty"`
	BoostFactors        *BoostFactors       `json:"boost_factors,omitempty"`
}

// ChunkFilter narrows a document's chunk listing before scoring.
type ChunkFilter struct {
	SectionTypes []model.SectionType
	PageRange    *PageRange
}

// SearchResult is one scored, ranked chunk. Similarity is the strategy
// score (cosine for semantic, Jaccard for text, fused for hybrid);
// RelevanceScore is set by the final re-rank.
type SearchResult struct {
	Chunk             model.Chunk `json:"chunk"`
	Similarity        float64     `json:"similarity"`
	Rank              int         `json:"rank"`
	RelevanceScore    float64     `json:"relevance_score,omitempty"`
	BoostExplanations []string    `json:"boost_explanations,omitempty"`
}

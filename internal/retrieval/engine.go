// Package retrieval ranks a document's chunks against a query using one of
// four strategies, then applies optional boost factors and a final
// length-aware re-rank. Ties keep their prior order: all sorts are stable,
// so equally scored chunks stay in retrieval order.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"paperchat/internal/model"
)

// ChunkSource lists a document's chunks, optionally filtered, and fetches
// chunks adjacent to a given one (same document, same section type, within
// one page, excluding the chunk itself).
type ChunkSource interface {
	ListByDocument(ctx context.Context, documentID uint, filter ChunkFilter) ([]model.Chunk, error)
	ListAdjacent(ctx context.Context, documentID uint, sectionType model.SectionType, page int, excludeID uint) ([]model.Chunk, error)
}

// Embedder resolves text to an embedding vector, normally through the
// embedding cache.
type Embedder interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

type Engine struct {
	chunks           ChunkSource
	embedder         Embedder
	defaultLimit     int
	defaultThreshold float64
}

func NewEngine(chunks ChunkSource, embedder Embedder, defaultLimit int, defaultThreshold float64) *Engine {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	if defaultThreshold <= 0 {
		defaultThreshold = 0.7
	}
	return &Engine{
		chunks:           chunks,
		embedder:         embedder,
		defaultLimit:     defaultLimit,
		defaultThreshold: defaultThreshold,
	}
}

// Search runs the selected strategy, applies boost factors, re-ranks by
// relevance, and truncates to the limit. Contextual expansion happens
// before truncation, so the intermediate set may exceed the limit.
func (e *Engine) Search(ctx context.Context, query string, documentID uint, opts SearchOptions) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query is empty")
	}
	if opts.Limit <= 0 {
		opts.Limit = e.defaultLimit
	}
	if opts.SimilarityThreshold == 0 {
		opts.SimilarityThreshold = e.defaultThreshold
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategySemanticOnly
	}

	var (
		results []SearchResult
		err     error
	)
	switch opts.Strategy {
	case StrategySemanticOnly:
		results, err = e.semanticSearch(ctx, query, documentID, opts)
	case StrategyTextOnly:
		results, err = e.textSearch(ctx, query, documentID, opts)
	case StrategyHybrid:
		results, err = e.hybridSearch(ctx, query, documentID, opts)
	case StrategyContextual:
		results, err = e.contextualSearch(ctx, query, documentID, opts)
	default:
		return nil, fmt.Errorf("unknown search strategy %q", opts.Strategy)
	}
	if err != nil {
		return nil, err
	}

	if opts.BoostFactors != nil {
		applyBoostFactors(results, queryTerms(query), opts.BoostFactors)
	}
	results = reRankResults(results)

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// semanticSearch embeds the query and keeps chunks whose cosine similarity
// meets the threshold. Chunks without a stored embedding are skipped.
func (e *Engine) semanticSearch(ctx context.Context, query string, documentID uint, opts SearchOptions) ([]SearchResult, error) {
	queryVec, err := e.embedder.GetEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query failed: %w", err)
	}

	chunks, err := e.chunks.ListByDocument(ctx, documentID, ChunkFilter{
		SectionTypes: opts.SectionTypes,
		PageRange:    opts.PageRange,
	})
	if err != nil {
		return nil, fmt.Errorf("list chunks failed: %w", err)
	}

	results := make([]SearchResult, 0, len(chunks))
	for _, chunk := range chunks {
		if !chunk.HasEmbedding() {
			continue
		}
		similarity := CosineSimilarity(queryVec, chunk.EmbeddingVector())
		if similarity >= opts.SimilarityThreshold {
			results = append(results, SearchResult{Chunk: chunk, Similarity: similarity})
		}
	}
	sortByScore(results)
	assignRanks(results)
	return results, nil
}

// textSearch selects chunks containing any query term and scores them by
// Jaccard similarity between the query and chunk term sets.
func (e *Engine) textSearch(ctx context.Context, query string, documentID uint, opts SearchOptions) ([]SearchResult, error) {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}
	querySet := termSet(terms)

	chunks, err := e.chunks.ListByDocument(ctx, documentID, ChunkFilter{
		SectionTypes: opts.SectionTypes,
		PageRange:    opts.PageRange,
	})
	if err != nil {
		return nil, fmt.Errorf("list chunks failed: %w", err)
	}

	var results []SearchResult
	for _, chunk := range chunks {
		lower := strings.ToLower(chunk.Content)
		matched := false
		for _, term := range terms {
			if strings.Contains(lower, term) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		chunkSet := termSet(queryTerms(chunk.Content))
		results = append(results, SearchResult{
			Chunk:      chunk,
			Similarity: jaccard(querySet, chunkSet),
		})
	}
	sortByScore(results)
	assignRanks(results)
	return results, nil
}

// hybridSearch fuses independent semantic and text passes per chunk as
// 0.7*semantic + 0.3*text; a chunk present in only one list keeps that
// list's score scaled by its weight.
func (e *Engine) hybridSearch(ctx context.Context, query string, documentID uint, opts SearchOptions) ([]SearchResult, error) {
	semantic, err := e.semanticSearch(ctx, query, documentID, opts)
	if err != nil {
		return nil, err
	}
	text, err := e.textSearch(ctx, query, documentID, opts)
	if err != nil {
		return nil, err
	}

	textScores := make(map[uint]float64, len(text))
	for _, r := range text {
		textScores[r.Chunk.ID] = r.Similarity
	}

	merged := make([]SearchResult, 0, len(semantic)+len(text))
	seen := make(map[uint]struct{}, len(semantic))
	for _, r := range semantic {
		score := hybridSemanticWeight * r.Similarity
		if textScore, ok := textScores[r.Chunk.ID]; ok {
			score += hybridTextWeight * textScore
		}
		merged = append(merged, SearchResult{Chunk: r.Chunk, Similarity: score})
		seen[r.Chunk.ID] = struct{}{}
	}
	for _, r := range text {
		if _, ok := seen[r.Chunk.ID]; ok {
			continue
		}
		merged = append(merged, SearchResult{Chunk: r.Chunk, Similarity: hybridTextWeight * r.Similarity})
	}

	sortByScore(merged)
	assignRanks(merged)
	return merged, nil
}

// contextualSearch expands a semantic pass with adjacent chunks: same
// section type within one page of each hit, admitted when their own query
// similarity exceeds adjacentMinSimilarity and scored at a 0.8 discount.
func (e *Engine) contextualSearch(ctx context.Context, query string, documentID uint, opts SearchOptions) ([]SearchResult, error) {
	results, err := e.semanticSearch(ctx, query, documentID, opts)
	if err != nil {
		return nil, err
	}

	queryVec, err := e.embedder.GetEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query failed: %w", err)
	}

	included := make(map[uint]struct{}, len(results))
	for _, r := range results {
		included[r.Chunk.ID] = struct{}{}
	}

	expanded := results
	for _, r := range results {
		adjacent, err := e.chunks.ListAdjacent(ctx, documentID, r.Chunk.SectionType, r.Chunk.PageNumber, r.Chunk.ID)
		if err != nil {
			return nil, fmt.Errorf("list adjacent chunks failed: %w", err)
		}
		for _, neighbor := range adjacent {
			if _, ok := included[neighbor.ID]; ok {
				continue
			}
			if !neighbor.HasEmbedding() {
				continue
			}
			similarity := CosineSimilarity(queryVec, neighbor.EmbeddingVector())
			if similarity <= adjacentMinSimilarity {
				continue
			}
			included[neighbor.ID] = struct{}{}
			expanded = append(expanded, SearchResult{
				Chunk:      neighbor,
				Similarity: adjacentScoreFactor * similarity,
				BoostExplanations: []string{
					fmt.Sprintf("adjacent %s context on page %d", neighbor.SectionType, neighbor.PageNumber),
				},
			})
		}
	}

	sortByScore(expanded)
	assignRanks(expanded)
	return expanded, nil
}

// applyBoostFactors multiplies similarity scores in place and records a
// human-readable explanation per applied boost.
func applyBoostFactors(results []SearchResult, terms []string, boosts *BoostFactors) {
	querySet := termSet(terms)
	for i := range results {
		r := &results[i]
		if multiplier, ok := boosts.SectionTypes[r.Chunk.SectionType]; ok && multiplier != 1.0 {
			r.Similarity *= multiplier
			r.BoostExplanations = append(r.BoostExplanations,
				fmt.Sprintf("section %s boost x%.2f", r.Chunk.SectionType, multiplier))
		}
		if boosts.KeywordMatch > 0 && boosts.KeywordMatch != 1.0 && len(querySet) > 0 {
			chunkSet := termSet(queryTerms(r.Chunk.Content))
			overlap := 0
			for term := range querySet {
				if _, ok := chunkSet[term]; ok {
					overlap++
				}
			}
			if overlap > 0 {
				overlapRatio := float64(overlap) / float64(len(querySet))
				factor := 1 + overlapRatio*(boosts.KeywordMatch-1)
				r.Similarity *= factor
				r.BoostExplanations = append(r.BoostExplanations,
					fmt.Sprintf("keyword overlap %.0f%% boost x%.2f", overlapRatio*100, factor))
			}
		}
	}
}

// reRankResults blends a length preference into each score, producing the
// final relevance ordering. Chunks near the optimal length keep most of
// their similarity; very short or very long chunks are discounted.
func reRankResults(results []SearchResult) []SearchResult {
	for i := range results {
		factor := lengthFactor(len(results[i].Chunk.Content))
		results[i].RelevanceScore = results[i].Similarity * (lengthBlendBase + lengthBlendWeight*factor)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})
	assignRanks(results)
	return results
}

func sortByScore(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
}

func assignRanks(results []SearchResult) {
	for i := range results {
		results[i].Rank = i + 1
	}
}

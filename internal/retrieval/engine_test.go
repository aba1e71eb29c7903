package retrieval

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperchat/internal/model"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	calls   int
}

func (f *fakeEmbedder) GetEmbedding(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if vec, ok := f.vectors[text]; ok {
		return vec, nil
	}
	return []float32{1, 0}, nil
}

type fakeChunkSource struct {
	chunks []model.Chunk
}

func (f *fakeChunkSource) ListByDocument(_ context.Context, documentID uint, filter ChunkFilter) ([]model.Chunk, error) {
	var out []model.Chunk
	for _, c := range f.chunks {
		if c.DocumentID != documentID {
			continue
		}
		if len(filter.SectionTypes) > 0 && !containsSection(filter.SectionTypes, c.SectionType) {
			continue
		}
		if filter.PageRange != nil && (c.PageNumber < filter.PageRange.Start || c.PageNumber > filter.PageRange.End) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeChunkSource) ListAdjacent(_ context.Context, documentID uint, sectionType model.SectionType, page int, excludeID uint) ([]model.Chunk, error) {
	var out []model.Chunk
	for _, c := range f.chunks {
		if c.DocumentID != documentID || c.ID == excludeID || c.SectionType != sectionType {
			continue
		}
		if c.PageNumber < page-1 || c.PageNumber > page+1 {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func containsSection(types []model.SectionType, st model.SectionType) bool {
	for _, t := range types {
		if t == st {
			return true
		}
	}
	return false
}

func embeddedChunk(id uint, docID uint, content string, vec []float32, section model.SectionType, page int) model.Chunk {
	c := model.Chunk{
		ID:          id,
		DocumentID:  docID,
		Content:     content,
		SectionType: section,
		PageNumber:  page,
	}
	c.SetEmbedding(vec)
	return c
}

func TestSemanticSearchRanksByCosine(t *testing.T) {
	// Equal-length contents keep the length re-rank neutral across chunks.
	content := strings.Repeat("x", 500)
	source := &fakeChunkSource{chunks: []model.Chunk{
		embeddedChunk(1, 7, content, []float32{0, 1}, model.SectionResults, 3),
		embeddedChunk(2, 7, content, []float32{1, 0}, model.SectionAbstract, 1),
		embeddedChunk(3, 7, content, []float32{0.8, 0.6}, model.SectionMethodology, 2),
	}}
	embedder := &fakeEmbedder{vectors: map[string][]float32{"attention": {1, 0}}}
	engine := NewEngine(source, embedder, 10, 0.7)

	results, err := engine.Search(context.Background(), "attention", 7, SearchOptions{
		Strategy:            StrategySemanticOnly,
		SimilarityThreshold: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, uint(2), results[0].Chunk.ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
	assert.Equal(t, 1, results[0].Rank)

	assert.Equal(t, uint(3), results[1].Chunk.ID)
	assert.InDelta(t, 0.8, results[1].Similarity, 1e-6)
	assert.Equal(t, 2, results[1].Rank)
}

func TestSemanticSearchSkipsChunksWithoutEmbeddings(t *testing.T) {
	source := &fakeChunkSource{chunks: []model.Chunk{
		{ID: 1, DocumentID: 7, Content: "no vector stored"},
		embeddedChunk(2, 7, "has vector", []float32{1, 0}, model.SectionOther, 1),
	}}
	engine := NewEngine(source, &fakeEmbedder{}, 10, 0.7)

	results, err := engine.Search(context.Background(), "query", 7, SearchOptions{
		Strategy:            StrategySemanticOnly,
		SimilarityThreshold: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint(2), results[0].Chunk.ID)
}

func TestSearchImpossibleThresholdReturnsEmpty(t *testing.T) {
	source := &fakeChunkSource{chunks: []model.Chunk{
		embeddedChunk(1, 7, "content", []float32{1, 0}, model.SectionOther, 1),
	}}
	engine := NewEngine(source, &fakeEmbedder{}, 10, 0.7)

	results, err := engine.Search(context.Background(), "query", 7, SearchOptions{
		Strategy:            StrategySemanticOnly,
		SimilarityThreshold: 1.1,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	engine := NewEngine(&fakeChunkSource{}, &fakeEmbedder{}, 10, 0.7)
	_, err := engine.Search(context.Background(), "   ", 7, SearchOptions{})
	assert.Error(t, err)
}

func TestSearchRejectsUnknownStrategy(t *testing.T) {
	engine := NewEngine(&fakeChunkSource{}, &fakeEmbedder{}, 10, 0.7)
	_, err := engine.Search(context.Background(), "query", 7, SearchOptions{Strategy: "bm25"})
	assert.Error(t, err)
}

func TestTextSearchScoresByJaccard(t *testing.T) {
	source := &fakeChunkSource{chunks: []model.Chunk{
		{ID: 1, DocumentID: 7, Content: "neural network training procedure"},
		{ID: 2, DocumentID: 7, Content: "unrelated biology material"},
		{ID: 3, DocumentID: 7, Content: "neural architecture"},
	}}
	engine := NewEngine(source, &fakeEmbedder{}, 10, 0.7)

	results, err := engine.Search(context.Background(), "neural network", 7, SearchOptions{
		Strategy: StrategyTextOnly,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Chunk 1 shares both query terms: |{neural,network}| / |{neural,network,training,procedure}|.
	assert.Equal(t, uint(1), results[0].Chunk.ID)
	assert.InDelta(t, 0.5, results[0].Similarity, 1e-9)

	// Chunk 3 shares one term: |{neural}| / |{neural,network,architecture}|.
	assert.Equal(t, uint(3), results[1].Chunk.ID)
	assert.InDelta(t, 1.0/3.0, results[1].Similarity, 1e-9)
}

func TestHybridSearchFusesScores(t *testing.T) {
	content := strings.Repeat("neural network study ", 24) // ~500 chars, both terms present
	source := &fakeChunkSource{chunks: []model.Chunk{
		embeddedChunk(1, 7, content, []float32{1, 0}, model.SectionResults, 1),
		{ID: 2, DocumentID: 7, Content: "neural only, no embedding"},
	}}
	embedder := &fakeEmbedder{vectors: map[string][]float32{"neural network": {1, 0}}}
	engine := NewEngine(source, embedder, 10, 0.7)

	results, err := engine.Search(context.Background(), "neural network", 7, SearchOptions{
		Strategy:            StrategyHybrid,
		SimilarityThreshold: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Chunk 1 appears in both passes: 0.7*semantic + 0.3*text.
	textScore1 := jaccard(termSet(queryTerms("neural network")), termSet(queryTerms(content)))
	assert.Equal(t, uint(1), results[0].Chunk.ID)
	assert.InDelta(t, 0.7*1.0+0.3*textScore1, results[0].Similarity, 1e-9)

	// Chunk 2 appears only in the text pass, so it keeps 0.3*text.
	textScore2 := jaccard(termSet(queryTerms("neural network")), termSet(queryTerms("neural only, no embedding")))
	assert.Equal(t, uint(2), results[1].Chunk.ID)
	assert.InDelta(t, 0.3*textScore2, results[1].Similarity, 1e-9)
}

func TestContextualSearchExpandsAdjacentChunks(t *testing.T) {
	content := strings.Repeat("x", 500)
	source := &fakeChunkSource{chunks: []model.Chunk{
		embeddedChunk(1, 7, content, []float32{1, 0}, model.SectionMethodology, 3),
		// Same section, next page, similarity 0.6 to the query: admitted at a discount.
		embeddedChunk(2, 7, content, []float32{0.6, 0.8}, model.SectionMethodology, 4),
		// Same section and page but similarity below the admission floor.
		embeddedChunk(3, 7, content, []float32{0.3, 0.954}, model.SectionMethodology, 3),
		// Different section: never adjacent.
		embeddedChunk(4, 7, content, []float32{0.5, 0.866}, model.SectionResults, 3),
	}}
	embedder := &fakeEmbedder{vectors: map[string][]float32{"ablation": {1, 0}}}
	engine := NewEngine(source, embedder, 10, 0.7)

	results, err := engine.Search(context.Background(), "ablation", 7, SearchOptions{
		Strategy:            StrategyContextual,
		SimilarityThreshold: 0.9,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, uint(1), results[0].Chunk.ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)

	assert.Equal(t, uint(2), results[1].Chunk.ID)
	assert.InDelta(t, 0.8*0.6, results[1].Similarity, 1e-6)
	require.Len(t, results[1].BoostExplanations, 1)
	assert.Contains(t, results[1].BoostExplanations[0], "adjacent")
}

func TestSectionBoostMultipliesScore(t *testing.T) {
	content := strings.Repeat("x", 500)
	source := &fakeChunkSource{chunks: []model.Chunk{
		embeddedChunk(1, 7, content, []float32{1, 0}, model.SectionAbstract, 1),
		embeddedChunk(2, 7, content, []float32{1, 0}, model.SectionResults, 2),
	}}
	engine := NewEngine(source, &fakeEmbedder{}, 10, 0.7)

	results, err := engine.Search(context.Background(), "query", 7, SearchOptions{
		Strategy:            StrategySemanticOnly,
		SimilarityThreshold: 0.5,
		BoostFactors: &BoostFactors{
			SectionTypes: map[model.SectionType]float64{model.SectionResults: 1.5},
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, uint(2), results[0].Chunk.ID)
	assert.InDelta(t, 1.5, results[0].Similarity, 1e-6)
	require.Len(t, results[0].BoostExplanations, 1)
	assert.Contains(t, results[0].BoostExplanations[0], "section results")

	assert.Equal(t, uint(1), results[1].Chunk.ID)
	assert.InDelta(t, 1.0, results[1].Similarity, 1e-6)
	assert.Empty(t, results[1].BoostExplanations)
}

func TestKeywordBoostScalesWithOverlap(t *testing.T) {
	source := &fakeChunkSource{chunks: []model.Chunk{
		embeddedChunk(1, 7, "transformer attention heads", []float32{1, 0}, model.SectionOther, 1),
	}}
	engine := NewEngine(source, &fakeEmbedder{}, 10, 0.7)

	results, err := engine.Search(context.Background(), "transformer pooling", 7, SearchOptions{
		Strategy:            StrategySemanticOnly,
		SimilarityThreshold: 0.5,
		BoostFactors:        &BoostFactors{KeywordMatch: 2.0},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	// One of two query terms matches: factor = 1 + 0.5*(2.0-1) = 1.5.
	assert.InDelta(t, 1.5, results[0].Similarity, 1e-6)
}

func TestSearchTruncatesToLimit(t *testing.T) {
	content := strings.Repeat("x", 500)
	source := &fakeChunkSource{}
	for i := uint(1); i <= 8; i++ {
		source.chunks = append(source.chunks, embeddedChunk(i, 7, content, []float32{1, 0}, model.SectionOther, int(i)))
	}
	engine := NewEngine(source, &fakeEmbedder{}, 10, 0.7)

	results, err := engine.Search(context.Background(), "query", 7, SearchOptions{
		Strategy:            StrategySemanticOnly,
		Limit:               3,
		SimilarityThreshold: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{results[0].Rank, results[1].Rank, results[2].Rank})
}

func TestTiedScoresKeepInputOrder(t *testing.T) {
	content := strings.Repeat("x", 500)
	source := &fakeChunkSource{chunks: []model.Chunk{
		embeddedChunk(5, 7, content, []float32{1, 0}, model.SectionOther, 1),
		embeddedChunk(3, 7, content, []float32{1, 0}, model.SectionOther, 2),
		embeddedChunk(9, 7, content, []float32{1, 0}, model.SectionOther, 3),
	}}
	engine := NewEngine(source, &fakeEmbedder{}, 10, 0.7)

	results, err := engine.Search(context.Background(), "query", 7, SearchOptions{
		Strategy:            StrategySemanticOnly,
		SimilarityThreshold: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []uint{5, 3, 9}, []uint{results[0].Chunk.ID, results[1].Chunk.ID, results[2].Chunk.ID})
}

func TestSearchAppliesSectionAndPageFilters(t *testing.T) {
	content := strings.Repeat("x", 500)
	source := &fakeChunkSource{chunks: []model.Chunk{
		embeddedChunk(1, 7, content, []float32{1, 0}, model.SectionResults, 2),
		embeddedChunk(2, 7, content, []float32{1, 0}, model.SectionResults, 9),
		embeddedChunk(3, 7, content, []float32{1, 0}, model.SectionAbstract, 2),
	}}
	engine := NewEngine(source, &fakeEmbedder{}, 10, 0.7)

	results, err := engine.Search(context.Background(), "query", 7, SearchOptions{
		Strategy:            StrategySemanticOnly,
		SimilarityThreshold: 0.5,
		SectionTypes:        []model.SectionType{model.SectionResults},
		PageRange:           &PageRange{Start: 1, End: 5},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint(1), results[0].Chunk.ID)
}

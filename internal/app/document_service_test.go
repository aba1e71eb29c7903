package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperchat/internal/fingerprint"
	"paperchat/internal/model"
	"paperchat/internal/pkg/chunker"
	"paperchat/internal/retrieval"
)

type fakeDocStore struct {
	docs   map[uint]*model.Document
	nextID uint
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{docs: map[uint]*model.Document{}}
}

func (s *fakeDocStore) Create(doc *model.Document) error {
	s.nextID++
	doc.ID = s.nextID
	cp := *doc
	s.docs[doc.ID] = &cp
	return nil
}

func (s *fakeDocStore) GetByID(id uint) (*model.Document, error) {
	d, ok := s.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (s *fakeDocStore) GetByIDAndUserID(id, userID uint) (*model.Document, error) {
	d, ok := s.docs[id]
	if !ok || d.UserID != userID {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (s *fakeDocStore) ListByUserID(userID uint) ([]model.Document, error) {
	var out []model.Document
	for _, d := range s.docs {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *fakeDocStore) UpdateStatus(id uint, status string) error {
	if d, ok := s.docs[id]; ok {
		d.Status = status
	}
	return nil
}

func (s *fakeDocStore) MarkReady(id uint, chunkCount int) error {
	if d, ok := s.docs[id]; ok {
		d.Status = model.DocumentStatusReady
		d.ChunkCount = chunkCount
	}
	return nil
}

func (s *fakeDocStore) DeleteByIDAndUserID(id, userID uint) error {
	delete(s.docs, id)
	return nil
}

// fakeChunkRows doubles as the service's ChunkStore and the retrieval
// engine's ChunkSource, so stored rows are searchable in the same test.
type fakeChunkRows struct {
	rows       []model.Chunk
	nextID     uint
	replaceErr error
}

func (s *fakeChunkRows) ReplaceForDocument(_ context.Context, documentID uint, rows []model.Chunk) error {
	if s.replaceErr != nil {
		return s.replaceErr
	}
	var kept []model.Chunk
	for _, r := range s.rows {
		if r.DocumentID != documentID {
			kept = append(kept, r)
		}
	}
	for _, r := range rows {
		s.nextID++
		r.ID = s.nextID
		kept = append(kept, r)
	}
	s.rows = kept
	return nil
}

func (s *fakeChunkRows) CountByDocumentID(documentID uint) (int64, error) {
	var n int64
	for _, r := range s.rows {
		if r.DocumentID == documentID {
			n++
		}
	}
	return n, nil
}

func (s *fakeChunkRows) DeleteByDocumentID(documentID uint) error {
	var kept []model.Chunk
	for _, r := range s.rows {
		if r.DocumentID != documentID {
			kept = append(kept, r)
		}
	}
	s.rows = kept
	return nil
}

func (s *fakeChunkRows) ListByDocument(_ context.Context, documentID uint, filter retrieval.ChunkFilter) ([]model.Chunk, error) {
	var out []model.Chunk
	for _, r := range s.rows {
		if r.DocumentID != documentID {
			continue
		}
		if len(filter.SectionTypes) > 0 {
			found := false
			for _, st := range filter.SectionTypes {
				if r.SectionType == st {
					found = true
				}
			}
			if !found {
				continue
			}
		}
		if filter.PageRange != nil && (r.PageNumber < filter.PageRange.Start || r.PageNumber > filter.PageRange.End) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *fakeChunkRows) ListAdjacent(_ context.Context, documentID uint, sectionType model.SectionType, page int, excludeID uint) ([]model.Chunk, error) {
	return nil, nil
}

// fakeEmbeddingGateway serves both EmbedBatch for ingestion and
// GetEmbedding for query-time retrieval, keyed by content.
type fakeEmbeddingGateway struct {
	batchCalls int
	short      bool
	err        error
}

func (g *fakeEmbeddingGateway) vectorFor(text string) []float32 {
	switch {
	case strings.Contains(text, "transformer"):
		return []float32{1, 0}
	case strings.Contains(text, "dataset"):
		return []float32{0.2, 0.98}
	default:
		return []float32{0, 1}
	}
}

func (g *fakeEmbeddingGateway) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	g.batchCalls++
	if g.err != nil {
		return nil, g.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, g.vectorFor(t))
	}
	if g.short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (g *fakeEmbeddingGateway) GetEmbedding(_ context.Context, text string) ([]float32, error) {
	return g.vectorFor(text), nil
}

type fakeWarmer struct {
	warmed []string
}

func (w *fakeWarmer) CacheEmbedding(text string, _ []float32) {
	w.warmed = append(w.warmed, text)
}

type memoryFingerprintStore struct {
	fps map[uint]*model.DocumentFingerprint
}

func (s *memoryFingerprintStore) Get(_ context.Context, documentID uint) (*model.DocumentFingerprint, error) {
	fp, ok := s.fps[documentID]
	if !ok {
		return nil, nil
	}
	cp := *fp
	return &cp, nil
}

func (s *memoryFingerprintStore) Save(_ context.Context, fp *model.DocumentFingerprint) error {
	if s.fps == nil {
		s.fps = map[uint]*model.DocumentFingerprint{}
	}
	cp := *fp
	s.fps[fp.DocumentID] = &cp
	return nil
}

func paperPages() []string {
	return []string{
		"Sequence Modeling Without Recurrence: An Empirical Study Of Attention Based Encoders.",
		"1. Introduction\nThe transformer architecture replaces recurrence with self attention, letting every position attend to every other position directly.",
		"2. Methodology\nWe train on three public dataset collections with identical hyperparameters and five random seeds.",
	}
}

func newTestDocumentService(docs *fakeDocStore, rows *fakeChunkRows, gateway *fakeEmbeddingGateway, warmer *fakeWarmer, batchSize int) *DocumentService {
	tracker := fingerprint.NewTracker(&memoryFingerprintStore{}, "text-embedding-3-small")
	return NewDocumentService(docs, rows, gateway, warmer, tracker, nil, batchSize)
}

func TestIngestThenSearchRanksIntroductionFirst(t *testing.T) {
	docs := newFakeDocStore()
	rows := &fakeChunkRows{}
	gateway := &fakeEmbeddingGateway{}
	warmer := &fakeWarmer{}
	svc := newTestDocumentService(docs, rows, gateway, warmer, 2)

	doc := &model.Document{UserID: 1, Title: "Attention Study", Filename: "attention.pdf", Status: model.DocumentStatusPending}
	require.NoError(t, docs.Create(doc))

	require.NoError(t, svc.Ingest(context.Background(), doc.ID, paperPages()))

	stored, err := docs.GetByID(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusReady, stored.Status)
	assert.Equal(t, 3, stored.ChunkCount)
	// Three chunks at batch size two means two gateway round trips.
	assert.Equal(t, 2, gateway.batchCalls)
	assert.Len(t, warmer.warmed, 3)

	engine := retrieval.NewEngine(rows, gateway, 10, 0.7)
	results, err := engine.Search(context.Background(), "How does the transformer handle long sequences?", doc.ID,
		retrieval.SearchOptions{Strategy: retrieval.StrategySemanticOnly, SimilarityThreshold: 0.1})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, model.SectionIntroduction, results[0].Chunk.SectionType)
	assert.Contains(t, results[0].Chunk.Content, "transformer")
	assert.True(t, results[0].Chunk.HasEmbedding())
}

func TestIngestSkipsUnchangedDocument(t *testing.T) {
	docs := newFakeDocStore()
	rows := &fakeChunkRows{}
	gateway := &fakeEmbeddingGateway{}
	svc := newTestDocumentService(docs, rows, gateway, &fakeWarmer{}, 16)

	doc := &model.Document{UserID: 1, Title: "Attention Study", Filename: "attention.pdf"}
	require.NoError(t, docs.Create(doc))

	require.NoError(t, svc.Ingest(context.Background(), doc.ID, paperPages()))
	require.Equal(t, 1, gateway.batchCalls)

	// Same pages, same fingerprint: no re-embedding, document stays ready.
	require.NoError(t, svc.Ingest(context.Background(), doc.ID, paperPages()))
	assert.Equal(t, 1, gateway.batchCalls)

	stored, err := docs.GetByID(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusReady, stored.Status)
	assert.Equal(t, 3, stored.ChunkCount)
}

func TestIngestEmbeddingCountMismatchFailsDocument(t *testing.T) {
	docs := newFakeDocStore()
	rows := &fakeChunkRows{rows: []model.Chunk{{ID: 99, DocumentID: 1, Content: "previous ingest"}}}
	gateway := &fakeEmbeddingGateway{short: true}
	warmer := &fakeWarmer{}
	svc := newTestDocumentService(docs, rows, gateway, warmer, 16)

	doc := &model.Document{UserID: 1, Title: "Attention Study", Filename: "attention.pdf"}
	require.NoError(t, docs.Create(doc))

	err := svc.Ingest(context.Background(), doc.ID, paperPages())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding count mismatch")

	stored, getErr := docs.GetByID(doc.ID)
	require.NoError(t, getErr)
	assert.Equal(t, model.DocumentStatusFailed, stored.Status)

	// The previous chunk set is untouched and nothing was warmed.
	require.Len(t, rows.rows, 1)
	assert.Equal(t, "previous ingest", rows.rows[0].Content)
	assert.Empty(t, warmer.warmed)
}

func TestStoreChunksReplaceFailureKeepsPreviousChunks(t *testing.T) {
	docs := newFakeDocStore()
	rows := &fakeChunkRows{
		rows:       []model.Chunk{{ID: 7, DocumentID: 1, Content: "stale chunk"}},
		replaceErr: errors.New("dial tcp: connection refused"),
	}
	warmer := &fakeWarmer{}
	svc := newTestDocumentService(docs, rows, &fakeEmbeddingGateway{}, warmer, 16)

	err := svc.StoreChunks(context.Background(), 1, chunker.Split(paperPages()))
	require.Error(t, err)

	require.Len(t, rows.rows, 1)
	assert.Equal(t, "stale chunk", rows.rows[0].Content)
	assert.Empty(t, warmer.warmed)
}

func TestStoreChunksReplacesPreviousChunkSet(t *testing.T) {
	docs := newFakeDocStore()
	rows := &fakeChunkRows{rows: []model.Chunk{{ID: 7, DocumentID: 1, Content: "stale chunk"}}}
	svc := newTestDocumentService(docs, rows, &fakeEmbeddingGateway{}, &fakeWarmer{}, 16)

	require.NoError(t, svc.StoreChunks(context.Background(), 1, chunker.Split(paperPages())))

	require.Len(t, rows.rows, 3)
	for _, r := range rows.rows {
		assert.NotEqual(t, "stale chunk", r.Content)
		assert.True(t, r.HasEmbedding())
	}
}

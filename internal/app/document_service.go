package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"paperchat/internal/fingerprint"
	"paperchat/internal/model"
	"paperchat/internal/pkg/chunker"
	"paperchat/internal/pkg/pdfextract"
)

// IngestPublisher hands a document's extracted pages to the async ingest
// worker. A nil publisher makes Upload process synchronously.
type IngestPublisher interface {
	PublishIngest(ctx context.Context, documentID uint, pages []string) error
}

// DocumentStore persists document rows; *repository.DocumentRepository in
// production.
type DocumentStore interface {
	Create(doc *model.Document) error
	GetByID(id uint) (*model.Document, error)
	GetByIDAndUserID(id, userID uint) (*model.Document, error)
	ListByUserID(userID uint) ([]model.Document, error)
	UpdateStatus(id uint, status string) error
	MarkReady(id uint, chunkCount int) error
	DeleteByIDAndUserID(id, userID uint) error
}

// ChunkStore persists chunk rows. ReplaceForDocument must swap a
// document's chunk set atomically.
type ChunkStore interface {
	ReplaceForDocument(ctx context.Context, documentID uint, rows []model.Chunk) error
	CountByDocumentID(documentID uint) (int64, error)
	DeleteByDocumentID(documentID uint) error
}

// EmbeddingGateway computes vectors for a batch of texts; normally the AI
// client.
type EmbeddingGateway interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingWarmer pre-seeds the embedding cache once chunks are stored.
type EmbeddingWarmer interface {
	CacheEmbedding(text string, vec []float32)
}

// DocumentService owns the ingestion side: PDF upload, chunking,
// embedding, fingerprinting, and chunk persistence.
type DocumentService struct {
	docRepo   DocumentStore
	chunkRepo ChunkStore
	gateway   EmbeddingGateway
	warmer    EmbeddingWarmer
	tracker   *fingerprint.Tracker
	publisher IngestPublisher
	batchSize int
}

func NewDocumentService(
	docRepo DocumentStore,
	chunkRepo ChunkStore,
	gateway EmbeddingGateway,
	warmer EmbeddingWarmer,
	tracker *fingerprint.Tracker,
	publisher IngestPublisher,
	batchSize int,
) *DocumentService {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &DocumentService{
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		gateway:   gateway,
		warmer:    warmer,
		tracker:   tracker,
		publisher: publisher,
		batchSize: batchSize,
	}
}

type UploadInput struct {
	UserID   uint
	Title    string
	Filename string
	PDF      io.Reader
}

// Upload extracts the PDF's text, registers the document, and hands the
// pages to the ingest worker (or ingests inline when no queue is wired).
func (s *DocumentService) Upload(ctx context.Context, input UploadInput) (*model.Document, error) {
	if input.UserID == 0 || input.PDF == nil {
		return nil, ErrInvalidInput
	}

	pages, err := pdfextract.ExtractPages(input.PDF)
	if err != nil {
		return nil, fmt.Errorf("extract pdf text failed: %w", err)
	}
	if !hasText(pages) {
		return nil, ErrInvalidInput
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = strings.TrimSuffix(input.Filename, ".pdf")
	}
	if title == "" {
		title = "Untitled"
	}

	doc := &model.Document{
		UserID:    input.UserID,
		Title:     title,
		Filename:  input.Filename,
		Status:    model.DocumentStatusPending,
		PageCount: len(pages),
	}
	if err := s.docRepo.Create(doc); err != nil {
		return nil, err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishIngest(ctx, doc.ID, pages); err != nil {
			// Queue down: degrade to inline ingestion rather than failing
			// the upload.
			log.Printf("warn: enqueue ingest for document %d failed, ingesting inline: %v", doc.ID, err)
		} else {
			return doc, nil
		}
	}

	if err := s.Ingest(ctx, doc.ID, pages); err != nil {
		return nil, err
	}
	return s.docRepo.GetByID(doc.ID)
}

// Ingest chunks the pages, skips work when the fingerprint says nothing
// changed, and otherwise embeds and stores the chunks and writes a new
// fingerprint.
func (s *DocumentService) Ingest(ctx context.Context, documentID uint, pages []string) error {
	if err := s.docRepo.UpdateStatus(documentID, model.DocumentStatusProcessing); err != nil {
		return err
	}

	chunks := chunker.Split(pages)
	if len(chunks) == 0 {
		_ = s.docRepo.UpdateStatus(documentID, model.DocumentStatusFailed)
		return fmt.Errorf("document %d produced no chunks", documentID)
	}

	contentHash := fingerprint.ContentHash(strings.Join(pages, "\n"))
	structureHash := fingerprint.StructureHash(chunker.SectionSequence(chunks))

	needs, err := s.tracker.NeedsReprocessing(ctx, documentID, contentHash, structureHash)
	if err != nil {
		_ = s.docRepo.UpdateStatus(documentID, model.DocumentStatusFailed)
		return err
	}
	if !needs {
		count, err := s.chunkRepo.CountByDocumentID(documentID)
		if err != nil {
			return err
		}
		return s.docRepo.MarkReady(documentID, int(count))
	}

	if err := s.StoreChunks(ctx, documentID, chunks); err != nil {
		_ = s.docRepo.UpdateStatus(documentID, model.DocumentStatusFailed)
		return err
	}
	if err := s.tracker.CreateFingerprint(ctx, documentID, contentHash, structureHash, len(chunks)); err != nil {
		return err
	}
	return s.docRepo.MarkReady(documentID, len(chunks))
}

// StoreChunks embeds chunk contents in provider-sized batches, then
// replaces the document's chunk rows atomically so a failure leaves the
// previous chunk set intact. Embeddings are cached after commit.
func (s *DocumentService) StoreChunks(ctx context.Context, documentID uint, chunks []chunker.Chunk) error {
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}

	var embeddings [][]float32
	for i := 0; i < len(texts); i += s.batchSize {
		end := i + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := s.gateway.EmbedBatch(ctx, texts[i:end])
		if err != nil {
			return fmt.Errorf("embed chunk batch failed: %w", err)
		}
		embeddings = append(embeddings, batch...)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: %d vectors for %d chunks", len(embeddings), len(chunks))
	}

	rows := make([]model.Chunk, len(chunks))
	for i, c := range chunks {
		rows[i] = model.Chunk{
			DocumentID:    documentID,
			Content:       c.Content,
			PageNumber:    c.PageNumber,
			SectionTitle:  c.SectionTitle,
			SectionType:   c.SectionType,
			StartPosition: c.StartPosition,
			EndPosition:   c.EndPosition,
			Confidence:    c.Confidence,
		}
		rows[i].SetEmbedding(embeddings[i])
	}

	if err := s.chunkRepo.ReplaceForDocument(ctx, documentID, rows); err != nil {
		return err
	}

	for i := range chunks {
		s.warmer.CacheEmbedding(chunks[i].Content, embeddings[i])
	}
	return nil
}

func (s *DocumentService) ListDocuments(userID uint) ([]model.Document, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.docRepo.ListByUserID(userID)
}

func (s *DocumentService) GetDocument(userID, documentID uint) (*model.Document, error) {
	if userID == 0 || documentID == 0 {
		return nil, ErrInvalidInput
	}
	doc, err := s.docRepo.GetByIDAndUserID(documentID, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// DocumentStatus pairs a document with its processing fingerprint; the
// fingerprint is nil until the first successful ingestion.
type DocumentStatus struct {
	Document    *model.Document            `json:"document"`
	Fingerprint *model.DocumentFingerprint `json:"fingerprint,omitempty"`
}

func (s *DocumentService) GetDocumentStatus(ctx context.Context, userID, documentID uint) (*DocumentStatus, error) {
	doc, err := s.GetDocument(userID, documentID)
	if err != nil {
		return nil, err
	}
	fp, err := s.tracker.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return &DocumentStatus{Document: doc, Fingerprint: fp}, nil
}

func (s *DocumentService) DeleteDocument(userID, documentID uint) error {
	doc, err := s.GetDocument(userID, documentID)
	if err != nil {
		return err
	}
	if err := s.chunkRepo.DeleteByDocumentID(doc.ID); err != nil {
		return err
	}
	return s.docRepo.DeleteByIDAndUserID(doc.ID, userID)
}

func hasText(pages []string) bool {
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}

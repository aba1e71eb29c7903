package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"paperchat/internal/model"
	"paperchat/internal/retrieval"
)

// ChunkRepository persists document chunks and serves the retrieval
// engine's ChunkSource interface.
type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// ListByDocument returns the document's chunks in document order
// (page, then start offset), optionally narrowed by section type and
// page range. Retrieval order is the tie-break order for equal scores.
func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID uint, filter retrieval.ChunkFilter) ([]model.Chunk, error) {
	q := r.db.WithContext(ctx).Where("document_id = ?", documentID)
	if len(filter.SectionTypes) > 0 {
		q = q.Where("section_type IN ?", filter.SectionTypes)
	}
	if filter.PageRange != nil {
		q = q.Where("page_number BETWEEN ? AND ?", filter.PageRange.Start, filter.PageRange.End)
	}

	var chunks []model.Chunk
	if err := q.Order("page_number ASC, start_position ASC").Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks failed: %w", err)
	}
	return chunks, nil
}

// ListAdjacent returns chunks of the same section type within one page of
// the given page, excluding the chunk itself.
func (r *ChunkRepository) ListAdjacent(ctx context.Context, documentID uint, sectionType model.SectionType, page int, excludeID uint) ([]model.Chunk, error) {
	var chunks []model.Chunk
	err := r.db.WithContext(ctx).
		Where("document_id = ? AND section_type = ? AND page_number BETWEEN ? AND ? AND id <> ?",
			documentID, sectionType, page-1, page+1, excludeID).
		Order("page_number ASC, start_position ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, fmt.Errorf("list adjacent chunks failed: %w", err)
	}
	return chunks, nil
}

// ReplaceForDocument swaps a document's chunk rows in one transaction so a
// failure leaves the previous chunk set intact.
func (r *ChunkRepository) ReplaceForDocument(ctx context.Context, documentID uint, rows []model.Chunk) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error; err != nil {
			return fmt.Errorf("delete stale chunks failed: %w", err)
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("create chunks failed: %w", err)
		}
		return nil
	})
}

func (r *ChunkRepository) CountByDocumentID(documentID uint) (int64, error) {
	var count int64
	if err := r.db.Model(&model.Chunk{}).Where("document_id = ?", documentID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count chunks failed: %w", err)
	}
	return count, nil
}

func (r *ChunkRepository) DeleteByDocumentID(documentID uint) error {
	if err := r.db.Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error; err != nil {
		return fmt.Errorf("delete chunks by document failed: %w", err)
	}
	return nil
}

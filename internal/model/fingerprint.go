package model

import "time"

// DocumentFingerprint records the content, structure, and embedding-model
// state a document was last processed with. One row per document,
// replaced wholesale on reprocessing; no history is retained.
type DocumentFingerprint struct {
	DocumentID       uint      `gorm:"primaryKey" json:"document_id"`
	ContentHash      string    `gorm:"size:64;not null" json:"content_hash"`
	StructureHash    string    `gorm:"size:64;not null" json:"structure_hash"`
	EmbeddingVersion string    `gorm:"size:128;not null" json:"embedding_version"`
	LastProcessedAt  time.Time `gorm:"not null" json:"last_processed_at"`
	ChunkCount       int       `gorm:"not null" json:"chunk_count"`
}

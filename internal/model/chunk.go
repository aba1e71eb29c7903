package model

import (
	"encoding/binary"
	"math"
	"time"
)

// SectionType classifies which part of a paper a chunk was extracted from.
type SectionType string

const (
	SectionTitle        SectionType = "title"
	SectionAbstract     SectionType = "abstract"
	SectionIntroduction SectionType = "introduction"
	SectionMethodology  SectionType = "methodology"
	SectionResults      SectionType = "results"
	SectionDiscussion   SectionType = "discussion"
	SectionConclusion   SectionType = "conclusion"
	SectionReferences   SectionType = "references"
	SectionAppendix     SectionType = "appendix"
	SectionFigure       SectionType = "figure"
	SectionTable        SectionType = "table"
	SectionCaption      SectionType = "caption"
	SectionOther        SectionType = "other"
)

// Chunk is the atomic unit of retrieval: a bounded span of a document's
// extracted text plus its embedding. Immutable once created.
// The embedding is stored as raw little-endian float32 values packed
// contiguously, 4 bytes per dimension, no header.
type Chunk struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	DocumentID    uint        `gorm:"not null;index" json:"document_id"`
	Content       string      `gorm:"type:text;not null" json:"content"`
	Embedding     []byte      `gorm:"type:mediumblob" json:"-"`
	PageNumber    int         `gorm:"not null;index" json:"page_number"`
	SectionTitle  string      `gorm:"size:256" json:"section_title,omitempty"`
	SectionType   SectionType `gorm:"size:32;not null;index" json:"section_type"`
	StartPosition int         `gorm:"not null" json:"start_position"`
	EndPosition   int         `gorm:"not null" json:"end_position"`
	Confidence    float64     `gorm:"not null" json:"confidence"`
	BoundingBox   string      `gorm:"size:256" json:"bounding_box,omitempty"` // JSON, optional
	CreatedAt     time.Time   `json:"created_at"`
}

// HasEmbedding reports whether an embedding vector is stored for the chunk.
func (c *Chunk) HasEmbedding() bool {
	return len(c.Embedding) >= 4
}

// EmbeddingVector decodes the packed embedding; nil when none is stored.
func (c *Chunk) EmbeddingVector() []float32 {
	return UnpackEmbedding(c.Embedding)
}

// SetEmbedding packs and stores the embedding vector.
func (c *Chunk) SetEmbedding(vec []float32) {
	c.Embedding = PackEmbedding(vec)
}

// PackEmbedding encodes a vector as contiguous little-endian float32 bytes.
func PackEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// UnpackEmbedding decodes contiguous little-endian float32 bytes.
// Trailing bytes that do not form a full float32 are ignored.
func UnpackEmbedding(buf []byte) []float32 {
	n := len(buf) / 4
	if n == 0 {
		return nil
	}
	vec := make([]float32, n)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec
}

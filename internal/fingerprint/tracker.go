// Package fingerprint decides whether a document's chunks must be
// re-embedded by comparing content, structure, and embedding-model
// signatures against the stored fingerprint.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"paperchat/internal/model"
)

// embeddingGeneration bumps every fingerprint when the embedding pipeline
// changes in a way that requires re-embedding stored documents.
const embeddingGeneration = 1

// Store persists one fingerprint per document with replace-on-write
// semantics. Get returns nil (no error) when no fingerprint exists.
type Store interface {
	Get(ctx context.Context, documentID uint) (*model.DocumentFingerprint, error)
	Save(ctx context.Context, fp *model.DocumentFingerprint) error
}

// EmbeddingVersion is a pure function of the model name and the declared
// generation, so two processes running the same build always agree on
// whether stored chunks are current.
func EmbeddingVersion(embeddingModel string) string {
	return fmt.Sprintf("%s#gen%d", embeddingModel, embeddingGeneration)
}

// ContentHash fingerprints the document's extracted text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// StructureHash fingerprints the sequence of section types, so a layout
// change is detected even when the text hash happens to collide with an
// older extraction.
func StructureHash(sectionTypes []model.SectionType) string {
	parts := make([]string, len(sectionTypes))
	for i, st := range sectionTypes {
		parts[i] = string(st)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

type Tracker struct {
	store   Store
	version string
}

func NewTracker(store Store, embeddingModel string) *Tracker {
	return &Tracker{
		store:   store,
		version: EmbeddingVersion(embeddingModel),
	}
}

// NeedsReprocessing is true when no fingerprint exists or any of the
// content hash, structure hash, or active embedding version differs from
// the stored values.
func (t *Tracker) NeedsReprocessing(ctx context.Context, documentID uint, contentHash, structureHash string) (bool, error) {
	fp, err := t.store.Get(ctx, documentID)
	if err != nil {
		return false, fmt.Errorf("get fingerprint failed: %w", err)
	}
	if fp == nil {
		return true, nil
	}
	if fp.ContentHash != contentHash || fp.StructureHash != structureHash || fp.EmbeddingVersion != t.version {
		return true, nil
	}
	return false, nil
}

// Get returns the stored fingerprint, or nil when none exists.
func (t *Tracker) Get(ctx context.Context, documentID uint) (*model.DocumentFingerprint, error) {
	fp, err := t.store.Get(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get fingerprint failed: %w", err)
	}
	return fp, nil
}

// CreateFingerprint replaces the document's fingerprint with the current
// hashes and embedding version.
func (t *Tracker) CreateFingerprint(ctx context.Context, documentID uint, contentHash, structureHash string, chunkCount int) error {
	fp := &model.DocumentFingerprint{
		DocumentID:       documentID,
		ContentHash:      contentHash,
		StructureHash:    structureHash,
		EmbeddingVersion: t.version,
		LastProcessedAt:  time.Now(),
		ChunkCount:       chunkCount,
	}
	if err := t.store.Save(ctx, fp); err != nil {
		return fmt.Errorf("save fingerprint failed: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"paperchat/internal/model"
)

// FingerprintRepository implements the fingerprint tracker's Store with
// replace-on-write semantics: one row per document, no history.
type FingerprintRepository struct {
	db *gorm.DB
}

func NewFingerprintRepository(db *gorm.DB) *FingerprintRepository {
	return &FingerprintRepository{db: db}
}

func (r *FingerprintRepository) Get(ctx context.Context, documentID uint) (*model.DocumentFingerprint, error) {
	var fp model.DocumentFingerprint
	if err := r.db.WithContext(ctx).Where("document_id = ?", documentID).First(&fp).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get fingerprint failed: %w", err)
	}
	return &fp, nil
}

func (r *FingerprintRepository) Save(ctx context.Context, fp *model.DocumentFingerprint) error {
	if err := r.db.WithContext(ctx).Save(fp).Error; err != nil {
		return fmt.Errorf("save fingerprint failed: %w", err)
	}
	return nil
}

func (r *FingerprintRepository) DeleteByDocumentID(documentID uint) error {
	if err := r.db.Where("document_id = ?", documentID).Delete(&model.DocumentFingerprint{}).Error; err != nil {
		return fmt.Errorf("delete fingerprint failed: %w", err)
	}
	return nil
}

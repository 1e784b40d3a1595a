package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gopherai-docqa/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) WithTx(tx *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) GetByIDAndOwnerID(ctx context.Context, id, ownerID string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

// ListByOwnerID returns the owner's documents, newest first.
func (r *DocumentRepository) ListByOwnerID(ctx context.Context, ownerID string) ([]model.Document, error) {
	var list []model.Document
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

// ListByIDsAndOwnerID returns the subset of ids that exist and belong to the
// owner. Unknown ids are silently dropped.
func (r *DocumentRepository) ListByIDsAndOwnerID(ctx context.Context, ids []string, ownerID string) ([]model.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var list []model.Document
	if err := r.db.WithContext(ctx).Where("id IN ? AND owner_id = ?", ids, ownerID).Order("created_at ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents by ids failed: %w", err)
	}
	return list, nil
}

// CompareAndSetStatus writes status only if the row still has the expected
// current status. It reports whether the row was updated.
func (r *DocumentRepository) CompareAndSetStatus(
	ctx context.Context,
	id string,
	current, next model.DocumentStatus,
	errorMessage string,
	at time.Time,
) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Document{}).
		Where("id = ? AND status = ?", id, current).
		Updates(map[string]any{
			"status":        next,
			"error_message": errorMessage,
			"updated_at":    at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("update document status failed: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// SaveContent stores the extracted-content record, replacing any earlier one.
func (r *DocumentRepository) SaveContent(ctx context.Context, content *model.DocumentContent) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"text"}),
		}).
		Create(content).Error
	if err != nil {
		return fmt.Errorf("save document content failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetContent(ctx context.Context, documentID string) (*model.DocumentContent, error) {
	var content model.DocumentContent
	if err := r.db.WithContext(ctx).Where("document_id = ?", documentID).First(&content).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document content failed: %w", err)
	}
	return &content, nil
}

// DeleteCascade removes a document with its embeddings, chunks, images and
// extracted content in one transaction.
func (r *DocumentRepository) DeleteCascade(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		steps := []struct {
			name  string
			model any
			where string
		}{
			{"embeddings", &model.Embedding{}, "document_id = ?"},
			{"chunks", &model.Chunk{}, "document_id = ?"},
			{"images", &model.DocumentImage{}, "document_id = ?"},
			{"content", &model.DocumentContent{}, "document_id = ?"},
			{"document", &model.Document{}, "id = ?"},
		}
		for _, step := range steps {
			if err := tx.Where(step.where, id).Delete(step.model).Error; err != nil {
				return fmt.Errorf("delete document %s failed: %w", step.name, err)
			}
		}
		return nil
	})
}

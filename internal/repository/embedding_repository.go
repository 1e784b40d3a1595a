package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"gopherai-docqa/internal/model"
)

type EmbeddingRepository struct {
	db *gorm.DB
}

func NewEmbeddingRepository(db *gorm.DB) *EmbeddingRepository {
	return &EmbeddingRepository{db: db}
}

func (r *EmbeddingRepository) WithTx(tx *gorm.DB) *EmbeddingRepository {
	return &EmbeddingRepository{db: tx}
}

func (r *EmbeddingRepository) CreateBatch(ctx context.Context, embeddings []model.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	for i := range embeddings {
		if !embeddings[i].OwnerValid() {
			return fmt.Errorf("create embeddings batch failed: embedding %d must belong to exactly one of a chunk or an image", i)
		}
	}
	if err := r.db.WithContext(ctx).Create(&embeddings).Error; err != nil {
		return fmt.Errorf("create embeddings batch failed: %w", err)
	}
	return nil
}

// ListByChunkIDs returns the embeddings of the given chunks keyed by chunk id.
func (r *EmbeddingRepository) ListByChunkIDs(ctx context.Context, chunkIDs []string) (map[string]model.Embedding, error) {
	out := make(map[string]model.Embedding, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return out, nil
	}
	var list []model.Embedding
	if err := r.db.WithContext(ctx).Where("chunk_id IN ?", chunkIDs).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list embeddings by chunk ids failed: %w", err)
	}
	for _, e := range list {
		if e.ChunkID != nil {
			out[*e.ChunkID] = e
		}
	}
	return out, nil
}

func (r *EmbeddingRepository) CountByDocumentID(ctx context.Context, documentID string) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Embedding{}).Where("document_id = ?", documentID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count embeddings failed: %w", err)
	}
	return n, nil
}

func (r *EmbeddingRepository) DeleteByDocumentID(ctx context.Context, documentID string) error {
	if err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.Embedding{}).Error; err != nil {
		return fmt.Errorf("delete embeddings failed: %w", err)
	}
	return nil
}

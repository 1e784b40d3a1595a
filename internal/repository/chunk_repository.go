package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"gopherai-docqa/internal/model"
)

// orderChunks sorts by page (nulls last) and then by chunk index.
func orderChunks(q *gorm.DB) *gorm.DB {
	return q.Order("page_number IS NULL").Order("page_number ASC").Order("chunk_index ASC")
}

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) WithTx(tx *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

func (r *ChunkRepository) Create(ctx context.Context, chunk *model.Chunk) error {
	if err := r.db.WithContext(ctx).Create(chunk).Error; err != nil {
		return fmt.Errorf("create chunk failed: %w", err)
	}
	return nil
}

func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&chunks).Error; err != nil {
		return fmt.Errorf("create chunks batch failed: %w", err)
	}
	return nil
}

func (r *ChunkRepository) GetByID(ctx context.Context, id string) (*model.Chunk, error) {
	var chunk model.Chunk
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&chunk).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chunk failed: %w", err)
	}
	return &chunk, nil
}

func (r *ChunkRepository) GetByDocumentAndIndex(ctx context.Context, documentID string, index int) (*model.Chunk, error) {
	var chunk model.Chunk
	if err := r.db.WithContext(ctx).Where("document_id = ? AND chunk_index = ?", documentID, index).First(&chunk).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chunk by index failed: %w", err)
	}
	return &chunk, nil
}

// ListOrdered returns all chunks of a document by (page nulls last, index).
func (r *ChunkRepository) ListOrdered(ctx context.Context, documentID string) ([]model.Chunk, error) {
	var chunks []model.Chunk
	if err := orderChunks(r.db.WithContext(ctx).Where("document_id = ?", documentID)).Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks failed: %w", err)
	}
	return chunks, nil
}

// ListByDocumentIDs returns all chunks of the given documents. Callers must
// only pass queryable documents.
func (r *ChunkRepository) ListByDocumentIDs(ctx context.Context, documentIDs []string) ([]model.Chunk, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	var chunks []model.Chunk
	q := r.db.WithContext(ctx).Where("document_id IN ?", documentIDs).Order("document_id ASC")
	if err := orderChunks(q).Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks by document ids failed: %w", err)
	}
	return chunks, nil
}

// ListByElementType matches the type exactly; a nil type matches chunks
// without a type.
func (r *ChunkRepository) ListByElementType(ctx context.Context, documentIDs []string, elementType *model.ElementType) ([]model.Chunk, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	q := r.db.WithContext(ctx).Where("document_id IN ?", documentIDs)
	if elementType == nil {
		q = q.Where("element_type IS NULL")
	} else {
		q = q.Where("element_type = ?", *elementType)
	}
	var chunks []model.Chunk
	if err := q.Order("document_id ASC").Order("chunk_index ASC").Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks by element type failed: %w", err)
	}
	return chunks, nil
}

func (r *ChunkRepository) ListByPage(ctx context.Context, documentID string, pageNumber int) ([]model.Chunk, error) {
	var chunks []model.Chunk
	err := r.db.WithContext(ctx).
		Where("document_id = ? AND page_number = ?", documentID, pageNumber).
		Order("chunk_index ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, fmt.Errorf("list chunks by page failed: %w", err)
	}
	return chunks, nil
}

// UpdateStructure writes only the given structural columns.
func (r *ChunkRepository) UpdateStructure(ctx context.Context, id string, columns map[string]any) error {
	if len(columns) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Model(&model.Chunk{}).Where("id = ?", id).Updates(columns).Error; err != nil {
		return fmt.Errorf("update chunk structure failed: %w", err)
	}
	return nil
}

// CountByElementType groups chunks by type; untyped chunks are counted under
// the "unknown" bucket.
func (r *ChunkRepository) CountByElementType(ctx context.Context, documentIDs []string) (map[string]int, error) {
	counts := make(map[string]int)
	if len(documentIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		ElementType *string
		N           int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.Chunk{}).
		Select("element_type, COUNT(*) AS n").
		Where("document_id IN ?", documentIDs).
		Group("element_type").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count chunks by element type failed: %w", err)
	}
	for _, row := range rows {
		key := model.UnknownElementBucket
		if row.ElementType != nil {
			key = *row.ElementType
		}
		counts[key] += int(row.N)
	}
	return counts, nil
}

// CountByPage groups chunks by page number; chunks without a page are skipped.
func (r *ChunkRepository) CountByPage(ctx context.Context, documentIDs []string) (map[int]int, error) {
	counts := make(map[int]int)
	if len(documentIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		PageNumber int
		N          int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.Chunk{}).
		Select("page_number, COUNT(*) AS n").
		Where("document_id IN ? AND page_number IS NOT NULL", documentIDs).
		Group("page_number").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count chunks by page failed: %w", err)
	}
	for _, row := range rows {
		counts[row.PageNumber] += int(row.N)
	}
	return counts, nil
}

func (r *ChunkRepository) DeleteByDocumentID(ctx context.Context, documentID string) error {
	if err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error; err != nil {
		return fmt.Errorf("delete chunks failed: %w", err)
	}
	return nil
}

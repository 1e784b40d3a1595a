package app

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/repository"
	"gopherai-docqa/internal/retrieval"
)

// StructuralPatch is a partial structural-metadata update keyed by
// element_type, page_number and bounding_box. Absent keys are left alone;
// a nil value clears the field.
type StructuralPatch map[string]any

const (
	patchElementType = "element_type"
	patchPageNumber  = "page_number"
	patchBoundingBox = "bounding_box"
)

// ChunkService is the chunk store: owner-scoped reads plus the two write
// paths allowed after ingestion, idempotent creation and structural backfill.
type ChunkService struct {
	docRepo   *repository.DocumentRepository
	chunkRepo *repository.ChunkRepository
	locks     *DocumentLocks
	cache     ResultCache
}

func NewChunkService(
	docRepo *repository.DocumentRepository,
	chunkRepo *repository.ChunkRepository,
	locks *DocumentLocks,
	cache ResultCache,
) *ChunkService {
	return &ChunkService{
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		locks:     locks,
		cache:     cache,
	}
}

type CreateChunkInput struct {
	OwnerID    string
	DocumentID string
	Index      int
	Content    string
	Metadata   *model.StructuralMetadata
}

// CreateChunk stores a chunk at its index. Re-creating an existing index
// with the same content is a no-op that refreshes supplied metadata; any
// other content is rejected with ErrChunkIndexConflict. New indexes are
// refused with ErrInvalidTransition once the document is queryable.
func (s *ChunkService) CreateChunk(ctx context.Context, input CreateChunkInput) (*model.Chunk, error) {
	if input.Index < 0 {
		return nil, invalidf("chunk_index", "must not be negative")
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, invalidf("content", "is required")
	}
	if err := validateMetadata(input.Metadata); err != nil {
		return nil, err
	}
	doc, err := s.ownedDocument(ctx, input.OwnerID, input.DocumentID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(doc.ID)
	defer unlock()

	existing, err := s.chunkRepo.GetByDocumentAndIndex(ctx, doc.ID, input.Index)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Content != input.Content {
			return nil, fmt.Errorf("%w: document %s index %d", ErrChunkIndexConflict, doc.ID, input.Index)
		}
		if input.Metadata == nil {
			return existing, nil
		}
		if err := s.chunkRepo.UpdateStructure(ctx, existing.ID, metadataColumns(input.Metadata)); err != nil {
			return nil, err
		}
		invalidateOwnerCache(ctx, s.cache, doc.OwnerID)
		return s.chunkRepo.GetByID(ctx, existing.ID)
	}
	// a queryable document must keep a chunk set with an embedding per chunk
	if doc.IsQueryable() {
		return nil, fmt.Errorf("%w: document %s is %s, new chunks come from ingestion", ErrInvalidTransition, doc.ID, doc.Status)
	}

	chunk := &model.Chunk{
		DocumentID: doc.ID,
		ChunkIndex: input.Index,
		Content:    input.Content,
	}
	tokens := retrieval.EstimateTokens(input.Content)
	chunk.TokenCount = &tokens
	input.Metadata.Apply(chunk)
	if err := s.chunkRepo.Create(ctx, chunk); err != nil {
		return nil, err
	}
	invalidateOwnerCache(ctx, s.cache, doc.OwnerID)
	return chunk, nil
}

// GetChunksOrdered returns every chunk of the document by page (missing
// pages last) and then index.
func (s *ChunkService) GetChunksOrdered(ctx context.Context, ownerID, documentID string) ([]model.Chunk, error) {
	doc, err := s.ownedDocument(ctx, ownerID, documentID)
	if err != nil {
		return nil, err
	}
	return s.chunkRepo.ListOrdered(ctx, doc.ID)
}

// GetChunksByElementType matches exactly; a nil type returns unclassified
// chunks.
func (s *ChunkService) GetChunksByElementType(ctx context.Context, ownerID, documentID string, elementType *model.ElementType) ([]model.Chunk, error) {
	if elementType != nil && !elementType.Valid() {
		return nil, invalidf("element_type", "unknown element type %q", *elementType)
	}
	doc, err := s.ownedDocument(ctx, ownerID, documentID)
	if err != nil {
		return nil, err
	}
	return s.chunkRepo.ListByElementType(ctx, []string{doc.ID}, elementType)
}

func (s *ChunkService) GetChunksByPage(ctx context.Context, ownerID, documentID string, page int) ([]model.Chunk, error) {
	if page < 1 {
		return nil, invalidf("page", "must be >= 1")
	}
	doc, err := s.ownedDocument(ctx, ownerID, documentID)
	if err != nil {
		return nil, err
	}
	return s.chunkRepo.ListByPage(ctx, doc.ID, page)
}

// UpdateStructuralMetadata applies a partial backfill. Content and index
// are never touched.
func (s *ChunkService) UpdateStructuralMetadata(ctx context.Context, ownerID, chunkID string, patch StructuralPatch) (*model.Chunk, error) {
	if err := validateOwner(ownerID); err != nil {
		return nil, err
	}
	columns, err := patchColumns(patch)
	if err != nil {
		return nil, err
	}
	chunk, err := s.chunkRepo.GetByID(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	if chunk == nil {
		return nil, ErrNotFound
	}
	doc, err := s.ownedDocument(ctx, ownerID, chunk.DocumentID)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return chunk, nil
	}

	unlock := s.locks.Lock(doc.ID)
	defer unlock()

	if err := s.chunkRepo.UpdateStructure(ctx, chunk.ID, columns); err != nil {
		return nil, err
	}
	invalidateOwnerCache(ctx, s.cache, doc.OwnerID)
	return s.chunkRepo.GetByID(ctx, chunk.ID)
}

func (s *ChunkService) ownedDocument(ctx context.Context, ownerID, documentID string) (*model.Document, error) {
	if err := validateOwner(ownerID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(documentID) == "" {
		return nil, invalidf("document_id", "is required")
	}
	doc, err := s.docRepo.GetByIDAndOwnerID(ctx, documentID, ownerID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrNotFound
	}
	return doc, nil
}

func validateMetadata(m *model.StructuralMetadata) error {
	if m == nil {
		return nil
	}
	if !model.ValidateElementType(m.ElementType) {
		return invalidf("element_type", "unknown element type %q", *m.ElementType)
	}
	if m.PageNumber != nil && *m.PageNumber < 1 {
		return invalidf("page_number", "must be >= 1")
	}
	if m.Confidence != nil && (math.IsNaN(*m.Confidence) || math.IsInf(*m.Confidence, 0)) {
		return invalidf("confidence", "must be a finite number")
	}
	return nil
}

func metadataColumns(m *model.StructuralMetadata) map[string]any {
	var probe model.Chunk
	m.Apply(&probe)
	return map[string]any{
		patchElementType: probe.ElementType,
		patchPageNumber:  probe.PageNumber,
		patchBoundingBox: probe.BoundingBox,
		"confidence":     probe.Confidence,
		"element_id":     probe.ElementID,
	}
}

// patchColumns validates a patch and converts it to column values.
func patchColumns(patch StructuralPatch) (map[string]any, error) {
	columns := make(map[string]any, len(patch))
	for key, value := range patch {
		switch key {
		case patchElementType:
			if !model.ValidateElementType(value) {
				return nil, invalidf(key, "must be null or one of %v", model.ElementTypes())
			}
			et, _ := elementTypeValue(value)
			columns[key] = et
		case patchPageNumber:
			page, ok := pageValue(value)
			if !ok {
				return nil, invalidf(key, "must be null or an integer >= 1")
			}
			columns[key] = page
		case patchBoundingBox:
			box, ok := model.ParseBoundingBox(value)
			if !ok {
				return nil, invalidf(key, "must be null, [x1,y1,x2,y2] or {x1,y1,x2,y2}")
			}
			var probe model.Chunk
			probe.SetBox(box)
			columns[key] = probe.BoundingBox
		default:
			return nil, invalidf(key, "is not a structural field")
		}
	}
	return columns, nil
}

func elementTypeValue(value any) (*model.ElementType, bool) {
	switch v := value.(type) {
	case nil:
		return nil, true
	case model.ElementType:
		return &v, v.Valid()
	case *model.ElementType:
		return v, v == nil || v.Valid()
	case string:
		et := model.ElementType(v)
		return &et, et.Valid()
	case *string:
		if v == nil {
			return nil, true
		}
		et := model.ElementType(*v)
		return &et, et.Valid()
	default:
		return nil, false
	}
}

func pageValue(value any) (*int, bool) {
	var page int
	switch v := value.(type) {
	case nil:
		return nil, true
	case int:
		page = v
	case int64:
		page = int(v)
	case *int:
		if v == nil {
			return nil, true
		}
		page = *v
	case float64:
		if v != math.Trunc(v) {
			return nil, false
		}
		page = int(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return nil, false
		}
		page = int(n)
	default:
		return nil, false
	}
	if page < 1 {
		return nil, false
	}
	return &page, true
}

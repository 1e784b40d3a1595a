package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/repository"
	"gopherai-docqa/internal/retrieval"
)

const (
	maxFilenameLength = 256
	MaxUploadBytes    = 32 << 20
)

// Extractor reads an uploaded file into raw text and structural elements.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, []IngestElement, error)
}

type DocumentService struct {
	docRepo   *repository.DocumentRepository
	chunkRepo *repository.ChunkRepository
	cache     ResultCache
	lifecycle *LifecycleService
	extractor Extractor
	publisher IngestPublisher
	ingest    *IngestService
}

// NewDocumentService wires document management. Without a publisher,
// uploads are ingested inline.
func NewDocumentService(
	docRepo *repository.DocumentRepository,
	chunkRepo *repository.ChunkRepository,
	cache ResultCache,
	lifecycle *LifecycleService,
	extractor Extractor,
	publisher IngestPublisher,
	ingest *IngestService,
) *DocumentService {
	return &DocumentService{
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		cache:     cache,
		lifecycle: lifecycle,
		extractor: extractor,
		publisher: publisher,
		ingest:    ingest,
	}
}

type CreateDocumentInput struct {
	OwnerID  string
	Filename string
	MimeType string
	ByteSize int64
}

// Create registers a document in status uploaded.
func (s *DocumentService) Create(ctx context.Context, input CreateDocumentInput) (*model.Document, error) {
	if err := validateOwner(input.OwnerID); err != nil {
		return nil, err
	}
	name := filepath.Base(strings.TrimSpace(input.Filename))
	if name == "" || name == "." || name == "/" {
		return nil, invalidf("filename", "is required")
	}
	if len(name) > maxFilenameLength {
		return nil, invalidf("filename", "must be at most %d bytes", maxFilenameLength)
	}
	if input.ByteSize < 0 {
		return nil, invalidf("byte_size", "must not be negative")
	}
	doc := &model.Document{
		OwnerID:  input.OwnerID,
		Filename: name,
		MimeType: strings.TrimSpace(input.MimeType),
		ByteSize: input.ByteSize,
		Status:   model.StatusUploaded,
	}
	if err := s.docRepo.Create(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

type UploadInput struct {
	OwnerID  string
	Filename string
	MimeType string
	Data     []byte
}

// Upload extracts the file, stores the document and queues ingestion.
// Nothing is stored when the file cannot be read.
func (s *DocumentService) Upload(ctx context.Context, input UploadInput) (*model.Document, error) {
	if err := validateOwner(input.OwnerID); err != nil {
		return nil, err
	}
	if len(input.Data) == 0 {
		return nil, invalidf("file", "is empty")
	}
	if len(input.Data) > MaxUploadBytes {
		return nil, invalidf("file", "must be at most %d bytes", MaxUploadBytes)
	}
	if s.extractor == nil {
		return nil, errors.New("no extractor configured")
	}
	text, elements, err := s.extractor.Extract(ctx, input.Data)
	if err != nil {
		return nil, invalidf("file", "cannot read document: %v", err)
	}

	doc, err := s.Create(ctx, CreateDocumentInput{
		OwnerID:  input.OwnerID,
		Filename: input.Filename,
		MimeType: input.MimeType,
		ByteSize: int64(len(input.Data)),
	})
	if err != nil {
		return nil, err
	}

	job := IngestJob{DocumentID: doc.ID, OwnerID: doc.OwnerID, Text: text, Elements: elements}
	if s.publisher == nil {
		res, err := s.ingest.Process(ctx, job)
		if err != nil {
			// the failure is recorded on the document
			return s.reload(ctx, doc)
		}
		return res.Document, nil
	}
	if err := s.publisher.PublishIngestJob(ctx, job); err != nil {
		log.Printf("documents: enqueue ingest of %s failed: %v", doc.ID, err)
		unlock := s.lifecycle.locks.Lock(doc.ID)
		_, ferr := s.lifecycle.apply(context.WithoutCancel(ctx), s.docRepo, doc, model.StatusFailed, ErrIngestEnqueue.Error())
		unlock()
		if ferr != nil {
			log.Printf("documents: record enqueue failure of %s failed: %v", doc.ID, ferr)
		}
		return nil, fmt.Errorf("%w: %v", ErrIngestEnqueue, err)
	}
	return doc, nil
}

func (s *DocumentService) reload(ctx context.Context, doc *model.Document) (*model.Document, error) {
	fresh, err := s.docRepo.GetByID(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return nil, ErrNotFound
	}
	return fresh, nil
}

func (s *DocumentService) Get(ctx context.Context, ownerID, documentID string) (*model.Document, error) {
	if err := validateOwner(ownerID); err != nil {
		return nil, err
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

func (s *DocumentService) List(ctx context.Context, ownerID string) ([]model.Document, error) {
	if err := validateOwner(ownerID); err != nil {
		return nil, err
	}
	return s.docRepo.ListByOwnerID(ctx, ownerID)
}

// Delete removes the document with its chunks, embeddings, images and
// extracted content, then drops the owner's cached results.
func (s *DocumentService) Delete(ctx context.Context, ownerID, documentID string) error {
	doc, err := s.Get(ctx, ownerID, documentID)
	if err != nil {
		return err
	}
	unlock := s.lifecycle.locks.Lock(doc.ID)
	defer unlock()
	if err := s.docRepo.DeleteCascade(ctx, doc.ID); err != nil {
		return err
	}
	invalidateOwnerCache(ctx, s.cache, doc.OwnerID)
	return nil
}

// Facets counts chunks per element type and page for one document. A
// document that is not queryable yet has no facets.
func (s *DocumentService) Facets(ctx context.Context, ownerID, documentID string) (*retrieval.FacetCounts, error) {
	doc, err := s.Get(ctx, ownerID, documentID)
	if err != nil {
		return nil, err
	}
	if !doc.IsQueryable() {
		return emptyFacets(), nil
	}
	return s.countFacets(ctx, []string{doc.ID})
}

// CorpusFacets counts chunks over every queryable document of the owner.
func (s *DocumentService) CorpusFacets(ctx context.Context, ownerID string) (*retrieval.FacetCounts, error) {
	docs, err := s.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for i := range docs {
		if docs[i].IsQueryable() {
			ids = append(ids, docs[i].ID)
		}
	}
	if len(ids) == 0 {
		return emptyFacets(), nil
	}
	return s.countFacets(ctx, ids)
}

func (s *DocumentService) countFacets(ctx context.Context, ids []string) (*retrieval.FacetCounts, error) {
	types, err := s.chunkRepo.CountByElementType(ctx, ids)
	if err != nil {
		return nil, err
	}
	pages, err := s.chunkRepo.CountByPage(ctx, ids)
	if err != nil {
		return nil, err
	}
	return &retrieval.FacetCounts{ElementTypes: types, Pages: pages}, nil
}

func emptyFacets() *retrieval.FacetCounts {
	return &retrieval.FacetCounts{ElementTypes: map[string]int{}, Pages: map[int]int{}}
}

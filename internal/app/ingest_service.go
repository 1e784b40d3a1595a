package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"

	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/repository"
	"gopherai-docqa/internal/retrieval"
)

const (
	defaultChunkSize      = 512
	defaultChunkOverlap   = 64
	defaultEmbeddingBatch = 10 // DashScope and similar APIs often limit batch size
)

// IngestElement is one structural element as produced by the extractor.
type IngestElement struct {
	Content  string                   `json:"content"`
	Metadata model.StructuralMetadata `json:"metadata"`
}

// IngestJob is the unit of work queued after an upload. Text is the raw
// extracted text; Elements, when present, carry structural metadata and take
// precedence for chunking.
type IngestJob struct {
	DocumentID string          `json:"document_id"`
	OwnerID    string          `json:"owner_id"`
	Text       string          `json:"text,omitempty"`
	Elements   []IngestElement `json:"elements,omitempty"`
}

type IngestOptions struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
}

type IngestResult struct {
	Document   *model.Document `json:"document"`
	ChunkCount int             `json:"chunk_count"`
}

// IngestService drives a document from uploaded to processed. Chunks and
// embeddings become visible in one transaction together with the embedded
// status, so a queryable document always has its full chunk set.
type IngestService struct {
	docRepo   *repository.DocumentRepository
	chunkRepo *repository.ChunkRepository
	embRepo   *repository.EmbeddingRepository
	tx        *repository.Transactor
	lifecycle *LifecycleService
	embedder  Embedder
	opts      IngestOptions
}

func NewIngestService(
	docRepo *repository.DocumentRepository,
	chunkRepo *repository.ChunkRepository,
	embRepo *repository.EmbeddingRepository,
	tx *repository.Transactor,
	lifecycle *LifecycleService,
	embedder Embedder,
	opts IngestOptions,
) *IngestService {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = defaultChunkOverlap
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultEmbeddingBatch
	}
	return &IngestService{
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		embRepo:   embRepo,
		tx:        tx,
		lifecycle: lifecycle,
		embedder:  embedder,
		opts:      opts,
	}
}

// structuralError marks failures that belong to the structural stage.
type structuralError struct{ err error }

func (e structuralError) Error() string { return e.err.Error() }
func (e structuralError) Unwrap() error { return e.err }

// Process runs the pipeline for one job. Failures are recorded on the
// document and returned. Re-processing a queryable document does nothing.
func (s *IngestService) Process(ctx context.Context, job IngestJob) (*IngestResult, error) {
	if err := validateOwner(job.OwnerID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(job.DocumentID) == "" {
		return nil, invalidf("document_id", "is required")
	}

	unlock := s.lifecycle.locks.Lock(job.DocumentID)
	defer unlock()

	doc, err := s.docRepo.GetByIDAndOwnerID(ctx, job.DocumentID, job.OwnerID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrNotFound
	}
	if doc.IsQueryable() {
		return &IngestResult{Document: doc}, nil
	}
	if doc.Status.IsError() {
		return nil, fmt.Errorf("%w: document %s is in %s", ErrInvalidTransition, doc.ID, doc.Status)
	}

	count, err := s.run(ctx, doc, job)
	if err != nil {
		status := model.StatusError
		var se structuralError
		if errors.As(err, &se) {
			status = model.StatusErrorStructuralProcessing
		}
		if _, ferr := s.lifecycle.apply(context.WithoutCancel(ctx), s.docRepo, doc, status, err.Error()); ferr != nil {
			log.Printf("ingest: record failure of %s failed: %v", doc.ID, ferr)
		}
		s.lifecycle.invalidateOwner(ctx, doc.OwnerID)
		log.Printf("ingest: document %s recorded as %s: %v", doc.ID, status, err)
		return nil, err
	}
	s.lifecycle.invalidateOwner(ctx, doc.OwnerID)
	return &IngestResult{Document: doc, ChunkCount: count}, nil
}

func (s *IngestService) run(ctx context.Context, doc *model.Document, job IngestJob) (int, error) {
	if err := s.step(ctx, doc, model.StatusProcessing); err != nil {
		return 0, err
	}

	text := strings.TrimSpace(job.Text)
	if text != "" {
		if err := s.docRepo.SaveContent(ctx, &model.DocumentContent{DocumentID: doc.ID, Text: text}); err != nil {
			return 0, err
		}
		if err := s.step(ctx, doc, model.StatusTextExtracted); err != nil {
			return 0, err
		}
	}

	elements := job.Elements
	if len(elements) > 0 {
		if err := s.step(ctx, doc, model.StatusStructuralProcessing); err != nil {
			return 0, err
		}
		if err := validateElements(elements); err != nil {
			return 0, structuralError{err: err}
		}
		if err := s.step(ctx, doc, model.StatusStructuralProcessed); err != nil {
			return 0, err
		}
	} else if text != "" {
		elements = []IngestElement{{Content: text}}
	} else {
		return 0, invalidf("text", "document has no extractable text")
	}

	chunks := buildChunks(doc.ID, elements, s.opts.ChunkSize, s.opts.ChunkOverlap)
	if len(chunks) == 0 {
		return 0, invalidf("text", "document has no extractable text")
	}
	if err := s.step(ctx, doc, model.StatusChunked); err != nil {
		return 0, err
	}

	vectors, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return 0, err
	}

	err = s.tx.Do(ctx, func(tx *gorm.DB) error {
		chunkRepo := s.chunkRepo.WithTx(tx)
		embRepo := s.embRepo.WithTx(tx)
		if err := embRepo.DeleteByDocumentID(ctx, doc.ID); err != nil {
			return err
		}
		if err := chunkRepo.DeleteByDocumentID(ctx, doc.ID); err != nil {
			return err
		}
		if err := chunkRepo.CreateBatch(ctx, chunks); err != nil {
			return err
		}
		embeddings := make([]model.Embedding, len(chunks))
		for i := range chunks {
			chunkID := chunks[i].ID
			embeddings[i] = model.Embedding{
				DocumentID: doc.ID,
				ChunkID:    &chunkID,
				Model:      s.embedder.ModelName(),
			}
			embeddings[i].SetVector(vectors[i])
		}
		if err := embRepo.CreateBatch(ctx, embeddings); err != nil {
			return err
		}
		_, err := s.lifecycle.apply(ctx, s.docRepo.WithTx(tx), doc, model.StatusEmbedded, "")
		return err
	})
	if err != nil {
		// the in-memory status may have advanced inside the rolled back tx
		if fresh, gerr := s.docRepo.GetByID(ctx, doc.ID); gerr == nil && fresh != nil {
			*doc = *fresh
		}
		return 0, err
	}

	if err := s.step(ctx, doc, model.StatusProcessed); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func (s *IngestService) step(ctx context.Context, doc *model.Document, target model.DocumentStatus) error {
	_, err := s.lifecycle.apply(ctx, s.docRepo, doc, target, "")
	return err
}

// embedChunks calls the embedding API in batches to stay under provider
// limits and checks every vector against the declared dimension.
func (s *IngestService) embedChunks(ctx context.Context, chunks []model.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}

	vectors := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += s.opts.BatchSize {
		end := min(i+s.opts.BatchSize, len(texts))
		batch, err := s.embedder.EmbedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
		}
		vectors = append(vectors, batch...)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d vectors for %d chunks", ErrEmbeddingUnavailable, len(vectors), len(chunks))
	}

	want := s.embedder.Dimension()
	for i, v := range vectors {
		if len(v) == 0 || (want > 0 && len(v) != want) {
			return nil, fmt.Errorf("%w: chunk %d has %d dimensions, model declares %d", ErrDimensionMismatch, i, len(v), want)
		}
		if want == 0 && len(v) != len(vectors[0]) {
			return nil, fmt.Errorf("%w: chunk %d has %d dimensions, chunk 0 has %d", ErrDimensionMismatch, i, len(v), len(vectors[0]))
		}
	}
	return vectors, nil
}

func validateElements(elements []IngestElement) error {
	for i := range elements {
		if err := validateMetadata(&elements[i].Metadata); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

// buildChunks turns elements into indexed chunks. Elements longer than size
// are split with overlap and every piece keeps the element's metadata.
func buildChunks(documentID string, elements []IngestElement, size, overlap int) []model.Chunk {
	var chunks []model.Chunk
	for i := range elements {
		content := strings.TrimSpace(elements[i].Content)
		if content == "" {
			continue
		}
		for _, piece := range chunkText(content, size, overlap) {
			c := model.Chunk{
				DocumentID: documentID,
				ChunkIndex: len(chunks),
				Content:    piece,
			}
			tokens := retrieval.EstimateTokens(piece)
			c.TokenCount = &tokens
			meta := elements[i].Metadata
			meta.Apply(&c)
			chunks = append(chunks, c)
		}
	}
	return chunks
}

// chunkText splits text into overlapping chunks by rune count.
func chunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	var chunks []string
	runes := []rune(text)
	for i := 0; i < len(runes); {
		end := min(i+size, len(runes))
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
		i += size - overlap
	}
	return chunks
}

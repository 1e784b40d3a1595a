package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gopherai-docqa/internal/ai"
	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/repository"
	"gopherai-docqa/internal/retrieval"
)

const testOwner = "alice"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

type fakeEmbedder struct {
	mu        sync.Mutex
	vectors   map[string][]float32
	fallback  []float32
	err       error
	dimension int
	calls     int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[strings.TrimSpace(t)]; ok {
			out[i] = v
			continue
		}
		out[i] = f.fallback
	}
	return out, nil
}

func (f *fakeEmbedder) ModelName() string { return "fake-embed" }
func (f *fakeEmbedder) Dimension() int    { return f.dimension }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memoryCache struct {
	mu          sync.Mutex
	entries     map[string][]byte
	invalidated []string
	failing     bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return nil, false, errors.New("cache down")
	}
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("cache down")
	}
	c.entries[key] = value
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, prefix)
	if c.failing {
		return errors.New("cache down")
	}
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}

func (c *memoryCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

type fakeChat struct {
	answer   string
	err      error
	messages []ai.ChatMessage
}

func (f *fakeChat) Complete(_ context.Context, messages []ai.ChatMessage) (string, error) {
	f.messages = messages
	return f.answer, f.err
}

type stubReranker struct {
	delay  time.Duration
	scores map[string]float64
}

func (s *stubReranker) Rerank(ctx context.Context, _ string, candidates []retrieval.RerankCandidate) ([]retrieval.RerankScore, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	out := make([]retrieval.RerankScore, 0, len(candidates))
	for _, c := range candidates {
		if v, ok := s.scores[c.ID]; ok {
			out = append(out, retrieval.RerankScore{ID: c.ID, Score: v})
		}
	}
	return out, nil
}

// testEnv wires every service against one in-memory database.
type testEnv struct {
	db        *gorm.DB
	docRepo   *repository.DocumentRepository
	chunkRepo *repository.ChunkRepository
	embRepo   *repository.EmbeddingRepository
	cache     *memoryCache
	embedder  *fakeEmbedder
	locks     *DocumentLocks
	lifecycle *LifecycleService
	chunks    *ChunkService
	ingest    *IngestService
	documents *DocumentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	env := &testEnv{
		db:        db,
		docRepo:   repository.NewDocumentRepository(db),
		chunkRepo: repository.NewChunkRepository(db),
		embRepo:   repository.NewEmbeddingRepository(db),
		cache:     newMemoryCache(),
		embedder:  &fakeEmbedder{fallback: []float32{1, 0}, dimension: 2},
		locks:     NewDocumentLocks(),
	}
	env.lifecycle = NewLifecycleService(env.docRepo, env.locks, env.cache)
	env.chunks = NewChunkService(env.docRepo, env.chunkRepo, env.locks, env.cache)
	env.ingest = NewIngestService(env.docRepo, env.chunkRepo, env.embRepo, repository.NewTransactor(db), env.lifecycle, env.embedder, IngestOptions{})
	env.documents = NewDocumentService(env.docRepo, env.chunkRepo, env.cache, env.lifecycle, nil, nil, env.ingest)
	return env
}

func (e *testEnv) queryService(reranker retrieval.Reranker, opts QueryOptions) *QueryService {
	return NewQueryService(e.docRepo, e.chunkRepo, e.embRepo, e.embedder, retrieval.NewRanker(reranker, 2), e.cache, opts)
}

func (e *testEnv) createDocument(t *testing.T, owner string) *model.Document {
	t.Helper()
	doc, err := e.documents.Create(context.Background(), CreateDocumentInput{
		OwnerID:  owner,
		Filename: "report.pdf",
		MimeType: "application/pdf",
		ByteSize: 1024,
	})
	require.NoError(t, err)
	return doc
}

func typed(t model.ElementType) *model.ElementType { return &t }

func page(n int) *int { return &n }

// scenarioElements is the three-chunk document: a title and a paragraph on
// page 1 and a paragraph on page 2.
func scenarioElements() []IngestElement {
	return []IngestElement{
		{Content: "Intro", Metadata: model.StructuralMetadata{ElementType: typed(model.ElementTitle), PageNumber: page(1), BoundingBox: &model.BoundingBox{X1: 0, Y1: 0, X2: 200, Y2: 20}}},
		{Content: "Body text", Metadata: model.StructuralMetadata{ElementType: typed(model.ElementParagraph), PageNumber: page(1), BoundingBox: &model.BoundingBox{X1: 0, Y1: 30, X2: 200, Y2: 90}}},
		{Content: "More text", Metadata: model.StructuralMetadata{ElementType: typed(model.ElementParagraph), PageNumber: page(2), BoundingBox: &model.BoundingBox{X1: 0, Y1: 0, X2: 200, Y2: 60}}},
	}
}

// ingestScenario creates the three-chunk document and runs it to processed.
func (e *testEnv) ingestScenario(t *testing.T) *model.Document {
	t.Helper()
	doc := e.createDocument(t, testOwner)
	res, err := e.ingest.Process(context.Background(), IngestJob{
		DocumentID: doc.ID,
		OwnerID:    testOwner,
		Text:       "Intro\nBody text\nMore text",
		Elements:   scenarioElements(),
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusProcessed, res.Document.Status)
	return res.Document
}

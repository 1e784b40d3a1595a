package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopherai-docqa/internal/model"
)

type fakeExtractor struct {
	text     string
	elements []IngestElement
	err      error
}

func (f *fakeExtractor) Extract(_ context.Context, _ []byte) (string, []IngestElement, error) {
	return f.text, f.elements, f.err
}

type recordingPublisher struct {
	mu   sync.Mutex
	jobs []IngestJob
	err  error
}

func (p *recordingPublisher) PublishIngestJob(_ context.Context, job IngestJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

func TestDocumentService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	doc, err := env.documents.Create(ctx, CreateDocumentInput{OwnerID: testOwner, Filename: "../../etc/report.pdf", ByteSize: 10})
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", doc.Filename)
	assert.Equal(t, model.StatusUploaded, doc.Status)
	assert.NotEmpty(t, doc.ID)

	for _, in := range []CreateDocumentInput{
		{OwnerID: testOwner, Filename: " "},
		{OwnerID: testOwner, Filename: strings.Repeat("a", maxFilenameLength+1)},
		{OwnerID: testOwner, Filename: "a.pdf", ByteSize: -1},
		{OwnerID: "", Filename: "a.pdf"},
	} {
		_, err := env.documents.Create(ctx, in)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
}

func TestDocumentService_UploadIngestsInline(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.documents.extractor = &fakeExtractor{text: "Intro\nBody text\nMore text", elements: scenarioElements()}

	doc, err := env.documents.Upload(ctx, UploadInput{OwnerID: testOwner, Filename: "paper.pdf", MimeType: "application/pdf", Data: []byte("%PDF-1.4")})
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessed, doc.Status)
	assert.EqualValues(t, 8, doc.ByteSize)

	facets, err := env.documents.Facets(ctx, testOwner, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"title": 1, "paragraph": 2}, facets.ElementTypes)
	assert.Equal(t, map[int]int{1: 2, 2: 1}, facets.Pages)
}

func TestDocumentService_UploadRecordsIngestFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.embedder.err = errors.New("down")
	env.documents.extractor = &fakeExtractor{elements: scenarioElements()}

	doc, err := env.documents.Upload(ctx, UploadInput{OwnerID: testOwner, Filename: "paper.pdf", Data: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, doc.Status)
	assert.Contains(t, doc.ErrorMessage, ErrEmbeddingUnavailable.Error())
}

func TestDocumentService_UploadRejectsUnreadableFile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.documents.extractor = &fakeExtractor{err: errors.New("not a pdf")}

	_, err := env.documents.Upload(ctx, UploadInput{OwnerID: testOwner, Filename: "paper.pdf", Data: []byte("x")})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "file", verr.Field)

	_, err = env.documents.Upload(ctx, UploadInput{OwnerID: testOwner, Filename: "paper.pdf"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	docs, err := env.documents.List(ctx, testOwner)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestDocumentService_UploadPublishesJob(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	pub := &recordingPublisher{}
	env.documents.extractor = &fakeExtractor{text: "hello"}
	env.documents.publisher = pub

	doc, err := env.documents.Upload(ctx, UploadInput{OwnerID: testOwner, Filename: "notes.pdf", Data: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, model.StatusUploaded, doc.Status)
	require.Len(t, pub.jobs, 1)
	assert.Equal(t, IngestJob{DocumentID: doc.ID, OwnerID: testOwner, Text: "hello"}, pub.jobs[0])
	assert.Zero(t, env.embedder.callCount())

	res, err := env.ingest.Process(ctx, pub.jobs[0])
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessed, res.Document.Status)
}

func TestDocumentService_UploadEnqueueFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.documents.extractor = &fakeExtractor{text: "hello"}
	env.documents.publisher = &recordingPublisher{err: errors.New("channel closed")}

	_, err := env.documents.Upload(ctx, UploadInput{OwnerID: testOwner, Filename: "notes.pdf", Data: []byte("x")})
	assert.ErrorIs(t, err, ErrIngestEnqueue)

	docs, err := env.documents.List(ctx, testOwner)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, model.StatusFailed, docs[0].Status)
}

func TestDocumentService_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	doc := env.ingestScenario(t)
	require.NoError(t, env.cache.Set(ctx, ownerCachePrefix(testOwner)+"k", []byte("{}"), 0))

	assert.ErrorIs(t, env.documents.Delete(ctx, "bob", doc.ID), ErrNotFound)
	require.NoError(t, env.documents.Delete(ctx, testOwner, doc.ID))

	_, err := env.documents.Get(ctx, testOwner, doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	chunks, err := env.chunkRepo.ListOrdered(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	count, err := env.embRepo.CountByDocumentID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
	content, err := env.docRepo.GetContent(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, content)
	assert.Zero(t, env.cache.size())
}

func TestDocumentService_FacetsOnlyCountQueryableDocuments(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.ingestScenario(t)

	pending := env.createDocument(t, testOwner)
	_, err := env.chunks.CreateChunk(ctx, CreateChunkInput{
		OwnerID:    testOwner,
		DocumentID: pending.ID,
		Index:      0,
		Content:    "Draft",
		Metadata:   &model.StructuralMetadata{ElementType: typed(model.ElementFootnote), PageNumber: page(9)},
	})
	require.NoError(t, err)

	facets, err := env.documents.Facets(ctx, testOwner, pending.ID)
	require.NoError(t, err)
	assert.Empty(t, facets.ElementTypes)
	assert.Empty(t, facets.Pages)

	corpus, err := env.documents.CorpusFacets(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"title": 1, "paragraph": 2}, corpus.ElementTypes)
	assert.Equal(t, map[int]int{1: 2, 2: 1}, corpus.Pages)

	none, err := env.documents.CorpusFacets(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, none.ElementTypes)
}

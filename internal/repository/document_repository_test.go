package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopherai-docqa/internal/model"
)

func TestDocumentRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(newTestDB(t))

	doc := &model.Document{OwnerID: "alice", Filename: "report.pdf", MimeType: "application/pdf", ByteSize: 2048}
	require.NoError(t, repo.Create(ctx, doc))
	require.NotEmpty(t, doc.ID)
	assert.Equal(t, model.StatusUploaded, doc.Status)

	got, err := repo.GetByIDAndOwnerID(ctx, doc.ID, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "report.pdf", got.Filename)

	other, err := repo.GetByIDAndOwnerID(ctx, doc.ID, "bob")
	require.NoError(t, err)
	assert.Nil(t, other)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDocumentRepository_CompareAndSetStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(newTestDB(t))

	doc := &model.Document{OwnerID: "alice", Filename: "a.pdf"}
	require.NoError(t, repo.Create(ctx, doc))

	at := time.Now().Add(time.Minute)
	ok, err := repo.CompareAndSetStatus(ctx, doc.ID, model.StatusUploaded, model.StatusProcessing, "", at)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.CompareAndSetStatus(ctx, doc.ID, model.StatusUploaded, model.StatusChunked, "", at)
	require.NoError(t, err)
	assert.False(t, ok, "stale expected status must not update")

	got, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, got.Status)
}

func TestDocumentRepository_ListByIDsAndOwnerID(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(newTestDB(t))

	a := &model.Document{OwnerID: "alice", Filename: "a.pdf"}
	b := &model.Document{OwnerID: "bob", Filename: "b.pdf"}
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	list, err := repo.ListByIDsAndOwnerID(ctx, []string{a.ID, b.ID, "ghost"}, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	owned, err := repo.ListByOwnerID(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, b.ID, owned[0].ID)
}

func TestDocumentRepository_SaveContentUpserts(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(newTestDB(t))

	doc := &model.Document{OwnerID: "alice", Filename: "a.pdf"}
	require.NoError(t, repo.Create(ctx, doc))

	require.NoError(t, repo.SaveContent(ctx, &model.DocumentContent{DocumentID: doc.ID, Text: "first"}))
	require.NoError(t, repo.SaveContent(ctx, &model.DocumentContent{DocumentID: doc.ID, Text: "second"}))

	content, err := repo.GetContent(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, content)
	assert.Equal(t, "second", content.Text)
}

func TestDocumentRepository_DeleteCascade(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	docs := NewDocumentRepository(db)
	chunks := NewChunkRepository(db)
	embeddings := NewEmbeddingRepository(db)

	doc := &model.Document{OwnerID: "alice", Filename: "a.pdf"}
	keep := &model.Document{OwnerID: "alice", Filename: "b.pdf"}
	require.NoError(t, docs.Create(ctx, doc))
	require.NoError(t, docs.Create(ctx, keep))

	batch := []model.Chunk{
		{DocumentID: doc.ID, ChunkIndex: 0, Content: "one"},
		{DocumentID: keep.ID, ChunkIndex: 0, Content: "kept"},
	}
	require.NoError(t, chunks.CreateBatch(ctx, batch))

	emb := model.Embedding{DocumentID: doc.ID, ChunkID: &batch[0].ID, Model: "test"}
	emb.SetVector([]float32{1, 0})
	keptEmb := model.Embedding{DocumentID: keep.ID, ChunkID: &batch[1].ID, Model: "test"}
	keptEmb.SetVector([]float32{0, 1})
	require.NoError(t, embeddings.CreateBatch(ctx, []model.Embedding{emb, keptEmb}))
	require.NoError(t, db.Create(&model.DocumentImage{DocumentID: doc.ID, StorageKey: "img/1.png"}).Error)
	require.NoError(t, docs.SaveContent(ctx, &model.DocumentContent{DocumentID: doc.ID, Text: "one"}))

	require.NoError(t, docs.DeleteCascade(ctx, doc.ID))

	gone, err := docs.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	left, err := chunks.ListOrdered(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, left)

	n, err := embeddings.CountByDocumentID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	var images int64
	require.NoError(t, db.Model(&model.DocumentImage{}).Where("document_id = ?", doc.ID).Count(&images).Error)
	assert.Zero(t, images)

	content, err := docs.GetContent(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, content)

	kept, err := chunks.ListOrdered(ctx, keep.ID)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
	n, err = embeddings.CountByDocumentID(ctx, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

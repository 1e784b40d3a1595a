package app

import (
	"context"
	"time"

	"gopherai-docqa/internal/ai"
)

// Embedder turns text into vectors of a fixed, model-declared size. Retries
// are the implementation's business.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
	// Dimension is the declared vector size; zero when unknown.
	Dimension() int
}

type ChatModel interface {
	Complete(ctx context.Context, messages []ai.ChatMessage) (string, error)
}

// ResultCache stores serialized query results. A miss or a cache error must
// never change what a query returns.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, prefix string) error
}

type IngestPublisher interface {
	PublishIngestJob(ctx context.Context, job IngestJob) error
}

package bootstrap

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"gopherai-docqa/internal/ai"
	"gopherai-docqa/internal/app"
	"gopherai-docqa/internal/config"
	"gopherai-docqa/internal/repository"
	"gopherai-docqa/internal/retrieval"
)

// Services is the application layer wired against one database.
type Services struct {
	Lifecycle *app.LifecycleService
	Chunks    *app.ChunkService
	Ingest    *app.IngestService
	Documents *app.DocumentService
	Query     *app.QueryService
	Ask       *app.AskService
}

// Collaborators are the external models and queues the services talk to.
// Reranker, Chat and Publisher may be nil.
type Collaborators struct {
	Embedder  app.Embedder
	Reranker  retrieval.Reranker
	Chat      app.ChatModel
	Cache     app.ResultCache
	Publisher app.IngestPublisher
	Extractor app.Extractor
}

func NewServices(cfg *config.Config, db *gorm.DB, c Collaborators) *Services {
	docRepo := repository.NewDocumentRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	embRepo := repository.NewEmbeddingRepository(db)
	locks := app.NewDocumentLocks()

	lifecycle := app.NewLifecycleService(docRepo, locks, c.Cache)
	chunks := app.NewChunkService(docRepo, chunkRepo, locks, c.Cache)
	ingest := app.NewIngestService(docRepo, chunkRepo, embRepo, repository.NewTransactor(db), lifecycle, c.Embedder, app.IngestOptions{
		ChunkSize:    cfg.Ingest.ChunkSize,
		ChunkOverlap: cfg.Ingest.ChunkOverlap,
		BatchSize:    cfg.Embedding.BatchSize,
	})
	documents := app.NewDocumentService(docRepo, chunkRepo, c.Cache, lifecycle, c.Extractor, c.Publisher, ingest)
	query := app.NewQueryService(docRepo, chunkRepo, embRepo, c.Embedder, retrieval.NewRanker(c.Reranker, c.Embedder.Dimension()), c.Cache, app.QueryOptions{
		TopK:          cfg.Retrieval.TopK,
		MinSimilarity: cfg.Retrieval.MinSimilarity,
		TokenBudget:   cfg.Retrieval.TokenBudget,
		MaxChunks:     cfg.Retrieval.MaxChunks,
		RerankTimeout: time.Duration(cfg.Rerank.TimeoutMS) * time.Millisecond,
		CacheTTL:      cfg.ResultTTL(),
	})

	return &Services{
		Lifecycle: lifecycle,
		Chunks:    chunks,
		Ingest:    ingest,
		Documents: documents,
		Query:     query,
		Ask:       app.NewAskService(query, c.Chat),
	}
}

// NewEmbedder picks the embedding provider named in config.
func NewEmbedder(cfg config.EmbeddingConfig) (app.Embedder, error) {
	ecfg := ai.EmbeddingConfig{
		Provider:  cfg.Provider,
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		Dimension: cfg.Dimension,
		Timeout:   time.Duration(cfg.TimeoutMS) * time.Millisecond,
	}
	switch cfg.Provider {
	case ai.ProviderOpenAI:
		return ai.NewOpenAIEmbedder(ecfg)
	case ai.ProviderOllama:
		return ai.NewOllamaEmbedder(ecfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// NewReranker returns nil when re-ranking is disabled.
func NewReranker(cfg config.RerankConfig) (retrieval.Reranker, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return ai.NewHTTPReranker(ai.RerankConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
	})
}

// NewChat returns nil when no chat model is configured; answers then fall
// back to the fixed no-knowledge reply.
func NewChat(cfg config.LLMConfig) (app.ChatModel, error) {
	if cfg.Model == "" {
		return nil, nil
	}
	return ai.NewChatClient(ai.ChatConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
	})
}

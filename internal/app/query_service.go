package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/repository"
	"gopherai-docqa/internal/retrieval"
)

const (
	defaultTopK     = 5
	maxTopK         = 100
	maxQueryLength  = 4000
	defaultCacheTTL = 10 * time.Minute
)

type QueryOptions struct {
	TopK          int
	MinSimilarity float64
	TokenBudget   int
	MaxChunks     int
	RerankTimeout time.Duration
	CacheTTL      time.Duration
}

// QueryRequest searches the owner's queryable documents. An empty
// DocumentIDs searches all of them.
type QueryRequest struct {
	OwnerID       string                     `json:"-"`
	Query         string                     `json:"query"`
	DocumentIDs   []string                   `json:"document_ids,omitempty"`
	Facets        retrieval.Facets           `json:"facets"`
	TopK          int                        `json:"top_k,omitempty"`
	MinSimilarity *float64                   `json:"min_similarity,omitempty"`
	Rerank        bool                       `json:"rerank"`
	Options       *retrieval.AssembleOptions `json:"options,omitempty"`
}

type QueryService struct {
	docRepo   *repository.DocumentRepository
	chunkRepo *repository.ChunkRepository
	embRepo   *repository.EmbeddingRepository
	embedder  Embedder
	ranker    *retrieval.Ranker
	cache     ResultCache
	opts      QueryOptions
}

func NewQueryService(
	docRepo *repository.DocumentRepository,
	chunkRepo *repository.ChunkRepository,
	embRepo *repository.EmbeddingRepository,
	embedder Embedder,
	ranker *retrieval.Ranker,
	cache ResultCache,
	opts QueryOptions,
) *QueryService {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.TokenBudget <= 0 {
		opts.TokenBudget = retrieval.DefaultTokenLimit
	}
	if opts.MaxChunks <= 0 {
		opts.MaxChunks = retrieval.DefaultMaxChunks
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	return &QueryService{
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		embRepo:   embRepo,
		embedder:  embedder,
		ranker:    ranker,
		cache:     cache,
		opts:      opts,
	}
}

// Query runs filter, rank and assembly over the owner's queryable
// documents. Documents that are missing or still ingesting contribute
// nothing; if none are left the result is empty, not an error.
func (s *QueryService) Query(ctx context.Context, req QueryRequest) (*retrieval.ContextResult, error) {
	start := time.Now()
	if err := s.normalize(&req); err != nil {
		return nil, err
	}

	docs, err := s.queryableDocuments(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return s.empty(start), nil
	}

	key := cacheKey(req, docs)
	if cached, ok := s.cached(ctx, key); ok {
		return cached, nil
	}

	docIDs := make([]string, len(docs))
	names := make(map[string]string, len(docs))
	for i, d := range docs {
		docIDs[i] = d.ID
		names[d.ID] = d.Filename
	}
	chunks, err := s.chunkRepo.ListByDocumentIDs(ctx, docIDs)
	if err != nil {
		return nil, err
	}
	filtered := retrieval.Filter(chunks, req.Facets)
	if len(filtered) == 0 {
		return s.empty(start), nil
	}

	queryVec, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	chunkIDs := make([]string, len(filtered))
	for i := range filtered {
		chunkIDs[i] = filtered[i].ID
	}
	embeddings, err := s.embRepo.ListByChunkIDs(ctx, chunkIDs)
	if err != nil {
		return nil, err
	}
	candidates := make([]retrieval.Candidate, 0, len(filtered))
	for i := range filtered {
		emb, ok := embeddings[filtered[i].ID]
		if !ok {
			log.Printf("query: chunk %s of queryable document %s has no embedding", filtered[i].ID, filtered[i].DocumentID)
			continue
		}
		candidates = append(candidates, retrieval.Candidate{
			Chunk:        filtered[i],
			DocumentName: names[filtered[i].DocumentID],
			Vector:       emb.EmbeddingVector(),
		})
	}

	minSimilarity := s.opts.MinSimilarity
	if req.MinSimilarity != nil {
		minSimilarity = *req.MinSimilarity
	}
	ranked, err := s.ranker.Rank(ctx, req.Query, queryVec, candidates, retrieval.RankOptions{
		Limit:         req.TopK,
		MinSimilarity: minSimilarity,
		Rerank:        req.Rerank,
		RerankTimeout: s.opts.RerankTimeout,
	})
	if err != nil {
		return nil, err
	}

	var titles []model.Chunk
	if req.Options.IncludeStructuralContext {
		for i := range chunks {
			if chunks[i].ElementType != nil && *chunks[i].ElementType == model.ElementTitle {
				titles = append(titles, chunks[i])
			}
		}
	}

	result := retrieval.Assemble(ranked.Results, titles, *req.Options)
	result.SearchStats = retrieval.SearchStats{
		TotalResults: len(candidates),
		SearchTimeMs: time.Since(start).Milliseconds(),
		Algorithm:    ranked.Algorithm,
	}
	if ranked.RerankTime != nil {
		ms := ranked.RerankTime.Milliseconds()
		result.SearchStats.RerankTimeMs = &ms
	}

	// a fallback after a failed rerank must not outlive the reranker outage
	if !req.Rerank || ranked.WasReranked {
		s.store(ctx, key, result)
	}
	return result, nil
}

func (s *QueryService) normalize(req *QueryRequest) error {
	if err := validateOwner(req.OwnerID); err != nil {
		return err
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return invalidf("query", "is required")
	}
	if len([]rune(req.Query)) > maxQueryLength {
		return invalidf("query", "must be at most %d characters", maxQueryLength)
	}
	if err := ValidateFacets(req.Facets); err != nil {
		return err
	}
	if req.TopK < 0 || req.TopK > maxTopK {
		return invalidf("top_k", "must be between 1 and %d", maxTopK)
	}
	if req.TopK == 0 {
		req.TopK = s.opts.TopK
	}
	if req.MinSimilarity != nil && (*req.MinSimilarity < -1 || *req.MinSimilarity > 1) {
		return invalidf("min_similarity", "must be between -1 and 1")
	}
	if req.Options == nil {
		opts := retrieval.DefaultAssembleOptions()
		opts.TokenBudget = s.opts.TokenBudget
		opts.MaxChunks = s.opts.MaxChunks
		req.Options = &opts
	} else {
		opts := *req.Options
		if opts.TokenBudget < 0 || opts.MaxChunks < 0 {
			return invalidf("options", "token_budget and max_chunks must not be negative")
		}
		if opts.TokenBudget == 0 {
			opts.TokenBudget = s.opts.TokenBudget
		}
		if opts.MaxChunks == 0 {
			opts.MaxChunks = s.opts.MaxChunks
		}
		req.Options = &opts
	}
	if req.Rerank && !s.ranker.CanRerank() {
		req.Rerank = false
	}
	ids := make([]string, 0, len(req.DocumentIDs))
	for _, id := range req.DocumentIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	req.DocumentIDs = slices.Compact(ids)
	return nil
}

// ValidateFacets rejects unknown element types, non-positive pages and
// spatial regions without a page.
func ValidateFacets(f retrieval.Facets) error {
	for _, et := range f.ElementTypes {
		if !et.Valid() {
			return invalidf("facets.element_types", "unknown element type %q", et)
		}
	}
	for _, p := range f.PageNumbers {
		if p < 1 {
			return invalidf("facets.page_numbers", "pages start at 1, got %d", p)
		}
	}
	if f.SpatialRegion != nil && f.SpatialRegion.PageNumber < 1 {
		return invalidf("facets.spatial_region.page_number", "must be >= 1")
	}
	return nil
}

func (s *QueryService) queryableDocuments(ctx context.Context, req QueryRequest) ([]model.Document, error) {
	var (
		docs []model.Document
		err  error
	)
	if len(req.DocumentIDs) > 0 {
		docs, err = s.docRepo.ListByIDsAndOwnerID(ctx, req.DocumentIDs, req.OwnerID)
	} else {
		docs, err = s.docRepo.ListByOwnerID(ctx, req.OwnerID)
	}
	if err != nil {
		return nil, err
	}
	out := docs[:0]
	for i := range docs {
		if docs[i].IsQueryable() {
			out = append(out, docs[i])
		}
	}
	slices.SortFunc(out, func(a, b model.Document) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *QueryService) empty(start time.Time) *retrieval.ContextResult {
	res := retrieval.EmptyContext(retrieval.AlgorithmCosine)
	res.SearchStats.SearchTimeMs = time.Since(start).Milliseconds()
	return res
}

func (s *QueryService) cached(ctx context.Context, key string) (*retrieval.ContextResult, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Printf("cache: get %s failed: %v", key, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var res retrieval.ContextResult
	if err := json.Unmarshal(raw, &res); err != nil {
		log.Printf("cache: decode %s failed: %v", key, err)
		return nil, false
	}
	return &res, true
}

func (s *QueryService) store(ctx context.Context, key string, res *retrieval.ContextResult) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		log.Printf("cache: encode %s failed: %v", key, err)
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.opts.CacheTTL); err != nil {
		log.Printf("cache: set %s failed: %v", key, err)
	}
}

// cacheKey covers the normalized request and the version of every searched
// document, so a stale entry can only be served until its TTL if an
// invalidation was lost.
func cacheKey(req QueryRequest, docs []model.Document) string {
	h := sha256.New()
	payload, _ := json.Marshal(req)
	h.Write(payload)
	for _, d := range docs {
		fmt.Fprintf(h, "|%s@%d:%s", d.ID, d.UpdatedAt.UnixNano(), d.Status)
	}
	return ownerCachePrefix(req.OwnerID) + hex.EncodeToString(h.Sum(nil))
}

package retrieval

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"slices"
	"time"

	"gopherai-docqa/internal/model"
)

const (
	AlgorithmCosine       = "cosine"
	AlgorithmCosineRerank = "cosine+rerank"

	defaultRerankTimeout = 3 * time.Second
)

// ErrDimensionMismatch means the query vector cannot be compared with the
// stored embeddings, which points at a caller or model-version mismatch.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// RerankCandidate is what the re-ranking collaborator sees for one chunk.
type RerankCandidate struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// RerankScore is a refined relevance score for one candidate id.
type RerankScore struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Reranker refines the relevance of a shortlist. Implementations must honor
// ctx cancellation; the ranker also stops waiting once ctx is done.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []RerankCandidate) ([]RerankScore, error)
}

// Candidate is a facet-filtered chunk of a queryable document with its
// stored vector.
type Candidate struct {
	Chunk        model.Chunk
	DocumentName string
	Vector       []float32
}

// RankedChunk is one ranked result.
type RankedChunk struct {
	Chunk        model.Chunk
	DocumentName string
	Similarity   float64
	RerankScore  *float64
	WasReranked  bool
}

type RankOptions struct {
	// Limit is k; zero or less keeps every candidate above the threshold.
	Limit         int
	MinSimilarity float64
	Rerank        bool
	RerankTimeout time.Duration
}

type RankResult struct {
	Results []RankedChunk
	// Excluded counts candidates dropped because their stored vector has the
	// wrong dimensionality.
	Excluded    int
	WasReranked bool
	RerankTime  *time.Duration
	Algorithm   string
}

type Ranker struct {
	reranker  Reranker
	dimension int
}

// NewRanker builds a ranker. reranker may be nil. dimension is the
// model-declared vector size; zero means "whatever the query vector has".
func NewRanker(reranker Reranker, dimension int) *Ranker {
	return &Ranker{reranker: reranker, dimension: dimension}
}

func (r *Ranker) CanRerank() bool {
	return r != nil && r.reranker != nil
}

// Rank scores candidates by cosine similarity, drops those under the
// threshold, orders by score (ties by chunk index) and keeps the top k. When
// requested and available, the top k is re-ranked; a failing or slow
// reranker leaves the similarity order in place.
func (r *Ranker) Rank(ctx context.Context, query string, queryVec []float32, candidates []Candidate, opts RankOptions) (*RankResult, error) {
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", ErrDimensionMismatch)
	}
	if r.dimension > 0 && len(queryVec) != r.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, model declares %d", ErrDimensionMismatch, len(queryVec), r.dimension)
	}

	result := &RankResult{Algorithm: AlgorithmCosine}
	scored := make([]RankedChunk, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Vector) != len(queryVec) {
			result.Excluded++
			log.Printf("ranker: excluding chunk %s: stored vector has %d dimensions, expected %d", c.Chunk.ID, len(c.Vector), len(queryVec))
			continue
		}
		score := CosineSimilarity(queryVec, c.Vector)
		if score < opts.MinSimilarity {
			continue
		}
		scored = append(scored, RankedChunk{
			Chunk:        c.Chunk,
			DocumentName: c.DocumentName,
			Similarity:   score,
		})
	}

	slices.SortFunc(scored, compareBySimilarity)
	if opts.Limit > 0 && len(scored) > opts.Limit {
		scored = scored[:opts.Limit]
	}
	result.Results = scored

	if opts.Rerank && r.reranker != nil && len(scored) > 0 {
		start := time.Now()
		scores, err := r.callReranker(ctx, query, scored, opts.RerankTimeout)
		elapsed := time.Since(start)
		result.RerankTime = &elapsed
		if err != nil {
			log.Printf("ranker: rerank failed, keeping similarity order: %v", err)
		} else if applyRerank(scored, scores) {
			result.WasReranked = true
			result.Algorithm = AlgorithmCosineRerank
		}
	}

	return result, nil
}

func (r *Ranker) callReranker(ctx context.Context, query string, ranked []RankedChunk, timeout time.Duration) ([]RerankScore, error) {
	if timeout <= 0 {
		timeout = defaultRerankTimeout
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	candidates := make([]RerankCandidate, len(ranked))
	for i, rc := range ranked {
		candidates[i] = RerankCandidate{ID: rc.Chunk.ID, Content: rc.Chunk.Content}
	}

	type outcome struct {
		scores []RerankScore
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		scores, err := r.reranker.Rerank(rctx, query, candidates)
		done <- outcome{scores: scores, err: err}
	}()

	select {
	case <-rctx.Done():
		return nil, fmt.Errorf("rerank aborted: %w", rctx.Err())
	case o := <-done:
		return o.scores, o.err
	}
}

// applyRerank attaches scores and re-sorts in place. Results without a score
// keep their similarity order behind the re-ranked ones. It reports whether
// any result was re-ranked.
func applyRerank(ranked []RankedChunk, scores []RerankScore) bool {
	byID := make(map[string]float64, len(scores))
	for _, s := range scores {
		if math.IsNaN(s.Score) {
			continue
		}
		byID[s.ID] = s.Score
	}
	reranked := false
	for i := range ranked {
		if s, ok := byID[ranked[i].Chunk.ID]; ok {
			score := s
			ranked[i].RerankScore = &score
			ranked[i].WasReranked = true
			reranked = true
		}
	}
	if !reranked {
		return false
	}
	slices.SortStableFunc(ranked, func(a, b RankedChunk) int {
		switch {
		case a.RerankScore != nil && b.RerankScore != nil:
			return cmp.Compare(*b.RerankScore, *a.RerankScore)
		case a.RerankScore != nil:
			return -1
		case b.RerankScore != nil:
			return 1
		default:
			return 0
		}
	})
	return true
}

func compareBySimilarity(a, b RankedChunk) int {
	if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Chunk.ChunkIndex, b.Chunk.ChunkIndex); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Chunk.DocumentID, b.Chunk.DocumentID); c != 0 {
		return c
	}
	return cmp.Compare(a.Chunk.ID, b.Chunk.ID)
}

// CosineSimilarity returns 0 for mismatched lengths or zero vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

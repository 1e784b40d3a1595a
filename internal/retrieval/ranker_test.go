package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopherai-docqa/internal/model"
)

type fakeReranker struct {
	scores map[string]float64
	err    error
	delay  time.Duration
	calls  int
}

func (f *fakeReranker) Rerank(ctx context.Context, query string, candidates []RerankCandidate) ([]RerankScore, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]RerankScore, 0, len(candidates))
	for _, c := range candidates {
		if s, ok := f.scores[c.ID]; ok {
			out = append(out, RerankScore{ID: c.ID, Score: s})
		}
	}
	return out, nil
}

func candidate(id string, index int, vec ...float32) Candidate {
	return Candidate{
		Chunk:        model.Chunk{ID: id, DocumentID: "doc-1", ChunkIndex: index, Content: id},
		DocumentName: "doc.pdf",
		Vector:       vec,
	}
}

func rankedIDs(results []RankedChunk) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Chunk.ID
	}
	return out
}

func TestRankOrdersBySimilarity(t *testing.T) {
	r := NewRanker(nil, 2)
	res, err := r.Rank(context.Background(), "q", []float32{1, 0}, []Candidate{
		candidate("far", 0, 0, 1),
		candidate("near", 1, 1, 0),
		candidate("mid", 2, 1, 1),
	}, RankOptions{Limit: 10, MinSimilarity: -1})
	require.NoError(t, err)

	assert.Equal(t, []string{"near", "mid", "far"}, rankedIDs(res.Results))
	assert.InDelta(t, 1.0, res.Results[0].Similarity, 1e-9)
	assert.Equal(t, AlgorithmCosine, res.Algorithm)
	assert.False(t, res.WasReranked)
	assert.Nil(t, res.RerankTime)
}

func TestRankTiesBreakByChunkIndex(t *testing.T) {
	r := NewRanker(nil, 0)
	cands := []Candidate{
		candidate("c2", 2, 1, 1),
		candidate("c0", 0, 1, 1),
		candidate("c1", 1, 1, 1),
	}
	first, err := r.Rank(context.Background(), "q", []float32{1, 1}, cands, RankOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"c0", "c1", "c2"}, rankedIDs(first.Results))

	for i := 0; i < 5; i++ {
		again, err := r.Rank(context.Background(), "q", []float32{1, 1}, cands, RankOptions{})
		require.NoError(t, err)
		assert.Equal(t, rankedIDs(first.Results), rankedIDs(again.Results))
	}
}

func TestRankThresholdAndLimit(t *testing.T) {
	r := NewRanker(nil, 2)
	res, err := r.Rank(context.Background(), "q", []float32{1, 0}, []Candidate{
		candidate("a", 0, 1, 0),
		candidate("b", 1, 1, 0.1),
		candidate("c", 2, 1, 0.2),
		candidate("orthogonal", 3, 0, 1),
	}, RankOptions{Limit: 2, MinSimilarity: 0.5})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, rankedIDs(res.Results))
}

func TestRankEmptyCandidates(t *testing.T) {
	res, err := NewRanker(nil, 2).Rank(context.Background(), "q", []float32{1, 0}, nil, RankOptions{Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
}

func TestRankDimensionMismatchFailsFast(t *testing.T) {
	r := NewRanker(nil, 3)
	_, err := r.Rank(context.Background(), "q", []float32{1, 0}, nil, RankOptions{})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = r.Rank(context.Background(), "q", nil, nil, RankOptions{})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestRankExcludesInconsistentEmbeddings(t *testing.T) {
	r := NewRanker(nil, 2)
	res, err := r.Rank(context.Background(), "q", []float32{1, 0}, []Candidate{
		candidate("ok", 0, 1, 0),
		candidate("bad", 1, 1, 0, 0),
	}, RankOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, rankedIDs(res.Results))
	assert.Equal(t, 1, res.Excluded)
}

func TestRankWithRerank(t *testing.T) {
	rr := &fakeReranker{scores: map[string]float64{"a": 0.1, "b": 0.9}}
	r := NewRanker(rr, 2)
	require.True(t, r.CanRerank())

	res, err := r.Rank(context.Background(), "q", []float32{1, 0}, []Candidate{
		candidate("a", 0, 1, 0),
		candidate("b", 1, 1, 0.5),
		candidate("c", 2, 1, 1),
	}, RankOptions{Rerank: true})
	require.NoError(t, err)

	assert.True(t, res.WasReranked)
	assert.Equal(t, AlgorithmCosineRerank, res.Algorithm)
	assert.NotNil(t, res.RerankTime)
	assert.Equal(t, []string{"b", "a", "c"}, rankedIDs(res.Results))
	require.NotNil(t, res.Results[0].RerankScore)
	assert.InDelta(t, 0.9, *res.Results[0].RerankScore, 1e-9)
	assert.True(t, res.Results[0].WasReranked)
	assert.False(t, res.Results[2].WasReranked)
	assert.Nil(t, res.Results[2].RerankScore)
}

func TestRankRerankNotRequested(t *testing.T) {
	rr := &fakeReranker{scores: map[string]float64{"a": 1}}
	res, err := NewRanker(rr, 2).Rank(context.Background(), "q", []float32{1, 0}, []Candidate{candidate("a", 0, 1, 0)}, RankOptions{})
	require.NoError(t, err)
	assert.False(t, res.WasReranked)
	assert.Zero(t, rr.calls)
}

func TestRankRerankFailureKeepsSimilarityOrder(t *testing.T) {
	rr := &fakeReranker{err: errors.New("upstream 503")}
	res, err := NewRanker(rr, 2).Rank(context.Background(), "q", []float32{1, 0}, []Candidate{
		candidate("a", 0, 1, 0),
		candidate("b", 1, 0, 1),
	}, RankOptions{Rerank: true})
	require.NoError(t, err)
	assert.False(t, res.WasReranked)
	assert.Equal(t, AlgorithmCosine, res.Algorithm)
	assert.Equal(t, []string{"a", "b"}, rankedIDs(res.Results))
}

func TestRankRerankTimeout(t *testing.T) {
	rr := &fakeReranker{scores: map[string]float64{"a": 0, "b": 1}, delay: time.Second}
	res, err := NewRanker(rr, 2).Rank(context.Background(), "q", []float32{1, 0}, []Candidate{
		candidate("a", 0, 1, 0),
		candidate("b", 1, 0, 1),
	}, RankOptions{Rerank: true, RerankTimeout: 20 * time.Millisecond})
	require.NoError(t, err)

	assert.False(t, res.WasReranked)
	assert.Equal(t, []string{"a", "b"}, rankedIDs(res.Results))
	for _, r := range res.Results {
		assert.False(t, r.WasReranked)
		assert.Nil(t, r.RerankScore)
	}
	require.NotNil(t, res.RerankTime)
	assert.Less(t, *res.RerankTime, time.Second)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 1}))
	assert.Zero(t, CosineSimilarity(nil, nil))
}

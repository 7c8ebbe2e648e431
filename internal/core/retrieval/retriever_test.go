package retrieval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.vector, nil
}

type stubRepo struct {
	results       []*ScoredChunk
	err           error
	lastThreshold float64
	lastTopK      int
}

func (r *stubRepo) Search(ctx context.Context, queryVector []float32, threshold float64, topK int) ([]*ScoredChunk, error) {
	r.lastThreshold = threshold
	r.lastTopK = topK
	if r.err != nil {
		return nil, r.err
	}
	return r.results, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRetrieveJoinsChunksInScoreOrder(t *testing.T) {
	repo := &stubRepo{results: []*ScoredChunk{
		{Content: "первый фрагмент", Score: 0.95},
		{Content: "второй фрагмент", Score: 0.85},
	}}
	embedder := &stubEmbedder{vector: []float32{1, 2, 3}}

	r := NewRetriever(repo, embedder, WithRetrieverLogger(discardLogger()))
	got := r.Retrieve(context.Background(), "вопрос")

	assert.Equal(t, "первый фрагмент\n---\nвторой фрагмент", got)
	assert.Equal(t, DefaultSimilarityThreshold, repo.lastThreshold)
	assert.Equal(t, DefaultTopK, repo.lastTopK)
}

func TestRetrieveEmptyMessageSkipsEmbedding(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{1}}
	r := NewRetriever(&stubRepo{}, embedder, WithRetrieverLogger(discardLogger()))

	assert.Equal(t, "", r.Retrieve(context.Background(), "   "))
	assert.Equal(t, 0, embedder.calls)
}

func TestRetrieveEmbedFailureDegradesToEmptyContext(t *testing.T) {
	embedder := &stubEmbedder{err: errors.New("api down")}
	r := NewRetriever(&stubRepo{}, embedder, WithRetrieverLogger(discardLogger()))

	assert.Equal(t, "", r.Retrieve(context.Background(), "вопрос"))
}

func TestRetrieveSearchFailureDegradesToEmptyContext(t *testing.T) {
	repo := &stubRepo{err: errors.New("db down")}
	embedder := &stubEmbedder{vector: []float32{1}}
	r := NewRetriever(repo, embedder, WithRetrieverLogger(discardLogger()))

	assert.Equal(t, "", r.Retrieve(context.Background(), "вопрос"))
}

func TestRetrieveNoResultsReturnsEmptyContext(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{1}}
	r := NewRetriever(&stubRepo{}, embedder, WithRetrieverLogger(discardLogger()))

	assert.Equal(t, "", r.Retrieve(context.Background(), "вопрос"))
}

func TestRetrieveTruncatesToCharLimit(t *testing.T) {
	repo := &stubRepo{results: []*ScoredChunk{
		{Content: strings.Repeat("ф", 100), Score: 0.9},
	}}
	embedder := &stubEmbedder{vector: []float32{1}}

	r := NewRetriever(repo, embedder,
		WithContextCharLimit(40),
		WithRetrieverLogger(discardLogger()))
	got := r.Retrieve(context.Background(), "вопрос")

	// マルチバイト文字でもルーン単位で切り詰める
	assert.Equal(t, strings.Repeat("ф", 40), got)
}

func TestRetrieveOptionsOverrideDefaults(t *testing.T) {
	repo := &stubRepo{}
	embedder := &stubEmbedder{vector: []float32{1}}

	r := NewRetriever(repo, embedder,
		WithSimilarityThreshold(0.5),
		WithTopK(10),
		WithRetrieverLogger(discardLogger()))
	r.Retrieve(context.Background(), "вопрос")

	assert.Equal(t, 0.5, repo.lastThreshold)
	assert.Equal(t, 10, repo.lastTopK)
}

package ingestion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedderForIngest struct {
	failOn map[string]bool // このコンテンツを含むチャンクのEmbeddingを失敗させる
}

func (e *stubEmbedderForIngest) Embed(ctx context.Context, text string) ([]float32, error) {
	for marker := range e.failOn {
		if strings.Contains(text, marker) {
			return nil, errors.New("embedding api error")
		}
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (e *stubEmbedderForIngest) Dimension() int { return 3 }

type stubIngestRepo struct {
	mu            sync.Mutex
	documents     []*Document
	chunks        []*Chunk
	createErr     error
	insertFailSeq map[int]bool
}

func (r *stubIngestRepo) CreateDocument(ctx context.Context, doc *Document) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents = append(r.documents, doc)
	return nil
}

func (r *stubIngestRepo) InsertChunk(ctx context.Context, chunk *Chunk, embedding []float32) error {
	if r.insertFailSeq[chunk.Sequence] {
		return errors.New("insert error")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, chunk)
	return nil
}

func (r *stubIngestRepo) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	return nil
}

func newTestIngestService(t *testing.T, repo Repository, embedder Embedder) *IngestService {
	t.Helper()
	chunker, err := NewChunker(WithChunkSize(50), WithOverlap(10), WithMinChunkChars(1))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewIngestService(repo, embedder, chunker, WithIngestLogger(logger))
}

func TestIngestEmptyDocumentReturnsError(t *testing.T) {
	svc := newTestIngestService(t, &stubIngestRepo{}, &stubEmbedderForIngest{})

	_, err := svc.Ingest(context.Background(), "empty.txt", ".txt", "   ")
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestIngestStoresAllChunks(t *testing.T) {
	repo := &stubIngestRepo{}
	svc := newTestIngestService(t, repo, &stubEmbedderForIngest{})

	text := strings.Repeat("procurement law article section clause ", 60)
	result, err := svc.Ingest(context.Background(), "law.txt", ".txt", text)
	require.NoError(t, err)

	assert.Equal(t, "law.txt", result.Filename)
	assert.Empty(t, result.Failures)
	assert.Greater(t, result.StoredChunks, 1)
	assert.Len(t, repo.chunks, result.StoredChunks)

	require.Len(t, repo.documents, 1)
	assert.Equal(t, result.DocumentID, repo.documents[0].ID)
	for _, chunk := range repo.chunks {
		assert.Equal(t, result.DocumentID, chunk.DocumentID)
	}
}

func TestIngestCreateDocumentFailureIsFatal(t *testing.T) {
	repo := &stubIngestRepo{createErr: errors.New("db down")}
	svc := newTestIngestService(t, repo, &stubEmbedderForIngest{})

	_, err := svc.Ingest(context.Background(), "law.txt", ".txt", "Закупки регулируются федеральным законом.")
	require.Error(t, err)
	assert.Empty(t, repo.chunks)
}

func TestIngestContinuesAfterChunkInsertFailure(t *testing.T) {
	repo := &stubIngestRepo{insertFailSeq: map[int]bool{1: true}}
	svc := newTestIngestService(t, repo, &stubEmbedderForIngest{})

	text := strings.Repeat("procurement law article section clause ", 60)
	result, err := svc.Ingest(context.Background(), "law.txt", ".txt", text)
	require.NoError(t, err)

	// 失敗したチャンクは報告され、それ以外は保存される
	require.Len(t, result.Failures, 1)
	assert.Equal(t, 1, result.Failures[0].Sequence)
	assert.Contains(t, result.Failures[0].Reason, "insert failed")
	assert.Len(t, repo.chunks, result.StoredChunks)
	assert.Greater(t, result.StoredChunks, 0)
}

func TestIngestReportsEmbeddingFailures(t *testing.T) {
	repo := &stubIngestRepo{}
	embedder := &stubEmbedderForIngest{failOn: map[string]bool{"ЯДОВИТЫЙ": true}}
	svc := newTestIngestService(t, repo, embedder)

	good := strings.Repeat("procurement law article section clause ", 20)
	poisoned := good + " ЯДОВИТЫЙ " + good
	result, err := svc.Ingest(context.Background(), "law.txt", ".txt", poisoned)
	require.NoError(t, err)

	require.NotEmpty(t, result.Failures)
	for _, failure := range result.Failures {
		assert.Contains(t, failure.Reason, "embedding failed")
	}
	assert.Greater(t, result.StoredChunks, 0)
	assert.Len(t, repo.chunks, result.StoredChunks)
}

func TestIngestFailuresSortedBySequence(t *testing.T) {
	repo := &stubIngestRepo{insertFailSeq: map[int]bool{0: true, 2: true, 4: true}}
	svc := newTestIngestService(t, repo, &stubEmbedderForIngest{})

	text := strings.Repeat("procurement law article section clause ", 80)
	result, err := svc.Ingest(context.Background(), "law.txt", ".txt", text)
	require.NoError(t, err)

	require.Len(t, result.Failures, 3)
	assert.Equal(t, 0, result.Failures[0].Sequence)
	assert.Equal(t, 2, result.Failures[1].Sequence)
	assert.Equal(t, 4, result.Failures[2].Sequence)
}

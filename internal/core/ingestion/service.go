package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultEmbedWorkerCount はチャンクEmbedding生成のデフォルトワーカー数（I/Oバウンド）
	DefaultEmbedWorkerCount = 4
)

var (
	// ErrEmptyDocument はテキストが空のドキュメントを取り込もうとした場合のエラー
	ErrEmptyDocument = errors.New("document text is empty")
)

// IngestService はドキュメント取り込みのユースケースを提供する
type IngestService struct {
	repository  Repository
	embedder    Embedder
	chunker     *Chunker
	workerCount int
	logger      *slog.Logger
}

type ingestServiceOptions struct {
	workerCount int
	logger      *slog.Logger
}

// IngestServiceOption は IngestService のオプション設定
type IngestServiceOption func(*ingestServiceOptions)

// WithIngestLogger は IngestService にロガーを設定する
func WithIngestLogger(logger *slog.Logger) IngestServiceOption {
	return func(o *ingestServiceOptions) {
		o.logger = logger
	}
}

// WithEmbedWorkerCount はEmbeddingワーカー数を上書きする
func WithEmbedWorkerCount(count int) IngestServiceOption {
	return func(o *ingestServiceOptions) {
		if count > 0 {
			o.workerCount = count
		}
	}
}

// NewIngestService は新しいIngestServiceを作成する
func NewIngestService(
	repo Repository,
	embedder Embedder,
	chunker *Chunker,
	opts ...IngestServiceOption,
) *IngestService {
	options := ingestServiceOptions{
		workerCount: DefaultEmbedWorkerCount,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &IngestService{
		repository:  repo,
		embedder:    embedder,
		chunker:     chunker,
		workerCount: options.workerCount,
		logger:      options.logger,
	}
}

// Ingest は抽出済みテキストをチャンク化・ベクトル化してナレッジベースへ保存する。
// チャンク単位の失敗はパイプラインを止めない: 失敗したチャンクは結果の
// Failures に記録され、成功済みチャンクはそのまま検索可能になる。
func (s *IngestService) Ingest(ctx context.Context, filename, extension, text string) (*IngestResult, error) {
	chunks := s.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, filename)
	}

	doc := &Document{
		ID:         uuid.New(),
		Filename:   filename,
		Extension:  extension,
		Text:       text,
		UploadedAt: time.Now(),
	}

	// ドキュメント本体の保存失敗は致命的（チャンクの所属先がなくなる）
	if err := s.repository.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	for _, chunk := range chunks {
		chunk.DocumentID = doc.ID
	}

	s.logger.Info("ドキュメントの取り込みを開始",
		"documentID", doc.ID,
		"filename", filename,
		"chunks", len(chunks),
	)

	stored, failures := s.embedAndStore(ctx, chunks)

	if len(failures) > 0 {
		s.logger.Warn("取り込み完了（一部失敗あり）",
			"documentID", doc.ID,
			"stored", stored,
			"failed", len(failures),
		)
	} else {
		s.logger.Info("取り込み完了",
			"documentID", doc.ID,
			"stored", stored,
		)
	}

	return &IngestResult{
		DocumentID:   doc.ID,
		Filename:     filename,
		StoredChunks: stored,
		Failures:     failures,
	}, nil
}

// embedAndStore はチャンクを並列にEmbedding生成・保存する。
// 失敗はチャンク単位で独立しており、1つの失敗が他のチャンクに波及しない。
func (s *IngestService) embedAndStore(ctx context.Context, chunks []*Chunk) (int, []ChunkFailure) {
	chunkChan := make(chan *Chunk)

	var mu sync.Mutex
	stored := 0
	failures := make([]ChunkFailure, 0)

	var wg sync.WaitGroup
	wg.Add(s.workerCount)
	for i := 0; i < s.workerCount; i++ {
		go func() {
			defer wg.Done()
			for chunk := range chunkChan {
				err := s.storeOne(ctx, chunk)

				mu.Lock()
				if err != nil {
					failures = append(failures, ChunkFailure{
						Sequence: chunk.Sequence,
						Reason:   err.Error(),
					})
				} else {
					stored++
				}
				mu.Unlock()
			}
		}()
	}

	for _, chunk := range chunks {
		select {
		case chunkChan <- chunk:
		case <-ctx.Done():
			// 残りのチャンクは投入しない。投入済みのチャンクはワーカーが処理を終える。
			close(chunkChan)
			wg.Wait()
			mu.Lock()
			defer mu.Unlock()
			sortFailures(failures)
			return stored, failures
		}
	}
	close(chunkChan)
	wg.Wait()

	sortFailures(failures)
	return stored, failures
}

func (s *IngestService) storeOne(ctx context.Context, chunk *Chunk) error {
	embedding, err := s.embedder.Embed(ctx, chunk.Content)
	if err != nil {
		s.logger.Warn("チャンクのEmbedding生成に失敗",
			"documentID", chunk.DocumentID,
			"sequence", chunk.Sequence,
			"error", err,
		)
		return fmt.Errorf("embedding failed: %w", err)
	}

	if err := s.repository.InsertChunk(ctx, chunk, embedding); err != nil {
		s.logger.Warn("チャンクの保存に失敗",
			"documentID", chunk.DocumentID,
			"sequence", chunk.Sequence,
			"error", err,
		)
		return fmt.Errorf("insert failed: %w", err)
	}

	return nil
}

// sortFailures は失敗リストをシーケンス番号順に整える（並列処理で順序が乱れるため）
func sortFailures(failures []ChunkFailure) {
	sort.Slice(failures, func(i, j int) bool {
		return failures[i].Sequence < failures[j].Sequence
	})
}

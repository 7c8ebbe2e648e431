package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/tildagpt/sofia/internal/core/ingestion"
	"github.com/tildagpt/sofia/internal/core/retrieval"
	"github.com/tildagpt/sofia/pkg/db"
)

// KnowledgeRepository はドキュメントとチャンクのPostgreSQLリポジトリ
//
// チャンクの埋め込みベクトルは pgvector の vector 型で保持し、
// コサイン距離演算子 (<=>) で類似検索を行う。
type KnowledgeRepository struct {
	db *db.DB
}

// NewKnowledgeRepository は新しい KnowledgeRepository を作成する
func NewKnowledgeRepository(db *db.DB) *KnowledgeRepository {
	return &KnowledgeRepository{db: db}
}

// CreateDocument はドキュメントレコードを作成する
func (r *KnowledgeRepository) CreateDocument(ctx context.Context, doc *ingestion.Document) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO documents (id, filename, extension, uploaded_at)
		 VALUES ($1, $2, $3, $4)`,
		doc.ID, doc.Filename, doc.Extension, doc.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// InsertChunk は埋め込みベクトル付きのチャンクを保存する
func (r *KnowledgeRepository) InsertChunk(ctx context.Context, chunk *ingestion.Chunk, embedding []float32) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO chunks (document_id, sequence, content, embedding, token_count, source_url)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		chunk.DocumentID, chunk.Sequence, chunk.Content,
		pgvector.NewVector(embedding), chunk.TokenCount, chunk.SourceURL,
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	return nil
}

// DeleteDocument はドキュメントと関連チャンクを削除する
//
// chunks.document_id は ON DELETE CASCADE のため明示的な削除は不要
func (r *KnowledgeRepository) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM documents WHERE id = $1`,
		documentID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Search はコサイン類似度でチャンクを検索する
//
// 類似度が threshold 以上のチャンクを類似度降順で最大 topK 件返す。
// 該当なしの場合は空スライスを返し、エラーにはしない。
func (r *KnowledgeRepository) Search(ctx context.Context, queryVector []float32, threshold float64, topK int) ([]*retrieval.ScoredChunk, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT c.document_id, c.sequence, d.filename, c.content,
		        1 - (c.embedding <=> $1) AS score
		 FROM chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE 1 - (c.embedding <=> $1) >= $2
		 ORDER BY c.embedding <=> $1
		 LIMIT $3`,
		pgvector.NewVector(queryVector), threshold, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*retrieval.ScoredChunk
	for rows.Next() {
		var chunk retrieval.ScoredChunk
		if err := rows.Scan(
			&chunk.DocumentID, &chunk.Sequence, &chunk.Filename,
			&chunk.Content, &chunk.Score,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, &chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}
	return chunks, nil
}

// インターフェース実装の確認
var _ ingestion.Repository = (*KnowledgeRepository)(nil)
var _ retrieval.Repository = (*KnowledgeRepository)(nil)

package ingestion

import (
	"context"

	"github.com/google/uuid"
)

// Repository はナレッジベースの永続化インターフェース
type Repository interface {
	// CreateDocument はドキュメントのメタデータを保存する
	CreateDocument(ctx context.Context, doc *Document) error

	// InsertChunk はチャンクとそのEmbeddingを保存する。
	// 保存されたチャンクは以降の検索で即座に可視になる。
	InsertChunk(ctx context.Context, chunk *Chunk, embedding []float32) error

	// DeleteDocument はドキュメントと所属チャンクを削除する（カスケード）
	DeleteDocument(ctx context.Context, documentID uuid.UUID) error
}

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension はEmbeddingベクトルの次元数を返す
	Dimension() int
}

package retrieval

import (
	"context"

	"github.com/google/uuid"
)

// ScoredChunk は類似度スコアつきの検索結果チャンクを表す
type ScoredChunk struct {
	DocumentID uuid.UUID
	Sequence   int
	Filename   string
	Content    string
	Score      float64 // コサイン類似度（降順で返される）
}

// Repository はベクトル検索の永続化インターフェース
type Repository interface {
	// Search はクエリベクトルに対する類似チャンクを類似度降順で返す。
	// 閾値を超えるチャンクがない場合はエラーではなく空リストを返す。
	Search(ctx context.Context, queryVector []float32, threshold float64, topK int) ([]*ScoredChunk, error)
}

// Embedder はクエリのEmbedding生成インターフェース
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

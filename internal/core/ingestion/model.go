package ingestion

import (
	"time"

	"github.com/google/uuid"
)

// Document は取り込まれたドキュメントを表す
type Document struct {
	ID         uuid.UUID
	Filename   string
	Extension  string // 拡張子（小文字、ドット付き。例: ".pdf"）
	Text       string // 抽出済みプレーンテキスト
	UploadedAt time.Time
}

// Chunk はドキュメントから分割されたチャンクを表す
type Chunk struct {
	DocumentID uuid.UUID
	Sequence   int    // ドキュメント内の通し番号（0始まり）
	Content    string
	TokenCount int
	SourceURL  *string // 取り込み元URL（アップロードの場合はnil）
}

// ChunkFailure は1チャンクの取り込み失敗を表す
type ChunkFailure struct {
	Sequence int    `json:"sequence"`
	Reason   string `json:"reason"`
}

// IngestResult はドキュメント取り込みの結果を表す。
// 取り込みはアトミックではない: 一部のチャンクが失敗しても、
// 成功したチャンクは検索可能なまま残る。
type IngestResult struct {
	DocumentID   uuid.UUID      `json:"document_id"`
	Filename     string         `json:"filename"`
	StoredChunks int            `json:"stored_chunk_count"`
	Failures     []ChunkFailure `json:"failures"`
}

package postgres

import (
	"context"
	"fmt"

	"github.com/tildagpt/sofia/pkg/db"
)

// スキーマ定義。db/schema.sql と同じ内容を初回起動時に適用する。
var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,

	`CREATE TABLE IF NOT EXISTS documents (
		id          UUID PRIMARY KEY,
		filename    TEXT NOT NULL,
		extension   TEXT NOT NULL,
		uploaded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS chunks (
		id          BIGSERIAL PRIMARY KEY,
		document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		sequence    INT NOT NULL,
		content     TEXT NOT NULL,
		embedding   vector(1536) NOT NULL,
		token_count INT NOT NULL,
		source_url  TEXT,
		UNIQUE (document_id, sequence)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_chunks_embedding
		ON chunks USING hnsw (embedding vector_cosine_ops)`,

	`CREATE TABLE IF NOT EXISTS session_turns (
		id         BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL,
		role       TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
		content    TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_session_turns_session
		ON session_turns (session_id, created_at)`,
}

// EnsureSchema はテーブルとインデックスを冪等に作成する
func EnsureSchema(ctx context.Context, db *db.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

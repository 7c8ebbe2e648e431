package postgres

import (
	"context"
	"fmt"

	"github.com/samber/mo"

	"github.com/tildagpt/sofia/internal/core/chat"
	"github.com/tildagpt/sofia/pkg/db"
)

// SessionRepository は会話履歴のPostgreSQLリポジトリ。
// セッション履歴の唯一の真実であり、キャッシュ層はこれをラップする。
type SessionRepository struct {
	db *db.DB
}

// NewSessionRepository は新しい SessionRepository を作成する
func NewSessionRepository(db *db.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Append は1ターンを追記する。タイムスタンプはDB側で採番される。
func (r *SessionRepository) Append(ctx context.Context, sessionID string, role chat.Role, content string) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO session_turns (session_id, role, content, created_at)
		 VALUES ($1, $2, $3, NOW())`,
		sessionID, string(role), content,
	)
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// Load はセッションの履歴を時系列順で返す。
// limit 指定時は直近のNターンのみを対象とし、順序は時系列のまま返す。
func (r *SessionRepository) Load(ctx context.Context, sessionID string, limit mo.Option[int]) ([]*chat.Turn, error) {
	query := `SELECT session_id, role, content, created_at
	          FROM session_turns
	          WHERE session_id = $1
	          ORDER BY created_at ASC, id ASC`
	args := []any{sessionID}

	if n, ok := limit.Get(); ok {
		// 直近N件を取ってから時系列に並べ直す
		query = `SELECT session_id, role, content, created_at FROM (
		           SELECT id, session_id, role, content, created_at
		           FROM session_turns
		           WHERE session_id = $1
		           ORDER BY created_at DESC, id DESC
		           LIMIT $2
		         ) recent
		         ORDER BY created_at ASC, id ASC`
		args = append(args, n)
	}

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load session history: %w", err)
	}
	defer rows.Close()

	var turns []*chat.Turn
	for rows.Next() {
		var turn chat.Turn
		var role string
		if err := rows.Scan(&turn.SessionID, &role, &turn.Content, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Role = chat.Role(role)
		turns = append(turns, &turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turns: %w", err)
	}
	return turns, nil
}

// インターフェース実装の確認
var _ chat.SessionStore = (*SessionRepository)(nil)

package chat

import (
	"context"
	"time"

	"github.com/samber/mo"
)

// Role は会話メッセージの役割を表す
type Role string

const (
	// RoleSystem はペルソナを定義するシステムメッセージ
	RoleSystem Role = "system"
	// RoleUser はユーザーの発話
	RoleUser Role = "user"
	// RoleAssistant はアシスタントの応答
	RoleAssistant Role = "assistant"
)

// DefaultSessionID はセッション識別子が未指定の場合に使用される
const DefaultSessionID = "default"

// Turn はセッション内の1発話を表す。
// システムメッセージは毎回組み立て直されるため永続化されない。
type Turn struct {
	SessionID string
	Role      Role
	Content   string
	CreatedAt time.Time
}

// PromptMessage はCompletion呼び出しへ渡す一時的なメッセージ。
// メモリ上にのみ存在し、永続化されるのはuser/assistantのTurnだけ。
type PromptMessage struct {
	Role    Role
	Content string
}

// SessionStore はセッション履歴の永続化インターフェース。
// 耐久ストアが唯一の真実であり、インメモリキャッシュは最適化にすぎない。
type SessionStore interface {
	// Append は1ターンを追記する。タイムスタンプはストア側で採番される。
	Append(ctx context.Context, sessionID string, role Role, content string) error

	// Load はセッションの履歴を時系列順（古い順）で返す。
	// limit が指定された場合は直近のNターンのみを返す（順序は時系列のまま）。
	Load(ctx context.Context, sessionID string, limit mo.Option[int]) ([]*Turn, error)
}

// CompletionParams はCompletion呼び出しのパラメータ
type CompletionParams struct {
	Temperature     float64
	MaxOutputTokens int
}

// CompletionClient はLLM Completion呼び出しのインターフェース
type CompletionClient interface {
	Complete(ctx context.Context, messages []PromptMessage, params CompletionParams) (string, error)
}

// ContextRetriever はユーザーメッセージに関連するコンテキストを取得するインターフェース。
// 取得の失敗は空文字列として扱われ、ターン全体を失敗させない。
type ContextRetriever interface {
	Retrieve(ctx context.Context, message string) string
}

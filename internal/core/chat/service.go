package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/mo"
)

const (
	// DefaultPromptBudget はプロンプト全体のデフォルトトークン予算
	DefaultPromptBudget = 3000
	// DefaultHistoryWindow はストアから読み込む履歴ターン数の上限
	DefaultHistoryWindow = 30
)

// ChatService は1ユーザーメッセージに対するターンパイプラインを提供する
type ChatService struct {
	store         SessionStore
	retriever     ContextRetriever
	completer     CompletionClient
	assembler     *PromptAssembler
	sanitizer     *Sanitizer
	promptBudget  int
	historyWindow int
	params        CompletionParams
	logger        *slog.Logger
}

type chatServiceOptions struct {
	promptBudget  int
	historyWindow int
	params        CompletionParams
	logger        *slog.Logger
}

// ChatServiceOption は ChatService のオプション設定
type ChatServiceOption func(*chatServiceOptions)

// WithChatLogger は ChatService にロガーを設定する
func WithChatLogger(logger *slog.Logger) ChatServiceOption {
	return func(o *chatServiceOptions) {
		o.logger = logger
	}
}

// WithPromptBudget はトークン予算を上書きする
func WithPromptBudget(budget int) ChatServiceOption {
	return func(o *chatServiceOptions) {
		if budget > 0 {
			o.promptBudget = budget
		}
	}
}

// WithHistoryWindow は履歴読み込みターン数の上限を上書きする
func WithHistoryWindow(window int) ChatServiceOption {
	return func(o *chatServiceOptions) {
		if window > 0 {
			o.historyWindow = window
		}
	}
}

// WithCompletionParams はCompletionパラメータを上書きする
func WithCompletionParams(params CompletionParams) ChatServiceOption {
	return func(o *chatServiceOptions) {
		o.params = params
	}
}

// NewChatService は新しいChatServiceを作成する
func NewChatService(
	store SessionStore,
	retriever ContextRetriever,
	completer CompletionClient,
	assembler *PromptAssembler,
	sanitizer *Sanitizer,
	opts ...ChatServiceOption,
) *ChatService {
	options := chatServiceOptions{
		promptBudget:  DefaultPromptBudget,
		historyWindow: DefaultHistoryWindow,
		params: CompletionParams{
			Temperature:     0.7,
			MaxOutputTokens: 700,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &ChatService{
		store:         store,
		retriever:     retriever,
		completer:     completer,
		assembler:     assembler,
		sanitizer:     sanitizer,
		promptBudget:  options.promptBudget,
		historyWindow: options.historyWindow,
		params:        options.params,
		logger:        options.logger,
	}
}

// Turn は1ユーザーメッセージを処理して応答を返す。
//
// ユーザーターンはCompletion呼び出しの前に永続化される: パイプライン途中で
// 失敗しても入力側のデータは失われない。アシスタントターンはCompletionが
// 成功した場合にのみ永続化される。Completionの失敗はこのターンにとって
// 致命的で、自動リトライはしない（リトライによるターン重複を避ける）。
func (s *ChatService) Turn(ctx context.Context, sessionID, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", ErrEmptyMessage
	}
	if sessionID == "" {
		sessionID = DefaultSessionID
	}

	// 1. ユーザーターンを先に記録する
	if err := s.store.Append(ctx, sessionID, RoleUser, message); err != nil {
		return "", fmt.Errorf("%w: failed to append user turn: %v", ErrSessionStoreUnavailable, err)
	}

	// 2. 関連コンテキストの取得（失敗しても空文字列に劣化するだけ）
	contextText := s.retriever.Retrieve(ctx, message)

	// 3. 履歴の読み込み。失敗は致命的ではない: 履歴なしで回答を続行する
	history, err := s.store.Load(ctx, sessionID, mo.Some(s.historyWindow))
	if err != nil {
		s.logger.Warn("履歴の読み込みに失敗、履歴なしで続行", "sessionID", sessionID, "error", err)
		history = nil
	}

	// 読み込んだ履歴には直前に追記したユーザーターンが含まれるため、
	// 末尾から取り除く（新規発話はAssembleが末尾に付け直す）
	if n := len(history); n > 0 && history[n-1].Role == RoleUser && history[n-1].Content == message {
		history = history[:n-1]
	}

	// 4. トークン予算内に履歴を切り詰める
	consumed := EstimateTokens(s.assembler.SystemPrompt()) + EstimateTokens(contextText) + EstimateTokens(message)
	historyBudget := s.promptBudget - consumed
	trimmed := TrimHistory(history, historyBudget)

	// 5. プロンプトの組み立てとCompletion呼び出し
	messages := s.assembler.Assemble(contextText, trimmed, message)

	s.logger.Info("completionを実行",
		"sessionID", sessionID,
		"historyTurns", len(trimmed),
		"contextChars", len(contextText),
	)

	reply, err := s.completer.Complete(ctx, messages, s.params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletionFailed, err)
	}

	// 6. ペルソナ漏えいの除去
	reply = s.sanitizer.Clean(reply)

	// 7. アシスタントターンの記録。応答は既に生成済みなので、
	// ここでの失敗はエラーログに留めて応答自体は返す
	if err := s.store.Append(ctx, sessionID, RoleAssistant, reply); err != nil {
		s.logger.Error("アシスタントターンの記録に失敗", "sessionID", sessionID, "error", err)
	}

	return reply, nil
}

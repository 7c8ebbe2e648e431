package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/tildagpt/sofia/internal/core/chat"
)

const (
	// DefaultCompletionModel はチャット補完のデフォルトモデル
	DefaultCompletionModel = "gpt-4o-mini"
	// DefaultRequestTimeout は1リクエストあたりのタイムアウト
	DefaultRequestTimeout = 60 * time.Second
)

// CompletionClient は OpenAI Chat Completions API のクライアント
//
// 補完呼び出しは失敗してもクライアント内部で再試行しない。
// 失敗の扱い(致命エラーにするか等)は呼び出し側が決める。
type CompletionClient struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

type completionOptions struct {
	model   string
	timeout time.Duration
}

// CompletionOption は CompletionClient のオプション設定
type CompletionOption func(*completionOptions)

// WithCompletionModel はモデル名を上書きする
func WithCompletionModel(model string) CompletionOption {
	return func(o *completionOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithRequestTimeout はリクエストタイムアウトを上書きする
func WithRequestTimeout(timeout time.Duration) CompletionOption {
	return func(o *completionOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// NewCompletionClient は新しい CompletionClient を作成する
func NewCompletionClient(apiKey string, opts ...CompletionOption) (*CompletionClient, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := completionOptions{
		model:   DefaultCompletionModel,
		timeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &CompletionClient{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		model:   options.model,
		timeout: options.timeout,
	}, nil
}

// Complete はメッセージ列を送信して補完テキストを取得する
func (c *CompletionClient) Complete(ctx context.Context, messages []chat.PromptMessage, params chat.CompletionParams) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	apiMessages := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case chat.RoleSystem:
			apiMessages = append(apiMessages, openai.SystemMessage(m.Content))
		case chat.RoleAssistant:
			apiMessages = append(apiMessages, openai.AssistantMessage(m.Content))
		case chat.RoleUser:
			apiMessages = append(apiMessages, openai.UserMessage(m.Content))
		default:
			return "", fmt.Errorf("unknown message role: %q", m.Role)
		}
	}

	chatParams := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    apiMessages,
		Temperature: openai.Float(params.Temperature),
	}
	if params.MaxOutputTokens > 0 {
		chatParams.MaxTokens = openai.Int(int64(params.MaxOutputTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, chatParams)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}

	return resp.Choices[0].Message.Content, nil
}

// ModelName はモデル名を返す
func (c *CompletionClient) ModelName() string {
	return c.model
}

// インターフェース実装の確認
var _ chat.CompletionClient = (*CompletionClient)(nil)

package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrTokenNotSet はボットトークンが設定されていない場合のエラー
	ErrTokenNotSet = errors.New("telegram bot token not set: please set TELEGRAM_TOKEN environment variable")
)

const (
	apiBaseURL = "https://api.telegram.org"

	// DefaultSendTimeout はsendMessage呼び出しのタイムアウト
	DefaultSendTimeout = 10 * time.Second
)

// Client は Telegram Bot API の最小クライアント。
// Webhook経由の応答送信にしか使わないため sendMessage のみ実装する。
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// ClientOption は Client のオプション設定
type ClientOption func(*Client)

// WithBaseURL はAPIのベースURLを上書きする（テスト用）
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithHTTPClient はHTTPクライアントを上書きする
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient は新しい Client を作成する
func NewClient(token string, opts ...ClientOption) (*Client, error) {
	if token == "" {
		return nil, ErrTokenNotSet
	}

	client := &Client{
		token:      token,
		baseURL:    apiBaseURL,
		httpClient: &http.Client{Timeout: DefaultSendTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendMessage は指定チャットへテキストメッセージを送信する
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("failed to encode sendMessage request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call sendMessage: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read sendMessage response: %w", err)
	}

	var result sendMessageResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("failed to decode sendMessage response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("sendMessage rejected: %s", result.Description)
	}
	return nil
}

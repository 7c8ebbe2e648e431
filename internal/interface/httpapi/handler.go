package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tildagpt/sofia/internal/core/chat"
	"github.com/tildagpt/sofia/internal/core/ingestion"
	"github.com/tildagpt/sofia/internal/infra/extract"
)

// completionApology はCompletion失敗時にエンドユーザーへ返す定型文
const completionApology = "Извините, сейчас я не могу ответить. Пожалуйста, попробуйте ещё раз через минуту."

// telegramUnavailable はTelegramターンの処理に失敗したときに送る定型文
const telegramUnavailable = "⚠️ София временно недоступна. Попробуйте позже."

// maxUploadSize はアップロード可能なファイルサイズの上限
const maxUploadSize = 20 << 20 // 20MB

// ChatService は会話ターンを処理するインターフェース
type ChatService interface {
	Turn(ctx context.Context, sessionID, message string) (string, error)
}

// IngestService はドキュメント取り込みを処理するインターフェース
type IngestService interface {
	Ingest(ctx context.Context, filename, extension, text string) (*ingestion.IngestResult, error)
}

// TextExtractor はファイルからテキストを抽出するインターフェース
type TextExtractor interface {
	Extract(extension string, data []byte) (string, error)
}

// TelegramSender はTelegramへの応答送信インターフェース。
// Webhookを使わない構成では nil のままでよい。
type TelegramSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Handler はHTTP APIのハンドラ群
type Handler struct {
	chatService   ChatService
	ingestService IngestService
	extractor     TextExtractor
	telegram      TelegramSender
	debugErrors   bool
	logger        *slog.Logger
}

type handlerOptions struct {
	telegram    TelegramSender
	debugErrors bool
	logger      *slog.Logger
}

// HandlerOption は Handler のオプション設定
type HandlerOption func(*handlerOptions)

// WithTelegramSender はTelegram応答クライアントを設定する
func WithTelegramSender(sender TelegramSender) HandlerOption {
	return func(o *handlerOptions) {
		o.telegram = sender
	}
}

// WithDebugErrors はエラーレスポンスへの詳細出力を有効にする
func WithDebugErrors(enabled bool) HandlerOption {
	return func(o *handlerOptions) {
		o.debugErrors = enabled
	}
}

// WithHandlerLogger はロガーを設定する
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(o *handlerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewHandler は新しい Handler を作成する
func NewHandler(chatService ChatService, ingestService IngestService, extractor TextExtractor, opts ...HandlerOption) *Handler {
	options := handlerOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Handler{
		chatService:   chatService,
		ingestService: ingestService,
		extractor:     extractor,
		telegram:      options.telegram,
		debugErrors:   options.debugErrors,
		logger:        options.logger,
	}
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (h *Handler) respondError(c *gin.Context, status int, message string, err error) {
	resp := errorResponse{Error: message}
	if h.debugErrors && err != nil {
		resp.Detail = err.Error()
	}
	c.JSON(status, resp)
}

// HealthCheck は死活監視エンドポイント
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}

// Chat は POST /api/chat のハンドラ
func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = chat.DefaultSessionID
	}

	reply, err := h.chatService.Turn(c.Request.Context(), sessionID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			h.respondError(c, http.StatusBadRequest, "message must not be empty", err)
		case errors.Is(err, chat.ErrCompletionFailed):
			h.logger.ErrorContext(c.Request.Context(), "Completion呼び出しに失敗しました",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()))
			h.respondError(c, http.StatusBadGateway, completionApology, err)
		case errors.Is(err, chat.ErrSessionStoreUnavailable):
			h.logger.ErrorContext(c.Request.Context(), "セッションストアが利用できません",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()))
			h.respondError(c, http.StatusServiceUnavailable, "session store unavailable", err)
		default:
			h.respondError(c, http.StatusInternalServerError, "internal error", err)
		}
		return
	}

	c.JSON(http.StatusOK, chatResponse{SessionID: sessionID, Reply: reply})
}

// Upload は POST /api/upload のハンドラ。
// multipart/form-data の file フィールドを受け取り、テキスト抽出ののち
// チャンク分割・Embedding生成・保存を行う。一部チャンクの失敗は
// レスポンスの failures で報告され、成功チャンクは保存されたままになる。
func (h *Handler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "file field is required", err)
		return
	}
	if fileHeader.Size > maxUploadSize {
		h.respondError(c, http.StatusBadRequest,
			fmt.Sprintf("file exceeds upload limit of %d bytes", maxUploadSize), nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "failed to open uploaded file", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "failed to read uploaded file", err)
		return
	}

	extension := strings.ToLower(filepath.Ext(fileHeader.Filename))
	text, err := h.extractor.Extract(extension, data)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedFormat) {
			h.respondError(c, http.StatusBadRequest, "unsupported document format", err)
			return
		}
		h.respondError(c, http.StatusUnprocessableEntity, "failed to extract text", err)
		return
	}

	result, err := h.ingestService.Ingest(c.Request.Context(), fileHeader.Filename, extension, text)
	if err != nil {
		if errors.Is(err, ingestion.ErrEmptyDocument) {
			h.respondError(c, http.StatusBadRequest, "document contains no text", err)
			return
		}
		h.respondError(c, http.StatusInternalServerError, "failed to ingest document", err)
		return
	}

	status := http.StatusOK
	if len(result.Failures) > 0 {
		// 一部のみ保存された場合は207で部分成功を表す
		status = http.StatusMultiStatus
	}
	c.JSON(status, result)
}

// telegramUpdate はTelegram Webhookの受信ペイロード（必要なフィールドのみ）
type telegramUpdate struct {
	Message struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// TelegramWebhook は POST /api/telegram のハンドラ。
//
// Telegram側の再送を防ぐため、処理結果にかかわらず常に200を返す。
// ボットコマンド（"/"で始まるメッセージ）と空メッセージは無視する。
func (h *Handler) TelegramWebhook(c *gin.Context) {
	var update telegramUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.Status(http.StatusOK)
		return
	}

	text := strings.TrimSpace(update.Message.Text)
	chatID := update.Message.Chat.ID
	if text == "" || chatID == 0 || strings.HasPrefix(text, "/") {
		c.Status(http.StatusOK)
		return
	}

	sessionID := fmt.Sprintf("tg-%d", chatID)
	reply, err := h.chatService.Turn(c.Request.Context(), sessionID, text)
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "Telegramターンの処理に失敗しました",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		// 失敗の種類を問わずユーザーには必ず案内を送る
		if errors.Is(err, chat.ErrCompletionFailed) {
			reply = completionApology
		} else {
			reply = telegramUnavailable
		}
	}

	if h.telegram != nil {
		if err := h.telegram.SendMessage(c.Request.Context(), chatID, reply); err != nil {
			h.logger.ErrorContext(c.Request.Context(), "Telegramへの送信に失敗しました",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()))
		}
	}
	c.Status(http.StatusOK)
}

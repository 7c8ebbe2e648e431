package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultSimilarityThreshold はデフォルトのコサイン類似度の下限
	DefaultSimilarityThreshold = 0.78
	// DefaultTopK はデフォルトの検索チャンク数上限
	DefaultTopK = 4
	// DefaultContextCharLimit は取得コンテキスト全体のデフォルト文字数上限
	DefaultContextCharLimit = 2000
	// chunkSeparator は連結したチャンクの区切り
	chunkSeparator = "\n---\n"
)

// Retriever はユーザーメッセージから関連コンテキストを組み立てる
type Retriever struct {
	repo      Repository
	embedder  Embedder
	threshold float64
	topK      int
	charLimit int
	logger    *slog.Logger
}

type retrieverOptions struct {
	threshold float64
	topK      int
	charLimit int
	logger    *slog.Logger
}

// RetrieverOption は Retriever のオプション設定
type RetrieverOption func(*retrieverOptions)

// WithSimilarityThreshold は類似度の下限を上書きする
func WithSimilarityThreshold(threshold float64) RetrieverOption {
	return func(o *retrieverOptions) {
		if threshold > 0 {
			o.threshold = threshold
		}
	}
}

// WithTopK は検索チャンク数の上限を上書きする
func WithTopK(topK int) RetrieverOption {
	return func(o *retrieverOptions) {
		if topK > 0 {
			o.topK = topK
		}
	}
}

// WithContextCharLimit はコンテキストの文字数上限を上書きする
func WithContextCharLimit(limit int) RetrieverOption {
	return func(o *retrieverOptions) {
		if limit > 0 {
			o.charLimit = limit
		}
	}
}

// WithRetrieverLogger は Retriever にロガーを設定する
func WithRetrieverLogger(logger *slog.Logger) RetrieverOption {
	return func(o *retrieverOptions) {
		o.logger = logger
	}
}

// NewRetriever は新しいRetrieverを作成する
func NewRetriever(repo Repository, embedder Embedder, opts ...RetrieverOption) *Retriever {
	options := retrieverOptions{
		threshold: DefaultSimilarityThreshold,
		topK:      DefaultTopK,
		charLimit: DefaultContextCharLimit,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &Retriever{
		repo:      repo,
		embedder:  embedder,
		threshold: options.threshold,
		topK:      options.topK,
		charLimit: options.charLimit,
		logger:    options.logger,
	}
}

// Retrieve はユーザーメッセージに関連するチャンク本文を連結して返す。
// 検索の失敗は致命的ではない: Embedding生成や検索がエラーになった場合は
// 空文字列を返し、呼び出し側はコンテキストなしの回答へ劣化する。
func (r *Retriever) Retrieve(ctx context.Context, message string) string {
	if strings.TrimSpace(message) == "" {
		return ""
	}

	queryVector, err := r.embedder.Embed(ctx, message)
	if err != nil {
		r.logger.Warn("クエリのEmbedding生成に失敗、コンテキストなしで続行", "error", err)
		return ""
	}

	results, err := r.repo.Search(ctx, queryVector, r.threshold, r.topK)
	if err != nil {
		r.logger.Warn("ベクトル検索に失敗、コンテキストなしで続行", "error", err)
		return ""
	}

	if len(results) == 0 {
		return ""
	}

	parts := make([]string, 0, len(results))
	for _, result := range results {
		parts = append(parts, result.Content)
	}

	context := strings.Join(parts, chunkSeparator)
	return truncateRunes(context, r.charLimit)
}

// truncateRunes は文字列をルーン単位で上限まで切り詰める
func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

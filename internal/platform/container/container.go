package container

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tildagpt/sofia/internal/core/chat"
	"github.com/tildagpt/sofia/internal/core/ingestion"
	"github.com/tildagpt/sofia/internal/core/retrieval"
	"github.com/tildagpt/sofia/internal/infra/extract"
	"github.com/tildagpt/sofia/internal/infra/openai"
	"github.com/tildagpt/sofia/internal/infra/postgres"
	redisinfra "github.com/tildagpt/sofia/internal/infra/redis"
	"github.com/tildagpt/sofia/internal/infra/telegram"
	"github.com/tildagpt/sofia/pkg/config"
	"github.com/tildagpt/sofia/pkg/db"
)

// ServiceContainer はアプリケーションの依存関係を保持する
type ServiceContainer struct {
	ChatService   *chat.ChatService
	IngestService *ingestion.IngestService
	Retriever     *retrieval.Retriever
	Extractor     *extract.Extractor
	Telegram      *telegram.Client // TELEGRAM_TOKEN未設定の場合はnil

	logger   *slog.Logger
	database *db.DB
}

type containerOptions struct {
	logger       *slog.Logger
	embedder     ingestion.Embedder
	completer    chat.CompletionClient
	sessionStore chat.SessionStore
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerEmbedder はカスタム Embedder を注入する
func WithContainerEmbedder(embedder ingestion.Embedder) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithContainerCompletionClient は Completion クライアントを差し替える
func WithContainerCompletionClient(client chat.CompletionClient) ContainerOption {
	return func(opts *containerOptions) {
		opts.completer = client
	}
}

// WithContainerSessionStore はセッションストアを差し替える
func WithContainerSessionStore(store chat.SessionStore) ContainerOption {
	return func(opts *containerOptions) {
		opts.sessionStore = store
	}
}

// NewContainer は設定からコンテナを生成する。
// スキーマの適用もここで行うため、初回起動時にテーブルが作成される。
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	database, err := db.New(ctx, db.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
	}

	if err := postgres.EnsureSchema(ctx, database); err != nil {
		database.Close()
		return nil, fmt.Errorf("スキーマ適用に失敗しました: %w", err)
	}

	return NewContainerWithDB(cfg, database, opts...)
}

// NewContainerWithDB は既存の DB を受け取りコンテナを生成する
func NewContainerWithDB(cfg *config.Config, database *db.DB, opts ...ContainerOption) (*ServiceContainer, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	// Embedder (OpenAI)
	embedder := options.embedder
	if embedder == nil {
		openaiEmbedder, err := openai.NewEmbedder(
			cfg.OpenAI.APIKey,
			openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
			openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
		)
		if err != nil {
			return nil, fmt.Errorf("Embedder初期化に失敗しました: %w", err)
		}
		embedder = openaiEmbedder
	}

	// CompletionClient (OpenAI)
	completer := options.completer
	if completer == nil {
		client, err := openai.NewCompletionClient(
			cfg.OpenAI.APIKey,
			openai.WithCompletionModel(cfg.OpenAI.ChatModel),
		)
		if err != nil {
			return nil, fmt.Errorf("Completionクライアント初期化に失敗しました: %w", err)
		}
		completer = client
	}

	// Repository (PostgreSQL)
	knowledgeRepo := postgres.NewKnowledgeRepository(database)

	// SessionStore (PostgreSQL + 任意でRedisキャッシュ)
	sessionStore := options.sessionStore
	if sessionStore == nil {
		sessionStore = postgres.NewSessionRepository(database)
		if cfg.Redis.Addr != "" {
			redisClient := goredis.NewClient(&goredis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			sessionStore = redisinfra.NewCachedSessionStore(
				sessionStore,
				redisClient,
				redisinfra.WithCacheLogger(options.logger),
			)
		}
	}

	// Chunker
	chunker, err := ingestion.NewChunker(
		ingestion.WithChunkSize(cfg.Chunking.ChunkSize),
		ingestion.WithOverlap(cfg.Chunking.Overlap),
		ingestion.WithMinChunkChars(cfg.Chunking.MinChunkChars),
	)
	if err != nil {
		return nil, fmt.Errorf("Chunker初期化に失敗しました: %w", err)
	}

	// IngestService
	ingestService := ingestion.NewIngestService(
		knowledgeRepo,
		embedder,
		chunker,
		ingestion.WithIngestLogger(options.logger),
	)

	// Retriever
	retriever := retrieval.NewRetriever(
		knowledgeRepo,
		embedder,
		retrieval.WithSimilarityThreshold(cfg.Retrieval.SimilarityThreshold),
		retrieval.WithTopK(cfg.Retrieval.TopK),
		retrieval.WithContextCharLimit(cfg.Retrieval.ContextCharLimit),
		retrieval.WithRetrieverLogger(options.logger),
	)

	// ChatService
	chatService := chat.NewChatService(
		sessionStore,
		retriever,
		completer,
		chat.NewPromptAssembler(cfg.Chat.SystemPrompt),
		chat.NewSanitizer(),
		chat.WithPromptBudget(cfg.Chat.PromptBudget),
		chat.WithCompletionParams(chat.CompletionParams{
			Temperature:     cfg.Chat.Temperature,
			MaxOutputTokens: cfg.Chat.MaxOutputTokens,
		}),
		chat.WithChatLogger(options.logger),
	)

	// Telegramクライアント（トークン未設定なら無効）
	var telegramClient *telegram.Client
	if cfg.Telegram.BotToken != "" {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken)
		if err != nil {
			return nil, fmt.Errorf("Telegramクライアント初期化に失敗しました: %w", err)
		}
	}

	return &ServiceContainer{
		ChatService:   chatService,
		IngestService: ingestService,
		Retriever:     retriever,
		Extractor:     extract.NewExtractor(),
		Telegram:      telegramClient,
		logger:        options.logger,
		database:      database,
	}, nil
}

// Close はコンテナが保持するリソースを解放する
func (c *ServiceContainer) Close() {
	if c.database != nil {
		c.database.Close()
	}
}

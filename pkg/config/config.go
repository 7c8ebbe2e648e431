package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// OpenAI設定（Embeddings + Chat Completion用）
	OpenAI OpenAIConfig

	// チャンク分割設定
	Chunking ChunkingConfig

	// ベクトル検索設定
	Retrieval RetrievalConfig

	// 会話パイプライン設定
	Chat ChatConfig

	// HTTPサーバー設定
	Server ServerConfig

	// Telegram Webhook設定
	Telegram TelegramConfig

	// Redis設定（セッションキャッシュ用。Addrが空の場合は無効）
	Redis RedisConfig

	// ログ出力設定
	Log LogConfig

	// エラーレスポンスに診断情報を含めるかどうか
	DebugErrors bool
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
	ChatModel          string
}

// ChunkingConfig はドキュメントのチャンク分割設定
type ChunkingConfig struct {
	ChunkSize     int // チャンクあたりの最大トークン数
	Overlap       int // 隣接チャンク間のオーバーラップトークン数
	MinChunkChars int // この文字数未満のチャンクは破棄する
}

// RetrievalConfig はベクトル検索設定
type RetrievalConfig struct {
	SimilarityThreshold float64 // コサイン類似度の下限
	TopK                int     // 検索するチャンク数の上限
	ContextCharLimit    int     // 取得コンテキスト全体の文字数上限
}

// ChatConfig は会話パイプライン設定
type ChatConfig struct {
	SystemPrompt    string  // ペルソナを定義するシステムプロンプト（空ならデフォルト）
	PromptBudget    int     // プロンプト全体のトークン予算
	Temperature     float64 // Completionのサンプリング温度
	MaxOutputTokens int     // Completionの最大出力トークン数
}

// ServerConfig はHTTPサーバー設定
type ServerConfig struct {
	Addr         string
	AllowOrigins []string
}

// TelegramConfig はTelegram Bot設定
type TelegramConfig struct {
	BotToken string
}

// RedisConfig はRedisキャッシュ設定
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LogConfig はログ出力設定
type LogConfig struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json" or "text"
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "sofia"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "sofia"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			ChatModel:          getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		},
		Chunking: ChunkingConfig{
			ChunkSize:     getEnvAsInt("CHUNK_SIZE", 500),
			Overlap:       getEnvAsInt("CHUNK_OVERLAP", 50),
			MinChunkChars: getEnvAsInt("MIN_CHUNK_CHARS", 10),
		},
		Retrieval: RetrievalConfig{
			SimilarityThreshold: getEnvAsFloat("SIMILARITY_THRESHOLD", 0.78),
			TopK:                getEnvAsInt("RETRIEVAL_TOP_K", 4),
			ContextCharLimit:    getEnvAsInt("CONTEXT_CHAR_LIMIT", 2000),
		},
		Chat: ChatConfig{
			SystemPrompt:    getEnv("SYSTEM_PROMPT", ""),
			PromptBudget:    getEnvAsInt("PROMPT_TOKEN_BUDGET", 3000),
			Temperature:     getEnvAsFloat("CHAT_TEMPERATURE", 0.7),
			MaxOutputTokens: getEnvAsInt("CHAT_MAX_OUTPUT_TOKENS", 700),
		},
		Server: ServerConfig{
			Addr:         getEnv("SERVER_ADDR", ":8080"),
			AllowOrigins: getEnvAsSlice("CORS_ALLOW_ORIGINS", []string{"*"}),
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_TOKEN", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		DebugErrors: getEnvAsBool("DEBUG_ERRORS", false),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate は設定値の整合性を検証します
func (c *Config) validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.Chunking.Overlap)
	}
	if c.Retrieval.SimilarityThreshold < 0 || c.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be in [0, 1], got %g", c.Retrieval.SimilarityThreshold)
	}
	if c.Chat.PromptBudget <= 0 {
		return fmt.Errorf("PROMPT_TOKEN_BUDGET must be positive, got %d", c.Chat.PromptBudget)
	}
	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice はカンマ区切りの環境変数を文字列スライスとして取得します
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}

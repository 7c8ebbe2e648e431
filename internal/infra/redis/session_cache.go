package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/mo"

	"github.com/tildagpt/sofia/internal/core/chat"
)

const (
	// DefaultCacheWindow はキャッシュに保持する直近ターン数
	DefaultCacheWindow = 50
	// DefaultCacheTTL はセッションキーの有効期限
	DefaultCacheTTL = 24 * time.Hour
)

// CachedSessionStore は SessionStore のRedisライトスルーキャッシュ。
//
// 耐久ストアが唯一の真実であり、キャッシュは読み取りの最適化にすぎない。
// キャッシュの失敗はログに残すだけでターンを失敗させず、耐久ストアへ
// フォールスルーする。
type CachedSessionStore struct {
	store  chat.SessionStore
	client *redis.Client
	window int
	ttl    time.Duration
	logger *slog.Logger
}

type cacheOptions struct {
	window int
	ttl    time.Duration
	logger *slog.Logger
}

// CacheOption は CachedSessionStore のオプション設定
type CacheOption func(*cacheOptions)

// WithCacheWindow はキャッシュに保持するターン数を上書きする
func WithCacheWindow(window int) CacheOption {
	return func(o *cacheOptions) {
		if window > 0 {
			o.window = window
		}
	}
}

// WithCacheTTL はセッションキーの有効期限を上書きする
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(o *cacheOptions) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithCacheLogger はロガーを設定する
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(o *cacheOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewCachedSessionStore は耐久ストアをラップしたキャッシュ付きストアを作成する
func NewCachedSessionStore(store chat.SessionStore, client *redis.Client, opts ...CacheOption) *CachedSessionStore {
	options := cacheOptions{
		window: DefaultCacheWindow,
		ttl:    DefaultCacheTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &CachedSessionStore{
		store:  store,
		client: client,
		window: options.window,
		ttl:    options.ttl,
		logger: options.logger,
	}
}

// cachedTurn はRedisリストに格納する1ターンのJSON表現
type cachedTurn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s:turns", sessionID)
}

// Append は耐久ストアに追記してからキャッシュに反映する。
// 耐久ストアへの書き込みが失敗した場合はキャッシュに触れずエラーを返す。
func (s *CachedSessionStore) Append(ctx context.Context, sessionID string, role chat.Role, content string) error {
	if err := s.store.Append(ctx, sessionID, role, content); err != nil {
		return err
	}

	payload, err := json.Marshal(cachedTurn{
		Role:      string(role),
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "セッションキャッシュのエンコードに失敗しました",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		return nil
	}

	key := sessionKey(sessionID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, int64(-s.window), -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.WarnContext(ctx, "セッションキャッシュの更新に失敗しました",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
	}

	return nil
}

// Load は可能ならキャッシュから履歴を返し、不可なら耐久ストアへフォールスルーする。
//
// limit 未指定、または limit がキャッシュ保持数を超える場合はキャッシュを使わない。
// キャッシュのターン数が limit に満たない場合も、欠損の可能性があるため
// 耐久ストアから読み直す。
func (s *CachedSessionStore) Load(ctx context.Context, sessionID string, limit mo.Option[int]) ([]*chat.Turn, error) {
	n, ok := limit.Get()
	if !ok || n > s.window {
		return s.store.Load(ctx, sessionID, limit)
	}

	key := sessionKey(sessionID)
	length, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		s.logger.WarnContext(ctx, "セッションキャッシュの読み取りに失敗しました",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		return s.store.Load(ctx, sessionID, limit)
	}
	if length < int64(n) {
		return s.store.Load(ctx, sessionID, limit)
	}

	values, err := s.client.LRange(ctx, key, int64(-n), -1).Result()
	if err != nil {
		s.logger.WarnContext(ctx, "セッションキャッシュの読み取りに失敗しました",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		return s.store.Load(ctx, sessionID, limit)
	}

	turns := make([]*chat.Turn, 0, len(values))
	for _, v := range values {
		var ct cachedTurn
		if err := json.Unmarshal([]byte(v), &ct); err != nil {
			// 壊れたエントリがあればキャッシュを信用しない
			return s.store.Load(ctx, sessionID, limit)
		}
		turns = append(turns, &chat.Turn{
			SessionID: sessionID,
			Role:      chat.Role(ct.Role),
			Content:   ct.Content,
			CreatedAt: ct.CreatedAt,
		})
	}
	return turns, nil
}

// インターフェース実装の確認
var _ chat.SessionStore = (*CachedSessionStore)(nil)

package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Addr         string
	AllowOrigins []string
	// DebugErrors が有効な場合、エラーレスポンスに内部エラーの詳細を含める
	DebugErrors bool
}

// Server はHTTP APIサーバー
type Server struct {
	engine *gin.Engine
	addr   string
	logger *slog.Logger
}

// NewServer はルーティングを構成したサーバーを作成する
func NewServer(cfg ServerConfig, handler *Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))

	corsConfig := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}
	if len(cfg.AllowOrigins) == 1 && cfg.AllowOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowOrigins
	}
	engine.Use(cors.New(corsConfig))

	engine.GET("/healthcheck", handler.HealthCheck)

	api := engine.Group("/api")
	{
		api.POST("/chat", handler.Chat)
		api.POST("/upload", handler.Upload)
		api.POST("/telegram", handler.TelegramWebhook)
	}

	return &Server{
		engine: engine,
		addr:   cfg.Addr,
		logger: logger,
	}
}

// Run はサーバーを起動し、ctx のキャンセルでグレースフルに停止する
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTPサーバーを起動します", slog.String("addr", s.addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("HTTPサーバーを停止します")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Engine はテスト用にルーターを公開する
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.InfoContext(c.Request.Context(), "リクエストを処理しました",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)))
	}
}

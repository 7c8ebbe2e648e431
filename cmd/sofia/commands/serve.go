package commands

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/tildagpt/sofia/internal/interface/httpapi"
)

// ServeAction はHTTP APIサーバーを起動するコマンドのアクション
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	handlerOpts := []httpapi.HandlerOption{
		httpapi.WithDebugErrors(appCtx.Config.DebugErrors),
		httpapi.WithHandlerLogger(appCtx.Logger),
	}
	if appCtx.Container.Telegram != nil {
		handlerOpts = append(handlerOpts, httpapi.WithTelegramSender(appCtx.Container.Telegram))
	} else {
		slog.Info("TELEGRAM_TOKEN未設定のためTelegram応答送信は無効です")
	}

	handler := httpapi.NewHandler(
		appCtx.Container.ChatService,
		appCtx.Container.IngestService,
		appCtx.Container.Extractor,
		handlerOpts...,
	)

	server := httpapi.NewServer(httpapi.ServerConfig{
		Addr:         appCtx.Config.Server.Addr,
		AllowOrigins: appCtx.Config.Server.AllowOrigins,
		DebugErrors:  appCtx.Config.DebugErrors,
	}, handler, appCtx.Logger)

	return server.Run(ctx)
}

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/tildagpt/sofia/cmd/sofia/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	envFlag := &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}

	app := &cli.Command{
		Name:  "sofia",
		Usage: "44-ФЗ ナレッジベース検索つき会話アシスタント",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "HTTP APIサーバーを起動",
				Flags:  []cli.Flag{envFlag},
				Action: commands.ServeAction,
			},
			{
				Name:  "ingest",
				Usage: "ドキュメントをナレッジベースへ取り込む",
				Flags: []cli.Flag{
					envFlag,
					&cli.StringFlag{
						Name:     "file",
						Usage:    "取り込むファイルのパス (.txt/.pdf/.docx)",
						Required: true,
					},
				},
				Action: commands.IngestAction,
			},
			{
				Name:  "chat",
				Usage: "チャットを実行（--message で1ターンのみ、省略時は対話モード）",
				Flags: []cli.Flag{
					envFlag,
					&cli.StringFlag{
						Name:  "session",
						Usage: "セッション識別子",
						Value: "cli",
					},
					&cli.StringFlag{
						Name:  "message",
						Usage: "1ターンだけ処理するメッセージ",
					},
				},
				Action: commands.ChatAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatalf("エラー: %v", err)
	}
}

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"
)

// IngestAction はローカルファイルをナレッジベースへ取り込むコマンドのアクション
func IngestAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	filePath := cmd.String("file")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("ファイルの読み込みに失敗: %w", err)
	}

	extension := strings.ToLower(filepath.Ext(filePath))
	text, err := appCtx.Container.Extractor.Extract(extension, data)
	if err != nil {
		return fmt.Errorf("テキスト抽出に失敗: %w", err)
	}

	result, err := appCtx.Container.IngestService.Ingest(ctx, filepath.Base(filePath), extension, text)
	if err != nil {
		return fmt.Errorf("取り込みに失敗: %w", err)
	}

	slog.Info("取り込みが完了しました",
		slog.String("document_id", result.DocumentID.String()),
		slog.String("filename", result.Filename),
		slog.Int("stored_chunks", result.StoredChunks),
		slog.Int("failed_chunks", len(result.Failures)))

	for _, failure := range result.Failures {
		slog.Warn("チャンクの保存に失敗しました",
			slog.Int("sequence", failure.Sequence),
			slog.String("reason", failure.Reason))
	}

	return nil
}

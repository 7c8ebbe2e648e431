package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/tildagpt/sofia/internal/core/chat"
)

// ChatAction はチャットを実行するコマンドのアクション。
// --message 指定時は1ターンだけ処理して終了し、未指定時は標準入力から
// 1行ずつメッセージを読む対話モードになる。
func ChatAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	sessionID := cmd.String("session")
	oneShot := strings.TrimSpace(cmd.String("message"))

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if oneShot != "" {
		reply, err := appCtx.Container.ChatService.Turn(ctx, sessionID, oneShot)
		if err != nil {
			return fmt.Errorf("ターン処理に失敗: %w", err)
		}
		fmt.Println(reply)
		return nil
	}

	fmt.Println("チャットを開始します（空行または Ctrl+D で終了）")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			break
		}

		reply, err := appCtx.Container.ChatService.Turn(ctx, sessionID, message)
		if err != nil {
			if errors.Is(err, chat.ErrCompletionFailed) {
				fmt.Println("応答の生成に失敗しました。もう一度お試しください。")
				continue
			}
			return fmt.Errorf("ターン処理に失敗: %w", err)
		}
		fmt.Println(reply)
	}

	return scanner.Err()
}

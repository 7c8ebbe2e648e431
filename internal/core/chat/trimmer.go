package chat

import "strings"

// tokenEstimateRatio は単語数からトークン数を見積もる係数。
// 正確なトークナイズではなく近似で十分（履歴トリミング用途）。
const tokenEstimateRatio = 1.3

// EstimateTokens はテキストのトークン数を単語数×1.3で近似する
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(float64(words) * tokenEstimateRatio)
}

// TrimHistory は履歴（古い順）をトークン予算内に収まるプレフィックスへ切り詰める。
// 古い順に積算し、次のターンを加えると予算を超える時点で打ち切る。
// 「新しい順に残す」トリミングではないことに注意: 予算が早く尽きた場合、
// 残るのは古いターンであり、新しいターンが落ちる。これは意図した挙動であり、
// 新しい順に残す実装へ置き換えてはならない。
func TrimHistory(turns []*Turn, budget int) []*Turn {
	if budget <= 0 {
		return nil
	}

	kept := make([]*Turn, 0, len(turns))
	total := 0
	for _, turn := range turns {
		cost := EstimateTokens(turn.Content)
		if total+cost > budget {
			break
		}
		total += cost
		kept = append(kept, turn)
	}
	return kept
}

package chat

import "strings"

// DefaultSystemPrompt はデフォルトのペルソナ定義
// （госзакупки 44-ФЗ のアシスタント「София」）。
// 合成的な正体を明かさないことはプロダクト要件であり、プロンプトと
// Sanitizer の両方で守られる。
const DefaultSystemPrompt = "Ты — София, эксперт по госзакупкам и 44-ФЗ. " +
	"Отвечай кратко, профессионально и по делу. " +
	"Никогда не упоминай, что ты искусственный интеллект, языковая модель или база данных. " +
	"Если вопрос выходит за рамки твоей компетенции, вежливо скажи об этом."

// contextHeader は取得コンテキストをシステムプロンプトへ差し込む際の見出し
const contextHeader = "Информация из базы знаний:"

// PromptAssembler はシステムプロンプト・コンテキスト・履歴・新規発話を
// 決められた順序で1つのメッセージ列に組み立てる
type PromptAssembler struct {
	systemPrompt string
}

// NewPromptAssembler は新しいPromptAssemblerを作成する。
// systemPrompt が空の場合はデフォルトのペルソナを使用する。
func NewPromptAssembler(systemPrompt string) *PromptAssembler {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &PromptAssembler{systemPrompt: systemPrompt}
}

// SystemPrompt はコンテキスト差し込み前のシステムプロンプトを返す
func (a *PromptAssembler) SystemPrompt() string {
	return a.systemPrompt
}

// Assemble はメッセージ列を [system] + 履歴 + [user] の順で組み立てる。
// コンテキストが空の場合、差し込みスロットは見出しごと消える
// （プレースホルダを残さない）。予算の制御は上流（TrimHistory / Retriever）の
// 責務であり、ここでは再切り詰めを行わない。
func (a *PromptAssembler) Assemble(contextText string, history []*Turn, userMessage string) []PromptMessage {
	system := a.systemPrompt
	if strings.TrimSpace(contextText) != "" {
		system = system + "\n\n" + contextHeader + "\n" + contextText
	}

	messages := make([]PromptMessage, 0, len(history)+2)
	messages = append(messages, PromptMessage{Role: RoleSystem, Content: system})
	for _, turn := range history {
		messages = append(messages, PromptMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, PromptMessage{Role: RoleUser, Content: userMessage})

	return messages
}

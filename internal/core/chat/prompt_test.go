package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPromptAssemblerDefaultsSystemPrompt(t *testing.T) {
	assembler := NewPromptAssembler("")
	assert.Equal(t, DefaultSystemPrompt, assembler.SystemPrompt())

	custom := NewPromptAssembler("Ты — помощник по закупкам.")
	assert.Equal(t, "Ты — помощник по закупкам.", custom.SystemPrompt())
}

func TestAssembleOrdering(t *testing.T) {
	assembler := NewPromptAssembler("system prompt")
	history := []*Turn{
		{Role: RoleUser, Content: "первый вопрос"},
		{Role: RoleAssistant, Content: "первый ответ"},
	}

	messages := assembler.Assemble("контекст из базы", history, "второй вопрос")

	require.Len(t, messages, 4)
	assert.Equal(t, RoleSystem, messages[0].Role)
	assert.Equal(t, RoleUser, messages[1].Role)
	assert.Equal(t, "первый вопрос", messages[1].Content)
	assert.Equal(t, RoleAssistant, messages[2].Role)
	assert.Equal(t, RoleUser, messages[3].Role)
	assert.Equal(t, "второй вопрос", messages[3].Content)
}

func TestAssembleIncludesContextInSystemMessage(t *testing.T) {
	assembler := NewPromptAssembler("system prompt")

	messages := assembler.Assemble("контекст из базы", nil, "вопрос")

	require.NotEmpty(t, messages)
	system := messages[0].Content
	assert.True(t, strings.HasPrefix(system, "system prompt"))
	assert.Contains(t, system, "контекст из базы")
}

func TestAssembleOmitsContextBlockWhenEmpty(t *testing.T) {
	assembler := NewPromptAssembler("system prompt")

	messages := assembler.Assemble("", nil, "вопрос")

	require.Len(t, messages, 2)
	// 空コンテキストの場合、システムメッセージはプロンプトそのものになる
	assert.Equal(t, "system prompt", messages[0].Content)
	assert.NotContains(t, messages[0].Content, contextHeader)
}

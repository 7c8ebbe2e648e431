package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type appendedTurn struct {
	sessionID string
	role      Role
	content   string
}

type stubSessionStore struct {
	appended        []appendedTurn
	appendErr       error
	appendErrOnRole Role // 指定ロールのAppendだけ失敗させる
	loadErr         error
	lastLoadLimit   mo.Option[int]
}

func (s *stubSessionStore) Append(ctx context.Context, sessionID string, role Role, content string) error {
	if s.appendErr != nil && (s.appendErrOnRole == "" || s.appendErrOnRole == role) {
		return s.appendErr
	}
	s.appended = append(s.appended, appendedTurn{sessionID, role, content})
	return nil
}

func (s *stubSessionStore) Load(ctx context.Context, sessionID string, limit mo.Option[int]) ([]*Turn, error) {
	s.lastLoadLimit = limit
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	// 耐久ストアと同じく、直前に追記したターンも含めて返す
	turns := make([]*Turn, 0, len(s.appended))
	for _, a := range s.appended {
		if a.sessionID == sessionID {
			turns = append(turns, &Turn{SessionID: a.sessionID, Role: a.role, Content: a.content})
		}
	}
	return turns, nil
}

type stubRetriever struct {
	context string
}

func (r *stubRetriever) Retrieve(ctx context.Context, message string) string {
	return r.context
}

type stubCompleter struct {
	reply        string
	err          error
	calls        int
	lastMessages []PromptMessage
	lastParams   CompletionParams
}

func (c *stubCompleter) Complete(ctx context.Context, messages []PromptMessage, params CompletionParams) (string, error) {
	c.calls++
	c.lastMessages = messages
	c.lastParams = params
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func newTestChatService(store SessionStore, retriever ContextRetriever, completer CompletionClient, opts ...ChatServiceOption) *ChatService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]ChatServiceOption{WithChatLogger(logger)}, opts...)
	return NewChatService(store, retriever, completer, NewPromptAssembler("системный промпт"), NewSanitizer(), opts...)
}

func TestTurnEmptyMessageRejected(t *testing.T) {
	store := &stubSessionStore{}
	svc := newTestChatService(store, &stubRetriever{}, &stubCompleter{reply: "ответ"})

	_, err := svc.Turn(context.Background(), "s1", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, store.appended)
}

func TestTurnPersistsUserBeforeAssistant(t *testing.T) {
	store := &stubSessionStore{}
	completer := &stubCompleter{reply: "Ответ на вопрос."}
	svc := newTestChatService(store, &stubRetriever{}, completer)

	reply, err := svc.Turn(context.Background(), "s1", "вопрос")
	require.NoError(t, err)
	assert.Equal(t, "Ответ на вопрос.", reply)

	require.Len(t, store.appended, 2)
	assert.Equal(t, RoleUser, store.appended[0].role)
	assert.Equal(t, "вопрос", store.appended[0].content)
	assert.Equal(t, RoleAssistant, store.appended[1].role)
	assert.Equal(t, "Ответ на вопрос.", store.appended[1].content)
}

func TestTurnDefaultSessionID(t *testing.T) {
	store := &stubSessionStore{}
	svc := newTestChatService(store, &stubRetriever{}, &stubCompleter{reply: "ответ"})

	_, err := svc.Turn(context.Background(), "", "вопрос")
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionID, store.appended[0].sessionID)
}

func TestTurnUserAppendFailureIsFatal(t *testing.T) {
	store := &stubSessionStore{appendErr: errors.New("db down"), appendErrOnRole: RoleUser}
	completer := &stubCompleter{reply: "ответ"}
	svc := newTestChatService(store, &stubRetriever{}, completer)

	_, err := svc.Turn(context.Background(), "s1", "вопрос")
	assert.ErrorIs(t, err, ErrSessionStoreUnavailable)
	assert.Equal(t, 0, completer.calls)
}

func TestTurnCompletionFailureIsFatalAndNotRetried(t *testing.T) {
	store := &stubSessionStore{}
	completer := &stubCompleter{err: errors.New("timeout")}
	svc := newTestChatService(store, &stubRetriever{}, completer)

	_, err := svc.Turn(context.Background(), "s1", "вопрос")
	assert.ErrorIs(t, err, ErrCompletionFailed)

	// 自動リトライしない
	assert.Equal(t, 1, completer.calls)

	// ユーザーターンだけが永続化され、アシスタントターンは記録されない
	require.Len(t, store.appended, 1)
	assert.Equal(t, RoleUser, store.appended[0].role)
}

func TestTurnAssistantAppendFailureStillReturnsReply(t *testing.T) {
	store := &stubSessionStore{appendErr: errors.New("db down"), appendErrOnRole: RoleAssistant}
	svc := newTestChatService(store, &stubRetriever{}, &stubCompleter{reply: "Ответ."})

	reply, err := svc.Turn(context.Background(), "s1", "вопрос")
	require.NoError(t, err)
	assert.Equal(t, "Ответ.", reply)
}

func TestTurnSanitizesReply(t *testing.T) {
	store := &stubSessionStore{}
	completer := &stubCompleter{reply: "As an AI language model, ответ такой."}
	svc := newTestChatService(store, &stubRetriever{}, completer)

	reply, err := svc.Turn(context.Background(), "s1", "вопрос")
	require.NoError(t, err)
	assert.Equal(t, "ответ такой.", reply)

	// 永続化されるのも浄化後のテキスト
	assert.Equal(t, "ответ такой.", store.appended[1].content)
}

func TestTurnIncludesRetrievedContextInSystemMessage(t *testing.T) {
	store := &stubSessionStore{}
	completer := &stubCompleter{reply: "ответ"}
	svc := newTestChatService(store, &stubRetriever{context: "фрагмент из базы знаний"}, completer)

	_, err := svc.Turn(context.Background(), "s1", "вопрос")
	require.NoError(t, err)

	require.NotEmpty(t, completer.lastMessages)
	assert.Equal(t, RoleSystem, completer.lastMessages[0].Role)
	assert.Contains(t, completer.lastMessages[0].Content, "фрагмент из базы знаний")
}

func TestTurnExcludesJustAppendedUserTurnFromHistory(t *testing.T) {
	store := &stubSessionStore{}
	completer := &stubCompleter{reply: "ответ"}
	svc := newTestChatService(store, &stubRetriever{}, completer)

	// 1ターン目
	_, err := svc.Turn(context.Background(), "s1", "первый вопрос")
	require.NoError(t, err)

	// 2ターン目: 履歴は [user, assistant] + 末尾に新規user
	completer.reply = "второй ответ"
	_, err = svc.Turn(context.Background(), "s1", "второй вопрос")
	require.NoError(t, err)

	// Assembleに渡るのは system + 履歴2件 + 新規user の4件。
	// 直前に追記したユーザーターンが重複して現れてはいけない
	require.Len(t, completer.lastMessages, 4)
	assert.Equal(t, "первый вопрос", completer.lastMessages[1].Content)
	assert.Equal(t, "второй вопрос", completer.lastMessages[3].Content)
}

func TestTurnLoadFailureContinuesWithoutHistory(t *testing.T) {
	store := &stubSessionStore{loadErr: errors.New("db down")}
	completer := &stubCompleter{reply: "ответ"}
	svc := newTestChatService(store, &stubRetriever{}, completer)

	reply, err := svc.Turn(context.Background(), "s1", "вопрос")
	require.NoError(t, err)
	assert.Equal(t, "ответ", reply)

	// system + 新規user のみ
	assert.Len(t, completer.lastMessages, 2)
}

func TestTurnPassesCompletionParams(t *testing.T) {
	store := &stubSessionStore{}
	completer := &stubCompleter{reply: "ответ"}
	svc := newTestChatService(store, &stubRetriever{}, completer,
		WithCompletionParams(CompletionParams{Temperature: 0.2, MaxOutputTokens: 128}))

	_, err := svc.Turn(context.Background(), "s1", "вопрос")
	require.NoError(t, err)

	assert.Equal(t, 0.2, completer.lastParams.Temperature)
	assert.Equal(t, 128, completer.lastParams.MaxOutputTokens)
}

func TestTurnUsesHistoryWindowOnLoad(t *testing.T) {
	store := &stubSessionStore{}
	completer := &stubCompleter{reply: "ответ"}
	svc := newTestChatService(store, &stubRetriever{}, completer, WithHistoryWindow(5))

	_, err := svc.Turn(context.Background(), "s1", "вопрос")
	require.NoError(t, err)

	limit, ok := store.lastLoadLimit.Get()
	require.True(t, ok)
	assert.Equal(t, 5, limit)
}

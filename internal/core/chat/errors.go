package chat

import "errors"

var (
	// ErrEmptyMessage はユーザーメッセージが空の場合のエラー（利用者が修正可能）
	ErrEmptyMessage = errors.New("message is empty")

	// ErrCompletionFailed はCompletion呼び出しが失敗した場合のエラー。
	// このターンにとって致命的であり、自動リトライはしない。
	ErrCompletionFailed = errors.New("completion failed")

	// ErrSessionStoreUnavailable はセッションストアへの書き込みが失敗した場合のエラー。
	// ユーザーターンの記録前にモデルを呼ばないため、処理はここで中断される。
	ErrSessionStoreUnavailable = errors.New("session store unavailable")
)

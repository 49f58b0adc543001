// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, chat, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodePeerNotFound       = "PEER_NOT_FOUND"
	ErrCodeInvalidPeer        = "INVALID_PEER"
	ErrCodeInvalidParticipant = "INVALID_PARTICIPANT"
	ErrCodeEmptyContent       = "EMPTY_CONTENT"
	ErrCodeMessageTooLong     = "MESSAGE_TOO_LONG"
	ErrCodeNicknameTaken      = "NICKNAME_TAKEN"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeCSRFFailed         = "CSRF_FAILED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// HasCode はerrがAPIErrorであり、指定コードを持つかどうかを返す。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewPeerNotFoundError は会話相手が見つからない場合のエラーを生成する。
func NewPeerNotFoundError(peerID string) *APIError {
	return &APIError{
		Code:     ErrCodePeerNotFound,
		Message:  fmt.Sprintf("指定されたユーザーが見つかりません: %s", peerID),
		Category: "chat",
		Action:   "連絡先一覧から会話相手を選び直してください。",
	}
}

// NewInvalidPeerError は連絡先に追加できないユーザーが指定された場合のエラーを生成する。
func NewInvalidPeerError(peerID string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPeer,
		Message:  fmt.Sprintf("連絡先に追加できないユーザーです: %s", peerID),
		Category: "chat",
		Action:   "ユーザー一覧から追加する相手を選んでください。",
	}
}

// NewInvalidParticipantError は送信者・受信者の組み合わせが不正な場合のエラーを生成する。
func NewInvalidParticipantError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidParticipant,
		Message:  fmt.Sprintf("メッセージの宛先が不正です: %s", reason),
		Category: "chat",
		Action:   "自分以外の登録済みユーザーを宛先に指定してください。",
	}
}

// NewEmptyContentError は本文が空のメッセージを送信しようとした場合のエラーを生成する。
func NewEmptyContentError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyContent,
		Message:  "メッセージ本文が空です。",
		Category: "validation",
		Action:   "メッセージを入力してから送信してください。",
	}
}

// NewMessageTooLongError は本文が上限文字数を超えた場合のエラーを生成する。
func NewMessageTooLongError(limit int) *APIError {
	return &APIError{
		Code:     ErrCodeMessageTooLong,
		Message:  fmt.Sprintf("メッセージが長すぎます（上限%d文字）。", limit),
		Category: "validation",
		Action:   "メッセージを分割して送信してください。",
	}
}

// NewNicknameTakenError はニックネームが既に使われている場合のエラーを生成する。
func NewNicknameTakenError(nickname string) *APIError {
	return &APIError{
		Code:     ErrCodeNicknameTaken,
		Message:  fmt.Sprintf("このニックネームは既に使われています: %s", nickname),
		Category: "validation",
		Action:   "別のニックネームを選んでください。",
	}
}

// NewInvalidCredentialsError はログイン情報が一致しない場合のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "ニックネームまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewValidationError は入力値の検証に失敗した場合のエラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力値が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidRequestError はリクエストボディを解析できない場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

func NewCSRFFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFFailed,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ残す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

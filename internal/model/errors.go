// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, feed, refresh, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeFeedNotFound       = "FEED_NOT_FOUND"
	ErrCodeDuplicateFeed      = "DUPLICATE_FEED"
	ErrCodeArticleNotFound    = "ARTICLE_NOT_FOUND"
	ErrCodeSessionNotFound    = "SESSION_NOT_FOUND"
	ErrCodeRefreshInProgress  = "REFRESH_IN_PROGRESS"
	ErrCodeInvalidTTLOverride = "INVALID_TTL_OVERRIDE"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewFeedNotFoundError はフィード未検出エラーを生成する。
func NewFeedNotFoundError(feedID string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotFound,
		Message:  fmt.Sprintf("指定されたフィードが見つかりません: %s", feedID),
		Category: "feed",
		Action:   "フィードIDを確認してください。",
	}
}

// NewDuplicateFeedError はフィードURLの重複登録エラーを生成する。
func NewDuplicateFeedError(feedURL string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateFeed,
		Message:  fmt.Sprintf("このフィードは既に登録されています: %s", feedURL),
		Category: "feed",
		Action:   "登録済みのフィード一覧を確認してください。",
	}
}

// NewArticleNotFoundError は記事未検出エラーを生成する。
func NewArticleNotFoundError(articleID string) *APIError {
	return &APIError{
		Code:     ErrCodeArticleNotFound,
		Message:  fmt.Sprintf("指定された記事が見つかりません: %s", articleID),
		Category: "feed",
		Action:   "記事IDを確認してください。",
	}
}

// NewSessionNotFoundError はセッション未検出エラーを生成する。
// 保持期間を過ぎて破棄されたセッションもこのエラーになる。
func NewSessionNotFoundError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  fmt.Sprintf("指定された更新セッションが見つかりません: %s", sessionID),
		Category: "refresh",
		Action:   "セッションIDを確認してください。完了したセッションは一定期間後に破棄されます。",
	}
}

// NewRefreshInProgressError は更新セッションの多重起動エラーを生成する。
func NewRefreshInProgressError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeRefreshInProgress,
		Message:  fmt.Sprintf("別の更新セッションが実行中です: %s", sessionID),
		Category: "refresh",
		Action:   "実行中のセッションが完了するまで待つか、キャンセルしてから再度お試しください。",
	}
}

// NewInvalidTTLOverrideError はTTL上書き値が無効な場合のエラーを生成する。
func NewInvalidTTLOverrideError(minutes int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTTLOverride,
		Message:  fmt.Sprintf("無効な更新間隔です: %d分", minutes),
		Category: "validation",
		Action:   "更新間隔は30分から1440分（24時間）の範囲で指定してください。",
	}
}

// NewInvalidRequestError はリクエスト形式が無効な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストの形式が不正です: %s", reason),
		Category: "validation",
		Action:   "リクエストボディの形式を確認してください。",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

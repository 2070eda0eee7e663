package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind はフェッチ失敗の分類。閉じた列挙であり、
// ヘルスモニターはエラーメッセージの文字列照合ではなくこの値で分岐する。
type ErrorKind string

const (
	// KindTimeout はタイムアウトによる失敗。
	KindTimeout ErrorKind = "timeout"
	// KindHTTPStatus は2xx以外のHTTPステータスによる失敗。
	KindHTTPStatus ErrorKind = "http_status"
	// KindParse はフィードのパース失敗。
	KindParse ErrorKind = "parse"
	// KindBlocked はSSRF防止によりブロックされたURL。
	KindBlocked ErrorKind = "blocked"
	// KindUnknown は上記以外の失敗。
	KindUnknown ErrorKind = "unknown"
)

// FetchError はフェッチ失敗を種別付きで表すエラー。
type FetchError struct {
	Kind       ErrorKind
	StatusCode int // KindがKindHTTPStatusのときのみ有効
	Message    string
}

// Error はerrorインターフェースを実装する。
func (e *FetchError) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("フェッチ失敗 (%s, status=%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("フェッチ失敗 (%s): %s", e.Kind, e.Message)
}

// NewTimeoutError はタイムアウトのFetchErrorを生成する。
func NewTimeoutError(message string) *FetchError {
	return &FetchError{Kind: KindTimeout, Message: message}
}

// NewHTTPStatusError はHTTPステータスのFetchErrorを生成する。
func NewHTTPStatusError(statusCode int) *FetchError {
	return &FetchError{
		Kind:       KindHTTPStatus,
		StatusCode: statusCode,
		Message:    fmt.Sprintf("予期しないHTTPステータス %d", statusCode),
	}
}

// NewParseError はパース失敗のFetchErrorを生成する。
func NewParseError(message string) *FetchError {
	return &FetchError{Kind: KindParse, Message: message}
}

// NewBlockedError はSSRF防止によるブロックのFetchErrorを生成する。
func NewBlockedError(message string) *FetchError {
	return &FetchError{Kind: KindBlocked, Message: message}
}

// NewUnknownError は分類できない失敗のFetchErrorを生成する。
func NewUnknownError(message string) *FetchError {
	return &FetchError{Kind: KindUnknown, Message: message}
}

// ClassifyTransportError はHTTPクライアントの転送エラーをFetchErrorに分類する。
// タイムアウト系のエラーはKindTimeout、それ以外はKindUnknownとなる。
func ClassifyTransportError(err error) *FetchError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(err.Error())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError(err.Error())
	}
	return NewUnknownError(err.Error())
}

// KindOf はエラーからErrorKindを取り出す。FetchError以外はKindUnknownを返す。
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

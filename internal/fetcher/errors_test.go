package fetcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// timeoutError はnet.Errorを満たすテスト用エラー。
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestFetchError_Error_IncludesKind(t *testing.T) {
	err := NewTimeoutError("接続がタイムアウトしました")
	if got := err.Error(); got == "" {
		t.Fatal("Error() が空文字列を返した")
	}
}

func TestNewHTTPStatusError_SetsStatusCode(t *testing.T) {
	err := NewHTTPStatusError(503)
	if err.Kind != KindHTTPStatus {
		t.Errorf("Kind = %q, want %q", err.Kind, KindHTTPStatus)
	}
	if err.StatusCode != 503 {
		t.Errorf("StatusCode = %d, want 503", err.StatusCode)
	}
}

func TestClassifyTransportError_DeadlineExceeded(t *testing.T) {
	wrapped := fmt.Errorf("request failed: %w", context.DeadlineExceeded)
	fe := ClassifyTransportError(wrapped)
	if fe.Kind != KindTimeout {
		t.Errorf("Kind = %q, want %q", fe.Kind, KindTimeout)
	}
}

func TestClassifyTransportError_NetTimeout(t *testing.T) {
	wrapped := fmt.Errorf("request failed: %w", timeoutError{})
	fe := ClassifyTransportError(wrapped)
	if fe.Kind != KindTimeout {
		t.Errorf("Kind = %q, want %q", fe.Kind, KindTimeout)
	}
}

func TestClassifyTransportError_Other(t *testing.T) {
	fe := ClassifyTransportError(errors.New("connection refused"))
	if fe.Kind != KindUnknown {
		t.Errorf("Kind = %q, want %q", fe.Kind, KindUnknown)
	}
}

func TestKindOf_FetchError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewParseError("bad xml"))
	if got := KindOf(err); got != KindParse {
		t.Errorf("KindOf = %q, want %q", got, KindParse)
	}
}

func TestKindOf_PlainError(t *testing.T) {
	if got := KindOf(errors.New("some error")); got != KindUnknown {
		t.Errorf("KindOf = %q, want %q", got, KindUnknown)
	}
}

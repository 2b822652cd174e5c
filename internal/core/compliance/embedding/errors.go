package embedding

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited はプロバイダーのレート制限に達した場合のエラー
	// 指数バックオフではなく固定のクールダウン後に再試行する
	ErrRateLimited = errors.New("embedding provider rate limited")

	// ErrTransient は一時的な障害（タイムアウト、5xx 等）を表す
	ErrTransient = errors.New("embedding provider transient failure")

	// ErrFatal は再試行しても成功しない障害（認証エラー、不正リクエスト等）を表す
	ErrFatal = errors.New("embedding provider fatal failure")

	// ErrNoTexts は空のバッチを送信しようとした場合のエラー
	ErrNoTexts = errors.New("no texts provided")
)

// ServiceError はプロバイダー呼び出しの失敗を種別付きで表します
type ServiceError struct {
	Provider   string
	StatusCode int
	Kind       error // ErrRateLimited / ErrTransient / ErrFatal
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status=%d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

// Unwrap は errors.Is で種別と元のエラーの両方を判定できるようにする
func (e *ServiceError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// NewServiceError は新しい ServiceError を作成します
func NewServiceError(provider string, statusCode int, kind, err error) *ServiceError {
	return &ServiceError{
		Provider:   provider,
		StatusCode: statusCode,
		Kind:       kind,
		Err:        err,
	}
}

// KindFromStatus はHTTPステータスコードから障害種別を判定する
func KindFromStatus(statusCode int) error {
	switch {
	case statusCode == 429:
		return ErrRateLimited
	case statusCode == 408 || statusCode >= 500:
		return ErrTransient
	case statusCode >= 400:
		return ErrFatal
	default:
		return ErrTransient
	}
}

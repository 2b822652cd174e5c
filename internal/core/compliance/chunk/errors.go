package chunk

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig はチャンク予算の設定が不正な場合に返されます
	ErrInvalidConfig = errors.New("invalid chunker config")

	// ErrBudgetTooSmall はトークン予算が最小表現単位より小さい場合に返されます
	ErrBudgetTooSmall = errors.New("token budget smaller than the minimum representable unit")
)

// ChunkingError は空でない入力からチャンクを1つも生成できなかったことを表します
type ChunkingError struct {
	TotalTokens       int // 入力のトークン数
	MaxTokensPerChunk int
	Skipped           int // 予算内に収まらず除外したウィンドウ数
	Err               error
}

func (e *ChunkingError) Error() string {
	return fmt.Sprintf("chunker: %s (tokens=%d, max_tokens_per_chunk=%d, skipped=%d)",
		e.Err, e.TotalTokens, e.MaxTokensPerChunk, e.Skipped)
}

func (e *ChunkingError) Unwrap() error {
	return e.Err
}

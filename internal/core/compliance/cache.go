package compliance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/jinford/lawcheck/internal/core/compliance/vector"
)

// CachedVector はキャッシュされた法令の文書ベクトル
type CachedVector struct {
	Vector      vector.Vector
	ChunkCount  int
	TotalTokens int
	KeptTokens  int
}

// VectorCache は法令本文の文書ベクトルを保持するキャッシュ
// 法令本文は静的なので、同じ本文・モデル・チャンク予算なら同じベクトルになる
type VectorCache interface {
	// Get はキャッシュされたベクトルを取得する。存在しない場合は found=false
	Get(ctx context.Context, key string) (CachedVector, bool, error)

	// Put はベクトルを保存する
	Put(ctx context.Context, key string, v CachedVector) error
}

// CacheKey はキャッシュキーを生成する
func CacheKey(model string, maxTokensPerChunk, maxTotalTokens int, text string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d|", model, maxTokensPerChunk, maxTotalTokens)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

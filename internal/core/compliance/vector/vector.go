// Package vector は文書ベクトルの集約と類似度計算を提供する
package vector

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrMissingVector はベクトルが存在しない（空の入力）場合のエラー
	ErrMissingVector = errors.New("missing vector")

	// ErrZeroVector はノルムが0のベクトルを比較しようとした場合のエラー
	ErrZeroVector = errors.New("zero-norm vector")
)

// DimensionMismatchError は次元数が一致しないベクトル同士を扱おうとした場合のエラー
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Vector は文書全体を表す平均プーリング済みのベクトル
type Vector []float32

// Dimension は次元数を返す
func (v Vector) Dimension() int {
	return len(v)
}

// Mean はチャンクごとのベクトルを要素ごとの算術平均で1本に集約する
// 入力が空の場合はゼロベクトルではなく ErrMissingVector を返す
func Mean(vectors [][]float32) (Vector, error) {
	if len(vectors) == 0 {
		return nil, ErrMissingVector
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, ErrMissingVector
	}

	sums := make([]float64, dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil, &DimensionMismatchError{Expected: dim, Actual: len(v)}
		}
		for i, x := range v {
			sums[i] += float64(x)
		}
	}

	n := float64(len(vectors))
	mean := make(Vector, dim)
	for i, s := range sums {
		mean[i] = float32(s / n)
	}

	return mean, nil
}

// Cosine は2つのベクトルのコサイン類似度を返す（範囲 [-1, 1]）
// 入力は変更しない
func Cosine(a, b Vector) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrMissingVector
	}
	if len(a) != len(b) {
		return 0, &DimensionMismatchError{Expected: len(a), Actual: len(b)}
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0, ErrZeroVector
	}

	similarity := dot / math.Sqrt(normA*normB)

	// 丸め誤差で範囲外に出ないようにする
	return math.Max(-1, math.Min(1, similarity)), nil
}

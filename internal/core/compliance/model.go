package compliance

import (
	"errors"
	"fmt"
)

// DefaultThreshold は Compliant と判定する類似度の下限（境界を含む）
const DefaultThreshold = 0.8

// ErrLawNotFound は要求された法令IDが既知の法令集合に存在しない場合のエラー
var ErrLawNotFound = errors.New("law not found")

// ErrInvalidRequest はリクエストが不正な場合のエラー
var ErrInvalidRequest = errors.New("invalid compliance request")

// Status は法令ごとの判定結果
type Status string

const (
	StatusCompliant    Status = "Compliant"
	StatusNonCompliant Status = "Non-Compliant"
	StatusError        Status = "Error"
	StatusNotFound     Status = "NotFound"
)

// Request はコンプライアンスチェックの入力
type Request struct {
	// DocumentText はユーザーがアップロードした文書
	DocumentText string

	// Laws は既知の法令ID→法令本文
	Laws map[string]string

	// LawIDs は判定対象の法令ID（結果はこの順で返す）
	LawIDs []string
}

// Validate はリクエストの契約違反を検出する
func (r Request) Validate() error {
	if len(r.LawIDs) == 0 {
		return fmt.Errorf("%w: at least one law id is required", ErrInvalidRequest)
	}
	return nil
}

// Result は法令1件分の判定結果
type Result struct {
	LawID      string   `json:"law_id"`
	Status     Status   `json:"status"`
	Similarity *float64 `json:"similarity_score,omitempty"`
	Details    string   `json:"details"`
}

// Config はコンプライアンス判定の設定
type Config struct {
	// Threshold は Compliant と判定する類似度の下限
	Threshold float64

	// Concurrency は法令を並列に処理する数（1で逐次処理）
	Concurrency int
}

// DefaultConfig はデフォルトの設定
func DefaultConfig() Config {
	return Config{
		Threshold:   DefaultThreshold,
		Concurrency: 1,
	}
}

// Validate は設定の契約違反を検出する
func (c Config) Validate() error {
	if c.Threshold < -1 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be within [-1, 1] (got %v)", c.Threshold)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive (got %d)", c.Concurrency)
	}
	return nil
}

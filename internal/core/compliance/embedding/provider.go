package embedding

import "context"

// Provider は外部の Embedding サービス
// 入力と同数以下のベクトルを返し、失敗時は ErrRateLimited / ErrTransient / ErrFatal を
// ラップしたエラーを返す
type Provider interface {
	// BatchEmbed はバッチで Embedding を生成する
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)

	// MaxBatchSize は1回の呼び出しで送信できる最大件数を返す
	MaxBatchSize() int

	// MaxInputTokens は1件あたりの最大トークン数を返す
	MaxInputTokens() int

	// ModelName はモデル名を返す
	ModelName() string
}

// Describer はプロバイダー名と出力次元を公開する Provider
// Dimension が0の場合はモデルの既定次元を使う
type Describer interface {
	ProviderName() string
	Dimension() int
}

package openai

import (
	"context"
	"fmt"

	"github.com/jinford/lawcheck/internal/core/compliance/embedding"
	"github.com/openai/openai-go/v3"
)

// Embedder は OpenAI API を使用してテキストをベクトルに変換する
type Embedder struct {
	client    openai.Client
	model     string
	dimension int
}

const (
	// DefaultEmbeddingModel はモデル未指定時のデフォルトモデル
	DefaultEmbeddingModel = "text-embedding-3-small"
	// DefaultEmbeddingDimension はOpenAI推奨のデフォルト次元
	DefaultEmbeddingDimension = 1536

	// maxBatchSize は1リクエストあたりの入力数の上限
	maxBatchSize = 2048
	// maxInputTokens は入力1件あたりのトークン上限
	maxInputTokens = 8191
)

type embedderOptions struct {
	model     string
	dimension int
	baseURL   string
}

// EmbedderOption は Embedder のオプション設定
type EmbedderOption func(*embedderOptions)

// WithEmbeddingModel はモデル名を上書きする
func WithEmbeddingModel(model string) EmbedderOption {
	return func(o *embedderOptions) {
		o.model = model
	}
}

// WithEmbeddingDimension はベクトル次元を上書きする
func WithEmbeddingDimension(dimension int) EmbedderOption {
	return func(o *embedderOptions) {
		o.dimension = dimension
	}
}

// WithBaseURL は API のエンドポイントを上書きする
func WithBaseURL(baseURL string) EmbedderOption {
	return func(o *embedderOptions) {
		o.baseURL = baseURL
	}
}

// NewEmbedder は新しい Embedder を作成する
func NewEmbedder(apiKey string, opts ...EmbedderOption) (*Embedder, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := embedderOptions{
		model:     DefaultEmbeddingModel,
		dimension: DefaultEmbeddingDimension,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Embedder{
		client:    newAPIClient(apiKey, options.baseURL),
		model:     options.model,
		dimension: options.dimension,
	}, nil
}

// BatchEmbed はバッチで Embedding を生成する
// 戻り値は入力と同じ順序で並ぶ
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, embedding.ErrNoTexts
	}
	if len(texts) > maxBatchSize {
		return nil, embedding.NewServiceError(providerName, 0, embedding.ErrFatal,
			fmt.Errorf("batch size %d exceeds maximum of %d", len(texts), maxBatchSize))
	}

	resp, err := e.client.Embeddings.New(ctx, e.requestParams(texts))
	if err != nil {
		return nil, classifyError(err)
	}

	return orderByIndex(resp.Data, len(texts))
}

func (e *Embedder) requestParams(texts []string) openai.EmbeddingNewParams {
	input := openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts}
	if len(texts) == 1 {
		input = openai.EmbeddingNewParamsInputUnion{OfString: openai.String(texts[0])}
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: input,
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}
	return params
}

// orderByIndex は応答を入力順に並べ直し float32 に変換する
// 件数不足や重複したインデックスは一時的な異常として扱う
func orderByIndex(data []openai.Embedding, want int) ([][]float32, error) {
	if len(data) != want {
		return nil, embedding.NewServiceError(providerName, 0, embedding.ErrTransient,
			fmt.Errorf("expected %d embeddings, got %d", want, len(data)))
	}

	ordered := make([][]float32, want)
	for _, d := range data {
		idx := int(d.Index)
		if idx < 0 || idx >= want || ordered[idx] != nil {
			return nil, embedding.NewServiceError(providerName, 0, embedding.ErrTransient,
				fmt.Errorf("unexpected embedding index %d", d.Index))
		}

		values := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			values[i] = float32(v)
		}
		ordered[idx] = values
	}

	return ordered, nil
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}

// ProviderName はプロバイダー名を返す
func (e *Embedder) ProviderName() string {
	return providerName
}

// Dimension はベクトル次元数を返す
func (e *Embedder) Dimension() int {
	return e.dimension
}

// MaxBatchSize はバッチ処理の最大サイズを返す
func (e *Embedder) MaxBatchSize() int {
	return maxBatchSize
}

// MaxInputTokens は入力1件あたりのトークン上限を返す
func (e *Embedder) MaxInputTokens() int {
	return maxInputTokens
}

// インターフェース実装の確認
var (
	_ embedding.Provider  = (*Embedder)(nil)
	_ embedding.Describer = (*Embedder)(nil)
)

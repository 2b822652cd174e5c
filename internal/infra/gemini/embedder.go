package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/jinford/lawcheck/internal/core/compliance/embedding"
)

const (
	// DefaultEmbeddingModel はモデル未指定時のデフォルトモデル
	DefaultEmbeddingModel = "text-embedding-004"

	// maxBatchSize は batchEmbedContents の1リクエストあたりの上限
	maxBatchSize = 100
	// maxInputTokens は入力1件あたりのトークン上限
	maxInputTokens = 2048
)

// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
var ErrAPIKeyNotSet = errors.New("Gemini API key not set: please set GEMINI_API_KEY environment variable")

// Embedder は Gemini API を使用してテキストをベクトルに変換する
type Embedder struct {
	client *genai.Client
	model  *genai.EmbeddingModel
	name   string
}

type embedderOptions struct {
	model string
}

// EmbedderOption は Embedder のオプション設定
type EmbedderOption func(*embedderOptions)

// WithEmbeddingModel はモデル名を上書きする
func WithEmbeddingModel(model string) EmbedderOption {
	return func(o *embedderOptions) {
		o.model = model
	}
}

// NewEmbedder は新しい Embedder を作成する
func NewEmbedder(ctx context.Context, apiKey string, opts ...EmbedderOption) (*Embedder, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := embedderOptions{
		model: DefaultEmbeddingModel,
	}
	for _, opt := range opts {
		opt(&options)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.EmbeddingModel(options.model)
	model.TaskType = genai.TaskTypeSemanticSimilarity

	return &Embedder{
		client: client,
		model:  model,
		name:   options.model,
	}, nil
}

// BatchEmbed はバッチで Embedding を生成する
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, embedding.ErrNoTexts
	}
	if len(texts) > maxBatchSize {
		return nil, embedding.NewServiceError(providerName, 0, embedding.ErrFatal,
			fmt.Errorf("batch size %d exceeds maximum of %d", len(texts), maxBatchSize))
	}

	batch := e.model.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	resp, err := e.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, classifyError(err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, embedding.NewServiceError(providerName, 0, embedding.ErrTransient,
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings)))
	}

	embeddings := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil {
			continue
		}
		embeddings[i] = emb.Values
	}

	return embeddings, nil
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.name
}

// ProviderName はプロバイダー名を返す
func (e *Embedder) ProviderName() string {
	return providerName
}

// Dimension はモデルの既定次元を使うため0を返す
func (e *Embedder) Dimension() int {
	return 0
}

// MaxBatchSize はバッチ処理の最大サイズを返す
func (e *Embedder) MaxBatchSize() int {
	return maxBatchSize
}

// MaxInputTokens は入力1件あたりのトークン上限を返す
func (e *Embedder) MaxInputTokens() int {
	return maxInputTokens
}

// Close は内部のクライアントを閉じる
func (e *Embedder) Close() error {
	return e.client.Close()
}

// インターフェース実装の確認
var (
	_ embedding.Provider  = (*Embedder)(nil)
	_ embedding.Describer = (*Embedder)(nil)
)

package openai

import (
	"errors"
	"fmt"

	"github.com/jinford/lawcheck/internal/core/compliance/embedding"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const providerName = "openai"

var (
	// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
	ErrAPIKeyNotSet = errors.New("OpenAI API key not set: please set OPENAI_API_KEY environment variable")
)

// newAPIClient は OpenAI API クライアントを作成する
// リトライは embedding.Client 側で行うため SDK のリトライは無効にする
func newAPIClient(apiKey, baseURL string) openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return openai.NewClient(opts...)
}

// classifyError は SDK のエラーを embedding.ServiceError に変換する
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return embedding.NewServiceError(providerName, apiErr.StatusCode, embedding.KindFromStatus(apiErr.StatusCode), err)
	}

	// ステータスコードを持たないエラーは通信エラーとして扱う
	return embedding.NewServiceError(providerName, 0, embedding.ErrTransient, fmt.Errorf("request failed: %w", err))
}

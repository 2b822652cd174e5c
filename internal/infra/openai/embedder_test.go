package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jinford/lawcheck/internal/core/compliance/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbedderOptionsOverrideDefaults(t *testing.T) {
	embedder, err := NewEmbedder("dummy-key",
		WithEmbeddingModel("custom-model"),
		WithEmbeddingDimension(42),
	)
	require.NoError(t, err)

	assert.Equal(t, "custom-model", embedder.ModelName())
	assert.Equal(t, 42, embedder.Dimension())
	assert.Equal(t, "openai", embedder.ProviderName())
	assert.Equal(t, 8191, embedder.MaxInputTokens())
}

func TestNewEmbedderRequiresAPIKey(t *testing.T) {
	_, err := NewEmbedder("")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func newTestServer(t *testing.T, handler http.HandlerFunc) *Embedder {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	embedder, err := NewEmbedder("dummy-key", WithBaseURL(server.URL), WithEmbeddingDimension(0))
	require.NoError(t, err)
	return embedder
}

func TestBatchEmbed(t *testing.T) {
	t.Run("インデックス順に並べ替える", func(t *testing.T) {
		embedder := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/embeddings", r.URL.Path)

			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, DefaultEmbeddingModel, body["model"])

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"object": "list",
				"model": "text-embedding-3-small",
				"data": [
					{"object": "embedding", "index": 1, "embedding": [0.0, 1.0]},
					{"object": "embedding", "index": 0, "embedding": [1.0, 0.0]}
				],
				"usage": {"prompt_tokens": 2, "total_tokens": 2}
			}`))
		})

		vectors, err := embedder.BatchEmbed(context.Background(), []string{"first", "second"})
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)
	})

	t.Run("429はレート制限エラーになる", func(t *testing.T) {
		embedder := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": {"message": "rate limited", "type": "requests", "code": "rate_limit_exceeded"}}`))
		})

		_, err := embedder.BatchEmbed(context.Background(), []string{"text"})
		require.Error(t, err)
		assert.ErrorIs(t, err, embedding.ErrRateLimited)

		var svcErr *embedding.ServiceError
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, http.StatusTooManyRequests, svcErr.StatusCode)
		assert.Equal(t, "openai", svcErr.Provider)
	})

	t.Run("401はリトライ不可のエラーになる", func(t *testing.T) {
		embedder := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error": {"message": "invalid api key"}}`))
		})

		_, err := embedder.BatchEmbed(context.Background(), []string{"text"})
		assert.ErrorIs(t, err, embedding.ErrFatal)
	})

	t.Run("件数が合わない応答は一時的なエラー", func(t *testing.T) {
		embedder := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"object": "list", "data": [], "model": "m", "usage": {"prompt_tokens": 0, "total_tokens": 0}}`))
		})

		_, err := embedder.BatchEmbed(context.Background(), []string{"a", "b"})
		assert.ErrorIs(t, err, embedding.ErrTransient)
	})

	t.Run("空の入力", func(t *testing.T) {
		embedder, err := NewEmbedder("dummy-key")
		require.NoError(t, err)

		_, err = embedder.BatchEmbed(context.Background(), nil)
		assert.ErrorIs(t, err, embedding.ErrNoTexts)
	})
}

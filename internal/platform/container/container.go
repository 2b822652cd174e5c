package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jinford/lawcheck/internal/core/compliance"
	"github.com/jinford/lawcheck/internal/core/compliance/chunk"
	"github.com/jinford/lawcheck/internal/core/compliance/embedding"
	"github.com/jinford/lawcheck/internal/infra/gemini"
	"github.com/jinford/lawcheck/internal/infra/openai"
	"github.com/jinford/lawcheck/internal/infra/postgres"
	"github.com/jinford/lawcheck/internal/infra/tokenizer"
	"github.com/jinford/lawcheck/internal/platform/database"
	"github.com/jinford/lawcheck/pkg/config"
)

// ServiceContainer は適合性判定に必要な依存関係を保持する
type ServiceContainer struct {
	ComplianceService *compliance.ComplianceService

	// VectorCache は CACHE_ENABLED=true の場合のみ non-nil
	VectorCache *postgres.VectorCache

	logger   *slog.Logger
	database *database.Database
	closers  []func() error
}

type containerOptions struct {
	logger    *slog.Logger
	provider  embedding.Provider
	tokenizer chunk.Tokenizer
	cache     compliance.VectorCache
	sleeper   func(ctx context.Context, d time.Duration) error
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerProvider はカスタム embedding プロバイダーを注入する
func WithContainerProvider(provider embedding.Provider) ContainerOption {
	return func(opts *containerOptions) {
		opts.provider = provider
	}
}

// WithContainerTokenizer はトークナイザーを差し替える
func WithContainerTokenizer(tok chunk.Tokenizer) ContainerOption {
	return func(opts *containerOptions) {
		opts.tokenizer = tok
	}
}

// WithContainerVectorCache は法令ベクトルのキャッシュを差し替える
// 指定した場合は CACHE_ENABLED に関わらずデータベースへ接続しない
func WithContainerVectorCache(cache compliance.VectorCache) ContainerOption {
	return func(opts *containerOptions) {
		opts.cache = cache
	}
}

// WithContainerSleeper は embedding クライアントの待機処理を差し替える
func WithContainerSleeper(sleep func(ctx context.Context, d time.Duration) error) ContainerOption {
	return func(opts *containerOptions) {
		opts.sleeper = sleep
	}
}

// NewContainer は設定からコンテナを生成する
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	c := &ServiceContainer{logger: options.logger}

	// Tokenizer (tiktoken)
	tok := options.tokenizer
	if tok == nil {
		t, err := tokenizer.New()
		if err != nil {
			return nil, fmt.Errorf("Tokenizer 初期化に失敗しました: %w", err)
		}
		tok = t
	}

	// Provider (OpenAI / Gemini)
	provider := options.provider
	if provider == nil {
		p, err := c.newProvider(ctx, cfg.Embedding)
		if err != nil {
			c.Close()
			return nil, err
		}
		provider = p
	}

	// Embedding クライアント
	clientOpts := []embedding.Option{
		embedding.WithLogger(options.logger),
		embedding.WithBatchSize(cfg.Embedding.BatchSize),
		embedding.WithRetryCount(cfg.Embedding.RetryCount),
		embedding.WithRetryBaseDelay(cfg.Embedding.RetryBaseDelay),
		embedding.WithRateLimitCooldown(cfg.Embedding.RateLimitCooldown),
		embedding.WithInterBatchDelay(cfg.Embedding.InterBatchDelay),
	}
	if cfg.Embedding.RequestsPerMinute > 0 {
		limiter := embedding.NewRateLimiter(cfg.Embedding.RequestsPerMinute, cfg.Embedding.MaxConcurrentRequests)
		clientOpts = append(clientOpts, embedding.WithRateLimiter(limiter))
	}
	if options.sleeper != nil {
		clientOpts = append(clientOpts, embedding.WithSleeper(options.sleeper))
	}

	embedClient, err := embedding.NewClient(provider, tok, clientOpts...)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("Embedding クライアント初期化に失敗しました: %w", err)
	}

	// Chunker
	chunker, err := chunk.NewChunker(tok,
		chunk.WithMaxTokensPerChunk(cfg.Compliance.MaxTokensPerChunk),
		chunk.WithMaxTotalTokens(cfg.Compliance.MaxTotalTokens),
		chunk.WithLogger(options.logger),
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("Chunker 初期化に失敗しました: %w", err)
	}

	// 法令ベクトルのキャッシュ (PostgreSQL)
	cache := options.cache
	if cache == nil && cfg.Database.CacheEnabled {
		vc, err := c.openVectorCache(ctx, cfg.Database)
		if err != nil {
			c.Close()
			return nil, err
		}
		cache = vc
	}

	serviceOpts := []compliance.ServiceOption{
		compliance.WithServiceLogger(options.logger),
		compliance.WithConfig(compliance.Config{
			Threshold:   cfg.Compliance.Threshold,
			Concurrency: cfg.Compliance.Concurrency,
		}),
	}
	if cache != nil {
		serviceOpts = append(serviceOpts, compliance.WithVectorCache(cache))
	}

	svc, err := compliance.NewComplianceService(chunker, embedClient, serviceOpts...)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("ComplianceService 初期化に失敗しました: %w", err)
	}
	c.ComplianceService = svc

	options.logger.Info("service container initialized",
		"provider", cfg.Embedding.Provider,
		"model", provider.ModelName(),
		"batch_size", embedClient.BatchSize(),
		"cache_enabled", cache != nil,
	)

	return c, nil
}

func (c *ServiceContainer) newProvider(ctx context.Context, cfg config.EmbeddingConfig) (embedding.Provider, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		opts := []openai.EmbedderOption{}
		if cfg.Model != "" {
			opts = append(opts, openai.WithEmbeddingModel(cfg.Model))
		}
		if cfg.Dimension > 0 {
			opts = append(opts, openai.WithEmbeddingDimension(cfg.Dimension))
		}
		p, err := openai.NewEmbedder(cfg.OpenAIAPIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("OpenAI Embedder 初期化に失敗しました: %w", err)
		}
		return p, nil

	case config.ProviderGemini:
		opts := []gemini.EmbedderOption{}
		if cfg.Model != "" {
			opts = append(opts, gemini.WithEmbeddingModel(cfg.Model))
		}
		p, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("Gemini Embedder 初期化に失敗しました: %w", err)
		}
		c.closers = append(c.closers, p.Close)
		return p, nil

	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func (c *ServiceContainer) openVectorCache(ctx context.Context, cfg config.DatabaseConfig) (*postgres.VectorCache, error) {
	db, err := database.New(ctx, database.ConnectionParams{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		DBName:   cfg.DBName,
		SSLMode:  cfg.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
	}
	c.database = db

	cache := postgres.NewVectorCache(db.Pool)
	if err := cache.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("キャッシュテーブルの作成に失敗しました: %w", err)
	}
	c.VectorCache = cache

	return cache, nil
}

// Close は内部リソースを解放する
func (c *ServiceContainer) Close() {
	if c == nil {
		return
	}
	var errs []error
	for _, closeFn := range c.closers {
		errs = append(errs, closeFn())
	}
	c.closers = nil
	if c.database != nil {
		c.database.Close()
		c.database = nil
	}
	if err := errors.Join(errs...); err != nil {
		c.Logger().Warn("failed to close resources", "error", err)
	}
}

// Logger はロガーを返す
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

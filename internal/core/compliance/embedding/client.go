package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jinford/lawcheck/internal/core/compliance/chunk"
)

const (
	// DefaultBatchSize は1バッチあたりのチャンク数のデフォルト値
	DefaultBatchSize = 96

	// DefaultRetryCount はバッチごとの最大試行回数のデフォルト値
	DefaultRetryCount = 3

	// DefaultRetryBaseDelay は指数バックオフの基底時間
	DefaultRetryBaseDelay = time.Second

	// DefaultRateLimitCooldown はレート制限エラー時の固定待機時間
	DefaultRateLimitCooldown = 60 * time.Second

	// DefaultInterBatchDelay はバッチ間に挿入する待機時間
	DefaultInterBatchDelay = time.Second
)

// Outcome は EmbedChunks の結果
// len(Vectors) < Submitted+Skipped の場合、一部のチャンクがベクトル化されていない
type Outcome struct {
	// Vectors は成功したチャンクのベクトル（チャンク順）
	Vectors [][]float32

	// Submitted はプロバイダーへ送信したチャンク数
	Submitted int

	// Skipped はプロバイダーの上限を超えたため送信しなかったチャンク数
	Skipped int

	// FailedBatches はリトライを使い切って失敗したバッチ数
	FailedBatches int

	// LastErr は最後に失敗したバッチのエラー
	LastErr error
}

// Client はチャンク列をバッチに分けてプロバイダーに送信する
type Client struct {
	provider  Provider
	tokenizer chunk.Tokenizer
	limiter   *RateLimiter
	logger    *slog.Logger

	batchSize         int
	retryCount        int
	retryBaseDelay    time.Duration
	rateLimitCooldown time.Duration
	interBatchDelay   time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

type clientOptions struct {
	limiter           *RateLimiter
	logger            *slog.Logger
	batchSize         int
	retryCount        int
	retryBaseDelay    time.Duration
	rateLimitCooldown time.Duration
	interBatchDelay   time.Duration
	sleep             func(ctx context.Context, d time.Duration) error
}

// Option は Client のオプション設定
type Option func(*clientOptions)

// WithRateLimiter はプロセス全体で共有するレートリミッターを設定する
func WithRateLimiter(limiter *RateLimiter) Option {
	return func(o *clientOptions) {
		o.limiter = limiter
	}
}

// WithLogger はロガーを差し替える
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithBatchSize は1バッチあたりのチャンク数を上書きする
func WithBatchSize(n int) Option {
	return func(o *clientOptions) {
		o.batchSize = n
	}
}

// WithRetryCount はバッチごとの最大試行回数を上書きする
func WithRetryCount(n int) Option {
	return func(o *clientOptions) {
		o.retryCount = n
	}
}

// WithRetryBaseDelay は指数バックオフの基底時間を上書きする
func WithRetryBaseDelay(d time.Duration) Option {
	return func(o *clientOptions) {
		o.retryBaseDelay = d
	}
}

// WithRateLimitCooldown はレート制限時の固定待機時間を上書きする
func WithRateLimitCooldown(d time.Duration) Option {
	return func(o *clientOptions) {
		o.rateLimitCooldown = d
	}
}

// WithInterBatchDelay はバッチ間の待機時間を上書きする
func WithInterBatchDelay(d time.Duration) Option {
	return func(o *clientOptions) {
		o.interBatchDelay = d
	}
}

// WithSleeper は待機処理を差し替える（テスト用）
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *clientOptions) {
		o.sleep = sleep
	}
}

// NewClient は新しい Client を作成します
func NewClient(provider Provider, tokenizer chunk.Tokenizer, opts ...Option) (*Client, error) {
	if provider == nil {
		return nil, errors.New("embedding provider is nil")
	}
	if tokenizer == nil {
		return nil, errors.New("tokenizer is nil")
	}

	options := clientOptions{
		logger:            slog.Default(),
		batchSize:         DefaultBatchSize,
		retryCount:        DefaultRetryCount,
		retryBaseDelay:    DefaultRetryBaseDelay,
		rateLimitCooldown: DefaultRateLimitCooldown,
		interBatchDelay:   DefaultInterBatchDelay,
		sleep:             sleepContext,
	}
	for _, opt := range opts {
		opt(&options)
	}

	if options.batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive (got %d)", options.batchSize)
	}
	if options.retryCount <= 0 {
		return nil, fmt.Errorf("retry count must be positive (got %d)", options.retryCount)
	}
	if limit := provider.MaxBatchSize(); limit > 0 && options.batchSize > limit {
		options.batchSize = limit
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &Client{
		provider:          provider,
		tokenizer:         tokenizer,
		limiter:           options.limiter,
		logger:            options.logger,
		batchSize:         options.batchSize,
		retryCount:        options.retryCount,
		retryBaseDelay:    options.retryBaseDelay,
		rateLimitCooldown: options.rateLimitCooldown,
		interBatchDelay:   options.interBatchDelay,
		sleep:             options.sleep,
	}, nil
}

// ModelName はプロバイダーのモデル名を返す
func (c *Client) ModelName() string {
	return c.provider.ModelName()
}

// ModelID はプロバイダー・モデル・次元を含む識別子を返す（例: openai:text-embedding-3-small@1536）
// 同じ ModelID なら同じ本文から同じ次元のベクトルが得られる
func (c *Client) ModelID() string {
	d, ok := c.provider.(Describer)
	if !ok {
		return c.provider.ModelName()
	}
	return fmt.Sprintf("%s:%s@%d", d.ProviderName(), c.provider.ModelName(), d.Dimension())
}

// BatchSize は実効バッチサイズを返す
func (c *Client) BatchSize() int {
	return c.batchSize
}

// EmbedChunks はチャンク列のベクトルを生成する
//
// リトライを使い切ったバッチはベクトルを返さないだけでエラーにはしない。
// エラーを返すのは ctx がキャンセルされた場合のみ。
func (c *Client) EmbedChunks(ctx context.Context, chunks []chunk.Chunk) (Outcome, error) {
	var out Outcome
	dimension := 0

	texts := c.admissible(chunks, &out)

	for start := 0; start < len(texts); start += c.batchSize {
		if start > 0 && c.interBatchDelay > 0 {
			if err := c.sleep(ctx, c.interBatchDelay); err != nil {
				return out, err
			}
		}

		end := min(start+c.batchSize, len(texts))
		batch := texts[start:end]
		out.Submitted += len(batch)

		vectors, err := c.embedWithRetry(ctx, batch)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, ctxErr
			}
			out.FailedBatches++
			out.LastErr = err
			c.logger.Error("embedding batch failed after retries, dropping its chunks",
				"batch_start", start,
				"batch_size", len(batch),
				"error", err,
			)
			continue
		}

		for _, v := range vectors {
			if dimension == 0 {
				dimension = len(v)
			}
			if len(v) == 0 || len(v) != dimension {
				c.logger.Warn("discarding embedding with unexpected dimension",
					"expected", dimension,
					"actual", len(v),
				)
				continue
			}
			out.Vectors = append(out.Vectors, v)
		}
	}

	return out, nil
}

// admissible はプロバイダーの1件あたりの上限を超えるチャンクを除外する
func (c *Client) admissible(chunks []chunk.Chunk, out *Outcome) []string {
	limit := c.provider.MaxInputTokens()
	texts := make([]string, 0, len(chunks))

	for i, ch := range chunks {
		if limit > 0 {
			if n := chunk.CountTokens(c.tokenizer, ch.Text); n > limit {
				c.logger.Warn("chunk exceeds provider input limit, skipping",
					"index", i,
					"tokens", n,
					"provider_limit", limit,
				)
				out.Skipped++
				continue
			}
		}
		texts = append(texts, ch.Text)
	}

	return texts
}

// embedWithRetry は1バッチを最大 retryCount 回まで試行する
// レート制限エラーは固定クールダウン、その他は retryBaseDelay * 2^attempt で待機する
func (c *Client) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryCount; attempt++ {
		if attempt > 0 {
			wait := c.retryBaseDelay * time.Duration(1<<(attempt-1))
			if errors.Is(lastErr, ErrRateLimited) {
				wait = c.rateLimitCooldown
			}

			c.logger.Warn("retrying embedding batch",
				"attempt", attempt+1,
				"max_attempts", c.retryCount,
				"wait", wait,
				"error", lastErr,
			)

			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		vectors, err := c.call(ctx, batch)
		if err == nil {
			return vectors, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		if errors.Is(err, ErrFatal) {
			break
		}
	}

	return nil, lastErr
}

func (c *Client) call(ctx context.Context, batch []string) ([][]float32, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}
		defer c.limiter.Release()
	}

	return c.provider.BatchEmbed(ctx, batch)
}

// RateLimiterStatus は共有レートリミッターの状態を返す
func (c *Client) RateLimiterStatus() (RateLimiterStatus, bool) {
	if c.limiter == nil {
		return RateLimiterStatus{}, false
	}
	return c.limiter.GetStatus(), true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

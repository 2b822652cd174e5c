package chunk

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const (
	// DefaultMaxTokensPerChunk は1チャンクあたりの最大トークン数のデフォルト値
	DefaultMaxTokensPerChunk = 512

	// DefaultMaxTotalTokens は1文書あたりの最大トークン数のデフォルト値
	// これを超えた分は先頭から切り詰める
	DefaultMaxTotalTokens = 20000
)

// Chunk はトークン予算内に収まる連続した部分文字列
type Chunk struct {
	Text       string
	TokenCount int
}

// Result はチャンク化の結果
type Result struct {
	Chunks []Chunk

	// TotalTokens は切り詰め前の入力トークン数
	TotalTokens int

	// KeptTokens は切り詰め後にチャンク化の対象となったトークン数
	KeptTokens int

	// SkippedWindows は予算内に表現できず除外したウィンドウ数
	SkippedWindows int
}

// Truncated は MaxTotalTokens による切り詰めが発生したかを返す
func (r Result) Truncated() bool {
	return r.KeptTokens < r.TotalTokens
}

// Texts はチャンクのテキストのみを返す
func (r Result) Texts() []string {
	texts := make([]string, len(r.Chunks))
	for i, c := range r.Chunks {
		texts[i] = c.Text
	}
	return texts
}

// Chunker はテキストをトークン境界で分割する
type Chunker struct {
	tokenizer         Tokenizer
	maxTokensPerChunk int
	maxTotalTokens    int
	logger            *slog.Logger
}

type chunkerOptions struct {
	maxTokensPerChunk int
	maxTotalTokens    int
	logger            *slog.Logger
}

// Option は Chunker のオプション設定
type Option func(*chunkerOptions)

// WithMaxTokensPerChunk は1チャンクあたりの最大トークン数を上書きする
func WithMaxTokensPerChunk(n int) Option {
	return func(o *chunkerOptions) {
		o.maxTokensPerChunk = n
	}
}

// WithMaxTotalTokens は1文書あたりの最大トークン数を上書きする
func WithMaxTotalTokens(n int) Option {
	return func(o *chunkerOptions) {
		o.maxTotalTokens = n
	}
}

// WithLogger はロガーを差し替える
func WithLogger(logger *slog.Logger) Option {
	return func(o *chunkerOptions) {
		o.logger = logger
	}
}

// NewChunker は新しい Chunker を作成します
func NewChunker(tokenizer Tokenizer, opts ...Option) (*Chunker, error) {
	options := chunkerOptions{
		maxTokensPerChunk: DefaultMaxTokensPerChunk,
		maxTotalTokens:    DefaultMaxTotalTokens,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	if tokenizer == nil {
		return nil, fmt.Errorf("%w: tokenizer is nil", ErrInvalidConfig)
	}
	if options.maxTokensPerChunk <= 0 {
		return nil, fmt.Errorf("%w: max tokens per chunk must be positive (got %d)", ErrInvalidConfig, options.maxTokensPerChunk)
	}
	if options.maxTotalTokens <= 0 {
		return nil, fmt.Errorf("%w: max total tokens must be positive (got %d)", ErrInvalidConfig, options.maxTotalTokens)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &Chunker{
		tokenizer:         tokenizer,
		maxTokensPerChunk: options.maxTokensPerChunk,
		maxTotalTokens:    options.maxTotalTokens,
		logger:            options.logger,
	}, nil
}

// MaxTokensPerChunk は1チャンクあたりの最大トークン数を返す
func (c *Chunker) MaxTokensPerChunk() int {
	return c.maxTokensPerChunk
}

// MaxTotalTokens は1文書あたりの最大トークン数を返す
func (c *Chunker) MaxTotalTokens() int {
	return c.maxTotalTokens
}

// Chunk はテキストをチャンク化します
//
// 1. トークン化し、MaxTotalTokens を超える場合は先頭から切り詰める（WARNログを出す）
// 2. MaxTokensPerChunk 単位の連続したウィンドウに分割する
// 3. 各ウィンドウをデコードして再計測し、予算を超える場合はウィンドウ末尾を1トークンずつ縮める。
//    縮めた分は次のウィンドウに持ち越すため、トークンは失われない
// 4. 空白のみのチャンクは除外する
//
// 空文字列はエラーではなく空の結果を返す。
func (c *Chunker) Chunk(ctx context.Context, text string) (Result, error) {
	tokens := c.tokenizer.Encode(text)
	result := Result{TotalTokens: len(tokens)}

	if len(tokens) == 0 {
		return result, nil
	}

	if len(tokens) > c.maxTotalTokens {
		c.logger.Warn("document exceeds total token ceiling, truncating",
			"total_tokens", len(tokens),
			"max_total_tokens", c.maxTotalTokens,
			"dropped_tokens", len(tokens)-c.maxTotalTokens,
		)
		tokens = tokens[:c.maxTotalTokens]
	}
	result.KeptTokens = len(tokens)

	for pos := 0; pos < len(tokens); {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		end := min(pos+c.maxTokensPerChunk, len(tokens))
		text, count := c.fitWindow(tokens, pos, &end)

		if count > c.maxTokensPerChunk {
			// 1トークンでも予算に収まらない
			c.logger.Warn("token cannot be represented within chunk budget, skipping",
				"position", pos,
				"measured_tokens", count,
				"max_tokens_per_chunk", c.maxTokensPerChunk,
			)
			result.SkippedWindows++
			pos = end
			continue
		}

		pos = end

		if strings.TrimSpace(text) == "" {
			continue
		}

		result.Chunks = append(result.Chunks, Chunk{Text: text, TokenCount: count})
	}

	if len(result.Chunks) == 0 && result.SkippedWindows > 0 {
		return result, &ChunkingError{
			TotalTokens:       result.TotalTokens,
			MaxTokensPerChunk: c.maxTokensPerChunk,
			Skipped:           result.SkippedWindows,
			Err:               ErrBudgetTooSmall,
		}
	}

	for i, ch := range result.Chunks {
		c.logger.Debug("chunk measured", "index", i, "tokens", ch.TokenCount)
	}

	return result, nil
}

// fitWindow は tokens[pos:*end] をデコードし、再計測したトークン数が予算に収まるまで *end を縮める
// 収まらないまま1トークンになった場合は、そのデコード結果と計測値をそのまま返す
func (c *Chunker) fitWindow(tokens []int, pos int, end *int) (string, int) {
	for {
		text := c.tokenizer.Decode(tokens[pos:*end])
		count := len(c.tokenizer.Encode(text))
		if count <= c.maxTokensPerChunk || *end-pos <= 1 {
			return text, count
		}
		*end--
	}
}

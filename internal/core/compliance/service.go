package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jinford/lawcheck/internal/core/compliance/chunk"
	"github.com/jinford/lawcheck/internal/core/compliance/embedding"
	"github.com/jinford/lawcheck/internal/core/compliance/vector"
)

// Chunker はテキストをトークン予算内のチャンクに分割する
type Chunker interface {
	Chunk(ctx context.Context, text string) (chunk.Result, error)
	MaxTokensPerChunk() int
	MaxTotalTokens() int
}

// Embedder はチャンク列のベクトルを生成する
type Embedder interface {
	EmbedChunks(ctx context.Context, chunks []chunk.Chunk) (embedding.Outcome, error)

	// ModelID はベクトルの互換性を決める識別子（プロバイダー・モデル・次元）
	ModelID() string
}

// rateLimiterReporter は共有レートリミッターの状態を公開する Embedder
type rateLimiterReporter interface {
	RateLimiterStatus() (embedding.RateLimiterStatus, bool)
}

// ComplianceService はアップロード文書と法令本文の類似度から適合性を判定する
type ComplianceService struct {
	chunker  Chunker
	embedder Embedder
	cache    VectorCache
	config   Config
	logger   *slog.Logger
}

type serviceOptions struct {
	cache  VectorCache
	config Config
	logger *slog.Logger
}

// ServiceOption は ComplianceService のオプション設定
type ServiceOption func(*serviceOptions)

// WithVectorCache は法令ベクトルのキャッシュを設定する
func WithVectorCache(cache VectorCache) ServiceOption {
	return func(o *serviceOptions) {
		o.cache = cache
	}
}

// WithConfig は判定の設定を上書きする
func WithConfig(cfg Config) ServiceOption {
	return func(o *serviceOptions) {
		o.config = cfg
	}
}

// WithServiceLogger はロガーを差し替える
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// NewComplianceService は新しい ComplianceService を作成します
func NewComplianceService(chunker Chunker, embedder Embedder, opts ...ServiceOption) (*ComplianceService, error) {
	options := serviceOptions{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	if chunker == nil || embedder == nil {
		return nil, errors.New("chunker and embedder are required")
	}
	if err := options.config.Validate(); err != nil {
		return nil, err
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &ComplianceService{
		chunker:  chunker,
		embedder: embedder,
		cache:    options.cache,
		config:   options.config,
		logger:   options.logger,
	}, nil
}

// Check は要求された法令ごとに判定結果を1件ずつ、要求順で返す
// 法令単位の失敗は結果の Status=Error に変換され、エラーとして返るのは
// リクエスト自体が不正な場合のみ
func (s *ComplianceService) Check(ctx context.Context, req Request) ([]Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	logger := s.logger.With("request_id", uuid.NewString())
	startTime := time.Now()

	user := &lazyDocument{}
	results := make([]Result, len(req.LawIDs))

	// 法令ごとの処理は独立しているので並列化できる（Concurrency=1 で逐次）
	semaphore := make(chan struct{}, s.config.Concurrency)
	var wg sync.WaitGroup

	for i, lawID := range req.LawIDs {
		select {
		case semaphore <- struct{}{}:
		case <-ctx.Done():
			results[i] = errorResult(lawID, ctx.Err())
			continue
		}

		wg.Add(1)
		go func(index int, lawID string) {
			defer wg.Done()
			defer func() { <-semaphore }()
			results[index] = s.checkLaw(ctx, logger, user, req, lawID)
		}(i, lawID)
	}

	wg.Wait()

	s.logSummary(logger, results, time.Since(startTime))

	return results, nil
}

// checkLaw は法令1件分の判定を行う
// 想定外のpanicもここで捕捉し、他の法令の処理を止めない
func (s *ComplianceService) checkLaw(ctx context.Context, logger *slog.Logger, user *lazyDocument, req Request, lawID string) (result Result) {
	logger = logger.With("law_id", lawID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic during compliance check", "panic", r)
			result = errorResult(lawID, fmt.Errorf("unexpected failure: %v", r))
		}
	}()

	lawText, ok := req.Laws[lawID]
	if !ok {
		logger.Info("skipping law", "reason", ErrLawNotFound)
		return notFoundResult(lawID)
	}

	userDoc, err := user.get(func() (documentVector, error) {
		return s.embedDocument(ctx, logger, "uploaded document", req.DocumentText)
	})
	if err != nil {
		logger.Error("failed to process uploaded document", "stage", failedStage(err).String(), "error", err)
		return errorResult(lawID, err)
	}

	lawDoc, err := s.lawVector(ctx, logger, lawText, userDoc.vector.Dimension())
	if err != nil {
		logger.Error("failed to process law text", "stage", failedStage(err).String(), "error", err)
		return errorResult(lawID, err)
	}

	similarity, err := vector.Cosine(userDoc.vector, lawDoc.vector)
	if err != nil {
		logger.Error("failed to score similarity", "error", err)
		return errorResult(lawID, failAt(stageEmbedded, "similarity scoring failed", err))
	}

	var notes []string
	if userDoc.truncated() {
		notes = append(notes, truncationNote("uploaded document", userDoc.chunked))
	}
	if lawDoc.truncated() {
		notes = append(notes, truncationNote("law text", lawDoc.chunked))
	}

	result = classifiedResult(lawID, similarity, s.config.Threshold, notes)
	logger.Info("law classified",
		"status", result.Status,
		"similarity", similarity,
		"stage", stageClassified.String(),
	)

	return result
}

// lawVector はキャッシュを参照しつつ法令本文の文書ベクトルを求める
// キャッシュの失敗は判定を失敗させない。次元が dimension と異なるエントリは使わずに作り直す
func (s *ComplianceService) lawVector(ctx context.Context, logger *slog.Logger, text string, dimension int) (documentVector, error) {
	if s.cache == nil {
		return s.embedDocument(ctx, logger, "law text", text)
	}

	key := CacheKey(s.embedder.ModelID(), s.chunker.MaxTokensPerChunk(), s.chunker.MaxTotalTokens(), text)

	cached, found, err := s.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("law vector cache lookup failed", "error", err)
	} else if found && cached.Vector.Dimension() != dimension {
		logger.Warn("ignoring cached law vector with different dimension",
			"cached_dimension", cached.Vector.Dimension(),
			"dimension", dimension,
		)
	} else if found {
		logger.Debug("law vector cache hit")
		return documentVector{
			vector: cached.Vector,
			chunked: chunk.Result{
				TotalTokens: cached.TotalTokens,
				KeptTokens:  cached.KeptTokens,
			},
		}, nil
	}

	doc, err := s.embedDocument(ctx, logger, "law text", text)
	if err != nil {
		return documentVector{}, err
	}

	entry := CachedVector{
		Vector:      doc.vector,
		ChunkCount:  len(doc.chunked.Chunks),
		TotalTokens: doc.chunked.TotalTokens,
		KeptTokens:  doc.chunked.KeptTokens,
	}
	if err := s.cache.Put(ctx, key, entry); err != nil {
		logger.Warn("failed to store law vector in cache", "error", err)
	}

	return doc, nil
}

// embedDocument は1文書をチャンク化・ベクトル化し、平均ベクトルを返す
func (s *ComplianceService) embedDocument(ctx context.Context, logger *slog.Logger, side, text string) (documentVector, error) {
	chunked, err := s.chunker.Chunk(ctx, text)
	if err != nil {
		return documentVector{}, failAt(stagePending, fmt.Sprintf("chunking %s failed", side), err)
	}
	if len(chunked.Chunks) == 0 {
		return documentVector{}, failAt(stageChunked, "empty content", fmt.Errorf("%s produced no chunks", side))
	}

	outcome, err := s.embedder.EmbedChunks(ctx, chunked.Chunks)
	if err != nil {
		return documentVector{}, failAt(stageChunked, "embedding generation failed", err)
	}
	if len(outcome.Vectors) == 0 {
		cause := outcome.LastErr
		if cause == nil {
			cause = fmt.Errorf("no embeddings for %d chunks of %s", len(chunked.Chunks), side)
		}
		return documentVector{}, failAt(stageChunked, "embedding generation failed", cause)
	}
	if len(outcome.Vectors) < len(chunked.Chunks) {
		logger.Warn("some chunks were not embedded",
			"side", side,
			"chunks", len(chunked.Chunks),
			"vectors", len(outcome.Vectors),
			"skipped", outcome.Skipped,
			"failed_batches", outcome.FailedBatches,
		)
	}

	mean, err := vector.Mean(outcome.Vectors)
	if err != nil {
		return documentVector{}, failAt(stageEmbedded, "aggregation failed", err)
	}

	logger.Debug("document embedded",
		"side", side,
		"chunks", len(chunked.Chunks),
		"vectors", len(outcome.Vectors),
		"dimension", mean.Dimension(),
		"stage", stageScored.String(),
	)

	return documentVector{vector: mean, chunked: chunked}, nil
}

func (s *ComplianceService) logSummary(logger *slog.Logger, results []Result, elapsed time.Duration) {
	counts := make(map[Status]int)
	for _, r := range results {
		counts[r.Status]++
	}

	logger.Info("compliance check completed",
		"laws", len(results),
		"compliant", counts[StatusCompliant],
		"non_compliant", counts[StatusNonCompliant],
		"errors", counts[StatusError],
		"not_found", counts[StatusNotFound],
		"elapsed", elapsed.Round(time.Millisecond),
	)

	if reporter, ok := s.embedder.(rateLimiterReporter); ok {
		if status, ok := reporter.RateLimiterStatus(); ok {
			logger.Debug(status.String())
		}
	}
}

// documentVector は1文書分の平均ベクトルとチャンク化の情報
type documentVector struct {
	vector  vector.Vector
	chunked chunk.Result
}

func (d documentVector) truncated() bool {
	return d.chunked.Truncated()
}

// lazyDocument はアップロード文書のベクトルを最初に必要になった時点で一度だけ計算する
// 全ての法令が NotFound の場合はプロバイダーを呼ばない
type lazyDocument struct {
	once sync.Once
	doc  documentVector
	err  error
}

func (l *lazyDocument) get(compute func() (documentVector, error)) (documentVector, error) {
	l.once.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				l.err = fmt.Errorf("unexpected failure: %v", r)
			}
		}()
		l.doc, l.err = compute()
	})
	return l.doc, l.err
}

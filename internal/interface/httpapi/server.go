package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jinford/lawcheck/internal/core/compliance"
)

const (
	// DefaultMaxUploadBytes はアップロード文書の最大サイズ
	DefaultMaxUploadBytes = 10 << 20

	// DefaultRequestTimeout は1リクエストあたりの処理時間の上限
	DefaultRequestTimeout = 10 * time.Minute

	shutdownTimeout = 30 * time.Second
)

// Checker は適合性判定を行う
type Checker interface {
	Check(ctx context.Context, req compliance.Request) ([]compliance.Result, error)
}

// Server は適合性判定の HTTP API
type Server struct {
	checker        Checker
	logger         *slog.Logger
	maxUploadBytes int64
	requestTimeout time.Duration
	engine         *gin.Engine
}

type serverOptions struct {
	logger         *slog.Logger
	maxUploadBytes int64
	requestTimeout time.Duration
}

// Option は Server のオプション設定
type Option func(*serverOptions)

// WithLogger はロガーを差し替える
func WithLogger(logger *slog.Logger) Option {
	return func(o *serverOptions) {
		o.logger = logger
	}
}

// WithMaxUploadBytes はアップロード文書の最大サイズを上書きする
func WithMaxUploadBytes(n int64) Option {
	return func(o *serverOptions) {
		o.maxUploadBytes = n
	}
}

// WithRequestTimeout はリクエストの処理時間の上限を上書きする
func WithRequestTimeout(d time.Duration) Option {
	return func(o *serverOptions) {
		o.requestTimeout = d
	}
}

// NewServer は新しい Server を作成します
func NewServer(checker Checker, opts ...Option) *Server {
	options := serverOptions{
		logger:         slog.Default(),
		maxUploadBytes: DefaultMaxUploadBytes,
		requestTimeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	s := &Server{
		checker:        checker,
		logger:         options.logger,
		maxUploadBytes: options.maxUploadBytes,
		requestTimeout: options.requestTimeout,
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.MaxMultipartMemory = s.maxUploadBytes

	r.GET("/health", s.health)

	api := r.Group("/api")
	api.POST("/contract-compliance", s.contractCompliance)

	return r
}

// Handler は http.Handler を返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run は addr で待ち受け、ctx がキャンセルされたらグレースフルに停止する
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTPサーバを起動します", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("HTTPサーバの起動に失敗: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("HTTPサーバを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTPサーバの停止に失敗: %w", err)
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start).Round(time.Millisecond),
			"client_ip", c.ClientIP(),
		)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

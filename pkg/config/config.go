package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// ProviderOpenAI は OpenAI の embedding API を使う
	ProviderOpenAI = "openai"
	// ProviderGemini は Gemini の embedding API を使う
	ProviderGemini = "gemini"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Embedding設定
	Embedding EmbeddingConfig

	// 適合性判定の設定
	Compliance ComplianceConfig

	// Database設定（法令ベクトルのキャッシュ用）
	Database DatabaseConfig

	// HTTPサーバー設定
	Server ServerConfig

	// ログ設定
	Log LogConfig
}

// EmbeddingConfig は embedding プロバイダーとクライアントの設定
type EmbeddingConfig struct {
	Provider     string // "openai" or "gemini"
	OpenAIAPIKey string
	GeminiAPIKey string
	Model        string // 空の場合はプロバイダーのデフォルト
	Dimension    int    // OpenAI のみ有効。0 はモデルのデフォルト

	BatchSize         int
	RetryCount        int
	RetryBaseDelay    time.Duration
	RateLimitCooldown time.Duration
	InterBatchDelay   time.Duration

	// プロセス全体のレート制限
	RequestsPerMinute     int
	MaxConcurrentRequests int
}

// ComplianceConfig はチャンク予算と判定の設定
type ComplianceConfig struct {
	MaxTokensPerChunk int
	MaxTotalTokens    int
	Threshold         float64
	Concurrency       int // 法令を並列に処理する数
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	CacheEnabled bool
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	SSLMode      string
}

// ServerConfig はHTTPサーバー設定
type ServerConfig struct {
	Port           int
	MaxUploadBytes int64
	RequestTimeout time.Duration
}

// LogConfig はログ設定
type LogConfig struct {
	Level  string // debug / info / warn / error
	Format string // json / text
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Embedding: EmbeddingConfig{
			Provider:              strings.ToLower(getEnv("EMBEDDING_PROVIDER", ProviderOpenAI)),
			OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
			GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
			Model:                 getEnv("EMBEDDING_MODEL", ""),
			Dimension:             getEnvAsInt("EMBEDDING_DIMENSION", 0),
			BatchSize:             getEnvAsInt("EMBEDDING_BATCH_SIZE", 96),
			RetryCount:            getEnvAsInt("EMBEDDING_RETRY_COUNT", 3),
			RetryBaseDelay:        getEnvAsDuration("EMBEDDING_RETRY_BASE_DELAY", time.Second),
			RateLimitCooldown:     getEnvAsDuration("EMBEDDING_RATE_LIMIT_COOLDOWN", 60*time.Second),
			InterBatchDelay:       getEnvAsDuration("EMBEDDING_INTER_BATCH_DELAY", time.Second),
			RequestsPerMinute:     getEnvAsInt("EMBEDDING_REQUESTS_PER_MINUTE", 500),
			MaxConcurrentRequests: getEnvAsInt("EMBEDDING_MAX_CONCURRENT_REQUESTS", 4),
		},
		Compliance: ComplianceConfig{
			MaxTokensPerChunk: getEnvAsInt("COMPLIANCE_MAX_TOKENS_PER_CHUNK", 512),
			MaxTotalTokens:    getEnvAsInt("COMPLIANCE_MAX_TOTAL_TOKENS", 20000),
			Threshold:         getEnvAsFloat("COMPLIANCE_THRESHOLD", 0.8),
			Concurrency:       getEnvAsInt("COMPLIANCE_CONCURRENCY", 1),
		},
		Database: DatabaseConfig{
			CacheEnabled: getEnvAsBool("CACHE_ENABLED", false),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "lawcheck"),
			Password:     getEnv("DB_PASSWORD", ""),
			DBName:       getEnv("DB_NAME", "lawcheck"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
		},
		Server: ServerConfig{
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			MaxUploadBytes: int64(getEnvAsInt("SERVER_MAX_UPLOAD_BYTES", 10<<20)),
			RequestTimeout: getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 10*time.Minute),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
	}

	return cfg, nil
}

// Validate は設定値の整合性を検証します
func (c *Config) Validate() error {
	var errs []error

	switch c.Embedding.Provider {
	case ProviderOpenAI:
		if c.Embedding.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when EMBEDDING_PROVIDER=openai"))
		}
	case ProviderGemini:
		if c.Embedding.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required when EMBEDDING_PROVIDER=gemini"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EMBEDDING_PROVIDER %q", c.Embedding.Provider))
	}

	if c.Embedding.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_BATCH_SIZE must be positive (got %d)", c.Embedding.BatchSize))
	}
	if c.Embedding.RetryCount <= 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_RETRY_COUNT must be positive (got %d)", c.Embedding.RetryCount))
	}
	if c.Compliance.MaxTokensPerChunk <= 0 {
		errs = append(errs, fmt.Errorf("COMPLIANCE_MAX_TOKENS_PER_CHUNK must be positive (got %d)", c.Compliance.MaxTokensPerChunk))
	}
	if c.Compliance.MaxTotalTokens <= 0 {
		errs = append(errs, fmt.Errorf("COMPLIANCE_MAX_TOTAL_TOKENS must be positive (got %d)", c.Compliance.MaxTotalTokens))
	}
	if c.Compliance.Threshold < -1 || c.Compliance.Threshold > 1 {
		errs = append(errs, fmt.Errorf("COMPLIANCE_THRESHOLD must be within [-1, 1] (got %v)", c.Compliance.Threshold))
	}
	if c.Compliance.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("COMPLIANCE_CONCURRENCY must be positive (got %d)", c.Compliance.Concurrency))
	}

	return errors.Join(errs...)
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します（例: "1s", "500ms"）
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

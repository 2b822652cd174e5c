package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/lawcheck/internal/core/compliance"
	"github.com/jinford/lawcheck/internal/core/compliance/vector"
	"github.com/jinford/lawcheck/internal/platform/database"
	"github.com/jinford/lawcheck/pkg/lock"
)

const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS law_vector_cache (
    cache_key    TEXT PRIMARY KEY,
    embedding    vector NOT NULL,
    chunk_count  INTEGER NOT NULL,
    total_tokens INTEGER NOT NULL,
    kept_tokens  INTEGER NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// VectorCache は compliance.VectorCache インターフェースを実装する PostgreSQL キャッシュです
// 法令本文の文書ベクトルを pgvector 型で保存します
type VectorCache struct {
	pool *pgxpool.Pool
}

// NewVectorCache は新しい VectorCache を作成します
func NewVectorCache(pool *pgxpool.Pool) *VectorCache {
	return &VectorCache{pool: pool}
}

// コンパイル時の型チェック
var _ compliance.VectorCache = (*VectorCache)(nil)

// EnsureSchema はキャッシュテーブルを作成します
// 複数プロセスが同時に起動してもDDLが競合しないようアドバイザリロック下で実行します
func (c *VectorCache) EnsureSchema(ctx context.Context) error {
	_, err := database.Transact(ctx, c.pool, func(tx pgx.Tx) (struct{}, error) {
		if err := lock.Acquire(ctx, tx, lock.GenerateLockID("lawcheck", "law_vector_cache", "schema")); err != nil {
			return struct{}{}, err
		}
		if _, err := tx.Exec(ctx, schemaSQL); err != nil {
			return struct{}{}, fmt.Errorf("failed to create law_vector_cache: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}

// Get はキャッシュキーに対応するベクトルを取得します
func (c *VectorCache) Get(ctx context.Context, key string) (compliance.CachedVector, bool, error) {
	var emb pgvector.Vector
	var chunkCount, totalTokens, keptTokens int32

	err := c.pool.QueryRow(ctx, `
		SELECT embedding, chunk_count, total_tokens, kept_tokens
		FROM law_vector_cache
		WHERE cache_key = $1`, key,
	).Scan(&emb, &chunkCount, &totalTokens, &keptTokens)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return compliance.CachedVector{}, false, nil
		}
		return compliance.CachedVector{}, false, fmt.Errorf("failed to get cached law vector: %w", err)
	}

	return compliance.CachedVector{
		Vector:      vector.Vector(emb.Slice()),
		ChunkCount:  int(chunkCount),
		TotalTokens: int(totalTokens),
		KeptTokens:  int(keptTokens),
	}, true, nil
}

// Put はベクトルを保存します（既存のキーは上書き）
func (c *VectorCache) Put(ctx context.Context, key string, v compliance.CachedVector) error {
	if len(v.Vector) == 0 {
		return vector.ErrMissingVector
	}

	_, err := c.pool.Exec(ctx, `
		INSERT INTO law_vector_cache (cache_key, embedding, chunk_count, total_tokens, kept_tokens)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cache_key) DO UPDATE SET
			embedding    = EXCLUDED.embedding,
			chunk_count  = EXCLUDED.chunk_count,
			total_tokens = EXCLUDED.total_tokens,
			kept_tokens  = EXCLUDED.kept_tokens,
			created_at   = now()`,
		key,
		pgvector.NewVector([]float32(v.Vector)),
		v.ChunkCount,
		v.TotalTokens,
		v.KeptTokens,
	)
	if err != nil {
		return fmt.Errorf("failed to put law vector: %w", err)
	}
	return nil
}

// Purge はキャッシュを全て削除し、削除件数を返します
func (c *VectorCache) Purge(ctx context.Context) (int64, error) {
	tag, err := c.pool.Exec(ctx, `DELETE FROM law_vector_cache`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge law vector cache: %w", err)
	}
	return tag.RowsAffected(), nil
}

package cli

import (
	"context"
	"errors"

	"github.com/urfave/cli/v3"
)

// CachePurgeAction は法令ベクトルのキャッシュを全て削除するコマンドのアクション
func CachePurgeAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	cache := appCtx.Container.VectorCache
	if cache == nil {
		return errors.New("キャッシュが無効です（CACHE_ENABLED=true を設定してください）")
	}

	n, err := cache.Purge(ctx)
	if err != nil {
		return err
	}

	appCtx.Logger().Info("法令ベクトルのキャッシュを削除しました", "deleted", n)
	return nil
}

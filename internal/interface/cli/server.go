package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/lawcheck/internal/interface/httpapi"
)

// ServerStartAction はHTTPサーバを起動するコマンドのアクション
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	port := appCtx.Config.Server.Port
	if cmd.IsSet("port") {
		port = int(cmd.Int("port"))
	}

	srv := httpapi.NewServer(appCtx.Container.ComplianceService,
		httpapi.WithLogger(appCtx.Logger()),
		httpapi.WithMaxUploadBytes(appCtx.Config.Server.MaxUploadBytes),
		httpapi.WithRequestTimeout(appCtx.Config.Server.RequestTimeout),
	)

	return srv.Run(ctx, fmt.Sprintf(":%d", port))
}

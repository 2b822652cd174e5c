package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	lawcli "github.com/jinford/lawcheck/internal/interface/cli"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "lawcheck",
		Usage: "契約書と法令本文の類似度による適合性チェック",
		Commands: []*cli.Command{
			{
				Name:  "check",
				Usage: "文書を法令と比較し、結果をJSONで出力",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:     "document",
						Usage:    "判定する文書のファイルパス",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:     "law",
						Usage:    "法令ファイル（id=path または path、複数指定可）",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:  "select",
						Usage: "判定対象の法令ID（省略時は --law の全て）",
					},
				},
				Action: lawcli.CheckAction,
			},
			{
				Name:  "server",
				Usage: "HTTPサーバコマンド",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "HTTPサーバを起動",
						Flags: []cli.Flag{
							envFlag(),
							&cli.IntFlag{
								Name:  "port",
								Usage: "待ち受けポート（省略時は SERVER_PORT）",
							},
						},
						Action: lawcli.ServerStartAction,
					},
				},
			},
			{
				Name:  "cache",
				Usage: "法令ベクトルのキャッシュ管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "purge",
						Usage:  "キャッシュを全て削除",
						Flags:  []cli.Flag{envFlag()},
						Action: lawcli.CachePurgeAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// Package main はMulticameraサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"multicamera/internal/app"
	"multicamera/internal/config"
	"multicamera/internal/log"
)

func main() {
	// コマンドラインオプション
	var (
		configPath = flag.String("config", os.Getenv(config.ConfigFileEnv), "設定ファイル (YAML)")
		host       = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port       = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		landscape  = flag.Bool("landscape", false, "横向きで合成する")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Multicamera")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.Error("設定の読み込みに失敗しました", "error", err)
		os.Exit(1)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *landscape {
		cfg.Camera.Orientation = config.OrientationLandscape
	}
	if err := cfg.Validate(); err != nil {
		log.Error("設定が不正です", "error", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level)

	// サーバーを起動
	log.Info("Multicamera サーバーを起動します", "addr", cfg.ServerAddress())
	if err := app.Run(context.Background(), cfg); err != nil {
		log.Error("サーバーの起動に失敗しました", "error", err)
		os.Exit(1)
	}
}

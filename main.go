package main

import (
	"context"
	"os"

	"multicamera/internal/app"
	"multicamera/internal/config"
	"multicamera/internal/log"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Error("設定の読み込みに失敗しました", "error", err)
		os.Exit(1)
	}
	log.Init(cfg.Log.Level)

	if err := app.Run(context.Background(), cfg); err != nil {
		log.Error("実行に失敗しました", "error", err)
		os.Exit(1)
	}
}

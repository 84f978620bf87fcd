// Package app は設定からパイプラインとHTTPサーバーを組み立てて起動する
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"multicamera/internal/camera"
	"multicamera/internal/config"
	"multicamera/internal/gles/soft"
	"multicamera/internal/log"
	"multicamera/internal/pipeline"
	"multicamera/internal/server"
	"multicamera/internal/sink"
	"multicamera/internal/timelapse"
)

// stopTimeout はタイムラプス停止の待ち時間
const stopTimeout = 3 * time.Second

// Run は仮想カメラを使ってパイプラインを起動し、HTTPサーバーで公開する
// ctx のキャンセル、シグナル、パイプラインの異常終了のいずれかで戻る
func Run(ctx context.Context, cfg *config.Config) error {
	logger := log.With("component", "app")

	facing, err := cfg.MainFacing()
	if err != nil {
		return err
	}
	waitMode, err := pipeline.ParseWaitMode(cfg.Pipeline.WaitMode)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	platform := camera.NewVirtualPlatform(cfg.Camera.FPS)
	defer platform.Stop()

	preview := sink.NewPreview(cfg.Capture.JPEGQuality)
	still := sink.NewStill(cfg.Capture.JPEGQuality)

	p := pipeline.New(platform, soft.NewDisplay(), pipeline.Outputs{
		Preview: preview,
		Capture: still,
	}, pipeline.Config{
		Width:            cfg.Camera.Width,
		Height:           cfg.Camera.Height,
		Landscape:        cfg.Landscape(),
		MainFacing:       facing,
		WaitMode:         waitMode,
		OpenTimeout:      cfg.Camera.OpenTimeout,
		ConfigureTimeout: cfg.Camera.ConfigureTimeout,
	})
	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("パイプラインの起動に失敗: %w", err)
	}
	defer p.Close()

	// 合成が止まったらサーバーも止める
	go func() {
		<-p.Done()
		if err := p.Err(); err != nil {
			logger.Error("パイプラインが異常終了しました", "error", err)
		}
		cancel()
	}()

	recorder := timelapse.NewRecorder(still, cfg.Timelapse)
	if err := recorder.Start(ctx); err != nil {
		return fmt.Errorf("タイムラプスの開始に失敗: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
		defer stopCancel()
		if err := recorder.Stop(stopCtx); err != nil {
			logger.Warn("タイムラプスの停止に失敗", "error", err)
		}
	}()

	for _, info := range p.Cameras() {
		logger.Info("カメラ", "role", info.Role, "id", info.ID, "facing", info.Facing, "state", info.State)
	}

	srv := server.New(cfg, p, preview, still, recorder)
	serveErr := srv.Start(ctx)

	closeErr := p.Close()
	return errors.Join(serveErr, closeErr)
}

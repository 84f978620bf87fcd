package timelapse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"multicamera/internal/log"
	"multicamera/internal/sink"
)

// dayLayout は日ごとのディレクトリ名
const dayLayout = "2006-01-02"

// ErrAlreadyStarted は二重に開始しようとした
var ErrAlreadyStarted = errors.New("timelapse: すでに開始しています")

// FrameSource は最新の合成フレームのコピーと合成時刻を返す
type FrameSource interface {
	Snapshot() (*image.RGBA, time.Time, error)
}

// Recorder は合成フレームを一定間隔で JPEG ファイルに保存する
type Recorder struct {
	source FrameSource
	config Config
	logger *slog.Logger

	// 制御用
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool

	captured    int
	skipped     int
	lastFile    string
	lastCapture time.Time
}

// NewRecorder は新しい Recorder を作成する
func NewRecorder(source FrameSource, config Config) *Recorder {
	return &Recorder{
		source: source,
		config: config,
		logger: log.With("component", "timelapse"),
	}
}

// Start は撮影を開始する
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.config.Enabled {
		r.logger.Info("タイムラプス機能は無効です")
		return nil
	}
	if r.running {
		return ErrAlreadyStarted
	}
	if r.config.CaptureInterval <= 0 {
		return fmt.Errorf("無効な撮影間隔: %s", r.config.CaptureInterval)
	}

	// 出力ディレクトリを作成
	if err := os.MkdirAll(r.config.OutputDir, 0o755); err != nil {
		return fmt.Errorf("出力ディレクトリの作成に失敗: %w", err)
	}

	// 起動時点で保持期間を過ぎたものを消す
	if err := r.cleanup(time.Now()); err != nil {
		r.logger.Warn("古い静止画の削除に失敗", "error", err)
	}

	r.stopCh = make(chan struct{})
	r.running = true

	r.wg.Add(2)
	go r.captureLoop(ctx, r.stopCh)
	go r.cleanupScheduler(ctx, r.stopCh)

	r.logger.Info("タイムラプスを開始しました",
		"interval", r.config.CaptureInterval, "output_dir", r.config.OutputDir)
	return nil
}

// Stop は撮影を停止する
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	close(r.stopCh)
	captured := r.captured
	r.mu.Unlock()

	// ワーカーゴルーチンの終了を待機
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("タイムラプスの停止を中断: %w", ctx.Err())
	}

	r.logger.Info("タイムラプスを停止しました", "captured", captured)
	return nil
}

// captureLoop は一定間隔で静止画を保存する
func (r *Recorder) captureLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.CaptureInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if err := r.CaptureOnce(); err != nil {
				r.logger.Warn("静止画の保存に失敗", "error", err)
			}
		}
	}
}

// cleanupScheduler は毎日0時に保持期間を過ぎた静止画を削除する
func (r *Recorder) cleanupScheduler(ctx context.Context, stopCh <-chan struct{}) {
	defer r.wg.Done()

	timer := time.NewTimer(time.Until(nextMidnight(time.Now())))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case now := <-timer.C:
			if err := r.cleanup(now); err != nil {
				r.logger.Warn("古い静止画の削除に失敗", "error", err)
			}
			timer.Reset(time.Until(nextMidnight(now)))
		}
	}
}

// CaptureOnce は最新の合成フレームを1枚保存する
// まだフレームが無い場合と、前回から新しいフレームが無い場合は何もしない
func (r *Recorder) CaptureOnce() error {
	img, at, err := r.source.Snapshot()
	if errors.Is(err, sink.ErrNoFrame) {
		r.mu.Lock()
		r.skipped++
		r.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("静止画の取得に失敗: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !at.After(r.lastCapture) {
		r.skipped++
		return nil
	}

	if r.config.Stamp {
		stamp(img, at)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: r.config.Quality}); err != nil {
		return fmt.Errorf("JPEGエンコードに失敗: %w", err)
	}
	data := buf.Bytes()

	path := r.photoPath(at)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("出力ディレクトリの作成に失敗: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("静止画の書き込みに失敗: %w", err)
	}

	r.captured++
	r.lastFile = path
	r.lastCapture = at
	r.logger.Debug("静止画を保存しました", "path", path, "size", len(data))
	return nil
}

// stamp は左上に合成時刻を書き込む
func stamp(img *image.RGBA, at time.Time) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{R: 255, G: 255, A: 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(img.Bounds().Min.X+4, img.Bounds().Min.Y+14),
	}
	d.DrawString(at.Format("2006-01-02 15:04:05"))
}

// photoPath は合成時刻から保存先を決める
func (r *Recorder) photoPath(at time.Time) string {
	return filepath.Join(r.config.OutputDir, at.Format(dayLayout), at.Format("150405.000")+".jpg")
}

// cleanup は保持期間を過ぎた日のディレクトリを削除する
func (r *Recorder) cleanup(now time.Time) error {
	if r.config.RetentionDays <= 0 {
		return nil
	}

	entries, err := os.ReadDir(r.config.OutputDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("ディレクトリの読み取りに失敗: %w", err)
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	limit := today.AddDate(0, 0, -r.config.RetentionDays)

	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		day, err := time.ParseInLocation(dayLayout, entry.Name(), now.Location())
		if err != nil {
			// 日付以外のディレクトリは触らない
			continue
		}
		if day.Before(limit) {
			if err := os.RemoveAll(filepath.Join(r.config.OutputDir, entry.Name())); err != nil {
				errs = append(errs, err)
				continue
			}
			r.logger.Info("古い静止画を削除しました", "day", entry.Name())
		}
	}
	return errors.Join(errs...)
}

// Photos は保存済みの静止画を撮影順に返す
func (r *Recorder) Photos() ([]Photo, error) {
	photos := []Photo{}

	err := filepath.WalkDir(r.config.OutputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".jpg" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		photos = append(photos, Photo{
			Date:     info.ModTime(),
			FilePath: path,
			FileSize: info.Size(),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return photos, nil // ディレクトリが存在しない場合は空のリストを返す
		}
		return nil, fmt.Errorf("ディレクトリの読み取りに失敗: %w", err)
	}

	// ファイル名が合成時刻なのでパス順が撮影順
	sort.Slice(photos, func(i, j int) bool { return photos[i].FilePath < photos[j].FilePath })
	return photos, nil
}

// Status は現在の状態を返す
func (r *Recorder) Status() StatusInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := StatusStopped
	switch {
	case !r.config.Enabled:
		status = StatusDisabled
	case r.running:
		status = StatusRecording
	}
	return StatusInfo{
		Status:      status,
		Captured:    r.captured,
		Skipped:     r.skipped,
		LastFile:    r.lastFile,
		LastCapture: r.lastCapture,
	}
}

// nextMidnight は次の0時の時刻を返す
func nextMidnight(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
}

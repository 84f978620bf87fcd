package timelapse

import (
	"time"
)

// Photo は保存済みの合成静止画
type Photo struct {
	Date     time.Time `json:"date"`      // 撮影日時
	FilePath string    `json:"file_path"` // ファイルパス
	FileSize int64     `json:"file_size"` // ファイルサイズ
}

// Config はタイムラプス設定
type Config struct {
	Enabled         bool          `yaml:"enabled"`          // 有効/無効
	CaptureInterval time.Duration `yaml:"capture_interval"` // 撮影間隔 (デフォルト: 2秒)
	OutputDir       string        `yaml:"output_dir"`       // 保存先ディレクトリ
	RetentionDays   int           `yaml:"retention_days"`   // 保持期間（日数）。0 なら削除しない
	Quality         int           `yaml:"jpeg_quality"`     // JPEG品質 (1-100)
	Stamp           bool          `yaml:"stamp"`            // 合成時刻を書き込む
}

// Status はタイムラプスのステータス
type Status string

// Status の定数定義
const (
	StatusRecording Status = "recording" // 撮影中
	StatusStopped   Status = "stopped"   // 停止
	StatusDisabled  Status = "disabled"  // 無効
)

// StatusInfo はタイムラプスの状態情報
type StatusInfo struct {
	Status      Status    `json:"status"`
	Captured    int       `json:"captured"`     // 今回の起動で保存した枚数
	Skipped     int       `json:"skipped"`      // 新しいフレームが無く見送った回数
	LastFile    string    `json:"last_file"`    // 最後に保存したファイル
	LastCapture time.Time `json:"last_capture"` // 最後に保存したフレームの合成時刻
}

// DefaultConfig はデフォルトのタイムラプス設定を返す
func DefaultConfig() Config {
	return Config{
		Enabled:         false,
		CaptureInterval: 2 * time.Second,
		OutputDir:       "timelapse",
		RetentionDays:   30,
		Quality:         90,
		Stamp:           true,
	}
}

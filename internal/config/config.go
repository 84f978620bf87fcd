package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"multicamera/internal/camera"
	"multicamera/internal/pipeline"
	"multicamera/internal/timelapse"
)

// ConfigFileEnv は設定ファイルのパスを指定する環境変数
const ConfigFileEnv = "MULTICAMERA_CONFIG"

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Camera   CameraConfig   `yaml:"camera"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Capture  CaptureConfig  `yaml:"capture"`
	Log      LogConfig      `yaml:"log"`

	Timelapse timelapse.Config `yaml:"timelapse"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	Width  int `yaml:"width"`  // バッファ幅
	Height int `yaml:"height"` // バッファ高さ
	FPS    int `yaml:"fps"`    // フレームレート (fps)

	Orientation string `yaml:"orientation"` // portrait / landscape
	MainFacing  string `yaml:"main_facing"` // メイン映像に使うカメラ: back / front

	OpenTimeout      time.Duration `yaml:"open_timeout"`
	ConfigureTimeout time.Duration `yaml:"configure_timeout"`
}

// PipelineConfig は合成ループの設定
type PipelineConfig struct {
	WaitMode string `yaml:"wait_mode"` // signal / poll
}

// CaptureConfig は静止画・プレビュー出力の設定
type CaptureConfig struct {
	JPEGQuality int `yaml:"jpeg_quality"` // 1-100
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level string `yaml:"level"` // debug / info / warn / error
}

const (
	OrientationPortrait  = "portrait"
	OrientationLandscape = "landscape"
)

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Camera: CameraConfig{
			Width:            1280,
			Height:           720,
			FPS:              30,
			Orientation:      OrientationPortrait,
			MainFacing:       "back",
			OpenTimeout:      camera.DefaultOpenTimeout,
			ConfigureTimeout: camera.DefaultConfigureTimeout,
		},
		Pipeline: PipelineConfig{
			WaitMode: string(pipeline.WaitSignal),
		},
		Capture: CaptureConfig{
			JPEGQuality: 80,
		},
		Log: LogConfig{
			Level: "info",
		},
		Timelapse: timelapse.DefaultConfig(),
	}
}

// Load は設定を読み込む
// 環境変数 MULTICAMERA_CONFIG が指定されていればその YAML を読む
func Load() (*Config, error) {
	return LoadFile(os.Getenv(ConfigFileEnv))
}

// LoadFile は設定を読み込む
// デフォルト値 → YAML ファイル（path が空なら読まない）→ 環境変数 の順に上書きする
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
		}
	}

	cfg.applyEnv()

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// applyEnv は環境変数で設定を上書きする
func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
	c.Camera.Orientation = getEnvOrDefault("CAMERA_ORIENTATION", c.Camera.Orientation)
	c.Pipeline.WaitMode = getEnvOrDefault("PIPELINE_WAIT_MODE", c.Pipeline.WaitMode)
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	var errs []error

	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("無効なポート番号: %d", c.Server.Port))
	}

	// カメラ設定の検証
	if c.Camera.Width <= 0 || c.Camera.Width > 4096 {
		errs = append(errs, fmt.Errorf("無効な幅: %d", c.Camera.Width))
	}
	if c.Camera.Height <= 0 || c.Camera.Height > 4096 {
		errs = append(errs, fmt.Errorf("無効な高さ: %d", c.Camera.Height))
	}
	if c.Camera.FPS <= 0 || c.Camera.FPS > 120 {
		errs = append(errs, fmt.Errorf("無効なFPS値: %d", c.Camera.FPS))
	}
	if c.Camera.Orientation != OrientationPortrait && c.Camera.Orientation != OrientationLandscape {
		errs = append(errs, fmt.Errorf("無効な画面の向き: %q", c.Camera.Orientation))
	}
	if _, err := c.MainFacing(); err != nil {
		errs = append(errs, err)
	}
	if c.Camera.OpenTimeout <= 0 {
		errs = append(errs, fmt.Errorf("無効なオープンタイムアウト: %s", c.Camera.OpenTimeout))
	}
	if c.Camera.ConfigureTimeout <= 0 {
		errs = append(errs, fmt.Errorf("無効な構成タイムアウト: %s", c.Camera.ConfigureTimeout))
	}

	if _, err := pipeline.ParseWaitMode(c.Pipeline.WaitMode); err != nil {
		errs = append(errs, err)
	}

	if c.Capture.JPEGQuality < 1 || c.Capture.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("無効なJPEG品質: %d", c.Capture.JPEGQuality))
	}

	if c.Timelapse.Enabled {
		if c.Timelapse.CaptureInterval <= 0 {
			errs = append(errs, fmt.Errorf("無効なタイムラプス撮影間隔: %s", c.Timelapse.CaptureInterval))
		}
		if c.Timelapse.Quality < 1 || c.Timelapse.Quality > 100 {
			errs = append(errs, fmt.Errorf("無効なタイムラプスのJPEG品質: %d", c.Timelapse.Quality))
		}
		if c.Timelapse.OutputDir == "" {
			errs = append(errs, errors.New("タイムラプスの保存先がありません"))
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("無効なログレベル: %q", c.Log.Level))
	}

	return errors.Join(errs...)
}

// Landscape は横向きかどうかを返す
func (c *Config) Landscape() bool {
	return c.Camera.Orientation == OrientationLandscape
}

// MainFacing はメイン映像に使うカメラの向きを返す
func (c *Config) MainFacing() (camera.Facing, error) {
	switch c.Camera.MainFacing {
	case "back", "":
		return camera.FacingBack, nil
	case "front":
		return camera.FacingFront, nil
	default:
		return camera.FacingBack, fmt.Errorf("無効なメインカメラの向き: %q", c.Camera.MainFacing)
	}
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

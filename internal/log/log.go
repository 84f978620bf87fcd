// Package log はアプリケーション全体で使う構造化ロガーを提供する
//
// slog をラップし、レベル指定と出力形式の切り替えだけを受け持つ。
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// Init はグローバルロガーを初期化する
// 有効なレベル: "debug", "info", "warn", "error"
func Init(level string) {
	once.Do(func() {
		logger = newLogger(os.Stdout, level, os.Getenv("GO_ENV") == "production")
		slog.SetDefault(logger)
	})
}

// newLogger は出力先とレベルからロガーを作成する
func newLogger(w io.Writer, level string, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	// 本番はJSON、開発中はテキスト
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel はレベル文字列を slog.Level に変換する
// 不明な値は info として扱う
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L はグローバルロガーを返す
func L() *slog.Logger {
	if logger == nil {
		Init("info")
	}
	return logger
}

// Discard は何も出力しないロガーを返す（テスト用）
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Debug は debug レベルで出力する
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info は info レベルで出力する
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn は warn レベルで出力する
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error は error レベルで出力する
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With は属性付きのロガーを返す
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"multicamera/internal/camera"
	"multicamera/internal/config"
	"multicamera/internal/log"
	"multicamera/internal/pipeline"
	"multicamera/internal/sink"
	"multicamera/internal/timelapse"
)

// Controller はHTTPハンドラから操作するパイプライン
type Controller interface {
	Status() pipeline.Status
	Cameras() []camera.Info
	Camera(role camera.Role) (camera.Info, error)
	Zoom(role camera.Role, ratio float32) error
	ZoomRange(role camera.Role) (camera.ZoomRange, error)
}

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	engine     *gin.Engine
	httpServer *http.Server
	logger     *slog.Logger

	controller Controller
	preview    *sink.Preview
	still      *sink.Still
	recorder   *timelapse.Recorder

	// statusInterval は WebSocket でステータスを送る間隔
	statusInterval time.Duration

	closing   chan struct{}
	closeOnce sync.Once
}

// New は新しいServerインスタンスを作成する
// recorder は nil でもよい
func New(cfg *config.Config, controller Controller, preview *sink.Preview, still *sink.Still, recorder *timelapse.Recorder) *Server {
	if os.Getenv("GO_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	s := &Server{
		config:         cfg,
		engine:         engine,
		logger:         log.With("component", "server"),
		controller:     controller,
		preview:        preview,
		still:          still,
		recorder:       recorder,
		statusInterval: time.Second,
		closing:        make(chan struct{}),
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	engine.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	// ヘルスチェックエンドポイント
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/cameras", s.handleCameras)
		api.GET("/cameras/:role", s.handleCamera)
		api.GET("/cameras/:role/zoom", s.handleGetZoom)
		api.PUT("/cameras/:role/zoom", s.handlePutZoom)
		api.GET("/stream", s.handleStream)
		api.GET("/capture", s.handleCapture)
		api.GET("/timelapse", s.handleTimelapse)
		api.GET("/ws", s.handleWebSocket)
	}

	// ルートハンドラ（簡単な確認用）
	s.engine.GET("/", s.handleRoot)
}

// requestLogger はリクエストごとにアクセスログを出力するミドルウェア
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// Handler はルーティング済みの http.Handler を返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start はサーバーを起動する
// ctx のキャンセルかシグナルの受信でグレースフルシャットダウンする
func (s *Server) Start(ctx context.Context) error {
	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		s.logger.Info("HTTPサーバーを起動しています", "addr", s.config.ServerAddress())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		s.logger.Info("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		s.logger.Info("シグナルを受信しました", "signal", sig.String())
	case err := <-shutdownCh:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
// 配信中のストリームと WebSocket は先に打ち切る
func (s *Server) Shutdown() error {
	s.logger.Info("サーバーをシャットダウンしています...")
	s.closeOnce.Do(func() { close(s.closing) })

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	s.logger.Info("サーバーが正常にシャットダウンされました")
	return nil
}

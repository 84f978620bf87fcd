package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"multicamera/internal/camera"
	"multicamera/internal/pipeline"
	"multicamera/internal/sink"
	"multicamera/internal/timelapse"
)

// ErrorResponse はエラー時のレスポンス
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Details   *string   `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse はヘルスチェックのレスポンス
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// CamerasResponse はカメラ一覧のレスポンス
type CamerasResponse struct {
	Cameras []camera.Info `json:"cameras"`
}

// ZoomRequest はズーム変更のリクエスト
type ZoomRequest struct {
	Ratio float32 `json:"ratio" binding:"required,gt=0"`
}

// ZoomResponse はズーム倍率と対応範囲
type ZoomResponse struct {
	Role      camera.Role      `json:"role"`
	Ratio     float32          `json:"ratio"`
	Range     camera.ZoomRange `json:"range"`
	Available bool             `json:"available"`
}

// TimelapseResponse はタイムラプスの状態と保存済みの静止画
type TimelapseResponse struct {
	Status timelapse.StatusInfo `json:"status"`
	Photos []timelapse.Photo    `json:"photos"`
}

const (
	// writeWait は WebSocket の書き込み待ち時間
	writeWait = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// abort はエラーレスポンスを返して処理を打ち切る
func abort(c *gin.Context, status int, code, message string, err error) {
	resp := ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	}
	if err != nil {
		details := err.Error()
		resp.Details = &details
	}
	c.AbortWithStatusJSON(status, resp)
}

// role はパスパラメータからカメラの役割を取り出す
func role(c *gin.Context) (camera.Role, bool) {
	r, ok := camera.ParseRole(c.Param("role"))
	if !ok {
		abort(c, http.StatusNotFound, "camera_not_found", "指定されたカメラが見つかりません", nil)
	}
	return r, ok
}

// handleHealth はヘルスチェックエンドポイント
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// handleStatus はパイプラインの状態を返す
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.controller.Status())
}

// handleCameras はカメラ一覧を返す
func (s *Server) handleCameras(c *gin.Context) {
	c.JSON(http.StatusOK, CamerasResponse{Cameras: s.controller.Cameras()})
}

// handleCamera は指定した役割のカメラ情報を返す
func (s *Server) handleCamera(c *gin.Context) {
	r, ok := role(c)
	if !ok {
		return
	}
	info, err := s.controller.Camera(r)
	if err != nil {
		abort(c, http.StatusNotFound, "camera_not_found", "指定されたカメラが見つかりません", err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// handleGetZoom は現在のズーム倍率と対応範囲を返す
func (s *Server) handleGetZoom(c *gin.Context) {
	r, ok := role(c)
	if !ok {
		return
	}
	s.respondZoom(c, r)
}

// handlePutZoom はズーム倍率を変更する
func (s *Server) handlePutZoom(c *gin.Context) {
	r, ok := role(c)
	if !ok {
		return
	}

	var req ZoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid_request", "リクエストが不正です", err)
		return
	}

	if err := s.controller.Zoom(r, req.Ratio); err != nil {
		switch {
		case errors.Is(err, pipeline.ErrZoomOutOfRange):
			abort(c, http.StatusBadRequest, "zoom_out_of_range", "ズーム倍率が範囲外です", err)
		case errors.Is(err, pipeline.ErrUnknownRole):
			abort(c, http.StatusNotFound, "camera_not_found", "指定されたカメラが見つかりません", err)
		default:
			abort(c, http.StatusInternalServerError, "zoom_failed", "ズームの変更に失敗しました", err)
		}
		return
	}

	s.logger.Info("ズーム倍率を変更しました", "role", r, "ratio", req.Ratio)
	s.respondZoom(c, r)
}

func (s *Server) respondZoom(c *gin.Context, r camera.Role) {
	info, err := s.controller.Camera(r)
	if err != nil {
		abort(c, http.StatusNotFound, "camera_not_found", "指定されたカメラが見つかりません", err)
		return
	}
	zr, err := s.controller.ZoomRange(r)
	if err != nil {
		abort(c, http.StatusNotFound, "camera_not_found", "指定されたカメラが見つかりません", err)
		return
	}
	c.JSON(http.StatusOK, ZoomResponse{
		Role:      r,
		Ratio:     info.ZoomRatio,
		Range:     zr,
		Available: zr.Available(),
	})
}

// handleStream は合成映像を MJPEG で配信する
func (s *Server) handleStream(c *gin.Context) {
	if s.preview == nil {
		abort(c, http.StatusServiceUnavailable, "preview_unavailable", "プレビューが有効ではありません", nil)
		return
	}

	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Status(http.StatusOK)

	writer := c.Writer
	frames, cancel := s.preview.Subscribe()
	defer cancel()

	// クライアント切断を検知するためのコンテキスト
	clientGone := c.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			return
		case <-s.closing:
			return
		case frame := <-frames:
			if err := writeMJPEGPart(writer, frame); err != nil {
				s.logger.Debug("ストリームの書き込みに失敗", "error", err)
				return
			}
			writer.Flush()
		}
	}
}

// writeMJPEGPart は multipart の1パートを書き込む
func writeMJPEGPart(w gin.ResponseWriter, frame []byte) error {
	header := fmt.Sprintf("--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame))
	if _, err := w.Write([]byte(header)); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}

// handleCapture は最新の合成フレームを JPEG で返す
func (s *Server) handleCapture(c *gin.Context) {
	if s.still == nil {
		abort(c, http.StatusServiceUnavailable, "capture_unavailable", "静止画出力が有効ではありません", nil)
		return
	}

	data, at, err := s.still.Capture()
	if err != nil {
		if errors.Is(err, sink.ErrNoFrame) {
			abort(c, http.StatusServiceUnavailable, "no_frame", "まだ合成フレームがありません", nil)
			return
		}
		abort(c, http.StatusInternalServerError, "capture_failed", "静止画の取得に失敗しました", err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Last-Modified", at.UTC().Format(http.TimeFormat))
	c.Data(http.StatusOK, "image/jpeg", data)
}

// handleTimelapse はタイムラプスの状態を返す
func (s *Server) handleTimelapse(c *gin.Context) {
	if s.recorder == nil {
		abort(c, http.StatusServiceUnavailable, "timelapse_unavailable", "タイムラプスが有効ではありません", nil)
		return
	}

	photos, err := s.recorder.Photos()
	if err != nil {
		abort(c, http.StatusInternalServerError, "timelapse_failed", "静止画一覧の取得に失敗しました", err)
		return
	}
	c.JSON(http.StatusOK, TimelapseResponse{
		Status: s.recorder.Status(),
		Photos: photos,
	})
}

// handleWebSocket はパイプラインの状態を定期的に送る
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocketのアップグレードに失敗", "error", err)
		return
	}
	defer conn.Close()

	// 受信は切断の検知にだけ使う
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.statusInterval)
	defer ticker.Stop()

	for {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(s.controller.Status()); err != nil {
			return
		}

		select {
		case <-gone:
			return
		case <-s.closing:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"))
			return
		case <-ticker.C:
		}
	}
}

// handleRoot はルートパスのハンドラ
func (s *Server) handleRoot(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(`<!DOCTYPE html>
<html lang="ja">
<head>
    <meta charset="UTF-8">
    <title>Multicamera - ピクチャーインピクチャー合成</title>
</head>
<body>
    <h1>Multicamera</h1>
    <p>背面カメラと前面カメラを1つの映像に合成しています。</p>
    <img src="/api/stream" alt="preview">
    <p>静止画: <a href="/api/capture">/api/capture</a></p>
    <p>カメラ: <a href="/api/cameras">/api/cameras</a></p>
    <p>ステータス: <a href="/api/status">/api/status</a></p>
    <p>ヘルスチェック: <a href="/health">/health</a></p>
</body>
</html>`))
}

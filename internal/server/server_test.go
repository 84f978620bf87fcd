package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"multicamera/internal/camera"
	"multicamera/internal/config"
	"multicamera/internal/pipeline"
	"multicamera/internal/sink"
	"multicamera/internal/timelapse"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeController はテスト用のパイプライン
type fakeController struct {
	mu      sync.Mutex
	cameras map[camera.Role]*camera.Info
}

func newFakeController() *fakeController {
	return &fakeController{
		cameras: map[camera.Role]*camera.Info{
			camera.RoleMain: {
				ID: "0", Role: camera.RoleMain, Facing: "back", State: "streaming",
				ZoomRatio: 1.0, ZoomRange: camera.ZoomRange{Min: 0.67, Max: 20.0},
			},
			camera.RoleSub: {
				ID: "1", Role: camera.RoleSub, Facing: "front", State: "streaming",
				ZoomRatio: 1.0,
			},
		},
	}
}

func (f *fakeController) Status() pipeline.Status {
	return pipeline.Status{ID: "test", State: pipeline.StateRunning, Cameras: f.Cameras()}
}

func (f *fakeController) Cameras() []camera.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	return []camera.Info{*f.cameras[camera.RoleMain], *f.cameras[camera.RoleSub]}
}

func (f *fakeController) Camera(role camera.Role) (camera.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.cameras[role]
	if !ok {
		return camera.Info{}, pipeline.ErrUnknownRole
	}
	return *info, nil
}

func (f *fakeController) Zoom(role camera.Role, ratio float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.cameras[role]
	if !ok {
		return pipeline.ErrUnknownRole
	}
	if !info.ZoomRange.Available() || !info.ZoomRange.Contains(ratio) {
		return fmt.Errorf("%v: %w", ratio, pipeline.ErrZoomOutOfRange)
	}
	info.ZoomRatio = ratio
	return nil
}

func (f *fakeController) ZoomRange(role camera.Role) (camera.ZoomRange, error) {
	info, err := f.Camera(role)
	return info.ZoomRange, err
}

func testConfig(port int) *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = port
	cfg.Server.ReadTimeout = 5 * time.Second
	return cfg
}

func testFrame() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	return img
}

func newTestServer() (*Server, *sink.Preview, *sink.Still) {
	preview := sink.NewPreview(sink.DefaultQuality)
	still := sink.NewStill(sink.DefaultQuality)
	srv := New(testConfig(0), newFakeController(), preview, still, nil)
	srv.statusInterval = 20 * time.Millisecond
	return srv, preview, still
}

// TestServerStartAndShutdown はサーバーの起動とシャットダウンをテストする
func TestServerStartAndShutdown(t *testing.T) {
	srv, _, _ := newTestServer()

	// テスト用のコンテキスト（タイムアウト付き）
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// サーバーを別ゴルーチンで起動
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	// サーバーが起動するまで少し待つ
	time.Sleep(100 * time.Millisecond)

	// コンテキストをキャンセルしてサーバーを停止
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("サーバーの起動/停止でエラーが発生しました: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("サーバーの停止がタイムアウトしました")
	}
}

// TestServerEndpoints はサーバーのエンドポイントをテストする
func TestServerEndpoints(t *testing.T) {
	srv, _, _ := newTestServer()

	tests := []struct {
		name           string
		method         string
		path           string
		body           string
		expectedStatus int
		expectedBody   string
	}{
		{"ヘルスチェック", http.MethodGet, "/health", "", http.StatusOK, `"status":"healthy"`},
		{"ステータス", http.MethodGet, "/api/status", "", http.StatusOK, `"state":"running"`},
		{"カメラ一覧", http.MethodGet, "/api/cameras", "", http.StatusOK, `"facing":"front"`},
		{"カメラ情報", http.MethodGet, "/api/cameras/main", "", http.StatusOK, `"facing":"back"`},
		{"未知のカメラ", http.MethodGet, "/api/cameras/wide", "", http.StatusNotFound, `"camera_not_found"`},
		{"ズーム取得", http.MethodGet, "/api/cameras/main/zoom", "", http.StatusOK, `"available":true`},
		{"ズーム範囲なし", http.MethodGet, "/api/cameras/sub/zoom", "", http.StatusOK, `"available":false`},
		{"ズーム変更", http.MethodPut, "/api/cameras/main/zoom", `{"ratio":2.5}`, http.StatusOK, `"ratio":2.5`},
		{"ズーム範囲外", http.MethodPut, "/api/cameras/main/zoom", `{"ratio":30}`, http.StatusBadRequest, `"zoom_out_of_range"`},
		{"範囲を報告しないカメラ", http.MethodPut, "/api/cameras/sub/zoom", `{"ratio":1}`, http.StatusBadRequest, `"zoom_out_of_range"`},
		{"不正なボディ", http.MethodPut, "/api/cameras/main/zoom", `{"ratio":`, http.StatusBadRequest, `"invalid_request"`},
		{"倍率なし", http.MethodPut, "/api/cameras/main/zoom", `{}`, http.StatusBadRequest, `"invalid_request"`},
		{"未知のカメラのズーム", http.MethodPut, "/api/cameras/wide/zoom", `{"ratio":1}`, http.StatusNotFound, `"camera_not_found"`},
		{"静止画なし", http.MethodGet, "/api/capture", "", http.StatusServiceUnavailable, `"no_frame"`},
		{"タイムラプスなし", http.MethodGet, "/api/timelapse", "", http.StatusServiceUnavailable, `"timelapse_unavailable"`},
		{"ルート", http.MethodGet, "/", "", http.StatusOK, "Multicamera"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Errorf("ステータスコードが一致しません: got %d, want %d (%s)", rec.Code, tt.expectedStatus, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.expectedBody) {
				t.Errorf("レスポンスに %s が含まれていません: %s", tt.expectedBody, rec.Body.String())
			}
		})
	}
}

// TestCaptureEndpoint は静止画の取得をテストする
func TestCaptureEndpoint(t *testing.T) {
	srv, _, still := newTestServer()
	still.Present(testFrame())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/capture", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("ステータスコードが一致しません: got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Typeが一致しません: %s", ct)
	}
	// JPEG の SOI マーカー
	if b := rec.Body.Bytes(); len(b) < 2 || b[0] != 0xff || b[1] != 0xd8 {
		t.Error("JPEGではありません")
	}
}

// TestTimelapseEndpoint はタイムラプスの状態取得をテストする
func TestTimelapseEndpoint(t *testing.T) {
	preview := sink.NewPreview(0)
	still := sink.NewStill(0)
	tlCfg := timelapse.DefaultConfig()
	tlCfg.Enabled = true
	tlCfg.OutputDir = t.TempDir()
	recorder := timelapse.NewRecorder(still, tlCfg)
	srv := New(testConfig(0), newFakeController(), preview, still, recorder)

	still.Present(testFrame())
	if err := recorder.CaptureOnce(); err != nil {
		t.Fatalf("CaptureOnce failed: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/timelapse", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ステータスコードが一致しません: got %d", rec.Code)
	}

	var resp TimelapseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("JSONの解析に失敗しました: %v", err)
	}
	if len(resp.Photos) != 1 || resp.Status.Captured != 1 {
		t.Errorf("タイムラプスの状態が一致しません: %+v", resp)
	}
}

// TestStreamEndpoint は MJPEG 配信をテストする
func TestStreamEndpoint(t *testing.T) {
	srv, preview, _ := newTestServer()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				preview.Present(testFrame())
			}
		}
	}()

	resp, err := http.Get(ts.URL + "/api/stream")
	if err != nil {
		t.Fatalf("リクエストに失敗しました: %v", err)
	}
	defer resp.Body.Close()

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "multipart/x-mixed-replace") {
		t.Errorf("Content-Typeが一致しません: %s", resp.Header.Get("Content-Type"))
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("読み込みに失敗しました: %v", err)
	}
	if strings.TrimSpace(line) != "--frame" {
		t.Errorf("境界文字列が一致しません: %q", line)
	}
	if preview.Subscribers() != 1 {
		t.Errorf("購読者数が一致しません: %d", preview.Subscribers())
	}
}

// TestWebSocketStatus は WebSocket でステータスが届くことをテストする
func TestWebSocketStatus(t *testing.T) {
	srv, _, _ := newTestServer()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("接続に失敗しました: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < 2; i++ {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("受信に失敗しました: %v", err)
		}
		var status pipeline.Status
		if err := json.Unmarshal(data, &status); err != nil {
			t.Fatalf("JSONの解析に失敗しました: %v", err)
		}
		if status.State != pipeline.StateRunning || len(status.Cameras) != 2 {
			t.Errorf("ステータスが一致しません: %+v", status)
		}
	}
}

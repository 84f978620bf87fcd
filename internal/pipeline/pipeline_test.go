package pipeline

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"multicamera/internal/camera"
	"multicamera/internal/gles"
	"multicamera/internal/gles/soft"
	"multicamera/internal/log"
)

// countingWindow は表示回数と最後のフレームを記録する
type countingWindow struct {
	mu       sync.Mutex
	presents int
	bounds   image.Rectangle
}

func (w *countingWindow) Present(img *image.RGBA) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.presents++
	w.bounds = img.Bounds()
}

func (w *countingWindow) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.presents
}

func newTestPipeline(t *testing.T, cfg Config) (*Pipeline, *camera.VirtualPlatform, *countingWindow, *countingWindow) {
	t.Helper()
	platform := camera.NewVirtualPlatform(60)
	t.Cleanup(platform.Stop)

	preview := &countingWindow{}
	capture := &countingWindow{}
	if cfg.Width == 0 {
		cfg.Width, cfg.Height = 32, 18
	}
	cfg.Logger = log.Discard()
	cfg.OpenTimeout = time.Second
	cfg.ConfigureTimeout = time.Second

	p := New(platform, soft.NewDisplay(), Outputs{Preview: preview, Capture: capture}, cfg)
	return p, platform, preview, capture
}

func TestPipeline_EndToEnd(t *testing.T) {
	p, platform, preview, capture := newTestPipeline(t, Config{})

	if p.Status().State != StateIdle {
		t.Errorf("Expected idle, got %s", p.Status().State)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := p.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Expected ErrAlreadyStarted, got %v", err)
	}

	waitFor(t, func() bool { return preview.count() > 3 && capture.count() > 3 })

	status := p.Status()
	if status.State != StateRunning {
		t.Errorf("Expected running, got %s", status.State)
	}
	// 縦向きは幅と高さを入れ替える
	if status.Width != 18 || status.Height != 32 {
		t.Errorf("Expected 18x32 output, got %dx%d", status.Width, status.Height)
	}
	if len(status.Cameras) != 2 {
		t.Fatalf("Expected 2 cameras, got %d", len(status.Cameras))
	}
	for _, c := range status.Cameras {
		if c.State != "streaming" {
			t.Errorf("Camera %s expected streaming, got %s", c.Role, c.State)
		}
	}
	if status.Stats.Consumed > status.Stats.Available {
		t.Errorf("Invariant violated: %+v", status.Stats)
	}

	main, err := p.Camera(camera.RoleMain)
	if err != nil {
		t.Fatalf("Camera(main) failed: %v", err)
	}
	if main.Facing != "back" {
		t.Errorf("Expected back camera as main, got %s", main.Facing)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if p.Status().State != StateStopped {
		t.Errorf("Expected stopped, got %s", p.Status().State)
	}
	if platform.OpenDevices() != 0 {
		t.Errorf("Expected all devices closed, got %d", platform.OpenDevices())
	}

	// 停止後は描画されない
	before := preview.count()
	time.Sleep(50 * time.Millisecond)
	if preview.count() != before {
		t.Errorf("Presented after close: %d → %d", before, preview.count())
	}

	if err := p.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
}

func TestPipeline_Zoom(t *testing.T) {
	p, _, _, _ := newTestPipeline(t, Config{Landscape: true})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Close()

	tests := []struct {
		name    string
		role    camera.Role
		ratio   float32
		wantErr error
	}{
		{"範囲内", camera.RoleMain, 2.0, nil},
		{"最小値", camera.RoleMain, 0.67, nil},
		{"範囲外", camera.RoleMain, 25, ErrZoomOutOfRange},
		{"範囲を報告しないカメラ", camera.RoleSub, 1.0, ErrZoomOutOfRange},
		{"未登録の役割", camera.Role("wide"), 1.0, ErrUnknownRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Zoom(tt.role, tt.ratio)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Zoom failed: %v", err)
				}
				info, _ := p.Camera(tt.role)
				if info.ZoomRatio != tt.ratio {
					t.Errorf("Expected zoom %v, got %v", tt.ratio, info.ZoomRatio)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	r, err := p.ZoomRange(camera.RoleMain)
	if err != nil || r != (camera.ZoomRange{Min: 0.67, Max: 20.0}) {
		t.Errorf("Unexpected zoom range %v, %v", r, err)
	}
	if status := p.Status(); status.Rotation != 90 || status.Width != 32 {
		t.Errorf("Expected landscape 32 wide with rotation 90, got %+v", status)
	}
}

func TestPipeline_CameraFailureKeepsRunning(t *testing.T) {
	p, platform, preview, _ := newTestPipeline(t, Config{})
	platform.SetOpenError("1", 2)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Close()

	// 前面カメラが開けなくても背面カメラだけで合成が続く
	waitFor(t, func() bool { return preview.count() > 2 })
	sub, _ := p.Camera(camera.RoleSub)
	if sub.State != "closed" {
		t.Errorf("Expected failed sub camera closed, got %s", sub.State)
	}
}

// brokenDisplay はサーフェスを作れない Display
type brokenDisplay struct{}

func (brokenDisplay) CreateWindowSurface(gles.NativeWindow, int, int) (gles.Surface, error) {
	return nil, errors.New("no EGL display")
}

func TestPipeline_SetupFailure(t *testing.T) {
	platform := camera.NewVirtualPlatform(30)
	defer platform.Stop()

	p := New(platform, brokenDisplay{}, Outputs{Preview: &countingWindow{}, Capture: &countingWindow{}}, Config{
		Width: 8, Height: 8, Logger: log.Discard(),
	})
	if err := p.Start(context.Background()); err == nil {
		t.Fatal("Expected setup failure")
	}
	<-p.Done()
	if p.Status().State != StateFailed || p.Err() == nil {
		t.Errorf("Expected failed state with error, got %s %v", p.Status().State, p.Err())
	}
	if platform.OpenDevices() != 0 {
		t.Errorf("Expected no camera opened, got %d", platform.OpenDevices())
	}
}

func TestPipeline_ParentContextStops(t *testing.T) {
	p, _, _, _ := newTestPipeline(t, Config{WaitMode: WaitPoll})
	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	cancel()

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Pipeline did not stop on parent cancellation")
	}
	if p.Err() != nil {
		t.Errorf("Expected clean stop, got %v", p.Err())
	}
}

func TestConfig_OutputSize(t *testing.T) {
	tests := []struct {
		name      string
		landscape bool
		w, h      int
	}{
		{"縦向き", false, 720, 1280},
		{"横向き", true, 1280, 720},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := Config{Width: 1280, Height: 720, Landscape: tt.landscape}.OutputSize()
			if w != tt.w || h != tt.h {
				t.Errorf("Expected %dx%d, got %dx%d", tt.w, tt.h, w, h)
			}
		})
	}
}

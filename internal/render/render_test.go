package render

import (
	"errors"
	"image"
	"image/color"
	"math"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"multicamera/internal/frame"
	"multicamera/internal/gles"
	"multicamera/internal/gles/soft"
)

type captureWindow struct {
	mu   sync.Mutex
	last *image.RGBA
}

func (w *captureWindow) Present(img *image.RGBA) {
	w.mu.Lock()
	defer w.mu.Unlock()
	cp := image.NewRGBA(img.Bounds())
	copy(cp.Pix, img.Pix)
	w.last = cp
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func approx(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-5
}

func TestSubLayerMVP_Placement(t *testing.T) {
	tests := []struct {
		name     string
		rotation float32
	}{
		{"縦向き", 0},
		{"横向き", 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := SubLayerMVP(tt.rotation)
			minX, minY := float32(math.MaxFloat32), float32(math.MaxFloat32)
			maxX, maxY := float32(-math.MaxFloat32), float32(-math.MaxFloat32)
			for i := 0; i < len(quadVertices); i += vertexStride {
				v := m.Mul4x1(mgl32.Vec4{quadVertices[i], quadVertices[i+1], quadVertices[i+2], 1})
				minX, maxX = min(minX, v.X()), max(maxX, v.X())
				minY, maxY = min(minY, v.Y()), max(maxY, v.Y())
			}
			// 右上の 30% 領域
			if !approx(minX, 0.4) || !approx(maxX, 1) || !approx(minY, 0.4) || !approx(maxY, 1) {
				t.Errorf("Expected [0.4,1]x[0.4,1], got [%v,%v]x[%v,%v]", minX, maxX, minY, maxY)
			}
		})
	}
}

func TestMainLayerMVP_Rotation(t *testing.T) {
	if MainLayerMVP(Rotation(false)) != mgl32.Ident4() {
		t.Error("Expected identity for portrait")
	}

	v := MainLayerMVP(Rotation(true)).Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	if !approx(v.X(), 0) || !approx(v.Y(), 1) {
		t.Errorf("Expected (0,1) after 90 degree rotation, got (%v,%v)", v.X(), v.Y())
	}
}

func newTarget(t *testing.T, size int, rotation float32) (*Target, *captureWindow) {
	t.Helper()
	window := &captureWindow{}
	surface, err := soft.NewDisplay().CreateWindowSurface(window, size, size)
	if err != nil {
		t.Fatalf("CreateWindowSurface failed: %v", err)
	}
	return NewTarget("preview", surface, rotation), window
}

func TestTarget_Composite(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}

	for _, rotation := range []float32{0, 90} {
		target, window := newTarget(t, 20, rotation)
		if err := target.Setup(8, 8); err != nil {
			t.Fatalf("Setup failed: %v", err)
		}

		mainSrc, subSrc := target.Sources()
		mainSrc.QueueFrame(solid(8, 8, red), frame.Identity)
		subSrc.QueueFrame(solid(8, 8, blue), frame.Identity)

		if err := target.MakeCurrent(); err != nil {
			t.Fatalf("MakeCurrent failed: %v", err)
		}
		if err := target.DrawFrame(); err != nil {
			t.Fatalf("DrawFrame failed: %v", err)
		}
		if err := target.SwapBuffers(); err != nil {
			t.Fatalf("SwapBuffers failed: %v", err)
		}

		out := window.last
		if out == nil {
			t.Fatal("Expected a presented frame")
		}
		// ワイプは右上、それ以外はメイン映像
		checks := []struct {
			x, y int
			want color.RGBA
		}{
			{10, 10, red},
			{2, 2, red},
			{2, 17, red},
			{17, 2, blue},
			{15, 5, blue},
		}
		for _, c := range checks {
			if got := out.RGBAAt(c.x, c.y); got != c.want {
				t.Errorf("rotation=%v: pixel (%d,%d) expected %v, got %v", rotation, c.x, c.y, c.want, got)
			}
		}

		if mainSrc.LatchedCount() != 1 || subSrc.LatchedCount() != 1 {
			t.Errorf("Expected each source latched once, got main=%d sub=%d", mainSrc.LatchedCount(), subSrc.LatchedCount())
		}
		if err := target.Release(); err != nil {
			t.Errorf("Release failed: %v", err)
		}
	}
}

func TestTarget_RedrawKeepsLastFrame(t *testing.T) {
	target, window := newTarget(t, 10, 0)
	if err := target.Setup(4, 4); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	mainSrc, subSrc := target.Sources()
	green := color.RGBA{G: 255, A: 255}
	mainSrc.QueueFrame(solid(4, 4, green), frame.Identity)
	subSrc.QueueFrame(solid(4, 4, green), frame.Identity)

	for i := 0; i < 2; i++ {
		if err := target.DrawFrame(); err != nil {
			t.Fatalf("DrawFrame %d failed: %v", i, err)
		}
	}
	_ = target.SwapBuffers()

	// 新しいフレームが無くても前回ラッチした内容で描画される
	if got := window.last.RGBAAt(3, 7); got != green {
		t.Errorf("Expected green, got %v", got)
	}
}

func TestTarget_ReleaseOnce(t *testing.T) {
	target, _ := newTarget(t, 4, 0)
	if err := target.Setup(2, 2); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	mainSrc, _ := target.Sources()

	if err := target.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := target.Release(); err != nil {
		t.Errorf("Second Release should be no-op, got %v", err)
	}
	if err := target.MakeCurrent(); !errors.Is(err, gles.ErrSurfaceReleased) {
		t.Errorf("Expected ErrSurfaceReleased, got %v", err)
	}
	if err := mainSrc.UpdateTexImage(); !errors.Is(err, frame.ErrReleased) {
		t.Errorf("Expected sources released, got %v", err)
	}
}

// missingUniformAPI は指定した uniform を見つけられない GL
type missingUniformAPI struct {
	gles.API
	name string
}

func (m missingUniformAPI) GetUniformLocation(program uint32, name string) int32 {
	if name == m.name {
		return -1
	}
	return m.API.GetUniformLocation(program, name)
}

// failingLayer はラッチに失敗する映像ソース
type failingLayer struct{ err error }

func (f failingLayer) UpdateTexImage() error        { return f.err }
func (f failingLayer) TransformMatrix() [16]float32 { return frame.Identity }

func newCurrentAPI(t *testing.T) gles.API {
	t.Helper()
	surface, err := soft.NewDisplay().CreateWindowSurface(&captureWindow{}, 4, 4)
	if err != nil {
		t.Fatalf("CreateWindowSurface failed: %v", err)
	}
	if err := surface.MakeCurrent(); err != nil {
		t.Fatalf("MakeCurrent failed: %v", err)
	}
	return surface.API()
}

func TestCompositor_SetupMissingUniform(t *testing.T) {
	api := missingUniformAPI{API: newCurrentAPI(t), name: "uDrawMainCamera"}
	c := NewCompositor(api, 0)

	_, _, err := c.Setup()
	var setupErr *SetupError
	if !errors.As(err, &setupErr) {
		t.Fatalf("Expected *SetupError, got %v", err)
	}
	if !errors.Is(err, ErrMissingLocation) {
		t.Errorf("Expected ErrMissingLocation, got %v", err)
	}
	if err := c.DrawFrame(); !errors.Is(err, ErrNotSetup) {
		t.Errorf("Expected ErrNotSetup, got %v", err)
	}
}

func TestCompositor_Lifecycle(t *testing.T) {
	api := newCurrentAPI(t)
	c := NewCompositor(api, 0)

	if err := c.DrawFrame(); !errors.Is(err, ErrNotSetup) {
		t.Errorf("Expected ErrNotSetup, got %v", err)
	}
	mainTex, subTex, err := c.Setup()
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if mainTex == 0 || subTex == 0 || mainTex == subTex {
		t.Errorf("Expected two distinct textures, got %d, %d", mainTex, subTex)
	}
	if err := c.DrawFrame(); !errors.Is(err, ErrNoLayers) {
		t.Errorf("Expected ErrNoLayers, got %v", err)
	}

	latchErr := errors.New("latch failed")
	c.SetLayers(failingLayer{err: latchErr}, failingLayer{})
	if err := c.DrawFrame(); !errors.Is(err, latchErr) {
		t.Errorf("Expected latch error, got %v", err)
	}

	if err := c.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := c.Release(); err != nil {
		t.Errorf("Second Release should be no-op, got %v", err)
	}
	if err := c.DrawFrame(); !errors.Is(err, ErrReleased) {
		t.Errorf("Expected ErrReleased, got %v", err)
	}
	if _, _, err := c.Setup(); !errors.Is(err, ErrReleased) {
		t.Errorf("Expected ErrReleased from Setup, got %v", err)
	}
}

func TestCompositor_NotCurrent(t *testing.T) {
	display := soft.NewDisplay()
	a, _ := display.CreateWindowSurface(&captureWindow{}, 4, 4)
	b, _ := display.CreateWindowSurface(&captureWindow{}, 4, 4)
	_ = b.MakeCurrent()

	c := NewCompositor(a.API(), 0)
	_, _, err := c.Setup()
	var glErr *gles.Error
	if !errors.As(err, &glErr) {
		t.Fatalf("Expected *gles.Error, got %v", err)
	}
	if glErr.Code != gles.InvalidOperation {
		t.Errorf("Expected GL_INVALID_OPERATION, got %v", glErr.Code)
	}
}

// Package soft は gles の API を CPU 上で実装するソフトウェアレンダラ
//
// GPU やネイティブの EGL が無い環境（サーバー、CI）で合成パイプラインを動かすために使う。
// サーフェスごとに独立した Context を持ち、MakeCurrent されたものだけが GL 呼び出しを受け付ける。
package soft

import (
	"fmt"
	"image"
	"sync"

	"multicamera/internal/gles"
)

// Display はサーフェスとカレントコンテキストを管理する
type Display struct {
	mu      sync.Mutex
	current *Context
}

// NewDisplay は新しい Display を作成する
func NewDisplay() *Display {
	return &Display{}
}

var _ gles.Display = (*Display)(nil)

func (d *Display) isCurrent(c *Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current == c
}

func (d *Display) makeCurrent(c *Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = c
}

func (d *Display) releaseCurrent(c *Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == c {
		d.current = nil
	}
}

// CreateWindowSurface はウィンドウに出力するサーフェスを作成する
func (d *Display) CreateWindowSurface(window gles.NativeWindow, width, height int) (gles.Surface, error) {
	if window == nil {
		return nil, fmt.Errorf("soft: ウィンドウが指定されていません")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("soft: 無効なサーフェスサイズ: %dx%d", width, height)
	}

	back := image.NewRGBA(image.Rect(0, 0, width, height))
	return &Surface{
		display: d,
		window:  window,
		back:    back,
		ctx:     newContext(d, back),
	}, nil
}

// Surface はバックバッファを持つ描画先
type Surface struct {
	display *Display
	window  gles.NativeWindow
	back    *image.RGBA
	ctx     *Context

	mu       sync.Mutex
	released bool
	swaps    int
}

// API はこのサーフェスのコンテキストを返す
func (s *Surface) API() gles.API {
	return s.ctx
}

// Context は具象型のコンテキストを返す（テスト用）
func (s *Surface) Context() *Context {
	return s.ctx
}

// MakeCurrent はこのサーフェスのコンテキストをカレントにする
func (s *Surface) MakeCurrent() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return gles.ErrSurfaceReleased
	}
	s.display.makeCurrent(s.ctx)
	return nil
}

// SwapBuffers はバックバッファをウィンドウへ送る
func (s *Surface) SwapBuffers() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return gles.ErrSurfaceReleased
	}
	if !s.display.isCurrent(s.ctx) {
		return gles.ErrNoContext
	}
	s.window.Present(s.back)
	s.swaps++
	return nil
}

// Swaps は SwapBuffers の成功回数を返す
func (s *Surface) Swaps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swaps
}

// Release はサーフェスを破棄する。二回目以降は何もしない
func (s *Surface) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	s.display.releaseCurrent(s.ctx)
	return nil
}

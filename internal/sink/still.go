package sink

import (
	"image"
	"sync"
	"sync/atomic"
	"time"
)

// Still は最新の合成フレームを保持する表示先
type Still struct {
	quality int

	mu         sync.Mutex
	latest     *image.RGBA
	capturedAt time.Time

	frames atomic.Uint64
}

// NewStill は新しい Still を作成する
func NewStill(quality int) *Still {
	return &Still{quality: normalizeQuality(quality)}
}

// Present は合成フレームをコピーして保持する。レンダーゴルーチンから呼ばれる
// 渡された画像はバックバッファなので、そのまま保持しない
func (s *Still) Present(img *image.RGBA) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest == nil || s.latest.Bounds() != img.Bounds() {
		s.latest = image.NewRGBA(img.Bounds())
	}
	copy(s.latest.Pix, img.Pix)
	s.capturedAt = time.Now()
	s.frames.Add(1)
}

// Snapshot は最新の合成フレームのコピーと合成時刻を返す
func (s *Still) Snapshot() (*image.RGBA, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest == nil {
		return nil, time.Time{}, ErrNoFrame
	}
	img := image.NewRGBA(s.latest.Bounds())
	copy(img.Pix, s.latest.Pix)
	return img, s.capturedAt, nil
}

// Capture は最新の合成フレームを JPEG で返す
func (s *Still) Capture() ([]byte, time.Time, error) {
	img, at, err := s.Snapshot()
	if err != nil {
		return nil, time.Time{}, err
	}
	data, err := encodeJPEG(img, s.quality)
	if err != nil {
		return nil, time.Time{}, err
	}
	return data, at, nil
}

// Frames は受け取った合成フレーム数を返す
func (s *Still) Frames() uint64 {
	return s.frames.Load()
}

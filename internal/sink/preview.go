// Package sink は合成結果の表示先（gles.NativeWindow）を提供する
//
// Preview は合成フレームを JPEG にして購読者へ配信し（MJPEG ストリーム用）、
// Still は最新の合成フレームを保持して静止画として取り出せるようにする。
package sink

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"sync/atomic"
)

// DefaultQuality は JPEG の既定品質
const DefaultQuality = 80

// ErrNoFrame はまだ合成フレームが届いていない
var ErrNoFrame = errors.New("sink: フレームがまだありません")

// encodeJPEG は画像を JPEG にエンコードする
func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("JPEGエンコードに失敗: %w", err)
	}
	return buf.Bytes(), nil
}

func normalizeQuality(quality int) int {
	if quality <= 0 || quality > 100 {
		return DefaultQuality
	}
	return quality
}

// Preview は合成フレームを購読者へ配信する表示先
// 購読者がいない間はエンコードしない
type Preview struct {
	quality int

	mu          sync.Mutex
	subscribers map[chan []byte]struct{}
	latest      []byte

	frames  atomic.Uint64
	dropped atomic.Uint64
}

// NewPreview は新しい Preview を作成する
func NewPreview(quality int) *Preview {
	return &Preview{
		quality:     normalizeQuality(quality),
		subscribers: make(map[chan []byte]struct{}),
	}
}

// Present は合成フレームを受け取る。レンダーゴルーチンから呼ばれる
func (p *Preview) Present(img *image.RGBA) {
	p.frames.Add(1)

	p.mu.Lock()
	n := len(p.subscribers)
	p.mu.Unlock()
	if n == 0 {
		return
	}

	data, err := encodeJPEG(img, p.quality)
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest = data
	for ch := range p.subscribers {
		// 遅い購読者は古いフレームを捨てて最新だけを受け取る
		select {
		case ch <- data:
		default:
			select {
			case <-ch:
				p.dropped.Add(1)
			default:
			}
			select {
			case ch <- data:
			default:
			}
		}
	}
}

// Subscribe は JPEG フレームを受け取るチャンネルを返す
// 不要になったら cancel を呼ぶこと
func (p *Preview) Subscribe() (frames <-chan []byte, cancel func()) {
	ch := make(chan []byte, 1)

	p.mu.Lock()
	p.subscribers[ch] = struct{}{}
	if p.latest != nil {
		ch <- p.latest
	}
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subscribers, ch)
			p.mu.Unlock()
		})
	}
}

// Subscribers は現在の購読者数を返す
func (p *Preview) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subscribers)
}

// Frames は受け取った合成フレーム数を返す
func (p *Preview) Frames() uint64 {
	return p.frames.Load()
}

// Dropped は購読者が受け取れずに捨てたフレーム数を返す
func (p *Preview) Dropped() uint64 {
	return p.dropped.Load()
}

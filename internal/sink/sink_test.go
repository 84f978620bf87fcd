package sink

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"
)

func testFrame(c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestPreview_Subscribe(t *testing.T) {
	p := NewPreview(90)

	// 購読者がいなければエンコードしない
	p.Present(testFrame(color.RGBA{R: 255, A: 255}))
	if p.Frames() != 1 {
		t.Errorf("Expected 1 frame, got %d", p.Frames())
	}

	frames, cancel := p.Subscribe()
	if p.Subscribers() != 1 {
		t.Errorf("Expected 1 subscriber, got %d", p.Subscribers())
	}

	p.Present(testFrame(color.RGBA{G: 255, A: 255}))
	select {
	case data := <-frames:
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 8 {
			t.Errorf("Unexpected size: %v", img.Bounds())
		}
	case <-time.After(time.Second):
		t.Fatal("No frame delivered")
	}

	cancel()
	cancel()
	if p.Subscribers() != 0 {
		t.Errorf("Expected 0 subscribers after cancel, got %d", p.Subscribers())
	}
}

func TestPreview_SlowSubscriberGetsLatest(t *testing.T) {
	p := NewPreview(0)
	frames, cancel := p.Subscribe()
	defer cancel()

	for i := 0; i < 5; i++ {
		p.Present(testFrame(color.RGBA{B: uint8(i * 50), A: 255}))
	}

	if len(frames) != 1 {
		t.Errorf("Expected one buffered frame, got %d", len(frames))
	}
	if p.Dropped() != 4 {
		t.Errorf("Expected 4 dropped frames, got %d", p.Dropped())
	}

	// 新しい購読者には直近のフレームがすぐ届く
	late, cancelLate := p.Subscribe()
	defer cancelLate()
	if len(late) != 1 {
		t.Error("Expected latest frame for new subscriber")
	}
}

func TestStill_Capture(t *testing.T) {
	s := NewStill(DefaultQuality)

	if _, _, err := s.Capture(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("Expected ErrNoFrame, got %v", err)
	}

	frame := testFrame(color.RGBA{R: 200, A: 255})
	s.Present(frame)

	// 呼び出し元のバッファを書き換えても保持した内容は変わらない
	frame.SetRGBA(0, 0, color.RGBA{A: 255})
	snap, at, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.RGBAAt(0, 0) != (color.RGBA{R: 200, A: 255}) {
		t.Errorf("Snapshot aliased the back buffer: %v", snap.RGBAAt(0, 0))
	}
	if at.IsZero() {
		t.Error("Expected capture time")
	}

	data, _, err := s.Capture()
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("Capture is not a JPEG: %v", err)
	}
	if s.Frames() != 1 {
		t.Errorf("Expected 1 frame, got %d", s.Frames())
	}
}

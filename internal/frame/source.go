// Package frame はカメラ映像を受け取る外部テクスチャ（SurfaceTexture 相当）を提供する
//
// カメラ側（プラットフォームのワーカー）は QueueFrame で最新フレームを書き込み、
// 描画側（レンダースレッド）は UpdateTexImage で最新フレームをテクスチャにラッチする。
// 新しいフレームが届くたびに登録されたリスナーへ通知する。
package frame

import (
	"errors"
	"image"
	"sync"
	"sync/atomic"

	"multicamera/internal/gles"
)

// ErrReleased は解放済みの Source への操作
var ErrReleased = errors.New("frame: ソースは解放済みです")

// Identity は単位行列（列優先）
var Identity = [16]float32{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

// Source は GPU のテクスチャに結びついたフレームバッファ
type Source struct {
	api     gles.API
	texture uint32
	width   int
	height  int

	mu        sync.Mutex
	pending   image.Image
	pendingST [16]float32
	transform [16]float32
	listener  func()
	released  bool

	frames  atomic.Uint64 // QueueFrame で届いたフレーム数
	latched atomic.Uint64 // UpdateTexImage でラッチしたフレーム数
}

// NewSource はテクスチャIDに結びついた Source を作成する
// texture は Compositor.Setup が返したIDで、他のセッションで再利用しない
func NewSource(api gles.API, texture uint32, width, height int) *Source {
	return &Source{
		api:       api,
		texture:   texture,
		width:     width,
		height:    height,
		transform: Identity,
	}
}

// TextureID はテクスチャIDを返す
func (s *Source) TextureID() uint32 {
	return s.texture
}

// Size はバッファサイズを返す。カメラはこのサイズでフレームを書き込む
func (s *Source) Size() (int, int) {
	return s.width, s.height
}

// SetOnFrameAvailable は新しいフレームの通知先を設定する。nil で解除
func (s *Source) SetOnFrameAvailable(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = fn
}

// QueueFrame はカメラから届いたフレームを保持し、リスナーへ通知する
// transform はプラットフォームがフレームごとに与える変換行列
// 任意のゴルーチンから呼び出せる。解放後のフレームは捨てる
func (s *Source) QueueFrame(img image.Image, transform [16]float32) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.pending = img
	s.pendingST = transform
	listener := s.listener
	s.mu.Unlock()

	s.frames.Add(1)
	if listener != nil {
		listener()
	}
}

// UpdateTexImage は最新フレームをテクスチャにラッチする
// このソースを作ったサーフェスのコンテキストがカレントである必要がある
// 新しいフレームが無ければ前回の内容のまま
func (s *Source) UpdateTexImage() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return ErrReleased
	}
	img := s.pending
	st := s.pendingST
	s.pending = nil
	s.mu.Unlock()

	if img == nil {
		return nil
	}

	s.api.BindTexture(gles.TextureExternalOES, s.texture)
	s.api.TexImage(gles.TextureExternalOES, img)
	if err := gles.CheckError(s.api, "updateTexImage"); err != nil {
		return err
	}

	s.mu.Lock()
	s.transform = st
	s.mu.Unlock()
	s.latched.Add(1)
	return nil
}

// TransformMatrix は最後にラッチしたフレームの変換行列を返す
func (s *Source) TransformMatrix() [16]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transform
}

// FrameCount は届いたフレーム数を返す（単調増加）
func (s *Source) FrameCount() uint64 {
	return s.frames.Load()
}

// LatchedCount はラッチしたフレーム数を返す
func (s *Source) LatchedCount() uint64 {
	return s.latched.Load()
}

// Release はリスナーを外し、以降のフレームを捨てる。二回目以降は何もしない
// テクスチャ自体は Compositor が解放する
func (s *Source) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	s.listener = nil
	s.pending = nil
}

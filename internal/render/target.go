package render

import (
	"errors"
	"fmt"
	"sync"

	"multicamera/internal/frame"
	"multicamera/internal/gles"
)

// Target は1つの描画先（プレビュー、キャプチャ）
// サーフェス、合成器、メイン/サブの映像ソースをまとめて持つ
type Target struct {
	name       string
	surface    gles.Surface
	compositor *Compositor

	main *frame.Source
	sub  *frame.Source

	releaseOnce sync.Once
	releaseErr  error
}

// NewTarget は描画先を作成する
func NewTarget(name string, surface gles.Surface, rotation float32) *Target {
	return &Target{
		name:       name,
		surface:    surface,
		compositor: NewCompositor(surface.API(), rotation),
	}
}

// Name は描画先の名前を返す
func (t *Target) Name() string {
	return t.name
}

// Setup はサーフェスをカレントにして合成器を準備し、映像ソースを作成する
// width, height はカメラが書き込むバッファのサイズ
func (t *Target) Setup(width, height int) error {
	if err := t.surface.MakeCurrent(); err != nil {
		return fmt.Errorf("%s: MakeCurrent に失敗: %w", t.name, err)
	}
	mainTex, subTex, err := t.compositor.Setup()
	if err != nil {
		return fmt.Errorf("%s: %w", t.name, err)
	}

	api := t.surface.API()
	t.main = frame.NewSource(api, mainTex, width, height)
	t.sub = frame.NewSource(api, subTex, width, height)
	t.compositor.SetLayers(t.main, t.sub)
	return nil
}

// Sources はメイン映像、サブ映像のソースを返す。Setup 前は nil
func (t *Target) Sources() (main, sub *frame.Source) {
	return t.main, t.sub
}

// MakeCurrent はこの描画先のコンテキストをカレントにする
func (t *Target) MakeCurrent() error {
	if err := t.surface.MakeCurrent(); err != nil {
		return fmt.Errorf("%s: MakeCurrent に失敗: %w", t.name, err)
	}
	return nil
}

// DrawFrame は合成を1回行う。MakeCurrent の後に呼ぶ
func (t *Target) DrawFrame() error {
	if err := t.compositor.DrawFrame(); err != nil {
		return fmt.Errorf("%s: %w", t.name, err)
	}
	return nil
}

// SwapBuffers は描画結果を表示先へ送る
func (t *Target) SwapBuffers() error {
	if err := t.surface.SwapBuffers(); err != nil {
		return fmt.Errorf("%s: SwapBuffers に失敗: %w", t.name, err)
	}
	return nil
}

// ReleaseSources は映像ソースのリスナーを外して解放する
// セッションを閉じる前に呼び、閉じている最中のフレーム通知を止める
func (t *Target) ReleaseSources() {
	if t.main != nil {
		t.main.Release()
	}
	if t.sub != nil {
		t.sub.Release()
	}
}

// Release は合成器とサーフェスを解放する。一度だけ実行される
// 合成器の解放にはコンテキストが必要なので、先に MakeCurrent する
func (t *Target) Release() error {
	t.releaseOnce.Do(func() {
		t.ReleaseSources()

		var errs []error
		if err := t.surface.MakeCurrent(); err != nil {
			errs = append(errs, fmt.Errorf("%s: MakeCurrent に失敗: %w", t.name, err))
		} else if err := t.compositor.Release(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.name, err))
		}
		if err := t.surface.Release(); err != nil {
			errs = append(errs, fmt.Errorf("%s: サーフェスの解放に失敗: %w", t.name, err))
		}
		t.releaseErr = errors.Join(errs...)
	})
	return t.releaseErr
}

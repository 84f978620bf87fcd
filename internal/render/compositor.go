package render

import (
	"errors"
	"fmt"

	"multicamera/internal/gles"
)

var (
	// ErrNotSetup は Setup 前の描画
	ErrNotSetup = errors.New("render: Setup が呼ばれていません")

	// ErrNoLayers は映像ソースが設定されていない
	ErrNoLayers = errors.New("render: メイン/サブ映像が設定されていません")

	// ErrReleased は解放済みの Compositor への操作
	ErrReleased = errors.New("render: Compositor は解放済みです")

	// ErrMissingLocation は attribute / uniform がシェーダーに存在しない
	ErrMissingLocation = errors.New("ロケーションが見つかりません")
)

// SetupError はシェーダーやテクスチャの準備に失敗したことを表す
// プログラムや実行環境の誤りなので回復しない
type SetupError struct {
	Step string
	Err  error
}

// Error は error インターフェースを実装する
func (e *SetupError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("合成の準備に失敗: %s", e.Step)
	}
	return fmt.Sprintf("合成の準備に失敗: %s: %v", e.Step, e.Err)
}

// Unwrap は元のエラーを返す
func (e *SetupError) Unwrap() error {
	return e.Err
}

// Layer は合成に使う映像ソース（frame.Source）
type Layer interface {
	// UpdateTexImage は最新フレームをテクスチャにラッチする
	UpdateTexImage() error
	// TransformMatrix はラッチしたフレームの変換行列を返す
	TransformMatrix() [16]float32
}

// Compositor はメイン映像とワイプ（サブ映像）を1枚に合成する
//
// フロント/バックではなくメイン/サブで扱う。どちらのカメラをどちらに割り当てるかは呼び出し側が決める。
// uniform はフレーム間で保持されている前提を置かず、描画のたびにすべて設定し直す。
type Compositor struct {
	gl       gles.API
	rotation float32

	main Layer
	sub  Layer

	program       uint32
	aPosition     int32
	aTextureCoord int32
	uMVPMatrix    int32
	uSTMatrix     int32
	uMainTexture  int32
	uSubTexture   int32
	uDrawMain     int32
	mainTextureID uint32
	subTextureID  uint32
	ready         bool
	released      bool
}

// NewCompositor は Compositor を作成する
// rotation は端末の向き（縦 0、横 90）で、セッション中は変わらない
func NewCompositor(gl gles.API, rotation float32) *Compositor {
	return &Compositor{
		gl:       gl,
		rotation: rotation,
	}
}

// SetLayers はメイン映像とサブ映像のソースを設定する
func (c *Compositor) SetLayers(main, sub Layer) {
	c.main = main
	c.sub = sub
}

// Setup はシェーダーをリンクし、2つの外部テクスチャを作成する
// 戻り値はメイン映像、サブ映像のテクスチャIDで、frame.Source の作成に使う
// サーフェスを MakeCurrent してから呼び出すこと
func (c *Compositor) Setup() (mainTexture, subTexture uint32, err error) {
	if c.released {
		return 0, 0, ErrReleased
	}

	c.program, err = c.createProgram(vertexShader, fragmentShader)
	if err != nil {
		return 0, 0, err
	}

	attribs := []struct {
		name string
		dst  *int32
	}{
		{"aPosition", &c.aPosition},
		{"aTextureCoord", &c.aTextureCoord},
	}
	for _, a := range attribs {
		*a.dst = c.gl.GetAttribLocation(c.program, a.name)
		if err := c.check("glGetAttribLocation " + a.name); err != nil {
			return 0, 0, err
		}
		if *a.dst == -1 {
			return 0, 0, &SetupError{Step: "attribute " + a.name, Err: ErrMissingLocation}
		}
	}

	uniforms := []struct {
		name string
		dst  *int32
	}{
		{"uMVPMatrix", &c.uMVPMatrix},
		{"uSTMatrix", &c.uSTMatrix},
		{"uMainCameraTexture", &c.uMainTexture},
		{"uSubCameraTexture", &c.uSubTexture},
		{"uDrawMainCamera", &c.uDrawMain},
	}
	for _, u := range uniforms {
		*u.dst = c.gl.GetUniformLocation(c.program, u.name)
		if err := c.check("glGetUniformLocation " + u.name); err != nil {
			return 0, 0, err
		}
		if *u.dst == -1 {
			return 0, 0, &SetupError{Step: "uniform " + u.name, Err: ErrMissingLocation}
		}
	}

	// カメラ2つ分
	textures := c.gl.GenTextures(2)
	if err := c.check("glGenTextures"); err != nil {
		return 0, 0, err
	}
	if len(textures) != 2 {
		return 0, 0, &SetupError{Step: "glGenTextures", Err: fmt.Errorf("%d 個しか確保できませんでした", len(textures))}
	}
	c.mainTextureID = textures[0]
	c.subTextureID = textures[1]

	for i, unit := range []gles.Enum{gles.Texture0, gles.Texture1} {
		c.gl.ActiveTexture(unit)
		c.gl.BindTexture(gles.TextureExternalOES, textures[i])
		// 縮小は最近傍、拡大は線形補間
		c.gl.TexParameteri(gles.TextureExternalOES, gles.TextureMinFilter, int32(gles.Nearest))
		c.gl.TexParameteri(gles.TextureExternalOES, gles.TextureMagFilter, int32(gles.Linear))
		c.gl.TexParameteri(gles.TextureExternalOES, gles.TextureWrapS, int32(gles.ClampToEdge))
		c.gl.TexParameteri(gles.TextureExternalOES, gles.TextureWrapT, int32(gles.ClampToEdge))
		if err := c.check(fmt.Sprintf("glTexParameteri texture%d", i)); err != nil {
			return 0, 0, err
		}
	}

	// 透明部分を透過させる
	c.gl.Enable(gles.Blend)
	c.gl.BlendFunc(gles.SrcAlpha, gles.OneMinusSrcAlpha)
	if err := c.check("glEnable BLEND"); err != nil {
		return 0, 0, err
	}

	c.ready = true
	return c.mainTextureID, c.subTextureID, nil
}

// DrawFrame はメイン映像、サブ映像の順に描画する
// サブ映像はメイン映像の上にブレンドされる
func (c *Compositor) DrawFrame() error {
	if c.released {
		return ErrReleased
	}
	if !c.ready {
		return ErrNotSetup
	}
	if c.main == nil || c.sub == nil {
		return ErrNoLayers
	}

	if err := c.prepareDraw(); err != nil {
		return err
	}
	if err := c.drawLayer("drawMainCamera", c.main, true, MainLayerMVP(c.rotation)); err != nil {
		return err
	}
	if err := c.drawLayer("drawSubCamera", c.sub, false, SubLayerMVP(c.rotation)); err != nil {
		return err
	}
	c.gl.Finish()
	return c.check("glFinish")
}

// Release はプログラムとテクスチャを削除する。二回目以降は何もしない
// サーフェスを MakeCurrent してから呼び出すこと
func (c *Compositor) Release() error {
	if c.released {
		return nil
	}
	c.released = true
	c.ready = false

	if c.program != 0 {
		c.gl.DeleteProgram(c.program)
		c.program = 0
	}
	if c.mainTextureID != 0 || c.subTextureID != 0 {
		c.gl.DeleteTextures([]uint32{c.mainTextureID, c.subTextureID})
		c.mainTextureID, c.subTextureID = 0, 0
	}
	return c.check("release")
}

// TextureIDs は Setup で確保したテクスチャIDを返す
func (c *Compositor) TextureIDs() (mainTexture, subTexture uint32) {
	return c.mainTextureID, c.subTextureID
}

func (c *Compositor) prepareDraw() error {
	c.gl.UseProgram(c.program)
	if err := c.check("glUseProgram"); err != nil {
		return err
	}
	if err := c.bindVertices(); err != nil {
		return err
	}
	// 前のフレームが残らないよう毎回クリアする
	c.gl.Clear(gles.DepthBufferBit | gles.ColorBufferBit)
	return c.check("glClear")
}

func (c *Compositor) bindVertices() error {
	c.gl.VertexAttribPointer(c.aPosition, 3, vertexStride, quadVertices[positionOffset:])
	c.gl.EnableVertexAttribArray(c.aPosition)
	if err := c.check("glVertexAttribPointer aPosition"); err != nil {
		return err
	}
	c.gl.VertexAttribPointer(c.aTextureCoord, 2, vertexStride, quadVertices[uvOffset:])
	c.gl.EnableVertexAttribArray(c.aTextureCoord)
	return c.check("glVertexAttribPointer aTextureCoord")
}

// drawLayer は1レイヤー分を描画する
// 両方のテクスチャユニットをバインドし、どちらを使うかは uDrawMainCamera で切り替える
func (c *Compositor) drawLayer(op string, layer Layer, drawMain bool, mvp [16]float32) error {
	// ラッチしないとテクスチャは更新されない
	if err := layer.UpdateTexImage(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	st := layer.TransformMatrix()

	c.gl.ActiveTexture(gles.Texture0)
	c.gl.BindTexture(gles.TextureExternalOES, c.mainTextureID)
	c.gl.ActiveTexture(gles.Texture1)
	c.gl.BindTexture(gles.TextureExternalOES, c.subTextureID)
	if err := c.check(op + " glBindTexture"); err != nil {
		return err
	}
	c.gl.Uniform1i(c.uMainTexture, 0)
	c.gl.Uniform1i(c.uSubTexture, 1)

	if err := c.bindVertices(); err != nil {
		return err
	}

	flag := int32(0)
	if drawMain {
		flag = 1
	}
	c.gl.Uniform1i(c.uDrawMain, flag)
	c.gl.UniformMatrix4fv(c.uSTMatrix, st)
	c.gl.UniformMatrix4fv(c.uMVPMatrix, mvp)
	if err := c.check(op + " glUniform"); err != nil {
		return err
	}

	c.gl.DrawArrays(gles.TriangleStrip, 0, 4)
	return c.check("glDrawArrays " + op)
}

func (c *Compositor) createProgram(vertexSource, fragmentSource string) (uint32, error) {
	vs, err := c.loadShader(gles.VertexShader, vertexSource)
	if err != nil {
		return 0, err
	}
	fs, err := c.loadShader(gles.FragmentShader, fragmentSource)
	if err != nil {
		return 0, err
	}

	program := c.gl.CreateProgram()
	if err := c.check("glCreateProgram"); err != nil {
		return 0, err
	}
	if program == 0 {
		return 0, &SetupError{Step: "glCreateProgram"}
	}
	c.gl.AttachShader(program, vs)
	c.gl.AttachShader(program, fs)
	if err := c.check("glAttachShader"); err != nil {
		return 0, err
	}
	c.gl.LinkProgram(program)
	if c.gl.GetProgramiv(program, gles.LinkStatus) != gles.True {
		c.gl.DeleteProgram(program)
		return 0, &SetupError{Step: "glLinkProgram"}
	}
	// リンク済みのプログラムが参照を持つので、シェーダーは不要
	c.gl.DeleteShader(vs)
	c.gl.DeleteShader(fs)
	return program, nil
}

func (c *Compositor) loadShader(typ gles.Enum, source string) (uint32, error) {
	shader := c.gl.CreateShader(typ)
	if err := c.check(fmt.Sprintf("glCreateShader type=0x%x", uint32(typ))); err != nil {
		return 0, err
	}
	c.gl.ShaderSource(shader, source)
	c.gl.CompileShader(shader)
	if c.gl.GetShaderiv(shader, gles.CompileStatus) == gles.False {
		c.gl.DeleteShader(shader)
		return 0, &SetupError{Step: fmt.Sprintf("glCompileShader type=0x%x", uint32(typ))}
	}
	return shader, nil
}

// check は GL エラーを確認する
func (c *Compositor) check(op string) error {
	return gles.CheckError(c.gl, op)
}

package gles

import "image"

// Enum は GL の列挙値
type Enum uint32

// 合成に必要な GLES 2.0 / OES_EGL_image_external の定数
const (
	NoError          Enum = 0
	InvalidEnum      Enum = 0x0500
	InvalidValue     Enum = 0x0501
	InvalidOperation Enum = 0x0502
	OutOfMemory      Enum = 0x0505

	True  = 1
	False = 0

	DepthBufferBit Enum = 0x0100
	ColorBufferBit Enum = 0x4000

	TriangleStrip Enum = 0x0005
	Float         Enum = 0x1406

	Zero             Enum = 0
	One              Enum = 1
	Blend            Enum = 0x0BE2
	SrcAlpha         Enum = 0x0302
	OneMinusSrcAlpha Enum = 0x0303

	Texture0           Enum = 0x84C0
	Texture1           Enum = 0x84C1
	TextureExternalOES Enum = 0x8D65
	TextureMinFilter   Enum = 0x2801
	TextureMagFilter   Enum = 0x2800
	TextureWrapS       Enum = 0x2802
	TextureWrapT       Enum = 0x2803
	Nearest            Enum = 0x2600
	Linear             Enum = 0x2601
	ClampToEdge        Enum = 0x812F

	FragmentShader Enum = 0x8B30
	VertexShader   Enum = 0x8B31
	CompileStatus  Enum = 0x8B81
	LinkStatus     Enum = 0x8B82
)

// MaxTextureUnits はテクスチャユニットの数
const MaxTextureUnits = 8

// API は合成で使う GLES 2.0 のサブセット
//
// 呼び出しは MakeCurrent したサーフェスのコンテキストに対して行われる。
// 失敗は GetError で取り出すまで記録される。
type API interface {
	CreateShader(typ Enum) uint32
	ShaderSource(shader uint32, src string)
	CompileShader(shader uint32)
	GetShaderiv(shader uint32, pname Enum) int32
	DeleteShader(shader uint32)

	CreateProgram() uint32
	AttachShader(program, shader uint32)
	LinkProgram(program uint32)
	GetProgramiv(program uint32, pname Enum) int32
	DeleteProgram(program uint32)
	UseProgram(program uint32)
	GetAttribLocation(program uint32, name string) int32
	GetUniformLocation(program uint32, name string) int32

	GenTextures(n int) []uint32
	DeleteTextures(textures []uint32)
	ActiveTexture(unit Enum)
	BindTexture(target Enum, texture uint32)
	TexParameteri(target, pname Enum, param int32)
	// TexImage はバインド中のテクスチャに画像をラッチする（SurfaceTexture の updateTexImage 相当）
	TexImage(target Enum, img image.Image)

	Enable(capability Enum)
	BlendFunc(sfactor, dfactor Enum)

	// VertexAttribPointer はクライアント側配列を頂点属性に設定する
	// data は offset 済みのスライスで、stride は float 単位
	VertexAttribPointer(index int32, size int, stride int, data []float32)
	EnableVertexAttribArray(index int32)

	Uniform1i(location int32, v int32)
	UniformMatrix4fv(location int32, m [16]float32)

	Clear(mask Enum)
	DrawArrays(mode Enum, first, count int)
	Finish()
	GetError() Enum
}

// NativeWindow は描画結果を受け取る出力先（プレビュー画面や撮影・録画用の入力）
type NativeWindow interface {
	// Present は SwapBuffers で確定したフレームを受け取る
	// img は呼び出し後に再利用されるため、保持する場合はコピーすること
	Present(img *image.RGBA)
}

// Surface は描画先サーフェスと専用コンテキストの組
type Surface interface {
	// API はこのサーフェスのコンテキストに対する GL 呼び出しを返す
	API() API
	// MakeCurrent はこのコンテキストを呼び出しスレッドでカレントにする
	MakeCurrent() error
	// SwapBuffers は描画結果をウィンドウへ送る
	SwapBuffers() error
	// Release はサーフェスとコンテキストを破棄する
	Release() error
}

// Display はサーフェスを作成する
type Display interface {
	CreateWindowSurface(window NativeWindow, width, height int) (Surface, error)
}

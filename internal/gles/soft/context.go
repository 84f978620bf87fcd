package soft

import (
	"image"
	"image/draw"

	"multicamera/internal/gles"
)

const maxVertexAttribs = 16

type texture struct {
	minFilter gles.Enum
	magFilter gles.Enum
	wrapS     gles.Enum
	wrapT     gles.Enum
	img       *image.RGBA
}

type attribArray struct {
	size    int
	stride  int
	data    []float32
	enabled bool
}

// Context は1つのサーフェスに紐づく GL の状態
// カレントでない状態での呼び出しは GL_INVALID_OPERATION になる
type Context struct {
	display *Display
	target  *image.RGBA

	err    gles.Enum
	nextID uint32

	shaders  map[uint32]*shader
	programs map[uint32]*program
	textures map[uint32]*texture

	program    uint32
	activeUnit int
	units      [gles.MaxTextureUnits]uint32
	attribs    [maxVertexAttribs]attribArray

	blend     bool
	srcFactor gles.Enum
	dstFactor gles.Enum

	draws int
}

func newContext(display *Display, target *image.RGBA) *Context {
	return &Context{
		display:   display,
		target:    target,
		nextID:    1,
		shaders:   make(map[uint32]*shader),
		programs:  make(map[uint32]*program),
		textures:  make(map[uint32]*texture),
		srcFactor: gles.SrcAlpha,
		dstFactor: gles.OneMinusSrcAlpha,
	}
}

var _ gles.API = (*Context)(nil)

// setError は最初のエラーだけを保持する（glGetError と同じ）
func (c *Context) setError(code gles.Enum) {
	if c.err == gles.NoError {
		c.err = code
	}
}

// ready はカレントでなければエラーを記録して false を返す
func (c *Context) ready() bool {
	if !c.display.isCurrent(c) {
		c.setError(gles.InvalidOperation)
		return false
	}
	return true
}

func (c *Context) allocID() uint32 {
	id := c.nextID
	c.nextID++
	return id
}

// DrawCount は DrawArrays で実際に描画した回数を返す
func (c *Context) DrawCount() int {
	return c.draws
}

// CreateShader はシェーダーオブジェクトを作成する
func (c *Context) CreateShader(typ gles.Enum) uint32 {
	if !c.ready() {
		return 0
	}
	if typ != gles.VertexShader && typ != gles.FragmentShader {
		c.setError(gles.InvalidEnum)
		return 0
	}
	id := c.allocID()
	c.shaders[id] = &shader{typ: typ}
	return id
}

// ShaderSource はソースを設定する
func (c *Context) ShaderSource(id uint32, src string) {
	if !c.ready() {
		return
	}
	s, ok := c.shaders[id]
	if !ok {
		c.setError(gles.InvalidValue)
		return
	}
	s.source = src
}

// CompileShader はシェーダーをコンパイルする
func (c *Context) CompileShader(id uint32) {
	if !c.ready() {
		return
	}
	s, ok := c.shaders[id]
	if !ok {
		c.setError(gles.InvalidValue)
		return
	}
	s.compile()
}

// GetShaderiv はシェーダーの状態を返す
func (c *Context) GetShaderiv(id uint32, pname gles.Enum) int32 {
	if !c.ready() {
		return 0
	}
	s, ok := c.shaders[id]
	if !ok {
		c.setError(gles.InvalidValue)
		return 0
	}
	if pname != gles.CompileStatus {
		c.setError(gles.InvalidEnum)
		return 0
	}
	if s.compiled {
		return gles.True
	}
	return gles.False
}

// DeleteShader はシェーダーを削除する
func (c *Context) DeleteShader(id uint32) {
	if !c.ready() || id == 0 {
		return
	}
	delete(c.shaders, id)
}

// CreateProgram はプログラムを作成する
func (c *Context) CreateProgram() uint32 {
	if !c.ready() {
		return 0
	}
	id := c.allocID()
	c.programs[id] = newProgram()
	return id
}

// AttachShader はシェーダーをプログラムに取り付ける
func (c *Context) AttachShader(programID, shaderID uint32) {
	if !c.ready() {
		return
	}
	p, ok := c.programs[programID]
	if !ok {
		c.setError(gles.InvalidValue)
		return
	}
	if _, ok := c.shaders[shaderID]; !ok {
		c.setError(gles.InvalidValue)
		return
	}
	p.shaders = append(p.shaders, shaderID)
}

// LinkProgram はプログラムをリンクする
func (c *Context) LinkProgram(programID uint32) {
	if !c.ready() {
		return
	}
	p, ok := c.programs[programID]
	if !ok {
		c.setError(gles.InvalidValue)
		return
	}
	p.link(c.shaders)
}

// GetProgramiv はプログラムの状態を返す
func (c *Context) GetProgramiv(programID uint32, pname gles.Enum) int32 {
	if !c.ready() {
		return 0
	}
	p, ok := c.programs[programID]
	if !ok {
		c.setError(gles.InvalidValue)
		return 0
	}
	if pname != gles.LinkStatus {
		c.setError(gles.InvalidEnum)
		return 0
	}
	if p.linked {
		return gles.True
	}
	return gles.False
}

// DeleteProgram はプログラムを削除する
func (c *Context) DeleteProgram(programID uint32) {
	if !c.ready() || programID == 0 {
		return
	}
	delete(c.programs, programID)
	if c.program == programID {
		c.program = 0
	}
}

// UseProgram は描画に使うプログラムを設定する
func (c *Context) UseProgram(programID uint32) {
	if !c.ready() {
		return
	}
	if programID == 0 {
		c.program = 0
		return
	}
	p, ok := c.programs[programID]
	if !ok {
		c.setError(gles.InvalidValue)
		return
	}
	if !p.linked {
		c.setError(gles.InvalidOperation)
		return
	}
	c.program = programID
}

// GetAttribLocation は attribute のロケーションを返す。無ければ -1
func (c *Context) GetAttribLocation(programID uint32, name string) int32 {
	if !c.ready() {
		return -1
	}
	p, ok := c.programs[programID]
	if !ok || !p.linked {
		c.setError(gles.InvalidOperation)
		return -1
	}
	if loc, ok := p.attribs[name]; ok {
		return loc
	}
	return -1
}

// GetUniformLocation は uniform のロケーションを返す。無ければ -1
func (c *Context) GetUniformLocation(programID uint32, name string) int32 {
	if !c.ready() {
		return -1
	}
	p, ok := c.programs[programID]
	if !ok || !p.linked {
		c.setError(gles.InvalidOperation)
		return -1
	}
	if loc, ok := p.uniforms[name]; ok {
		return loc
	}
	return -1
}

// GenTextures はテクスチャ名を n 個確保する
func (c *Context) GenTextures(n int) []uint32 {
	if !c.ready() {
		return nil
	}
	if n < 0 {
		c.setError(gles.InvalidValue)
		return nil
	}
	ids := make([]uint32, n)
	for i := range ids {
		ids[i] = c.allocID()
		c.textures[ids[i]] = &texture{
			minFilter: gles.Linear,
			magFilter: gles.Linear,
			wrapS:     gles.ClampToEdge,
			wrapT:     gles.ClampToEdge,
		}
	}
	return ids
}

// DeleteTextures はテクスチャを削除し、バインドも解除する
func (c *Context) DeleteTextures(ids []uint32) {
	if !c.ready() {
		return
	}
	for _, id := range ids {
		delete(c.textures, id)
		for i := range c.units {
			if c.units[i] == id {
				c.units[i] = 0
			}
		}
	}
}

// ActiveTexture は操作対象のテクスチャユニットを切り替える
func (c *Context) ActiveTexture(unit gles.Enum) {
	if !c.ready() {
		return
	}
	idx := int(unit) - int(gles.Texture0)
	if idx < 0 || idx >= gles.MaxTextureUnits {
		c.setError(gles.InvalidEnum)
		return
	}
	c.activeUnit = idx
}

// BindTexture はアクティブなユニットにテクスチャをバインドする
func (c *Context) BindTexture(target gles.Enum, id uint32) {
	if !c.ready() {
		return
	}
	if target != gles.TextureExternalOES {
		c.setError(gles.InvalidEnum)
		return
	}
	if id != 0 {
		if _, ok := c.textures[id]; !ok {
			c.setError(gles.InvalidValue)
			return
		}
	}
	c.units[c.activeUnit] = id
}

func (c *Context) boundTexture(target gles.Enum) (*texture, bool) {
	if target != gles.TextureExternalOES {
		c.setError(gles.InvalidEnum)
		return nil, false
	}
	tex, ok := c.textures[c.units[c.activeUnit]]
	if !ok {
		c.setError(gles.InvalidOperation)
		return nil, false
	}
	return tex, true
}

// TexParameteri はバインド中のテクスチャのパラメータを設定する
func (c *Context) TexParameteri(target, pname gles.Enum, param int32) {
	if !c.ready() {
		return
	}
	tex, ok := c.boundTexture(target)
	if !ok {
		return
	}
	value := gles.Enum(param)
	switch pname {
	case gles.TextureMinFilter, gles.TextureMagFilter:
		if value != gles.Nearest && value != gles.Linear {
			c.setError(gles.InvalidEnum)
			return
		}
		if pname == gles.TextureMinFilter {
			tex.minFilter = value
		} else {
			tex.magFilter = value
		}
	case gles.TextureWrapS, gles.TextureWrapT:
		// 外部テクスチャは CLAMP_TO_EDGE のみ
		if value != gles.ClampToEdge {
			c.setError(gles.InvalidEnum)
			return
		}
		if pname == gles.TextureWrapS {
			tex.wrapS = value
		} else {
			tex.wrapT = value
		}
	default:
		c.setError(gles.InvalidEnum)
	}
}

// TexImage はバインド中のテクスチャに画像をコピーする
func (c *Context) TexImage(target gles.Enum, img image.Image) {
	if !c.ready() {
		return
	}
	tex, ok := c.boundTexture(target)
	if !ok {
		return
	}
	if img == nil {
		c.setError(gles.InvalidValue)
		return
	}
	b := img.Bounds()
	if tex.img == nil || tex.img.Bounds().Size() != b.Size() {
		tex.img = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	}
	draw.Draw(tex.img, tex.img.Bounds(), img, b.Min, draw.Src)
}

// Enable は機能を有効にする。サポートするのは GL_BLEND のみ
func (c *Context) Enable(capability gles.Enum) {
	if !c.ready() {
		return
	}
	if capability != gles.Blend {
		c.setError(gles.InvalidEnum)
		return
	}
	c.blend = true
}

// BlendFunc はブレンド係数を設定する
func (c *Context) BlendFunc(sfactor, dfactor gles.Enum) {
	if !c.ready() {
		return
	}
	c.srcFactor = sfactor
	c.dstFactor = dfactor
}

// VertexAttribPointer はクライアント側の頂点配列を設定する
func (c *Context) VertexAttribPointer(index int32, size int, stride int, data []float32) {
	if !c.ready() {
		return
	}
	if index < 0 || index >= maxVertexAttribs || size < 1 || size > 4 || stride < 0 {
		c.setError(gles.InvalidValue)
		return
	}
	a := &c.attribs[index]
	a.size = size
	a.stride = stride
	if a.stride == 0 {
		a.stride = size
	}
	a.data = data
}

// EnableVertexAttribArray は頂点属性配列を有効にする
func (c *Context) EnableVertexAttribArray(index int32) {
	if !c.ready() {
		return
	}
	if index < 0 || index >= maxVertexAttribs {
		c.setError(gles.InvalidValue)
		return
	}
	c.attribs[index].enabled = true
}

func (c *Context) currentProgram() (*program, bool) {
	p, ok := c.programs[c.program]
	if !ok {
		c.setError(gles.InvalidOperation)
		return nil, false
	}
	return p, true
}

// Uniform1i は int の uniform を設定する。ロケーション -1 は無視される
func (c *Context) Uniform1i(location int32, v int32) {
	if !c.ready() {
		return
	}
	p, ok := c.currentProgram()
	if !ok || location == -1 {
		return
	}
	if !p.hasUniformLocation(location) {
		c.setError(gles.InvalidOperation)
		return
	}
	val := p.values[location]
	val.i = v
	p.values[location] = val
}

// UniformMatrix4fv は 4x4 行列（列優先）の uniform を設定する
func (c *Context) UniformMatrix4fv(location int32, m [16]float32) {
	if !c.ready() {
		return
	}
	p, ok := c.currentProgram()
	if !ok || location == -1 {
		return
	}
	if !p.hasUniformLocation(location) {
		c.setError(gles.InvalidOperation)
		return
	}
	val := p.values[location]
	val.mat = m
	p.values[location] = val
}

// Clear はバックバッファを透明な黒で塗りつぶす
func (c *Context) Clear(mask gles.Enum) {
	if !c.ready() {
		return
	}
	if mask&^(gles.ColorBufferBit|gles.DepthBufferBit) != 0 {
		c.setError(gles.InvalidValue)
		return
	}
	if mask&gles.ColorBufferBit != 0 {
		draw.Draw(c.target, c.target.Bounds(), image.Transparent, image.Point{}, draw.Src)
	}
}

// DrawArrays は三角形ストリップを描画する
func (c *Context) DrawArrays(mode gles.Enum, first, count int) {
	if !c.ready() {
		return
	}
	if mode != gles.TriangleStrip {
		c.setError(gles.InvalidEnum)
		return
	}
	if first < 0 || count < 0 {
		c.setError(gles.InvalidValue)
		return
	}
	p, ok := c.currentProgram()
	if !ok {
		return
	}
	if err := c.drawStrip(p, first, count); err != gles.NoError {
		c.setError(err)
		return
	}
	c.draws++
}

// Finish は何もしない（描画は同期的に完了している）
func (c *Context) Finish() {
	c.ready()
}

// GetError は記録されたエラーを返してクリアする
func (c *Context) GetError() gles.Enum {
	code := c.err
	c.err = gles.NoError
	return code
}

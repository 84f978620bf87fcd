package soft

import (
	"regexp"
	"strings"

	"multicamera/internal/gles"
)

// soft は GLSL を解釈しない。以下の名前を宣言したテクスチャ付き四角形の合成プログラムを
// Go で評価する（raster.go）。
const (
	AttribPosition     = "aPosition"
	AttribTextureCoord = "aTextureCoord"
	UniformMVPMatrix   = "uMVPMatrix"
	UniformSTMatrix    = "uSTMatrix"
	UniformMainTexture = "uMainCameraTexture"
	UniformSubTexture  = "uSubCameraTexture"
	UniformDrawMain    = "uDrawMainCamera"
)

var declPattern = regexp.MustCompile(`(?m)^\s*(attribute|uniform)\s+(?:(?:lowp|mediump|highp)\s+)?(\w+)\s+(\w+)\s*;`)

type declaration struct {
	qualifier string
	typ       string
	name      string
}

type shader struct {
	typ      gles.Enum
	source   string
	compiled bool
	decls    []declaration
}

// compile は main 関数の有無と括弧の対応だけを検査し、宣言を取り出す
func (s *shader) compile() {
	s.compiled = false
	s.decls = nil

	src := s.source
	if !strings.Contains(src, "void main()") {
		return
	}
	if strings.Count(src, "{") != strings.Count(src, "}") {
		return
	}

	for _, m := range declPattern.FindAllStringSubmatch(src, -1) {
		s.decls = append(s.decls, declaration{qualifier: m[1], typ: m[2], name: m[3]})
	}
	s.compiled = true
}

type uniformValue struct {
	i   int32
	mat [16]float32
}

type program struct {
	shaders  []uint32
	linked   bool
	attribs  map[string]int32
	uniforms map[string]int32
	values   map[int32]uniformValue
}

func newProgram() *program {
	return &program{
		attribs:  make(map[string]int32),
		uniforms: make(map[string]int32),
		values:   make(map[int32]uniformValue),
	}
}

// link は頂点・フラグメントシェーダーが1つずつコンパイル済みであれば成功する
func (p *program) link(shaders map[uint32]*shader) {
	p.linked = false
	p.attribs = make(map[string]int32)
	p.uniforms = make(map[string]int32)
	p.values = make(map[int32]uniformValue)

	var vertex, fragment *shader
	for _, id := range p.shaders {
		s, ok := shaders[id]
		if !ok || !s.compiled {
			return
		}
		switch s.typ {
		case gles.VertexShader:
			vertex = s
		case gles.FragmentShader:
			fragment = s
		}
	}
	if vertex == nil || fragment == nil {
		return
	}

	for _, d := range vertex.decls {
		if d.qualifier == "attribute" {
			p.attribs[d.name] = int32(len(p.attribs))
		}
	}
	for _, s := range []*shader{vertex, fragment} {
		for _, d := range s.decls {
			if d.qualifier != "uniform" {
				continue
			}
			if _, exists := p.uniforms[d.name]; !exists {
				p.uniforms[d.name] = int32(len(p.uniforms))
			}
		}
	}
	p.linked = true
}

// hasUniformLocation はロケーションがこのプログラムのものか確認する
func (p *program) hasUniformLocation(location int32) bool {
	return location >= 0 && int(location) < len(p.uniforms)
}

// uniform は名前で uniform の値を取り出す
func (p *program) uniform(name string) (uniformValue, bool) {
	loc, ok := p.uniforms[name]
	if !ok {
		return uniformValue{}, false
	}
	v, ok := p.values[loc]
	return v, ok
}

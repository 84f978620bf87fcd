package soft

import (
	"math"

	"multicamera/internal/gles"
)

type vertex struct {
	x, y float64 // ウィンドウ座標（左上原点）
	u, v float64 // テクスチャ座標（左下原点）
}

// mulVec は列優先の4x4行列とベクトルの積
func mulVec(m [16]float32, v [4]float64) [4]float64 {
	var out [4]float64
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[r] += float64(m[c*4+r]) * v[c]
		}
	}
	return out
}

// fetch は頂点 i の属性を vec4 で取り出す（未指定成分は 0,0,0,1）
func (a attribArray) fetch(i int) ([4]float64, bool) {
	v := [4]float64{0, 0, 0, 1}
	base := i * a.stride
	if base < 0 || base+a.size > len(a.data) {
		return v, false
	}
	for k := 0; k < a.size; k++ {
		v[k] = float64(a.data[base+k])
	}
	return v, true
}

// drawStrip は合成プログラムを評価して三角形ストリップを描画する
func (c *Context) drawStrip(p *program, first, count int) gles.Enum {
	posLoc, ok := p.attribs[AttribPosition]
	if !ok {
		return gles.InvalidOperation
	}
	tcLoc, ok := p.attribs[AttribTextureCoord]
	if !ok {
		return gles.InvalidOperation
	}
	pos := c.attribs[posLoc]
	tc := c.attribs[tcLoc]
	if !pos.enabled || !tc.enabled {
		return gles.InvalidOperation
	}

	// 未設定の uniform はゼロ値（GL と同じ）
	mvp, _ := p.uniform(UniformMVPMatrix)
	st, _ := p.uniform(UniformSTMatrix)
	drawMain, _ := p.uniform(UniformDrawMain)

	samplerName := UniformSubTexture
	if drawMain.i != 0 {
		samplerName = UniformMainTexture
	}
	sampler, _ := p.uniform(samplerName)
	var tex *texture
	if unit := int(sampler.i); unit >= 0 && unit < gles.MaxTextureUnits {
		tex = c.textures[c.units[unit]]
	}

	width := float64(c.target.Bounds().Dx())
	height := float64(c.target.Bounds().Dy())

	verts := make([]vertex, 0, count)
	for i := first; i < first+count; i++ {
		position, ok := pos.fetch(i)
		if !ok {
			return gles.InvalidOperation
		}
		coord, ok := tc.fetch(i)
		if !ok {
			return gles.InvalidOperation
		}

		clip := mulVec(mvp.mat, position)
		if clip[3] == 0 {
			return gles.NoError // 退化した頂点は何も描かない
		}
		ndcX := clip[0] / clip[3]
		ndcY := clip[1] / clip[3]
		uv := mulVec(st.mat, coord)

		verts = append(verts, vertex{
			x: (ndcX + 1) / 2 * width,
			y: (1 - ndcY) / 2 * height,
			u: uv[0],
			v: uv[1],
		})
	}

	for i := 0; i+2 < len(verts); i++ {
		c.rasterize(verts[i], verts[i+1], verts[i+2], tex)
	}
	return gles.NoError
}

func edge(a, b vertex, px, py float64) float64 {
	return (b.x-a.x)*(py-a.y) - (b.y-a.y)*(px-a.x)
}

// rasterize は三角形を塗りつぶす
func (c *Context) rasterize(a, b, v vertex, tex *texture) {
	area := edge(a, b, v.x, v.y)
	if math.Abs(area) < 1e-9 {
		return
	}

	filter := gles.Linear
	if tex != nil && tex.img != nil {
		tw := float64(tex.img.Bounds().Dx())
		th := float64(tex.img.Bounds().Dy())
		uvArea := math.Abs((b.u-a.u)*(v.v-a.v)-(v.u-a.u)*(b.v-a.v)) * tw * th
		// 1ピクセルあたりのテクセル数が1を超えれば縮小
		if uvArea/math.Abs(area) > 1 {
			filter = tex.minFilter
		} else {
			filter = tex.magFilter
		}
	}

	bounds := c.target.Bounds()
	minX := max(bounds.Min.X, int(math.Floor(min(a.x, b.x, v.x))))
	maxX := min(bounds.Max.X-1, int(math.Ceil(max(a.x, b.x, v.x))))
	minY := max(bounds.Min.Y, int(math.Floor(min(a.y, b.y, v.y))))
	maxY := min(bounds.Max.Y-1, int(math.Ceil(max(a.y, b.y, v.y))))

	for py := minY; py <= maxY; py++ {
		cy := float64(py) + 0.5
		for px := minX; px <= maxX; px++ {
			cx := float64(px) + 0.5
			l0 := edge(b, v, cx, cy) / area
			l1 := edge(v, a, cx, cy) / area
			l2 := edge(a, b, cx, cy) / area
			if l0 < 0 || l1 < 0 || l2 < 0 {
				continue
			}
			u := l0*a.u + l1*b.u + l2*v.u
			t := l0*a.v + l1*b.v + l2*v.v
			c.writePixel(px, py, sample(tex, u, t, filter))
		}
	}
}

// writePixel はブレンド設定に従ってバックバッファへ書き込む
func (c *Context) writePixel(x, y int, src [4]float64) {
	i := c.target.PixOffset(x, y)
	pix := c.target.Pix[i : i+4 : i+4]

	out := src
	if c.blend {
		var dst [4]float64
		for k := range dst {
			dst[k] = float64(pix[k]) / 255
		}
		sf := blendFactor(c.srcFactor, src)
		df := blendFactor(c.dstFactor, src)
		for k := range out {
			out[k] = src[k]*sf + dst[k]*df
		}
	}
	for k := range out {
		pix[k] = uint8(math.Round(math.Min(1, math.Max(0, out[k])) * 255))
	}
}

func blendFactor(f gles.Enum, src [4]float64) float64 {
	switch f {
	case gles.Zero:
		return 0
	case gles.SrcAlpha:
		return src[3]
	case gles.OneMinusSrcAlpha:
		return 1 - src[3]
	default:
		return 1
	}
}

// sample はテクスチャから色を取り出す。テクスチャが無ければ透明
func sample(tex *texture, u, v float64, filter gles.Enum) [4]float64 {
	if tex == nil || tex.img == nil {
		return [4]float64{}
	}
	img := tex.img
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	if w == 0 || h == 0 {
		return [4]float64{}
	}

	// CLAMP_TO_EDGE
	u = math.Min(1, math.Max(0, u))
	v = math.Min(1, math.Max(0, v))

	// テクスチャ座標は左下原点、画像は左上原点
	fx := u * float64(w)
	fy := (1 - v) * float64(h)

	texel := func(x, y int) [4]float64 {
		x = min(w-1, max(0, x))
		y = min(h-1, max(0, y))
		i := img.PixOffset(x, y)
		return [4]float64{
			float64(img.Pix[i]) / 255,
			float64(img.Pix[i+1]) / 255,
			float64(img.Pix[i+2]) / 255,
			float64(img.Pix[i+3]) / 255,
		}
	}

	if filter == gles.Nearest {
		return texel(int(math.Floor(fx)), int(math.Floor(fy)))
	}

	fx -= 0.5
	fy -= 0.5
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	tx := fx - float64(x0)
	ty := fy - float64(y0)

	c00 := texel(x0, y0)
	c10 := texel(x0+1, y0)
	c01 := texel(x0, y0+1)
	c11 := texel(x0+1, y0+1)

	var out [4]float64
	for k := range out {
		top := c00[k]*(1-tx) + c10[k]*tx
		bottom := c01[k]*(1-tx) + c11[k]*tx
		out[k] = top*(1-ty) + bottom*ty
	}
	return out
}

package render

import "github.com/go-gl/mathgl/mgl32"

// ワイプ（サブ映像）の配置: 30% に縮小して右上へ寄せる
const (
	SubLayerScale  float32 = 0.3
	SubLayerOffset float32 = 1 - SubLayerScale
)

// Rotation は端末の向きに応じた回転角（度）
func Rotation(landscape bool) float32 {
	if landscape {
		return 90
	}
	return 0
}

// MainLayerMVP はメイン映像の MVP 行列を返す（回転のみ）
func MainLayerMVP(rotation float32) mgl32.Mat4 {
	return mgl32.Ident4().Mul4(mgl32.HomogRotate3DZ(mgl32.DegToRad(rotation)))
}

// SubLayerMVP はサブ映像の MVP 行列を返す
//
// 行列は translate · scale · rotate の順に右から掛けるので、頂点には
// 回転 → 縮小 → 移動 の順で適用される。順番を変えると配置がずれる。
func SubLayerMVP(rotation float32) mgl32.Mat4 {
	return mgl32.Ident4().
		Mul4(mgl32.Translate3D(SubLayerOffset, SubLayerOffset, 0)).
		Mul4(mgl32.Scale3D(SubLayerScale, SubLayerScale, 1)).
		Mul4(mgl32.HomogRotate3DZ(mgl32.DegToRad(rotation)))
}

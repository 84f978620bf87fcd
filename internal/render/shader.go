package render

// 4頂点の三角形ストリップ。1頂点 = 位置(x,y,z) + UV(u,v)
var quadVertices = []float32{
	-1, -1, 0, 0, 0,
	1, -1, 0, 1, 0,
	-1, 1, 0, 0, 1,
	1, 1, 0, 1, 1,
}

const (
	vertexStride   = 5
	positionOffset = 0
	uvOffset       = 3
)

// vertexShader は座標とテクスチャ座標を決める
const vertexShader = `
uniform mat4 uMVPMatrix;
uniform mat4 uSTMatrix;
attribute vec4 aPosition;
attribute vec4 aTextureCoord;
varying vec2 vTextureCoord;

void main() {
  gl_Position = uMVPMatrix * aPosition;
  vTextureCoord = (uSTMatrix * aTextureCoord).xy;
}
`

// fragmentShader は uDrawMainCamera でメイン/サブどちらのテクスチャを使うか選ぶ
const fragmentShader = `
#extension GL_OES_EGL_image_external : require
precision mediump float;
varying vec2 vTextureCoord;
uniform samplerExternalOES uMainCameraTexture;
uniform samplerExternalOES uSubCameraTexture;
uniform int uDrawMainCamera;

void main() {
  vec4 mainCameraTexture = texture2D(uMainCameraTexture, vTextureCoord);
  vec4 subCameraTexture = texture2D(uSubCameraTexture, vTextureCoord);

  if (bool(uDrawMainCamera)) {
    gl_FragColor = mainCameraTexture;
  } else {
    gl_FragColor = subCameraTexture;
  }
}
`

package camera

import "image"

// Facing はレンズの向きを表す
type Facing int

const (
	FacingBack     Facing = iota // 背面カメラ
	FacingFront                  // 前面カメラ
	FacingExternal               // 外部カメラ
)

// String はレンズの向きの名前を返す
func (f Facing) String() string {
	switch f {
	case FacingBack:
		return "back"
	case FacingFront:
		return "front"
	case FacingExternal:
		return "external"
	default:
		return "unknown"
	}
}

// Role は合成時の役割を表す
type Role string

const (
	RoleMain Role = "main" // 全面に表示する映像
	RoleSub  Role = "sub"  // ワイプに表示する映像
)

// ParseRole は文字列から Role を取得する
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleMain, RoleSub:
		return Role(s), true
	default:
		return "", false
	}
}

// State はセッションのライフサイクル状態
//
//	Closed → Opening → Opened → Streaming → Closed
type State int32

const (
	StateClosed State = iota
	StateOpening
	StateOpened
	StateStreaming
)

// String は状態名を返す
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpened:
		return "opened"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// ZoomRange はカメラが対応するズーム倍率の範囲
// 取得できない場合は [0,0]
type ZoomRange struct {
	Min float32 `json:"min"`
	Max float32 `json:"max"`
}

// Contains は倍率が範囲内か判定する
func (r ZoomRange) Contains(ratio float32) bool {
	return ratio >= r.Min && ratio <= r.Max
}

// Available は範囲が取得できているか判定する
func (r ZoomRange) Available() bool {
	return r != ZoomRange{}
}

// Characteristics はプラットフォームが報告するカメラの特性
type Characteristics struct {
	Facing    Facing
	ZoomRange *ZoomRange // 報告されない場合は nil
}

// Surface はカメラがフレームを書き込む先（frame.Source）
type Surface interface {
	// QueueFrame はフレームと変換行列を書き込む
	QueueFrame(img image.Image, transform [16]float32)
	// Size はバッファのサイズを返す
	Size() (width, height int)
}

// CaptureRequest は繰り返しキャプチャのリクエスト
// 一度作成したものを使い回し、ズーム倍率だけを書き換える
type CaptureRequest struct {
	Targets   []Surface
	ZoomRatio float32
}

// Platform はカメラサービス（プラットフォーム側）
type Platform interface {
	// CameraIDs は利用できるカメラIDの一覧を返す
	CameraIDs() ([]string, error)

	// Characteristics はカメラの特性を返す
	Characteristics(id string) (Characteristics, error)

	// OpenCamera はカメラを非同期に開く。結果は callback に通知される
	OpenCamera(id string, callback DeviceStateCallback) error
}

// Device は開いたカメラデバイス
type Device interface {
	// ID はカメラIDを返す
	ID() string

	// CreateCaptureSession は出力先を指定してキャプチャセッションを非同期に構成する
	CreateCaptureSession(targets []Surface, callback SessionStateCallback) error

	// Close はデバイスを閉じる
	Close()
}

// CaptureSession は構成済みのキャプチャセッション
type CaptureSession interface {
	// SetRepeatingRequest は繰り返しリクエストを発行する（置き換える）
	SetRepeatingRequest(request CaptureRequest) error

	// Close はセッションを閉じる
	Close()
}

// DeviceStateCallback はデバイスの状態通知を受け取る
// プラットフォームのワーカーゴルーチンから呼び出される
type DeviceStateCallback interface {
	OnOpened(device Device)
	OnDisconnected(device Device)
	OnError(device Device, code int)
}

// SessionStateCallback はキャプチャセッション構成の結果を受け取る
type SessionStateCallback interface {
	OnConfigured(session CaptureSession)
	OnConfigureFailed(session CaptureSession)
}

// Info はセッションの状態スナップショット（API 応答用）
type Info struct {
	Key          string    `json:"key"`
	ID           string    `json:"id"`
	Role         Role      `json:"role"`
	Facing       string    `json:"facing"`
	State        string    `json:"state"`
	ZoomRatio    float32   `json:"zoom_ratio"`
	ZoomRange    ZoomRange `json:"zoom_range"`
	Disconnected bool      `json:"disconnected"`
}

package camera

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed は閉じたセッションへの操作
	ErrSessionClosed = errors.New("セッションは閉じられています")

	// ErrInvalidState は状態が合わない操作（Opened 以外での Start など）
	ErrInvalidState = errors.New("セッションの状態が不正です")

	// ErrDisconnected はカメラが切断された
	ErrDisconnected = errors.New("カメラが切断されました")

	// ErrOpenTimeout はカメラのオープンが時間内に完了しなかった
	ErrOpenTimeout = errors.New("カメラのオープンがタイムアウトしました")

	// ErrConfigureFailed はキャプチャセッションの構成に失敗した
	ErrConfigureFailed = errors.New("キャプチャセッションの構成に失敗しました")

	// ErrConfigureTimeout はキャプチャセッションの構成が時間内に完了しなかった
	ErrConfigureTimeout = errors.New("キャプチャセッションの構成がタイムアウトしました")

	// ErrUnknownCamera は存在しないカメラID
	ErrUnknownCamera = errors.New("カメラが見つかりません")

	// ErrDeviceClosed は閉じたデバイスへの操作
	ErrDeviceClosed = errors.New("デバイスは閉じられています")
)

// DeviceError はプラットフォームが報告したデバイスエラー
type DeviceError struct {
	ID   string
	Code int
}

// Error は error インターフェースを実装する
func (e *DeviceError) Error() string {
	return fmt.Sprintf("カメラ %s でエラーが発生: code=%d", e.ID, e.Code)
}

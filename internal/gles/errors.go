package gles

import (
	"errors"
	"fmt"
)

var (
	// ErrNoContext はカレントコンテキストが無い状態での操作
	ErrNoContext = errors.New("gles: カレントコンテキストがありません")

	// ErrSurfaceReleased は解放済みサーフェスへの操作
	ErrSurfaceReleased = errors.New("gles: サーフェスは解放済みです")
)

// Error は glGetError が返したエラー
type Error struct {
	Op   string // 直前の操作
	Code Enum   // glGetError の値
}

// Error は error インターフェースを実装する
func (e *Error) Error() string {
	return fmt.Sprintf("%s: glError 0x%04x (%s)", e.Op, uint32(e.Code), e.Code)
}

// String はエラーコードの名前を返す
func (e Enum) String() string {
	switch e {
	case NoError:
		return "GL_NO_ERROR"
	case InvalidEnum:
		return "GL_INVALID_ENUM"
	case InvalidValue:
		return "GL_INVALID_VALUE"
	case InvalidOperation:
		return "GL_INVALID_OPERATION"
	case OutOfMemory:
		return "GL_OUT_OF_MEMORY"
	default:
		return fmt.Sprintf("0x%04x", uint32(e))
	}
}

// CheckError は GL のエラー状態を確認し、エラーがあれば *Error を返す
func CheckError(api API, op string) error {
	if code := api.GetError(); code != NoError {
		return &Error{Op: op, Code: code}
	}
	return nil
}

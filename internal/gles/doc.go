// Package gles は合成処理が依存する GPU 描画の抽象を定義する
//
// # 責務
//   - GLES 2.0 のうち合成で使う呼び出しのインターフェース（API）
//   - 描画先サーフェスとコンテキスト（Surface, Display）
//   - 描画結果の出力先（NativeWindow）
//   - glGetError の検査（CheckError）
//
// # 仕様
//   - GL 呼び出しはサーフェスを MakeCurrent したゴルーチン（OSスレッド）からのみ行う
//   - エラーは回復不能として扱い、呼び出し元へ *Error を返す
//
// 実装はサブパッケージ soft（ソフトウェアラスタライザ）を参照。
package gles

// Package camera はカメラセッションのライフサイクルを担う
//
// # 責務
// - カメラの非同期オープンと結果の待ち合わせ
// - キャプチャセッションの構成と繰り返しリクエストの発行
// - ズーム倍率の変更とズーム範囲の取得
// - 背面・前面カメラの選択
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - プラットフォームのカメラを開いて frame.Source へ映像を流したい
// - 実機が無い環境でテストパターンを流したい（VirtualPlatform）
//
// # 仕様
// - Session: 1台分の状態管理。Closed → Opening → Opened → Streaming → Closed
// - Registry: 役割（main/sub）ごとのセッション管理
// - Platform: カメラサービスの抽象。コールバックはワーカーゴルーチンから届く
// - オープンとセッション構成にはタイムアウトがある
// - 切断やエラーはログに残し、再試行はしない
// - Close は何度呼んでもよい
package camera

// Package server は、HTTPサーバーとWebSocket通信を管理します。
//
// このパッケージは、合成パイプラインの状態参照とズーム操作のAPI、
// 合成映像の MJPEG 配信、静止画の取得を担当します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - カメラ情報とズーム操作のREST API
//   - 合成映像のMJPEGストリーミング
//   - WebSocketによるステータスの定期配信
//
// 仕様:
//   - ルーティングはgin、WebSocketはgorilla/websocketを使用
//   - グレースフルシャットダウンに対応（配信中のストリームは打ち切る）
//   - 複数クライアントの同時接続をサポート
package server

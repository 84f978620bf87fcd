// Package pipeline はカメラから合成、表示までの流れを束ねる
//
// # 責務
// - 映像ソースのフレーム到着と合成ループの同期（Driver）
// - カメラセッション、描画先、合成ループの所有と終了順序の管理（Pipeline）
//
// # 仕様
// - 新しいフレームが1パス分揃うたびに、全描画先を固定順で合成・表示する
// - 待機はチャンネル通知（signal）またはポーリング（poll）
// - 描画のエラーは回復できないのでパイプラインを停止する
// - カメラのエラーはログに残し、パイプラインは止めない
package pipeline

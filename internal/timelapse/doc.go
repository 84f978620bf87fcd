// Package timelapse は合成フレームを一定間隔で静止画として保存する
//
// 保存先は日付ごとのディレクトリで、ファイル名は合成時刻。
// 保持期間を過ぎた日のディレクトリは毎日0時に削除する。
package timelapse

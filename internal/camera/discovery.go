package camera

import (
	"fmt"
	"sort"
)

// Descriptor はプラットフォーム上のカメラ1台分の情報
type Descriptor struct {
	ID              string
	Characteristics Characteristics
}

// Discover はプラットフォームのカメラ一覧を特性付きで返す
// 特性を取得できないカメラは除外する
func Discover(platform Platform) ([]Descriptor, error) {
	ids, err := platform.CameraIDs()
	if err != nil {
		return nil, fmt.Errorf("カメラ一覧の取得に失敗: %w", err)
	}

	// ID でソートして選択結果を安定させる
	sort.Strings(ids)

	descriptors := make([]Descriptor, 0, len(ids))
	for _, id := range ids {
		ch, err := platform.Characteristics(id)
		if err != nil {
			continue
		}
		descriptors = append(descriptors, Descriptor{ID: id, Characteristics: ch})
	}
	return descriptors, nil
}

// SelectBackFront は背面カメラと前面カメラのIDを選ぶ
// それぞれ最初に見つかったものを使う
func SelectBackFront(platform Platform) (back, front string, err error) {
	descriptors, err := Discover(platform)
	if err != nil {
		return "", "", err
	}

	for _, d := range descriptors {
		switch d.Characteristics.Facing {
		case FacingBack:
			if back == "" {
				back = d.ID
			}
		case FacingFront:
			if front == "" {
				front = d.ID
			}
		}
	}

	if back == "" {
		return "", "", fmt.Errorf("背面カメラ: %w", ErrUnknownCamera)
	}
	if front == "" {
		return "", "", fmt.Errorf("前面カメラ: %w", ErrUnknownCamera)
	}
	return back, front, nil
}

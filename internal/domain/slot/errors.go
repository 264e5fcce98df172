package slot

import "errors"

// Slot ドメインのエラー定義
var (
	ErrBranchIDRequired = errors.New("店舗IDは必須です")
	ErrTableIDRequired  = errors.New("テーブルIDは必須です")
	ErrInvalidDate      = errors.New("日付の形式が不正です")
	ErrInvalidTime      = errors.New("時刻の形式が不正です")
)

package booking

import "errors"

// Booking ドメインのエラー定義
var (
	ErrBookingNotFound             = errors.New("予約が見つかりません")
	ErrSlotAlreadyBooked           = errors.New("スロットは既に予約済みです")
	ErrBookingAlreadyCancelled     = errors.New("予約は既にキャンセルされています")
	ErrBranchIDRequired            = errors.New("店舗IDは必須です")
	ErrHolderIDRequired            = errors.New("保持者IDは必須です")
	ErrTableIDsRequired            = errors.New("テーブルIDは必須です")
	ErrIdempotencyKeyRequired      = errors.New("冪等性キーは必須です")
	ErrIdempotencyKeyAlreadyExists = errors.New("同じ冪等性キーの予約が既に存在します")
)

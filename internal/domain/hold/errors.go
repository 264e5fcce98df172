package hold

import "errors"

// Hold ドメインのエラー定義
var (
	ErrSlotConflict      = errors.New("スロットは既に押さえられています")
	ErrHoldNotFound      = errors.New("ホールドが見つかりません")
	ErrNotHolder         = errors.New("ホールドの所有者ではありません")
	ErrHoldExpired       = errors.New("ホールドの有効期限が切れています")
	ErrAlreadyFinalizing = errors.New("ホールドは確定処理中です")
	ErrHolderIDRequired  = errors.New("保持者IDは必須です")
)

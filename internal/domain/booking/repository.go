package booking

import (
	"context"

	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/domain/slot"
)

// Repository は予約永続化コラボレーターのインターフェース
// Persist はタイムアウト後の再試行を想定し、冪等性キーで重複を防ぐこと
type Repository interface {
	// Persist は予約を永続化する
	// 同一スロットの予約が既に存在する場合は ErrSlotAlreadyBooked、
	// 同一冪等性キーの予約が既に存在する場合は ErrIdempotencyKeyAlreadyExists を返す
	Persist(ctx context.Context, b *Booking) error

	// GetByID はIDから予約を取得する
	GetByID(ctx context.Context, id string) (*Booking, error)

	// GetByIdempotencyKey は冪等性キーから予約を取得する
	GetByIdempotencyKey(ctx context.Context, key string) (*Booking, error)

	// GetByHolderID は保持者IDから予約一覧を取得する
	GetByHolderID(ctx context.Context, holderID string, limit, offset int) ([]*Booking, error)

	// TakenSlots は店舗・日付の予約済みスロットキー一覧を取得する
	TakenSlots(ctx context.Context, branchID, date string) ([]slot.Key, error)

	// Cancel は予約をキャンセルし、占有スロットを解放する
	Cancel(ctx context.Context, id string) (*Booking, error)
}

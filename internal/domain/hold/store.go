package hold

import (
	"context"
	"time"

	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/domain/slot"
)

// FinalizeOutcome は確定処理の結果を表す
type FinalizeOutcome string

const (
	// FinalizeCommit は予約の永続化に成功し、ホールドを完全に削除する
	FinalizeCommit FinalizeOutcome = "commit"
	// FinalizeAbort は永続化に失敗し、ホールドを保持中へ戻す
	FinalizeAbort FinalizeOutcome = "abort"
)

// HeldSlot は保持中スロットの読み取り専用スナップショット
type HeldSlot struct {
	Key       slot.Key
	HolderID  string
	ExpiresAt time.Time
}

// Store はホールド状態の唯一の真実の源を表すインターフェース
// 同一キーに対する変更操作は直列化される
// インメモリ実装を分散バックプレーンへ差し替えられるよう抽象化している
type Store interface {
	// Acquire はスロットのホールドを取得する
	// Active・Finalizing いずれのレコードが存在しても ErrSlotConflict を返す
	// （同一保持者でも再取得によるTTL延長は許さない）
	Acquire(ctx context.Context, key slot.Key, holderID string) error

	// Release はホールドを解放する（所有者のみ）
	Release(ctx context.Context, key slot.Key, holderID string) error

	// BeginFinalize は確定処理開始への遷移を行い、レコードのスナップショットを返す
	BeginFinalize(ctx context.Context, key slot.Key, holderID string) (HeldSlot, error)

	// CompleteFinalize は確定処理を完了する
	// Commit はレコードを削除し、Abort は保持中へ戻す
	CompleteFinalize(ctx context.Context, key slot.Key, outcome FinalizeOutcome) error

	// Sweep は期限切れの Active レコードをすべて削除し、削除したキーを返す
	// Finalizing レコードには決して触れない
	Sweep(ctx context.Context, now time.Time) []slot.Key

	// ListActive は店舗・日付の保持中スロット一覧をスナップショットで返す
	ListActive(ctx context.Context, branchID, date string) []HeldSlot
}

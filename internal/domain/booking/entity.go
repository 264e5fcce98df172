package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/domain/slot"
)

// Status は予約の状態を表す
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Booking は確定済み予約エンティティを表す
type Booking struct {
	ID             string
	BranchID       string
	HolderID       string
	Date           string // slot.DateLayout 形式
	Time           string // slot.TimeLayout 形式
	TableIDs       []string
	GuestCount     int
	Note           string
	IdempotencyKey string
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewBooking は新しい予約を作成する
func NewBooking(branchID, holderID, date, timeOfDay, idempotencyKey string, tableIDs []string, guestCount int, note string) *Booking {
	now := time.Now()
	return &Booking{
		ID:             uuid.New().String(),
		BranchID:       branchID,
		HolderID:       holderID,
		Date:           date,
		Time:           timeOfDay,
		TableIDs:       tableIDs,
		GuestCount:     guestCount,
		Note:           note,
		IdempotencyKey: idempotencyKey,
		Status:         StatusConfirmed,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// SlotKeys は予約が占有するスロットキー一覧を返す
func (b *Booking) SlotKeys() []slot.Key {
	keys := make([]slot.Key, len(b.TableIDs))
	for i, tableID := range b.TableIDs {
		keys[i] = slot.NewKey(b.BranchID, tableID, b.Date, b.Time)
	}
	return keys
}

// Validate は予約の検証を行う
func (b *Booking) Validate() error {
	if b.BranchID == "" {
		return ErrBranchIDRequired
	}
	if b.HolderID == "" {
		return ErrHolderIDRequired
	}
	if len(b.TableIDs) == 0 {
		return ErrTableIDsRequired
	}
	if b.IdempotencyKey == "" {
		return ErrIdempotencyKeyRequired
	}
	for _, key := range b.SlotKeys() {
		if err := key.Validate(); err != nil {
			return err
		}
	}
	return nil
}

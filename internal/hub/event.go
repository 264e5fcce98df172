package hub

import (
	"time"

	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/domain/slot"
)

// EventType はスロット状態遷移の種別を表す
type EventType string

const (
	// EventHeld はホールド成立
	EventHeld EventType = "held"
	// EventReleased はホールド解放（明示的解放または期限切れ）
	EventReleased EventType = "released"
	// EventBooked は予約確定
	EventBooked EventType = "booked"
)

// Event はスロット状態遷移の通知イベント
// 永続化されず、配信は最善努力で行われる
type Event struct {
	Type       EventType `json:"type"`
	Key        slot.Key  `json:"key"`
	HolderID   string    `json:"holder_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent は新しいイベントを作成する
func NewEvent(eventType EventType, key slot.Key, holderID string) Event {
	return Event{
		Type:       eventType,
		Key:        key,
		HolderID:   holderID,
		OccurredAt: time.Now(),
	}
}

// Publisher はイベント発行側のインターフェース
type Publisher interface {
	// Publish はイベントを購読者へ配信する
	// 配信は非ブロッキングで、発行側を決して待たせない
	Publish(event Event)
}

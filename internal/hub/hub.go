package hub

import (
	"sync"

	"go.uber.org/zap"

	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/pkg/logger"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/pkg/metrics"
)

// BranchAll は全店舗のイベントを受け取る購読者向けの特別な店舗ID
const BranchAll = "*"

// Subscription は1購読者への配信ストリームを表す
type Subscription struct {
	id       uint64
	branchID string

	// mu は送信側の drop-oldest 操作を直列化する
	// これにより同一キーのイベントは発行順に届く
	mu sync.Mutex
	ch chan Event
}

// Events はイベント受信チャンネルを返す
// 購読解除時にクローズされる
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// BranchID は購読対象の店舗IDを返す
func (s *Subscription) BranchID() string {
	return s.branchID
}

// Hub は店舗単位のイベントファンアウトを行う
// 遅い購読者は古いイベントから捨てられるだけで、発行側を止めることはない
type Hub struct {
	mu          sync.RWMutex
	subscribers map[uint64]*Subscription
	nextID      uint64
	bufferSize  int
	closed      bool
	metrics     *metrics.Metrics
}

// NewHub は新しい Hub を作成する
// bufferSize は購読者ごとの送信キュー長
func NewHub(bufferSize int, m *metrics.Metrics) *Hub {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Hub{
		subscribers: make(map[uint64]*Subscription),
		bufferSize:  bufferSize,
		metrics:     m,
	}
}

// Subscribe は店舗のイベント購読を開始する
// branchID に BranchAll を渡すと全店舗のイベントを受け取る
func (h *Hub) Subscribe(branchID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		id:       h.nextID,
		branchID: branchID,
		ch:       make(chan Event, h.bufferSize),
	}
	if !h.closed {
		h.subscribers[sub.id] = sub
	} else {
		close(sub.ch)
	}
	return sub
}

// Unsubscribe は購読を解除し、受信チャンネルをクローズする
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[sub.id]; !ok {
		return
	}
	delete(h.subscribers, sub.id)
	close(sub.ch)
}

// Publish はイベントを該当店舗の全購読者へ配信する
// バッファが溢れた購読者では最も古いイベントを捨てて詰め直す
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	for _, sub := range h.subscribers {
		if sub.branchID != BranchAll && sub.branchID != event.Key.BranchID {
			continue
		}
		h.send(sub, event)
	}

	if h.metrics != nil {
		h.metrics.BroadcastEventsTotal.WithLabelValues(string(event.Type)).Inc()
	}
}

func (h *Hub) send(sub *Subscription, event Event) {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	select {
	case sub.ch <- event:
		return
	default:
	}

	// 溢れた場合は最古のイベントを1つ捨てる
	// 欠けた中間イベントは再接続後の ListActive で補完される
	select {
	case <-sub.ch:
		if h.metrics != nil {
			h.metrics.BroadcastDroppedTotal.Inc()
		}
	default:
	}

	select {
	case sub.ch <- event:
	default:
		logger.Warn("イベント配信をスキップ",
			zap.String("branch_id", sub.branchID),
			zap.String("slot", event.Key.String()),
		)
	}
}

// SubscriberCount は購読者数を返す
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close は全購読者を解除して Hub を閉じる
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subscribers {
		delete(h.subscribers, id)
		close(sub.ch)
	}
}

var _ Publisher = (*Hub)(nil)

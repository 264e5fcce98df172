package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/domain/hold"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/domain/slot"
)

// stripeCount はロック分割数
// スロットキーのハッシュで割り当てるため、衝突するキー同士でのみ競合する
const stripeCount = 64

type stripe struct {
	mu      sync.Mutex
	records map[slot.Key]*hold.Record
}

// HoldStore はストライプロックによるインメモリの hold.Store 実装
// 1操作につき1つのロックのみを取得し、ネストしない
type HoldStore struct {
	stripes [stripeCount]stripe
	ttl     time.Duration
	now     func() time.Time
}

// NewHoldStore は新しい HoldStore を作成する
func NewHoldStore(ttl time.Duration) *HoldStore {
	s := &HoldStore{ttl: ttl, now: time.Now}
	for i := range s.stripes {
		s.stripes[i].records = make(map[slot.Key]*hold.Record)
	}
	return s
}

func (s *HoldStore) stripeFor(key slot.Key) *stripe {
	h := fnv.New32a()
	h.Write([]byte(key.String()))
	return &s.stripes[h.Sum32()%stripeCount]
}

// Acquire はスロットのホールドを取得する
func (s *HoldStore) Acquire(_ context.Context, key slot.Key, holderID string) error {
	if holderID == "" {
		return hold.ErrHolderIDRequired
	}
	st := s.stripeFor(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	now := s.now()
	if existing, ok := st.records[key]; ok {
		// 期限切れの Active レコードは掃除を待たずその場で差し替え可能
		if existing.Status == hold.StatusActive && existing.IsExpired(now) {
			st.records[key] = hold.NewRecord(holderID, now, s.ttl)
			return nil
		}
		return hold.ErrSlotConflict
	}
	st.records[key] = hold.NewRecord(holderID, now, s.ttl)
	return nil
}

// Release はホールドを解放する
func (s *HoldStore) Release(_ context.Context, key slot.Key, holderID string) error {
	st := s.stripeFor(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	existing, ok := st.records[key]
	if !ok {
		return hold.ErrHoldNotFound
	}
	if existing.HolderID != holderID {
		return hold.ErrNotHolder
	}
	if existing.Status == hold.StatusFinalizing {
		return hold.ErrAlreadyFinalizing
	}
	delete(st.records, key)
	return nil
}

// BeginFinalize は確定処理開始への遷移を行う
func (s *HoldStore) BeginFinalize(_ context.Context, key slot.Key, holderID string) (hold.HeldSlot, error) {
	st := s.stripeFor(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	existing, ok := st.records[key]
	if !ok {
		return hold.HeldSlot{}, hold.ErrHoldNotFound
	}
	if existing.HolderID != holderID {
		return hold.HeldSlot{}, hold.ErrNotHolder
	}
	if err := existing.BeginFinalize(s.now()); err != nil {
		return hold.HeldSlot{}, err
	}
	return hold.HeldSlot{Key: key, HolderID: existing.HolderID, ExpiresAt: existing.ExpiresAt}, nil
}

// CompleteFinalize は確定処理を完了する
func (s *HoldStore) CompleteFinalize(_ context.Context, key slot.Key, outcome hold.FinalizeOutcome) error {
	st := s.stripeFor(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	existing, ok := st.records[key]
	if !ok {
		return hold.ErrHoldNotFound
	}
	if outcome == hold.FinalizeCommit {
		delete(st.records, key)
		return nil
	}
	existing.AbortFinalize()
	return nil
}

// Sweep は期限切れの Active レコードを削除し、削除したキーを返す
func (s *HoldStore) Sweep(_ context.Context, now time.Time) []slot.Key {
	var expired []slot.Key
	for i := range s.stripes {
		st := &s.stripes[i]
		st.mu.Lock()
		for key, rec := range st.records {
			if rec.Status == hold.StatusActive && rec.IsExpired(now) {
				delete(st.records, key)
				expired = append(expired, key)
			}
		}
		st.mu.Unlock()
	}
	return expired
}

// ListActive は店舗・日付の保持中スロット一覧を返す
// ストライプごとに短くロックするだけで、全体を止めない
func (s *HoldStore) ListActive(_ context.Context, branchID, date string) []hold.HeldSlot {
	var result []hold.HeldSlot
	now := s.now()
	for i := range s.stripes {
		st := &s.stripes[i]
		st.mu.Lock()
		for key, rec := range st.records {
			if key.BranchID != branchID || key.Date != date {
				continue
			}
			if rec.Status == hold.StatusActive && rec.IsExpired(now) {
				continue
			}
			result = append(result, hold.HeldSlot{Key: key, HolderID: rec.HolderID, ExpiresAt: rec.ExpiresAt})
		}
		st.mu.Unlock()
	}
	return result
}

var _ hold.Store = (*HoldStore)(nil)

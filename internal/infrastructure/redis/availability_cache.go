package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/domain/hold"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/domain/slot"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

// AvailabilityCache は店舗・日付ごとの保持中スロット一覧のスナップショットを管理する
// ホールド状態の真実の源はあくまで Store であり、ここは読み取りの負荷軽減用
type AvailabilityCache struct {
	client *redis.Client
}

// NewAvailabilityCache は新しい AvailabilityCache インスタンスを作成する
func NewAvailabilityCache(client *redis.Client) *AvailabilityCache {
	return &AvailabilityCache{client: client}
}

type cachedHeldSlot struct {
	BranchID  string    `json:"branch_id"`
	TableID   string    `json:"table_id"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	HolderID  string    `json:"holder_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GetHeldSlots は保持中スロット一覧をキャッシュから取得する
func (c *AvailabilityCache) GetHeldSlots(ctx context.Context, branchID, date string) ([]hold.HeldSlot, error) {
	key := c.heldSlotsKey(branchID, date)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}

	var rows []cachedHeldSlot
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("キャッシュの復元に失敗: %w", err)
	}

	result := make([]hold.HeldSlot, len(rows))
	for i, row := range rows {
		result[i] = hold.HeldSlot{
			Key:       slot.NewKey(row.BranchID, row.TableID, row.Date, row.Time),
			HolderID:  row.HolderID,
			ExpiresAt: row.ExpiresAt,
		}
	}
	return result, nil
}

// SetHeldSlots は保持中スロット一覧をキャッシュに保存する
func (c *AvailabilityCache) SetHeldSlots(ctx context.Context, branchID, date string, slots []hold.HeldSlot, ttl time.Duration) error {
	rows := make([]cachedHeldSlot, len(slots))
	for i, s := range slots {
		rows[i] = cachedHeldSlot{
			BranchID:  s.Key.BranchID,
			TableID:   s.Key.TableID,
			Date:      s.Key.Date,
			Time:      s.Key.Time,
			HolderID:  s.HolderID,
			ExpiresAt: s.ExpiresAt,
		}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("キャッシュの変換に失敗: %w", err)
	}

	if err := c.client.Set(ctx, c.heldSlotsKey(branchID, date), data, ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate は店舗・日付のキャッシュを無効化する
func (c *AvailabilityCache) Invalidate(ctx context.Context, branchID, date string) error {
	if err := c.client.Del(ctx, c.heldSlotsKey(branchID, date)).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func (c *AvailabilityCache) heldSlotsKey(branchID, date string) string {
	return fmt.Sprintf("holds:snapshot:%s:%s", branchID, date)
}

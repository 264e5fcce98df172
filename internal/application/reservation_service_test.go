//go:build integration
// +build integration

package application

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/config"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/domain/booking"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/hub"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/infrastructure/memory"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/infrastructure/postgres"
)

func setupTestEnv(t *testing.T) (*ReservationService, func()) {
	cfg := config.Load()

	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		t.Skipf("DB接続エラー: %v", err)
	}

	store := memory.NewHoldStore(cfg.Hold.TTL)
	bookingRepo := postgres.NewBookingRepository(db)
	h := hub.NewHub(cfg.Hold.SubscriberBuffer, nil)

	service := NewReservationService(store, bookingRepo, h, nil, nil, cfg.Hold.FinalizeTimeout)

	cleanup := func() {
		db.Exec("DELETE FROM booking_slots")
		db.Exec("DELETE FROM bookings")
		h.Close()
		db.Close()
	}

	return service, cleanup
}

func TestConcurrentFinalize(t *testing.T) {
	service, cleanup := setupTestEnv(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("10並行リクエストで1卓は1人のみホールド成功", func(t *testing.T) {
		const numGoroutines = 10
		var successCount int32
		var failCount int32
		var wg sync.WaitGroup

		for i := 0; i < numGoroutines; i++ {
			wg.Add(1)
			go func(userNum int) {
				defer wg.Done()
				_, err := service.HoldTables(ctx, HoldTablesInput{
					BranchID: "shibuya",
					TableIDs: []string{"TEST-1"},
					Date:     "2026-09-01",
					Time:     "19:00",
					HolderID: "user-" + string(rune('A'+userNum)),
				})
				if err == nil {
					atomic.AddInt32(&successCount, 1)
				} else {
					atomic.AddInt32(&failCount, 1)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), successCount, "成功は1つだけ")
		assert.Equal(t, int32(numGoroutines-1), failCount, "残りは全て失敗")
	})
}

func TestFinalizeIdempotency(t *testing.T) {
	service, cleanup := setupTestEnv(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("同じ冪等性キーで複数回確定しても同じ予約が返る", func(t *testing.T) {
		_, err := service.HoldTables(ctx, HoldTablesInput{
			BranchID: "shibuya", TableIDs: []string{"IDEM-1"},
			Date: "2026-09-02", Time: "19:00", HolderID: "user-idem",
		})
		require.NoError(t, err)

		input := FinalizeBookingInput{
			BranchID: "shibuya", TableIDs: []string{"IDEM-1"},
			Date: "2026-09-02", Time: "19:00",
			HolderID: "user-idem", GuestCount: 2,
			IdempotencyKey: "same-idem-key",
		}

		b1, err := service.FinalizeBooking(ctx, input)
		require.NoError(t, err)

		b2, err := service.FinalizeBooking(ctx, input)
		require.NoError(t, err)

		assert.Equal(t, b1.ID, b2.ID, "同じ予約IDが返るべき")
	})
}

func TestBookedSlotBlocksHold(t *testing.T) {
	service, cleanup := setupTestEnv(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("確定済みスロットの再ホールドはエラー", func(t *testing.T) {
		_, err := service.HoldTables(ctx, HoldTablesInput{
			BranchID: "shibuya", TableIDs: []string{"RES-1"},
			Date: "2026-09-03", Time: "19:00", HolderID: "user-first",
		})
		require.NoError(t, err)

		_, err = service.FinalizeBooking(ctx, FinalizeBookingInput{
			BranchID: "shibuya", TableIDs: []string{"RES-1"},
			Date: "2026-09-03", Time: "19:00",
			HolderID: "user-first", GuestCount: 2,
			IdempotencyKey: "first-booking",
		})
		require.NoError(t, err)

		// 別のユーザーが同じスロットをホールドしようとして失敗
		_, err = service.HoldTables(ctx, HoldTablesInput{
			BranchID: "shibuya", TableIDs: []string{"RES-1"},
			Date: "2026-09-03", Time: "19:00", HolderID: "user-second",
		})
		assert.ErrorIs(t, err, booking.ErrSlotAlreadyBooked)
	})
}

func TestBookingCancelFreesSlot(t *testing.T) {
	service, cleanup := setupTestEnv(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("キャンセル後はスロットが再利用可能", func(t *testing.T) {
		_, err := service.HoldTables(ctx, HoldTablesInput{
			BranchID: "shibuya", TableIDs: []string{"CC-1"},
			Date: "2026-09-04", Time: "19:00", HolderID: "user-cancel",
		})
		require.NoError(t, err)

		b, err := service.FinalizeBooking(ctx, FinalizeBookingInput{
			BranchID: "shibuya", TableIDs: []string{"CC-1"},
			Date: "2026-09-04", Time: "19:00",
			HolderID: "user-cancel", GuestCount: 2,
			IdempotencyKey: "cancel-test",
		})
		require.NoError(t, err)

		cancelled, err := service.CancelBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, booking.StatusCancelled, cancelled.Status)

		// 同じスロットを再びホールド・確定できる
		_, err = service.HoldTables(ctx, HoldTablesInput{
			BranchID: "shibuya", TableIDs: []string{"CC-1"},
			Date: "2026-09-04", Time: "19:00", HolderID: "user-reuse",
		})
		require.NoError(t, err)

		_, err = service.FinalizeBooking(ctx, FinalizeBookingInput{
			BranchID: "shibuya", TableIDs: []string{"CC-1"},
			Date: "2026-09-04", Time: "19:00",
			HolderID: "user-reuse", GuestCount: 2,
			IdempotencyKey: "reuse-test",
		})
		require.NoError(t, err)
	})
}

// TestFinalizeRequiresHold はホールドなしの確定が拒否されることを確認する
func TestFinalizeRequiresHold(t *testing.T) {
	service, cleanup := setupTestEnv(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("ホールドを持たない確定はエラー", func(t *testing.T) {
		_, err := service.HoldTables(ctx, HoldTablesInput{
			BranchID: "shibuya", TableIDs: []string{"BS-1"},
			Date: "2026-09-05", Time: "19:00", HolderID: "user-A",
		})
		require.NoError(t, err)

		_, err = service.FinalizeBooking(ctx, FinalizeBookingInput{
			BranchID: "shibuya", TableIDs: []string{"BS-1"},
			Date: "2026-09-05", Time: "19:00",
			HolderID: "user-A", GuestCount: 2,
			IdempotencyKey: "backstop-A",
		})
		require.NoError(t, err)

		// 保持者でないユーザーの確定は開始段階で拒否される
		_, err = service.FinalizeBooking(ctx, FinalizeBookingInput{
			BranchID: "shibuya", TableIDs: []string{"BS-1"},
			Date: "2026-09-05", Time: "19:00",
			HolderID: "user-B", GuestCount: 2,
			IdempotencyKey: "backstop-B",
		})
		assert.Error(t, err)
	})
}

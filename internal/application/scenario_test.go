package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/domain/booking"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/domain/hold"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/domain/slot"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/hub"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/infrastructure/memory"
)

// newScenarioService は実際の HoldStore と実際の Hub を使った構成を返す
// 永続化だけをモックにして、ホールドから確定までの流れを通しで検証する
func newScenarioService(t *testing.T, ttl time.Duration) (*ReservationService, *memory.HoldStore, *MockBookingRepository, *hub.Hub) {
	t.Helper()
	store := memory.NewHoldStore(ttl)
	repo := new(MockBookingRepository)
	h := hub.NewHub(16, nil)
	t.Cleanup(h.Close)
	return NewReservationService(store, repo, h, nil, nil, 5*time.Second), store, repo, h
}

// TestScenario_FullBookingFlow はテーブルホールドから予約確定までの完全なフロー
func TestScenario_FullBookingFlow(t *testing.T) {
	service, _, repo, _ := newScenarioService(t, 5*time.Minute)
	ctx := context.Background()

	repo.On("TakenSlots", mock.Anything, "shibuya", "2026-09-01").Return([]slot.Key{}, nil)
	repo.On("GetByIdempotencyKey", mock.Anything, "order-tanaka-001").Return(nil, booking.ErrBookingNotFound).Once()
	repo.On("Persist", mock.Anything, mock.AnythingOfType("*booking.Booking")).Return(nil)

	// 1. 2卓をまとめてホールド
	held, err := service.HoldTables(ctx, HoldTablesInput{
		BranchID: "shibuya",
		TableIDs: []string{"T1", "T2"},
		Date:     "2026-09-01",
		Time:     "19:00",
		HolderID: "user-tanaka",
	})
	require.NoError(t, err)
	require.Len(t, held, 2)

	// 2. 保持中一覧に現れる
	listed, err := service.ListHeld(ctx, "shibuya", "2026-09-01")
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	// 3. 別のユーザーは同じ卓をホールドできない
	_, err = service.HoldTables(ctx, HoldTablesInput{
		BranchID: "shibuya",
		TableIDs: []string{"T1"},
		Date:     "2026-09-01",
		Time:     "19:00",
		HolderID: "user-suzuki",
	})
	assert.ErrorIs(t, err, hold.ErrSlotConflict)

	// 4. 予約を確定
	result, err := service.FinalizeBooking(ctx, FinalizeBookingInput{
		BranchID:       "shibuya",
		TableIDs:       []string{"T1", "T2"},
		Date:           "2026-09-01",
		Time:           "19:00",
		HolderID:       "user-tanaka",
		GuestCount:     4,
		IdempotencyKey: "order-tanaka-001",
	})
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, result.Status)

	// 5. 確定後はホールドが除去されている
	listed, err = service.ListHeld(ctx, "shibuya", "2026-09-01")
	require.NoError(t, err)
	assert.Empty(t, listed)
}

// TestScenario_MultipleUsersCompeting は複数ユーザーが同じ卓を取り合うシナリオ
func TestScenario_MultipleUsersCompeting(t *testing.T) {
	service, _, repo, _ := newScenarioService(t, 5*time.Minute)
	ctx := context.Background()

	repo.On("TakenSlots", mock.Anything, "shibuya", "2026-09-01").Return([]slot.Key{}, nil)

	t.Run("50人が同時に同じ卓をホールド", func(t *testing.T) {
		const numUsers = 50
		var successCount, conflictCount, otherErrorCount int32
		var wg sync.WaitGroup

		for i := 0; i < numUsers; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, err := service.HoldTables(ctx, HoldTablesInput{
					BranchID: "shibuya",
					TableIDs: []string{"VIP-1"},
					Date:     "2026-09-01",
					Time:     "19:00",
					HolderID: fmt.Sprintf("user-%d", n),
				})
				switch {
				case err == nil:
					atomic.AddInt32(&successCount, 1)
				case errors.Is(err, hold.ErrSlotConflict):
					atomic.AddInt32(&conflictCount, 1)
				default:
					atomic.AddInt32(&otherErrorCount, 1)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), successCount, "1人だけがホールド成功")
		assert.Equal(t, int32(numUsers-1), conflictCount, "残りは全て競合")
		assert.Equal(t, int32(0), otherErrorCount)
	})
}

// TestScenario_ReleaseAndRehold は解放後に別ユーザーがホールドするシナリオ
func TestScenario_ReleaseAndRehold(t *testing.T) {
	service, _, repo, _ := newScenarioService(t, 5*time.Minute)
	ctx := context.Background()

	repo.On("TakenSlots", mock.Anything, "shibuya", "2026-09-01").Return([]slot.Key{}, nil)

	// ユーザーAがホールド
	_, err := service.HoldTables(ctx, HoldTablesInput{
		BranchID: "shibuya", TableIDs: []string{"T1"},
		Date: "2026-09-01", Time: "19:00", HolderID: "user-A",
	})
	require.NoError(t, err)

	// ユーザーBは失敗
	_, err = service.HoldTables(ctx, HoldTablesInput{
		BranchID: "shibuya", TableIDs: []string{"T1"},
		Date: "2026-09-01", Time: "19:00", HolderID: "user-B",
	})
	assert.ErrorIs(t, err, hold.ErrSlotConflict)

	// ユーザーBは他人のホールドを解放できない
	err = service.ReleaseTables(ctx, ReleaseTablesInput{
		BranchID: "shibuya", TableIDs: []string{"T1"},
		Date: "2026-09-01", Time: "19:00", HolderID: "user-B",
	})
	assert.ErrorIs(t, err, hold.ErrNotHolder)

	// ユーザーAが解放
	err = service.ReleaseTables(ctx, ReleaseTablesInput{
		BranchID: "shibuya", TableIDs: []string{"T1"},
		Date: "2026-09-01", Time: "19:00", HolderID: "user-A",
	})
	require.NoError(t, err)

	// ユーザーBが改めてホールドして成功
	held, err := service.HoldTables(ctx, HoldTablesInput{
		BranchID: "shibuya", TableIDs: []string{"T1"},
		Date: "2026-09-01", Time: "19:00", HolderID: "user-B",
	})
	require.NoError(t, err)
	assert.Equal(t, "user-B", held[0].HolderID)
}

// TestScenario_PartialGroupHoldFails は一部の卓が取れない場合に全体が失敗するシナリオ
func TestScenario_PartialGroupHoldFails(t *testing.T) {
	service, _, repo, _ := newScenarioService(t, 5*time.Minute)
	ctx := context.Background()

	repo.On("TakenSlots", mock.Anything, "shibuya", "2026-09-01").Return([]slot.Key{}, nil)

	// 先客が T2 をホールド
	_, err := service.HoldTables(ctx, HoldTablesInput{
		BranchID: "shibuya", TableIDs: []string{"T2"},
		Date: "2026-09-01", Time: "19:00", HolderID: "first-user",
	})
	require.NoError(t, err)

	// T1〜T3 の一括ホールドは T2 の競合で全体が失敗
	_, err = service.HoldTables(ctx, HoldTablesInput{
		BranchID: "shibuya", TableIDs: []string{"T1", "T2", "T3"},
		Date: "2026-09-01", Time: "19:00", HolderID: "group-leader",
	})
	assert.ErrorIs(t, err, hold.ErrSlotConflict)

	// T1 と T3 は補償解放で空いたまま
	held, err := service.ListHeld(ctx, "shibuya", "2026-09-01")
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, "T2", held[0].Key.TableID)
	assert.Equal(t, "first-user", held[0].HolderID)
}

// TestScenario_FinalizeAbortKeepsHold は永続化失敗後にホールドが残るシナリオ
func TestScenario_FinalizeAbortKeepsHold(t *testing.T) {
	service, _, repo, _ := newScenarioService(t, 5*time.Minute)
	ctx := context.Background()

	repo.On("TakenSlots", mock.Anything, "shibuya", "2026-09-01").Return([]slot.Key{}, nil)
	repo.On("GetByIdempotencyKey", mock.Anything, "retry-key").Return(nil, booking.ErrBookingNotFound)
	repo.On("Persist", mock.Anything, mock.AnythingOfType("*booking.Booking")).Return(errors.New("db down")).Once()

	_, err := service.HoldTables(ctx, HoldTablesInput{
		BranchID: "shibuya", TableIDs: []string{"T1"},
		Date: "2026-09-01", Time: "19:00", HolderID: "user-A",
	})
	require.NoError(t, err)

	// 永続化失敗 → Abort でホールド温存
	_, err = service.FinalizeBooking(ctx, FinalizeBookingInput{
		BranchID: "shibuya", TableIDs: []string{"T1"},
		Date: "2026-09-01", Time: "19:00",
		HolderID: "user-A", GuestCount: 2, IdempotencyKey: "retry-key",
	})
	require.Error(t, err)

	held, err := service.ListHeld(ctx, "shibuya", "2026-09-01")
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, "user-A", held[0].HolderID)

	// 再試行は成功する
	repo.On("Persist", mock.Anything, mock.AnythingOfType("*booking.Booking")).Return(nil).Once()
	result, err := service.FinalizeBooking(ctx, FinalizeBookingInput{
		BranchID: "shibuya", TableIDs: []string{"T1"},
		Date: "2026-09-01", Time: "19:00",
		HolderID: "user-A", GuestCount: 2, IdempotencyKey: "retry-key",
	})
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, result.Status)
}

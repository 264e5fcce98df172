package application

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/domain/slot"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/infrastructure/memory"
)

// TestBenchmark_LargeScaleHolds は大規模スロット数でのパフォーマンスを計測する
// 10万スロット規模でのホールド取得、一覧、掃除のスループットを実証する
func TestBenchmark_LargeScaleHolds(t *testing.T) {
	if testing.Short() {
		t.Skip("大規模ベンチマークテストはshortモードではスキップ")
	}

	store := memory.NewHoldStore(5 * time.Minute)
	ctx := context.Background()

	t.Run("10万スロットベンチマーク", func(t *testing.T) {
		const totalSlots = 100000
		const branches = 10
		slotsPerBranch := totalSlots / branches

		// 1. 10万ホールドの取得スループット
		t.Log("=== 10万ホールドの取得開始 ===")
		startAcquire := time.Now()

		var wg sync.WaitGroup
		var acquireErrors int32
		for b := 0; b < branches; b++ {
			wg.Add(1)
			go func(branch int) {
				defer wg.Done()
				branchID := fmt.Sprintf("branch-%02d", branch)
				for i := 0; i < slotsPerBranch; i++ {
					key := slot.NewKey(branchID, fmt.Sprintf("T%05d", i), "2026-09-01", "19:00")
					if err := store.Acquire(ctx, key, fmt.Sprintf("user-%d-%d", branch, i)); err != nil {
						atomic.AddInt32(&acquireErrors, 1)
					}
				}
			}(b)
		}
		wg.Wait()

		acquireDuration := time.Since(startAcquire)
		acquireRate := float64(totalSlots) / acquireDuration.Seconds()
		require.Equal(t, int32(0), acquireErrors)
		t.Logf("✅ ホールド取得完了: %v (%.0f 件/秒)", acquireDuration, acquireRate)

		// 2. 保持中一覧のパフォーマンス
		t.Log("=== 保持中一覧のパフォーマンス計測 ===")
		startList := time.Now()

		held := store.ListActive(ctx, "branch-00", "2026-09-01")
		require.Len(t, held, slotsPerBranch)

		listDuration := time.Since(startList)
		t.Logf("✅ 一覧取得: %v (%d 件)", listDuration, len(held))

		// 3. 同一スロットへの競合取得（100人が同じ卓を取り合う）
		t.Log("=== 100人同時競合ホールドのパフォーマンス計測 ===")
		const competingUsers = 100
		targetKey := slot.NewKey("branch-00", "VIP-1", "2026-09-01", "20:00")
		var competitionSuccess int32
		var competitionConflict int32

		startCompete := time.Now()

		var wg2 sync.WaitGroup
		for i := 0; i < competingUsers; i++ {
			wg2.Add(1)
			go func(n int) {
				defer wg2.Done()
				if err := store.Acquire(ctx, targetKey, fmt.Sprintf("compete-user-%03d", n)); err == nil {
					atomic.AddInt32(&competitionSuccess, 1)
				} else {
					atomic.AddInt32(&competitionConflict, 1)
				}
			}(i)
		}
		wg2.Wait()

		competeDuration := time.Since(startCompete)
		require.Equal(t, int32(1), competitionSuccess, "競合ホールドでは1人だけ成功するべき")
		require.Equal(t, int32(competingUsers-1), competitionConflict, "残りは全て競合するべき")

		// 4. 全件掃除のパフォーマンス
		t.Log("=== 期限切れ掃除のパフォーマンス計測 ===")
		startSweep := time.Now()

		// 全レコードを期限切れとして扱う
		swept := store.Sweep(ctx, time.Now().Add(10*time.Minute))

		sweepDuration := time.Since(startSweep)
		require.Len(t, swept, totalSlots+1)
		t.Logf("✅ 掃除完了: %v (%d 件)", sweepDuration, len(swept))

		// 5. 最終結果サマリー
		t.Log("=================================================")
		t.Log("📊 ベンチマーク結果サマリー")
		t.Log("=================================================")
		t.Logf("総スロット数: %d", totalSlots)
		t.Logf("ホールド取得: %v (%.0f 件/秒)", acquireDuration, acquireRate)
		t.Logf("一覧取得: %v", listDuration)
		t.Logf("競合ホールド (%d人→1人成功): %v", competingUsers, competeDuration)
		t.Logf("掃除: %v", sweepDuration)
		t.Log("=================================================")
	})
}

// BenchmarkHoldStore はホールド操作のベンチマークを計測
func BenchmarkHoldStore(b *testing.B) {
	ctx := context.Background()

	b.Run("Acquire", func(b *testing.B) {
		store := memory.NewHoldStore(5 * time.Minute)
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			key := slot.NewKey("shibuya", fmt.Sprintf("T%d", i), "2026-09-01", "19:00")
			store.Acquire(ctx, key, "bench-user")
		}
	})

	b.Run("AcquireRelease", func(b *testing.B) {
		store := memory.NewHoldStore(5 * time.Minute)
		key := slot.NewKey("shibuya", "T1", "2026-09-01", "19:00")
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			store.Acquire(ctx, key, "bench-user")
			store.Release(ctx, key, "bench-user")
		}
	})

	b.Run("ListActive", func(b *testing.B) {
		store := memory.NewHoldStore(5 * time.Minute)
		for i := 0; i < 1000; i++ {
			key := slot.NewKey("shibuya", fmt.Sprintf("T%04d", i), "2026-09-01", "19:00")
			store.Acquire(ctx, key, "bench-user")
		}
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			store.ListActive(ctx, "shibuya", "2026-09-01")
		}
	})

	b.Run("ParallelAcquireConflict", func(b *testing.B) {
		store := memory.NewHoldStore(5 * time.Minute)
		key := slot.NewKey("shibuya", "VIP-1", "2026-09-01", "19:00")
		store.Acquire(ctx, key, "owner")
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				store.Acquire(ctx, key, "challenger")
			}
		})
	})
}

package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/domain/slot"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/hub"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/pkg/logger"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/pkg/metrics"
)

// SlotSweeper は期限切れホールドを回収するインターフェース
type SlotSweeper interface {
	Sweep(ctx context.Context, now time.Time) []slot.Key
}

// HoldSweeper は期限切れホールドを定期的に掃除するワーカー
// ホールドを保持者の操作なしに削除できる唯一の書き込み主体
type HoldSweeper struct {
	store     SlotSweeper
	publisher hub.Publisher
	interval  time.Duration
	metrics   *metrics.Metrics
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewHoldSweeper は新しいスイーパーを作成する
func NewHoldSweeper(store SlotSweeper, publisher hub.Publisher, interval time.Duration, m *metrics.Metrics) *HoldSweeper {
	return &HoldSweeper{
		store:     store,
		publisher: publisher,
		interval:  interval,
		metrics:   m,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start はスイーパーを開始する
// 停止時は実行中の掃除を完了させてから抜ける
func (s *HoldSweeper) Start(ctx context.Context) {
	logger.Info("ホールドスイーパー開始",
		zap.Duration("interval", s.interval),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("ホールドスイーパー停止（コンテキストキャンセル）")
			return
		case <-s.stopCh:
			logger.Info("ホールドスイーパー停止（シグナル受信）")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Stop はスイーパーを停止し、終了まで待機する
func (s *HoldSweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// sweep は1サイクル分の掃除を実行する
// 通知の失敗が掃除自体を止めないよう、サイクル単位で隔離する
func (s *HoldSweeper) sweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("掃除サイクルでパニック発生", zap.Any("panic", r))
		}
	}()

	start := time.Now()
	expired := s.store.Sweep(ctx, start)

	for _, key := range expired {
		s.publisher.Publish(hub.NewEvent(hub.EventReleased, key, ""))
	}

	if s.metrics != nil {
		s.metrics.SweepDuration.Observe(time.Since(start).Seconds())
		s.metrics.SweptHoldsTotal.Add(float64(len(expired)))
	}

	if len(expired) > 0 {
		logger.Info("期限切れホールドを回収",
			zap.Int("count", len(expired)),
		)
	} else {
		logger.Debug("期限切れホールドなし")
	}
}

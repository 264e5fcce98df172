package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/config"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/hub"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/pkg/logger"
)

const writeTimeout = 5 * time.Second

// EventRelay は Hub の全イベントをKafkaトピックへ中継する
// 配信は最善努力で、失敗はログを残して捨てる（操作の正しさには関与しない）
type EventRelay struct {
	writer *kafka.Writer
	hub    *hub.Hub
	sub    *hub.Subscription
	doneCh chan struct{}
}

// NewEventRelay は新しい EventRelay を作成する
func NewEventRelay(cfg *config.KafkaConfig, h *hub.Hub) *EventRelay {
	writer := &kafka.Writer{
		Addr:  kafka.TCP(cfg.Brokers...),
		Topic: cfg.Topic,
		// キーでハッシュ分散することで、同一スロットのイベント順序が
		// パーティションをまたいで崩れない
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Logger:       kafka.LoggerFunc(func(string, ...interface{}) {}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warn("kafka writer error", zap.String("detail", msg))
		}),
	}
	return &EventRelay{
		writer: writer,
		hub:    h,
		doneCh: make(chan struct{}),
	}
}

// Start は中継を開始する
// 購読チャンネルのクローズまたはコンテキストキャンセルで停止する
func (r *EventRelay) Start(ctx context.Context) {
	r.sub = r.hub.Subscribe(hub.BranchAll)
	logger.Info("イベント中継開始", zap.String("topic", r.writer.Topic))

	defer close(r.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("イベント中継停止（コンテキストキャンセル）")
			return
		case event, ok := <-r.sub.Events():
			if !ok {
				logger.Info("イベント中継停止（購読終了）")
				return
			}
			r.forward(event)
		}
	}
}

// Stop は中継を停止し、終了まで待機する
func (r *EventRelay) Stop() {
	if r.sub != nil {
		r.hub.Unsubscribe(r.sub)
	}
	<-r.doneCh
	if err := r.writer.Close(); err != nil {
		logger.Warn("kafka writerのクローズに失敗", zap.Error(err))
	}
}

// forward は1イベントをKafkaへ書き込む
func (r *EventRelay) forward(event hub.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("イベントの変換に失敗", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.Key.String()),
		Value: data,
		Time:  event.OccurredAt,
	}
	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		logger.Warn("イベント中継に失敗",
			zap.String("slot", event.Key.String()),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}

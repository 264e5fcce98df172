package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/hub"
)

// heartbeatInterval はSSE接続維持のためのコメント送信間隔
const heartbeatInterval = 15 * time.Second

// EventsHandler はスロット変化イベントをSSEで配信するハンドラー
type EventsHandler struct {
	hub *hub.Hub
}

func NewEventsHandler(h *hub.Hub) *EventsHandler {
	return &EventsHandler{hub: h}
}

// Stream godoc
// @Summary スロット変化イベントを購読
// @Description 店舗のホールド・解放・確定イベントをSSEでストリーミングします
// @Tags events
// @Produce text/event-stream
// @Param branch_id path string true "店舗ID（* で全店舗）"
// @Success 200 {string} string "event stream"
// @Router /branches/{branch_id}/events [get]
func (h *EventsHandler) Stream(c echo.Context) error {
	branchID := c.Param("branch_id")

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	sub := h.hub.Subscribe(branchID)
	defer h.hub.Unsubscribe(sub)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sub.Events():
			if !ok {
				// ハブ停止
				return nil
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
				return nil
			}
			res.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

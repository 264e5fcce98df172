package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/application"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/domain/booking"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/domain/hold"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/domain/slot"
)

type HoldHandler struct {
	service ReservationServiceInterface
}

func NewHoldHandler(s ReservationServiceInterface) *HoldHandler {
	return &HoldHandler{service: s}
}

type CreateHoldRequest struct {
	BranchID string   `json:"branch_id" validate:"required" example:"shibuya"`
	TableIDs []string `json:"table_ids" validate:"required,min=1" example:"T1,T2"`
	Date     string   `json:"date" validate:"required" example:"2026-09-01"`
	Time     string   `json:"time" validate:"required" example:"19:00"`
}

type ReleaseHoldRequest struct {
	BranchID string   `json:"branch_id" validate:"required" example:"shibuya"`
	TableIDs []string `json:"table_ids" validate:"required,min=1" example:"T1,T2"`
	Date     string   `json:"date" validate:"required" example:"2026-09-01"`
	Time     string   `json:"time" validate:"required" example:"19:00"`
}

type HeldSlotResponse struct {
	BranchID  string    `json:"branch_id" example:"shibuya"`
	TableID   string    `json:"table_id" example:"T1"`
	Date      string    `json:"date" example:"2026-09-01"`
	Time      string    `json:"time" example:"19:00"`
	HolderID  string    `json:"holder_id" example:"user-123"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AvailabilityResponse struct {
	Held   []HeldSlotResponse `json:"held"`
	Booked []SlotResponse     `json:"booked"`
}

type SlotResponse struct {
	BranchID string `json:"branch_id" example:"shibuya"`
	TableID  string `json:"table_id" example:"T1"`
	Date     string `json:"date" example:"2026-09-01"`
	Time     string `json:"time" example:"19:00"`
}

func toHeldSlotResponse(h hold.HeldSlot) HeldSlotResponse {
	return HeldSlotResponse{
		BranchID: h.Key.BranchID, TableID: h.Key.TableID,
		Date: h.Key.Date, Time: h.Key.Time,
		HolderID: h.HolderID, ExpiresAt: h.ExpiresAt,
	}
}

func toSlotResponse(k slot.Key) SlotResponse {
	return SlotResponse{BranchID: k.BranchID, TableID: k.TableID, Date: k.Date, Time: k.Time}
}

// Create godoc
// @Summary テーブルをホールド
// @Description 指定テーブルを一時的に押さえます（オール・オア・ナッシング）
// @Tags holds
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param request body CreateHoldRequest true "ホールド情報"
// @Success 201 {array} HeldSlotResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 409 {object} map[string]string "テーブルが既に押さえられている"
// @Router /holds [post]
func (h *HoldHandler) Create(c echo.Context) error {
	userID := c.Request().Header.Get("X-User-ID")
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	var req CreateHoldRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	held, err := h.service.HoldTables(c.Request().Context(), application.HoldTablesInput{
		BranchID: req.BranchID, TableIDs: req.TableIDs,
		Date: req.Date, Time: req.Time, HolderID: userID,
	})
	if err != nil {
		switch {
		case errors.Is(err, hold.ErrSlotConflict), errors.Is(err, booking.ErrSlotAlreadyBooked):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	resp := make([]HeldSlotResponse, len(held))
	for i, hs := range held {
		resp[i] = toHeldSlotResponse(hs)
	}
	return c.JSON(http.StatusCreated, resp)
}

// Release godoc
// @Summary ホールドを解放
// @Description 保持中のテーブルを解放します
// @Tags holds
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param request body ReleaseHoldRequest true "解放情報"
// @Success 204
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string "保持者ではない"
// @Router /holds [delete]
func (h *HoldHandler) Release(c echo.Context) error {
	userID := c.Request().Header.Get("X-User-ID")
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	var req ReleaseHoldRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	err := h.service.ReleaseTables(c.Request().Context(), application.ReleaseTablesInput{
		BranchID: req.BranchID, TableIDs: req.TableIDs,
		Date: req.Date, Time: req.Time, HolderID: userID,
	})
	if err != nil {
		switch {
		case errors.Is(err, hold.ErrNotHolder):
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		case errors.Is(err, hold.ErrAlreadyFinalizing):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return c.NoContent(http.StatusNoContent)
}

// ListHeld godoc
// @Summary 保持中スロット一覧
// @Description 店舗・日付の保持中スロット一覧を取得します
// @Tags holds
// @Produce json
// @Param branch_id path string true "店舗ID"
// @Param date query string true "日付 (YYYY-MM-DD)"
// @Success 200 {array} HeldSlotResponse
// @Failure 400 {object} map[string]string
// @Router /branches/{branch_id}/holds [get]
func (h *HoldHandler) ListHeld(c echo.Context) error {
	branchID := c.Param("branch_id")
	date := c.QueryParam("date")
	if date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "dateパラメータが必要です")
	}
	held, err := h.service.ListHeld(c.Request().Context(), branchID, date)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]HeldSlotResponse, len(held))
	for i, hs := range held {
		resp[i] = toHeldSlotResponse(hs)
	}
	return c.JSON(http.StatusOK, resp)
}

// Availability godoc
// @Summary 空き状況を取得
// @Description 店舗・日付の保持中・予約済みスロットをまとめて取得します
// @Tags holds
// @Produce json
// @Param branch_id path string true "店舗ID"
// @Param date query string true "日付 (YYYY-MM-DD)"
// @Success 200 {object} AvailabilityResponse
// @Failure 400 {object} map[string]string
// @Router /branches/{branch_id}/availability [get]
func (h *HoldHandler) Availability(c echo.Context) error {
	branchID := c.Param("branch_id")
	date := c.QueryParam("date")
	if date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "dateパラメータが必要です")
	}
	avail, err := h.service.GetAvailability(c.Request().Context(), branchID, date)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := AvailabilityResponse{
		Held:   make([]HeldSlotResponse, len(avail.Held)),
		Booked: make([]SlotResponse, len(avail.Booked)),
	}
	for i, hs := range avail.Held {
		resp.Held[i] = toHeldSlotResponse(hs)
	}
	for i, k := range avail.Booked {
		resp.Booked[i] = toSlotResponse(k)
	}
	return c.JSON(http.StatusOK, resp)
}

package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/application"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/domain/booking"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/domain/hold"
)

type BookingHandler struct {
	service ReservationServiceInterface
}

func NewBookingHandler(s ReservationServiceInterface) *BookingHandler {
	return &BookingHandler{service: s}
}

type FinalizeBookingRequest struct {
	BranchID       string   `json:"branch_id" validate:"required" example:"shibuya"`
	TableIDs       []string `json:"table_ids" validate:"required,min=1" example:"T1,T2"`
	Date           string   `json:"date" validate:"required" example:"2026-09-01"`
	Time           string   `json:"time" validate:"required" example:"19:00"`
	GuestCount     int      `json:"guest_count" validate:"required,min=1" example:"4"`
	Note           string   `json:"note" example:"窓際希望"`
	IdempotencyKey string   `json:"idempotency_key" validate:"required" example:"order-2026-001"`
}

type BookingResponse struct {
	ID         string    `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	BranchID   string    `json:"branch_id" example:"shibuya"`
	HolderID   string    `json:"holder_id" example:"user-123"`
	Date       string    `json:"date" example:"2026-09-01"`
	Time       string    `json:"time" example:"19:00"`
	TableIDs   []string  `json:"table_ids" example:"T1,T2"`
	GuestCount int       `json:"guest_count" example:"4"`
	Note       string    `json:"note,omitempty"`
	Status     string    `json:"status" example:"confirmed"`
	CreatedAt  time.Time `json:"created_at"`
}

func toBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID: b.ID, BranchID: b.BranchID, HolderID: b.HolderID,
		Date: b.Date, Time: b.Time, TableIDs: b.TableIDs,
		GuestCount: b.GuestCount, Note: b.Note,
		Status: string(b.Status), CreatedAt: b.CreatedAt,
	}
}

// Finalize godoc
// @Summary 予約を確定
// @Description 保持中のテーブルを確定済み予約へ変換します
// @Tags bookings
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param request body FinalizeBookingRequest true "予約情報"
// @Success 201 {object} BookingResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string "ホールドが存在しない"
// @Failure 409 {object} map[string]string "確定処理中または予約済み"
// @Failure 410 {object} map[string]string "ホールドの期限切れ"
// @Router /bookings [post]
func (h *BookingHandler) Finalize(c echo.Context) error {
	userID := c.Request().Header.Get("X-User-ID")
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	var req FinalizeBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	b, err := h.service.FinalizeBooking(c.Request().Context(), application.FinalizeBookingInput{
		BranchID: req.BranchID, TableIDs: req.TableIDs,
		Date: req.Date, Time: req.Time,
		HolderID: userID, GuestCount: req.GuestCount,
		Note: req.Note, IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		switch {
		case errors.Is(err, hold.ErrHoldNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, hold.ErrHoldExpired):
			return echo.NewHTTPError(http.StatusGone, err.Error())
		case errors.Is(err, hold.ErrNotHolder):
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		case errors.Is(err, hold.ErrAlreadyFinalizing),
			errors.Is(err, booking.ErrSlotAlreadyBooked):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return c.JSON(http.StatusCreated, toBookingResponse(b))
}

// GetByID godoc
// @Summary 予約を取得
// @Description 指定IDの予約を取得します
// @Tags bookings
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} BookingResponse
// @Failure 404 {object} map[string]string
// @Router /bookings/{id} [get]
func (h *BookingHandler) GetByID(c echo.Context) error {
	id := c.Param("id")
	b, err := h.service.GetBooking(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, booking.ErrBookingNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// GetHolderBookings godoc
// @Summary ユーザーの予約一覧を取得
// @Description ログインユーザーの予約一覧を取得します
// @Tags bookings
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} BookingResponse
// @Failure 401 {object} map[string]string
// @Router /bookings [get]
func (h *BookingHandler) GetHolderBookings(c echo.Context) error {
	userID := c.Request().Header.Get("X-User-ID")
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	bookings, err := h.service.GetHolderBookings(c.Request().Context(), userID, limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]BookingResponse, len(bookings))
	for i, b := range bookings {
		resp[i] = toBookingResponse(b)
	}
	return c.JSON(http.StatusOK, resp)
}

// Cancel godoc
// @Summary 予約をキャンセル
// @Description 予約をキャンセルし、スロットを解放します
// @Tags bookings
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} BookingResponse
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "既にキャンセル済み"
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) Cancel(c echo.Context) error {
	id := c.Param("id")
	b, err := h.service.CancelBooking(c.Request().Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrBookingNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, booking.ErrBookingAlreadyCancelled):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

package handler

import (
	"context"

	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/application"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/domain/booking"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/domain/hold"
)

// ReservationServiceInterface は予約サービスのインターフェース
type ReservationServiceInterface interface {
	HoldTables(ctx context.Context, input application.HoldTablesInput) ([]hold.HeldSlot, error)
	ReleaseTables(ctx context.Context, input application.ReleaseTablesInput) error
	ListHeld(ctx context.Context, branchID, date string) ([]hold.HeldSlot, error)
	GetAvailability(ctx context.Context, branchID, date string) (*application.Availability, error)
	FinalizeBooking(ctx context.Context, input application.FinalizeBookingInput) (*booking.Booking, error)
	GetBooking(ctx context.Context, id string) (*booking.Booking, error)
	GetHolderBookings(ctx context.Context, holderID string, limit, offset int) ([]*booking.Booking, error)
	CancelBooking(ctx context.Context, id string) (*booking.Booking, error)
}

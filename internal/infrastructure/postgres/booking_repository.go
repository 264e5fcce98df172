package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/domain/booking"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/domain/slot"
)

type bookingRow struct {
	ID             string         `db:"id"`
	BranchID       string         `db:"branch_id"`
	HolderID       string         `db:"holder_id"`
	SlotDate       string         `db:"slot_date"`
	SlotTime       string         `db:"slot_time"`
	TableIDs       pq.StringArray `db:"table_ids"`
	GuestCount     int            `db:"guest_count"`
	Note           string         `db:"note"`
	IdempotencyKey string         `db:"idempotency_key"`
	Status         string         `db:"status"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

const bookingColumns = `id, branch_id, holder_id, to_char(slot_date, 'YYYY-MM-DD') AS slot_date, slot_time, table_ids, guest_count, note, idempotency_key, status, created_at, updated_at`

// BookingRepository は booking.Repository のPostgreSQL実装
type BookingRepository struct{ db *sqlx.DB }

func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// Persist は予約本体とスロット占有行を1トランザクションで書き込む
// booking_slots の主キーが二重予約の最終防衛線になる
func (r *BookingRepository) Persist(ctx context.Context, b *booking.Booking) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO bookings (id, branch_id, holder_id, slot_date, slot_time, table_ids, guest_count, note, idempotency_key, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if _, err := tx.ExecContext(ctx, query,
		b.ID, b.BranchID, b.HolderID, b.Date, b.Time, pq.Array(b.TableIDs),
		b.GuestCount, b.Note, b.IdempotencyKey, string(b.Status), b.CreatedAt, b.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err, "bookings_idempotency_key_key") {
			return booking.ErrIdempotencyKeyAlreadyExists
		}
		return fmt.Errorf("予約作成に失敗: %w", err)
	}

	for _, key := range b.SlotKeys() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO booking_slots (branch_id, table_id, slot_date, slot_time, booking_id) VALUES ($1, $2, $3, $4, $5)`,
			key.BranchID, key.TableID, key.Date, key.Time, b.ID,
		); err != nil {
			if isUniqueViolation(err, "booking_slots_pkey") {
				return booking.ErrSlotAlreadyBooked
			}
			return fmt.Errorf("スロット占有行の作成に失敗: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	var row bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return toEntity(&row), nil
}

func (r *BookingRepository) GetByIdempotencyKey(ctx context.Context, key string) (*booking.Booking, error) {
	var row bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE idempotency_key = $1`
	if err := r.db.GetContext(ctx, &row, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return toEntity(&row), nil
}

func (r *BookingRepository) GetByHolderID(ctx context.Context, holderID string, limit, offset int) ([]*booking.Booking, error) {
	var rows []bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE holder_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &rows, query, holderID, limit, offset); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	result := make([]*booking.Booking, len(rows))
	for i := range rows {
		result[i] = toEntity(&rows[i])
	}
	return result, nil
}

// TakenSlots は店舗・日付の予約済みスロットを返す
// キャンセル時に占有行は削除されるため、ここに残っている行は有効な予約
func (r *BookingRepository) TakenSlots(ctx context.Context, branchID, date string) ([]slot.Key, error) {
	var rows []struct {
		TableID  string `db:"table_id"`
		SlotTime string `db:"slot_time"`
	}
	query := `SELECT table_id, slot_time FROM booking_slots WHERE branch_id = $1 AND slot_date = $2`
	if err := r.db.SelectContext(ctx, &rows, query, branchID, date); err != nil {
		return nil, fmt.Errorf("予約済みスロット取得に失敗: %w", err)
	}
	keys := make([]slot.Key, len(rows))
	for i, row := range rows {
		keys[i] = slot.NewKey(branchID, row.TableID, date, row.SlotTime)
	}
	return keys, nil
}

// Cancel は予約をキャンセルし、スロット占有行を削除して解放する
func (r *BookingRepository) Cancel(ctx context.Context, id string) (*booking.Booking, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	var row bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	if booking.Status(row.Status) == booking.StatusCancelled {
		return nil, booking.ErrBookingAlreadyCancelled
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = $1, updated_at = $2 WHERE id = $3`,
		string(booking.StatusCancelled), now, id,
	); err != nil {
		return nil, fmt.Errorf("予約更新に失敗: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM booking_slots WHERE booking_id = $1`, id); err != nil {
		return nil, fmt.Errorf("スロット占有行の削除に失敗: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}

	row.Status = string(booking.StatusCancelled)
	row.UpdatedAt = now
	return toEntity(&row), nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return constraint == "" || pgErr.Constraint == constraint
	}
	return false
}

func toEntity(row *bookingRow) *booking.Booking {
	return &booking.Booking{
		ID:             row.ID,
		BranchID:       row.BranchID,
		HolderID:       row.HolderID,
		Date:           row.SlotDate,
		Time:           row.SlotTime,
		TableIDs:       []string(row.TableIDs),
		GuestCount:     row.GuestCount,
		Note:           row.Note,
		IdempotencyKey: row.IdempotencyKey,
		Status:         booking.Status(row.Status),
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}

var _ booking.Repository = (*BookingRepository)(nil)

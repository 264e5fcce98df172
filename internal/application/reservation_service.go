package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/domain/booking"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/domain/hold"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/domain/slot"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/hub"
	redisinfra "github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/infrastructure/redis"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/pkg/logger"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/pkg/metrics"
)

const snapshotCacheTTL = 5 * time.Second

// ReservationService はホールド取得から予約確定までを束ねる調整役
// Store・Hub・永続化コラボレーターを組み合わせるが、呼び出し中にロックは保持しない
type ReservationService struct {
	store           hold.Store
	bookingRepo     booking.Repository
	publisher       hub.Publisher
	cache           *redisinfra.AvailabilityCache
	metrics         *metrics.Metrics
	finalizeTimeout time.Duration
}

// NewReservationService は新しい ReservationService を作成する
// cache と m は nil でもよい
func NewReservationService(
	store hold.Store,
	br booking.Repository,
	publisher hub.Publisher,
	cache *redisinfra.AvailabilityCache,
	m *metrics.Metrics,
	finalizeTimeout time.Duration,
) *ReservationService {
	return &ReservationService{
		store:           store,
		bookingRepo:     br,
		publisher:       publisher,
		cache:           cache,
		metrics:         m,
		finalizeTimeout: finalizeTimeout,
	}
}

// HoldTablesInput は複数テーブルホールドの入力
type HoldTablesInput struct {
	BranchID string
	TableIDs []string
	Date     string
	Time     string
	HolderID string
}

// buildSlotKeys はテーブルIDをソート・重複排除してスロットキー列を作る
// 順序を固定することで補償処理が決定的になる
func buildSlotKeys(branchID string, tableIDs []string, date, timeOfDay string) ([]slot.Key, error) {
	sorted := make([]string, 0, len(tableIDs))
	seen := make(map[string]struct{}, len(tableIDs))
	for _, id := range tableIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	keys := make([]slot.Key, len(sorted))
	for i, id := range sorted {
		keys[i] = slot.NewKey(branchID, id, date, timeOfDay)
		if err := keys[i].Validate(); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// HoldTables は要求された全テーブルのホールドを取得する
// オール・オア・ナッシング: 1つでも競合したら取得済み分を解放して失敗を返す
func (s *ReservationService) HoldTables(ctx context.Context, input HoldTablesInput) ([]hold.HeldSlot, error) {
	if input.HolderID == "" {
		return nil, hold.ErrHolderIDRequired
	}
	if len(input.TableIDs) == 0 {
		return nil, booking.ErrTableIDsRequired
	}
	keys, err := buildSlotKeys(input.BranchID, input.TableIDs, input.Date, input.Time)
	if err != nil {
		return nil, err
	}

	// ホールドだけでなく確定済み予約もスロットを塞ぐ
	taken, err := s.bookingRepo.TakenSlots(ctx, input.BranchID, input.Date)
	if err != nil {
		return nil, fmt.Errorf("予約済みスロットの確認に失敗: %w", err)
	}
	takenSet := make(map[slot.Key]struct{}, len(taken))
	for _, k := range taken {
		takenSet[k] = struct{}{}
	}
	for _, key := range keys {
		if _, ok := takenSet[key]; ok {
			s.countHold("conflict")
			return nil, booking.ErrSlotAlreadyBooked
		}
	}

	var acquired []slot.Key
	for _, key := range keys {
		if err := s.store.Acquire(ctx, key, input.HolderID); err != nil {
			// 補償: ここまでに取得した分を巻き戻す
			s.compensateRelease(ctx, acquired, input.HolderID)
			if errors.Is(err, hold.ErrSlotConflict) {
				s.countHold("conflict")
			} else {
				s.countHold("error")
			}
			return nil, err
		}
		acquired = append(acquired, key)
	}

	for _, key := range keys {
		s.publisher.Publish(hub.NewEvent(hub.EventHeld, key, input.HolderID))
	}
	s.invalidateSnapshot(ctx, input.BranchID, input.Date)
	s.countHold("accepted")
	if s.metrics != nil {
		s.metrics.ActiveHolds.Add(float64(len(keys)))
	}

	return s.heldSnapshots(ctx, input.BranchID, input.Date, keys), nil
}

// compensateRelease は部分的に成功したホールドを巻き戻す
// 解放された瞬間に他の保持者が取得するのは構わない（排他性は保たれる）
func (s *ReservationService) compensateRelease(ctx context.Context, keys []slot.Key, holderID string) {
	for _, key := range keys {
		if err := s.store.Release(ctx, key, holderID); err != nil {
			logger.Error("補償解放に失敗",
				zap.String("slot", key.String()),
				zap.String("holder_id", holderID),
				zap.Error(err),
			)
		}
	}
}

// heldSnapshots は取得したばかりのホールドのスナップショットを返す
func (s *ReservationService) heldSnapshots(ctx context.Context, branchID, date string, keys []slot.Key) []hold.HeldSlot {
	wanted := make(map[slot.Key]struct{}, len(keys))
	for _, k := range keys {
		wanted[k] = struct{}{}
	}
	result := make([]hold.HeldSlot, 0, len(keys))
	for _, h := range s.store.ListActive(ctx, branchID, date) {
		if _, ok := wanted[h.Key]; ok {
			result = append(result, h)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key.TableID < result[j].Key.TableID })
	return result
}

// ReleaseTablesInput は複数テーブル解放の入力
type ReleaseTablesInput struct {
	BranchID string
	TableIDs []string
	Date     string
	Time     string
	HolderID string
}

// ReleaseTables は保持中のテーブルを解放する
// 存在しないホールドの解放は冪等な無操作として扱う
func (s *ReservationService) ReleaseTables(ctx context.Context, input ReleaseTablesInput) error {
	keys, err := buildSlotKeys(input.BranchID, input.TableIDs, input.Date, input.Time)
	if err != nil {
		return err
	}

	var firstErr error
	released := 0
	for _, key := range keys {
		err := s.store.Release(ctx, key, input.HolderID)
		switch {
		case err == nil:
			released++
			s.publisher.Publish(hub.NewEvent(hub.EventReleased, key, input.HolderID))
		case errors.Is(err, hold.ErrHoldNotFound):
			logger.Debug("解放対象のホールドなし", zap.String("slot", key.String()))
		default:
			if firstErr == nil {
				firstErr = err
			}
			logger.Warn("ホールド解放に失敗",
				zap.String("slot", key.String()),
				zap.String("holder_id", input.HolderID),
				zap.Error(err),
			)
		}
	}

	if released > 0 {
		s.invalidateSnapshot(ctx, input.BranchID, input.Date)
		if s.metrics != nil {
			s.metrics.ActiveHolds.Sub(float64(released))
		}
	}
	return firstErr
}

// ListHeld は店舗・日付の保持中スロット一覧を返す
// スナップショットキャッシュが効いている間は Store に触れない
func (s *ReservationService) ListHeld(ctx context.Context, branchID, date string) ([]hold.HeldSlot, error) {
	if s.cache != nil {
		cached, err := s.cache.GetHeldSlots(ctx, branchID, date)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, redisinfra.ErrCacheMiss) {
			logger.Warn("スナップショットキャッシュの取得に失敗", zap.Error(err))
		}
	}

	held := s.store.ListActive(ctx, branchID, date)
	sort.Slice(held, func(i, j int) bool {
		if held[i].Key.TableID != held[j].Key.TableID {
			return held[i].Key.TableID < held[j].Key.TableID
		}
		return held[i].Key.Time < held[j].Key.Time
	})

	if s.cache != nil {
		if err := s.cache.SetHeldSlots(ctx, branchID, date, held, snapshotCacheTTL); err != nil {
			logger.Warn("スナップショットキャッシュの保存に失敗", zap.Error(err))
		}
	}
	return held, nil
}

// Availability は店舗・日付の空き状況（保持中＋予約済み）
type Availability struct {
	Held   []hold.HeldSlot
	Booked []slot.Key
}

// GetAvailability はテーブルマップ描画用に保持中と予約済みをまとめて返す
func (s *ReservationService) GetAvailability(ctx context.Context, branchID, date string) (*Availability, error) {
	held, err := s.ListHeld(ctx, branchID, date)
	if err != nil {
		return nil, err
	}
	booked, err := s.bookingRepo.TakenSlots(ctx, branchID, date)
	if err != nil {
		return nil, fmt.Errorf("予約済みスロットの取得に失敗: %w", err)
	}
	return &Availability{Held: held, Booked: booked}, nil
}

// FinalizeBookingInput は予約確定の入力
type FinalizeBookingInput struct {
	BranchID       string
	TableIDs       []string
	Date           string
	Time           string
	HolderID       string
	GuestCount     int
	Note           string
	IdempotencyKey string
}

// FinalizeBooking はホールドを確定済み予約へ変換する
// 永続化はタイムアウト付きで呼び、失敗時は全キーをAbortしてホールドを温存する
func (s *ReservationService) FinalizeBooking(ctx context.Context, input FinalizeBookingInput) (*booking.Booking, error) {
	// 冪等性チェック
	existing, err := s.bookingRepo.GetByIdempotencyKey(ctx, input.IdempotencyKey)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, booking.ErrBookingNotFound) {
		return nil, fmt.Errorf("冪等性チェックに失敗: %w", err)
	}

	keys, err := buildSlotKeys(input.BranchID, input.TableIDs, input.Date, input.Time)
	if err != nil {
		return nil, err
	}

	// 全キーを確定処理中へ遷移（オール・オア・ナッシング）
	var began []slot.Key
	for _, key := range keys {
		if _, err := s.store.BeginFinalize(ctx, key, input.HolderID); err != nil {
			s.completeAll(ctx, began, hold.FinalizeAbort)
			s.countFinalize(finalizeFailureLabel(err))
			return nil, err
		}
		began = append(began, key)
	}

	b := booking.NewBooking(
		input.BranchID, input.HolderID, input.Date, input.Time,
		input.IdempotencyKey, tableIDsOf(keys), input.GuestCount, input.Note,
	)
	if err := b.Validate(); err != nil {
		s.completeAll(ctx, began, hold.FinalizeAbort)
		return nil, err
	}

	persistCtx, cancel := context.WithTimeout(ctx, s.finalizeTimeout)
	defer cancel()

	if err := s.bookingRepo.Persist(persistCtx, b); err != nil {
		if errors.Is(err, booking.ErrIdempotencyKeyAlreadyExists) {
			// 再試行の競合: 予約自体は永続化済みなのでホールドは除去してよい
			return s.resolvePersistedRetry(ctx, input.IdempotencyKey, began, input.HolderID)
		}
		// タイムアウトを含む失敗はすべてAbort補償で解決する
		s.completeAll(ctx, began, hold.FinalizeAbort)
		s.countFinalize("persistence_failed")
		logger.Error("予約の永続化に失敗",
			zap.String("idempotency_key", input.IdempotencyKey),
			zap.Error(err),
		)
		if errors.Is(err, booking.ErrSlotAlreadyBooked) {
			return nil, err
		}
		return nil, fmt.Errorf("予約の永続化に失敗: %w", err)
	}

	// 成功応答より先にホールドを除去する
	s.completeAll(ctx, began, hold.FinalizeCommit)
	for _, key := range keys {
		s.publisher.Publish(hub.NewEvent(hub.EventBooked, key, input.HolderID))
	}
	s.invalidateSnapshot(ctx, input.BranchID, input.Date)
	s.countFinalize("booked")
	if s.metrics != nil {
		s.metrics.ActiveHolds.Sub(float64(len(keys)))
	}

	return b, nil
}

// resolvePersistedRetry はタイムアウト後の再試行で予約が既に
// 永続化されていた場合の後始末を行う
func (s *ReservationService) resolvePersistedRetry(ctx context.Context, idempotencyKey string, began []slot.Key, holderID string) (*booking.Booking, error) {
	existing, err := s.bookingRepo.GetByIdempotencyKey(ctx, idempotencyKey)
	if err != nil {
		s.completeAll(ctx, began, hold.FinalizeAbort)
		return nil, fmt.Errorf("永続化済み予約の取得に失敗: %w", err)
	}
	s.completeAll(ctx, began, hold.FinalizeCommit)
	for _, key := range began {
		s.publisher.Publish(hub.NewEvent(hub.EventBooked, key, holderID))
	}
	s.invalidateSnapshot(ctx, existing.BranchID, existing.Date)
	s.countFinalize("booked")
	return existing, nil
}

// completeAll は began の全キーの確定処理を完了させる
// 個々の失敗は後続のキーの処理を止めない
func (s *ReservationService) completeAll(ctx context.Context, keys []slot.Key, outcome hold.FinalizeOutcome) {
	for _, key := range keys {
		if err := s.store.CompleteFinalize(ctx, key, outcome); err != nil {
			logger.Error("確定処理の完了に失敗",
				zap.String("slot", key.String()),
				zap.String("outcome", string(outcome)),
				zap.Error(err),
			)
		}
	}
}

// GetBooking はIDから予約を取得する
func (s *ReservationService) GetBooking(ctx context.Context, id string) (*booking.Booking, error) {
	return s.bookingRepo.GetByID(ctx, id)
}

// GetHolderBookings は保持者の予約一覧を取得する
func (s *ReservationService) GetHolderBookings(ctx context.Context, holderID string, limit, offset int) ([]*booking.Booking, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.bookingRepo.GetByHolderID(ctx, holderID, limit, offset)
}

// CancelBooking は確定済み予約をキャンセルし、占有スロットを解放する
func (s *ReservationService) CancelBooking(ctx context.Context, id string) (*booking.Booking, error) {
	cancelled, err := s.bookingRepo.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, key := range cancelled.SlotKeys() {
		s.publisher.Publish(hub.NewEvent(hub.EventReleased, key, cancelled.HolderID))
	}
	return cancelled, nil
}

func (s *ReservationService) invalidateSnapshot(ctx context.Context, branchID, date string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, branchID, date); err != nil {
		logger.Warn("スナップショットキャッシュの無効化に失敗", zap.Error(err))
	}
}

func (s *ReservationService) countHold(outcome string) {
	if s.metrics != nil {
		s.metrics.HoldAttemptsTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *ReservationService) countFinalize(outcome string) {
	if s.metrics != nil {
		s.metrics.FinalizeTotal.WithLabelValues(outcome).Inc()
	}
}

func finalizeFailureLabel(err error) string {
	switch {
	case errors.Is(err, hold.ErrHoldExpired):
		return "expired"
	case errors.Is(err, hold.ErrAlreadyFinalizing),
		errors.Is(err, hold.ErrHoldNotFound),
		errors.Is(err, hold.ErrNotHolder):
		return "conflict"
	default:
		return "error"
	}
}

func tableIDsOf(keys []slot.Key) []string {
	ids := make([]string, len(keys))
	for i, key := range keys {
		ids[i] = key.TableID
	}
	return ids
}

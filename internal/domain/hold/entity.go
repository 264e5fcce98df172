package hold

import "time"

// Status はホールドの状態を表す
type Status string

const (
	// StatusActive は有効期限内で保持中の状態
	StatusActive Status = "active"
	// StatusFinalizing は予約確定処理の進行中で、解放・掃除の対象外となる状態
	StatusFinalizing Status = "finalizing"
)

// Record はホールドレコードを表す
// Store が排他的に所有し、外部へは必ずコピーで渡す
type Record struct {
	HolderID  string
	Status    Status
	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewRecord は新しいホールドレコードを作成する
func NewRecord(holderID string, now time.Time, ttl time.Duration) *Record {
	return &Record{
		HolderID:  holderID,
		Status:    StatusActive,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired はホールドが期限切れかを返す
func (r *Record) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// IsActive はホールドが保持中かを返す
func (r *Record) IsActive() bool {
	return r.Status == StatusActive
}

// BeginFinalize は確定処理開始への遷移を行う
// Finalizing 中のレコードは掃除も二重確定もされない
func (r *Record) BeginFinalize(now time.Time) error {
	if r.Status == StatusFinalizing {
		return ErrAlreadyFinalizing
	}
	if r.IsExpired(now) {
		return ErrHoldExpired
	}
	r.Status = StatusFinalizing
	return nil
}

// AbortFinalize は確定処理の失敗時に保持中へ戻す
// 有効期限は変更しない（期限切れなら次の掃除で回収される）
func (r *Record) AbortFinalize() {
	r.Status = StatusActive
}

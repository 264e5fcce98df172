package slot

import (
	"fmt"
	"time"
)

// DateLayout はスロット日付の表記形式
const DateLayout = "2006-01-02"

// TimeLayout はスロット時刻の表記形式
const TimeLayout = "15:04"

// Key は予約対象スロットを一意に識別する値オブジェクト
// 比較可能な構造体なのでマップのキーとしてそのまま使用できる
type Key struct {
	BranchID string `json:"branch_id"`
	TableID  string `json:"table_id"`
	Date     string `json:"date"` // DateLayout 形式
	Time     string `json:"time"` // TimeLayout 形式
}

// NewKey は新しいスロットキーを作成する
func NewKey(branchID, tableID, date, timeOfDay string) Key {
	return Key{
		BranchID: branchID,
		TableID:  tableID,
		Date:     date,
		Time:     timeOfDay,
	}
}

// Validate はスロットキーの検証を行う
func (k Key) Validate() error {
	if k.BranchID == "" {
		return ErrBranchIDRequired
	}
	if k.TableID == "" {
		return ErrTableIDRequired
	}
	if _, err := time.Parse(DateLayout, k.Date); err != nil {
		return ErrInvalidDate
	}
	if _, err := time.Parse(TimeLayout, k.Time); err != nil {
		return ErrInvalidTime
	}
	return nil
}

// String は正規化されたキー表現を返す
// キャッシュキーやイベントキーとして使用する
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.BranchID, k.TableID, k.Date, k.Time)
}

// StartsAt はスロットの開始日時を返す
func (k Key) StartsAt() (time.Time, error) {
	return time.Parse(DateLayout+" "+TimeLayout, k.Date+" "+k.Time)
}

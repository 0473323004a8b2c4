package model

import (
	"time"
)

const (
	TransactionTypeTap         = "TAP"
	TransactionTypeUpgrade     = "UPGRADE"
	TransactionTypeCashOut     = "CASHOUT"
	TransactionTypeAdminAdjust = "ADMIN_ADJUST"
)

// PointsTransaction is an append-only record of a points balance change.
// Amount is signed: positive credits, negative debits.
type PointsTransaction struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	AccountID     int64     `gorm:"index;not null" json:"account_id"`
	Amount        int64     `gorm:"not null" json:"amount"`
	Type          string    `gorm:"type:varchar(20);not null" json:"type"`
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
	Remark        string    `gorm:"type:varchar(256)" json:"remark"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (PointsTransaction) TableName() string {
	return "points_transaction"
}

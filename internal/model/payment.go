package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusRejected  PaymentStatus = "rejected"
)

// ValidPaymentTransitions is the only forward path: pending -> confirmed | rejected.
// Repeating the current status is allowed so an admin can amend reference and notes.
var ValidPaymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusPending, PaymentStatusConfirmed, PaymentStatusRejected},
	PaymentStatusConfirmed: {PaymentStatusConfirmed},
	PaymentStatusRejected:  {PaymentStatusRejected},
}

func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	status := PaymentStatus(s)
	_, ok := ValidPaymentTransitions[status]
	return status, ok
}

func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	for _, allowed := range ValidPaymentTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// PaymentRequest is a manually reconciled crypto payment for a plan upgrade.
// AmountUSD and PayoutAddress are snapshots taken at creation and never change afterwards.
type PaymentRequest struct {
	ID                   int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PaymentNo            string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"payment_no"`
	AccountID            int64           `gorm:"index;not null" json:"account_id"`
	PlanID               string          `gorm:"type:varchar(32);not null" json:"plan_id"`
	CurrencyID           string          `gorm:"type:varchar(32);not null" json:"currency_id"`
	AmountUSD            decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount_usd"`
	PayoutAddress        string          `gorm:"type:varchar(128);not null" json:"payout_address"`
	Status               PaymentStatus   `gorm:"type:varchar(16);index;not null" json:"status"`
	TransactionReference string          `gorm:"type:varchar(128)" json:"transaction_reference"`
	Notes                string          `gorm:"type:varchar(512)" json:"notes"`
	CreatedAt            time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PaymentRequest) TableName() string {
	return "payment_request"
}

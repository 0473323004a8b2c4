package service

import (
	"context"
	"fmt"
	"time"

	"ethpoint/internal/infrastructure/lock"
	"ethpoint/internal/model"
	"ethpoint/internal/repository"
	"ethpoint/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	PlanChangeSourcePoints  = "points"
	PlanChangeSourcePayment = "payment"
	PlanChangeSourceAdmin   = "admin"
)

// PlanChangedEvent is published on account.plan_changed.
type PlanChangedEvent struct {
	AccountID  int64     `json:"account_id"`
	FromPlan   string    `json:"from_plan"`
	ToPlan     string    `json:"to_plan"`
	Source     string    `json:"source"`
	PaymentNo  string    `json:"payment_no,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CashedOutEvent is published on account.cashed_out.
type CashedOutEvent struct {
	AccountID     int64     `json:"account_id"`
	Amount        int64     `json:"amount"`
	PointsBalance int64     `json:"points_balance"`
	CashBalance   int64     `json:"cash_balance"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// PaymentEvent is published on payment.created and payment.status_changed.
type PaymentEvent struct {
	PaymentNo      string              `json:"payment_no"`
	AccountID      int64               `json:"account_id"`
	PlanID         string              `json:"plan_id"`
	CurrencyID     string              `json:"currency_id"`
	AmountUSD      decimal.Decimal     `json:"amount_usd"`
	Status         model.PaymentStatus `json:"status"`
	PreviousStatus model.PaymentStatus `json:"previous_status,omitempty"`
	OccurredAt     time.Time           `json:"occurred_at"`
}

func newPaymentEvent(p *model.PaymentRequest, previous model.PaymentStatus, now time.Time) PaymentEvent {
	return PaymentEvent{
		PaymentNo:      p.PaymentNo,
		AccountID:      p.AccountID,
		PlanID:         p.PlanID,
		CurrencyID:     p.CurrencyID,
		AmountUSD:      p.AmountUSD,
		Status:         p.Status,
		PreviousStatus: previous,
		OccurredAt:     now,
	}
}

func accountEventKey(accountID int64) string {
	return fmt.Sprintf("account-%d", accountID)
}

// lockedAccountTx runs fn inside one transaction holding both the account lock and
// the account row. fn must use tx for every query.
func lockedAccountTx(ctx context.Context, db *gorm.DB, guard lock.Guard, accounts *repository.AccountRepository,
	accountID int64, fn func(tx *gorm.DB, account *model.Account) error) error {
	return guard.WithAccountLock(ctx, accountID, func() error {
		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			account, err := accounts.GetByIDForUpdate(ctx, tx, accountID)
			if err != nil {
				return err
			}
			return fn(tx, account)
		})
	})
}

// recordPoints appends a ledger row for a points balance change. Zero changes are skipped.
func recordPoints(ctx context.Context, repo *repository.TransactionRepository, tx *gorm.DB,
	accountID, before, after int64, txType, remark string) error {
	if before == after {
		return nil
	}
	err := repo.Create(ctx, tx, &model.PointsTransaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		AccountID:     accountID,
		Amount:        after - before,
		Type:          txType,
		BalanceBefore: before,
		BalanceAfter:  after,
		Remark:        remark,
	})
	if err != nil {
		return fmt.Errorf("record %s transaction: %w", txType, err)
	}
	return nil
}

func normalizePage(page, pageSize, maxPageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

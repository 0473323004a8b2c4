package repository

import (
	"context"
	"errors"

	"ethpoint/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrPaymentNotFound = errors.New("payment request not found")

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *PaymentRepository) Create(ctx context.Context, tx *gorm.DB, payment *model.PaymentRequest) error {
	return r.conn(tx).WithContext(ctx).Create(payment).Error
}

func (r *PaymentRepository) GetByPaymentNo(ctx context.Context, tx *gorm.DB, paymentNo string) (*model.PaymentRequest, error) {
	var payment model.PaymentRequest
	err := r.conn(tx).WithContext(ctx).Where("payment_no = ?", paymentNo).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) GetByPaymentNoForUpdate(ctx context.Context, tx *gorm.DB, paymentNo string) (*model.PaymentRequest, error) {
	var payment model.PaymentRequest
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("payment_no = ?", paymentNo).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// UpdateReconciliation writes the admin-editable fields only; the amount and
// payout address snapshots are never part of an update.
func (r *PaymentRepository) UpdateReconciliation(ctx context.Context, tx *gorm.DB, payment *model.PaymentRequest) error {
	return r.conn(tx).WithContext(ctx).
		Model(payment).
		Select("status", "transaction_reference", "notes", "updated_at").
		Updates(map[string]interface{}{
			"status":                payment.Status,
			"transaction_reference": payment.TransactionReference,
			"notes":                 payment.Notes,
		}).Error
}

// List returns requests newest first, optionally filtered by status (empty = all).
func (r *PaymentRepository) List(ctx context.Context, status model.PaymentStatus, page, pageSize int) ([]*model.PaymentRequest, int64, error) {
	var payments []*model.PaymentRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&model.PaymentRequest{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&payments).Error

	return payments, total, err
}

func (r *PaymentRepository) ListByAccountID(ctx context.Context, accountID int64, page, pageSize int) ([]*model.PaymentRequest, int64, error) {
	var payments []*model.PaymentRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&model.PaymentRequest{}).Where("account_id = ?", accountID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&payments).Error

	return payments, total, err
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ethpoint/internal/config"
	"ethpoint/internal/infrastructure/lock"
	"ethpoint/internal/model"
	"ethpoint/internal/repository"
	"ethpoint/pkg/idgen"
	"ethpoint/pkg/logger"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentView is a payment request as returned to clients. User is only set in admin views.
type PaymentView struct {
	PaymentNo            string              `json:"payment_no"`
	User                 *Profile            `json:"user,omitempty"`
	Plan                 model.Plan          `json:"plan"`
	CurrencyID           string              `json:"currency_id"`
	AmountUSD            decimal.Decimal     `json:"amount_usd"`
	PayoutAddress        string              `json:"payout_address"`
	Status               model.PaymentStatus `json:"status"`
	TransactionReference string              `json:"transaction_reference"`
	Notes                string              `json:"notes"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// PaymentFilter selects payment requests for the admin list. An unknown Status lists all.
type PaymentFilter struct {
	Status   string
	Page     int
	PageSize int
}

// TransitionInput changes a payment request. Nil fields are left unchanged and an
// empty Status keeps the current status.
type TransitionInput struct {
	Status               string
	TransactionReference *string
	Notes                *string
}

type PaymentService struct {
	db          *gorm.DB
	guard       lock.Guard
	catalog     *Catalog
	accountRepo *repository.AccountRepository
	paymentRepo *repository.PaymentRepository
	outboxRepo  *repository.OutboxRepository
	topics      config.KafkaTopicConfig
	pageLimit   int
	now         func() time.Time
}

func NewPaymentService(db *gorm.DB, guard lock.Guard, catalog *Catalog, cfg *config.Config) *PaymentService {
	return &PaymentService{
		db:          db,
		guard:       guard,
		catalog:     catalog,
		accountRepo: repository.NewAccountRepository(db),
		paymentRepo: repository.NewPaymentRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		topics:      cfg.Kafka.Topic,
		pageLimit:   cfg.Business.AdminPageLimit,
		now:         time.Now,
	}
}

// CreateCryptoUpgradeRequest opens a pending payment for a paid plan. The price and
// payout address are copied onto the request; the account itself is not touched.
func (s *PaymentService) CreateCryptoUpgradeRequest(ctx context.Context, accountID int64, planID, currencyID string) (*PaymentView, error) {
	plan, err := s.catalog.Plan(planID)
	if err != nil {
		return nil, err
	}
	if plan.PriceUSD.IsZero() {
		return nil, newError(KindInvalidPlan, "Select a paid plan.")
	}
	currencyID = strings.TrimSpace(currencyID)
	if currencyID == "" {
		return nil, newError(KindInvalidCurrency, "Select a cryptocurrency option.")
	}
	address, err := s.catalog.PayoutAddress(currencyID)
	if err != nil {
		return nil, err
	}

	payment := &model.PaymentRequest{
		PaymentNo:     idgen.GeneratePaymentNo(),
		AccountID:     accountID,
		PlanID:        plan.ID,
		CurrencyID:    currencyID,
		AmountUSD:     plan.PriceUSD,
		PayoutAddress: address,
		Status:        model.PaymentStatusPending,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetByID(ctx, tx, accountID)
		if err != nil {
			return callerAccountErr(err)
		}
		if account.PlanID == plan.ID {
			return newError(KindNoOp, "You are already on this plan.")
		}

		if err := s.paymentRepo.Create(ctx, tx, payment); err != nil {
			return fmt.Errorf("create payment request: %w", err)
		}
		event := newPaymentEvent(payment, "", s.now())
		return s.outboxRepo.Enqueue(ctx, tx, s.topics.PaymentEvents, model.EventPaymentCreated, payment.PaymentNo, event)
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info().
		Int64("account_id", accountID).
		Str("payment_no", payment.PaymentNo).
		Str("plan", plan.ID).
		Str("currency", currencyID).
		Msg("crypto payment request created")

	view := s.buildView(payment, nil)
	return &view, nil
}

// ListRequests returns payment requests newest first with their owners, for admins.
func (s *PaymentService) ListRequests(ctx context.Context, filter PaymentFilter) ([]PaymentView, int64, error) {
	status, ok := model.ParsePaymentStatus(filter.Status)
	if !ok {
		status = ""
	}
	page, pageSize := normalizePage(filter.Page, filter.PageSize, s.pageLimit)

	payments, total, err := s.paymentRepo.List(ctx, status, page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list payment requests: %w", err)
	}

	ids := make([]int64, 0, len(payments))
	for _, p := range payments {
		ids = append(ids, p.AccountID)
	}
	owners, err := s.accountRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("load payment owners: %w", err)
	}

	views := make([]PaymentView, 0, len(payments))
	for _, p := range payments {
		views = append(views, s.buildView(p, owners[p.AccountID]))
	}
	return views, total, nil
}

// ListAccountRequests returns the caller's own payment requests, newest first.
func (s *PaymentService) ListAccountRequests(ctx context.Context, accountID int64, page, pageSize int) ([]PaymentView, int64, error) {
	page, pageSize = normalizePage(page, pageSize, s.pageLimit)
	payments, total, err := s.paymentRepo.ListByAccountID(ctx, accountID, page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list account payment requests: %w", err)
	}

	views := make([]PaymentView, 0, len(payments))
	for _, p := range payments {
		views = append(views, s.buildView(p, nil))
	}
	return views, total, nil
}

// TransitionRequest updates status, reference and notes of a payment request. Moving a
// request into confirmed applies its plan to the owner in the same transaction;
// a request that is already confirmed does not apply the plan again.
func (s *PaymentService) TransitionRequest(ctx context.Context, paymentNo string, input TransitionInput) (*PaymentView, error) {
	var target model.PaymentStatus
	if input.Status != "" {
		var ok bool
		if target, ok = model.ParsePaymentStatus(input.Status); !ok {
			return nil, newError(KindInvalidTransition, "Invalid payment status %q.", input.Status)
		}
	}

	current, err := s.paymentRepo.GetByPaymentNo(ctx, nil, paymentNo)
	if err != nil {
		return nil, paymentErr(err)
	}

	var previous model.PaymentStatus
	err = s.guard.WithAccountLock(ctx, current.AccountID, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			payment, err := s.paymentRepo.GetByPaymentNoForUpdate(ctx, tx, paymentNo)
			if err != nil {
				return err
			}

			previous = payment.Status
			next := target
			if next == "" {
				next = previous
			}
			if !previous.CanTransitionTo(next) {
				return newError(KindInvalidTransition, "Cannot move a %s payment to %s.", previous, next)
			}

			payment.Status = next
			if input.TransactionReference != nil {
				payment.TransactionReference = strings.TrimSpace(*input.TransactionReference)
			}
			if input.Notes != nil {
				payment.Notes = strings.TrimSpace(*input.Notes)
			}
			if err := s.paymentRepo.UpdateReconciliation(ctx, tx, payment); err != nil {
				return fmt.Errorf("update payment request: %w", err)
			}

			now := s.now()
			if next == model.PaymentStatusConfirmed && previous != model.PaymentStatusConfirmed {
				if err := s.applyConfirmedPlan(ctx, tx, payment, now); err != nil {
					return err
				}
			}
			if next != previous {
				event := newPaymentEvent(payment, previous, now)
				if err := s.outboxRepo.Enqueue(ctx, tx, s.topics.PaymentEvents, model.EventPaymentStatusChanged, payment.PaymentNo, event); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, paymentErr(err)
	}

	payment, err := s.paymentRepo.GetByPaymentNo(ctx, nil, paymentNo)
	if err != nil {
		return nil, paymentErr(err)
	}
	owner, err := s.accountRepo.GetByID(ctx, nil, payment.AccountID)
	if err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, fmt.Errorf("load payment owner: %w", err)
	}

	logger.Log.Info().
		Str("payment_no", paymentNo).
		Str("from", string(previous)).
		Str("status", string(payment.Status)).
		Msg("payment request updated")

	view := s.buildView(payment, owner)
	return &view, nil
}

// applyConfirmedPlan moves the owner onto the paid plan without charging points.
func (s *PaymentService) applyConfirmedPlan(ctx context.Context, tx *gorm.DB, payment *model.PaymentRequest, now time.Time) error {
	plan, err := s.catalog.Plan(payment.PlanID)
	if err != nil {
		return err
	}

	account, err := s.accountRepo.GetByIDForUpdate(ctx, tx, payment.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			logger.Log.Warn().Str("payment_no", payment.PaymentNo).Int64("account_id", payment.AccountID).
				Msg("confirmed payment has no owner, plan not applied")
			return nil
		}
		return err
	}

	from := account.PlanID
	account.ApplyPlan(plan, now)
	if err := s.accountRepo.Save(ctx, tx, account); err != nil {
		return fmt.Errorf("apply paid plan: %w", err)
	}

	event := PlanChangedEvent{
		AccountID:  account.ID,
		FromPlan:   from,
		ToPlan:     plan.ID,
		Source:     PlanChangeSourcePayment,
		PaymentNo:  payment.PaymentNo,
		OccurredAt: now,
	}
	return s.outboxRepo.Enqueue(ctx, tx, s.topics.AccountEvents, model.EventAccountPlanChanged, accountEventKey(account.ID), event)
}

func (s *PaymentService) buildView(p *model.PaymentRequest, owner *model.Account) PaymentView {
	view := PaymentView{
		PaymentNo:            p.PaymentNo,
		Plan:                 s.catalog.PlanOrDefault(p.PlanID),
		CurrencyID:           p.CurrencyID,
		AmountUSD:            p.AmountUSD,
		PayoutAddress:        p.PayoutAddress,
		Status:               p.Status,
		TransactionReference: p.TransactionReference,
		Notes:                p.Notes,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
	if owner != nil {
		profile := buildProfile(s.catalog, owner)
		view.User = &profile
	}
	return view
}

func paymentErr(err error) error {
	if errors.Is(err, repository.ErrPaymentNotFound) {
		return newError(KindNotFound, "Payment not found.")
	}
	return err
}

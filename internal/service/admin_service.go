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
	"ethpoint/pkg/logger"

	"gorm.io/gorm"
)

// AccountDetail is the admin view of an account.
type AccountDetail struct {
	Profile
	QuotaRemaining       int64     `json:"quota_remaining"`
	QuotaWindowStartedAt time.Time `json:"quota_window_started_at"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// AccountPatch is an admin edit. Nil fields are left unchanged; negative numbers are clamped to 0.
type AccountPatch struct {
	PlanID         *string
	Balance        *int64
	QuotaRemaining *int64
	CashBalance    *int64
	Role           *string
}

type AdminService struct {
	db              *gorm.DB
	guard           lock.Guard
	catalog         *Catalog
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
	topics          config.KafkaTopicConfig
	pageLimit       int
	now             func() time.Time
}

func NewAdminService(db *gorm.DB, guard lock.Guard, catalog *Catalog, cfg *config.Config) *AdminService {
	return &AdminService{
		db:              db,
		guard:           guard,
		catalog:         catalog,
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
		topics:          cfg.Kafka.Topic,
		pageLimit:       cfg.Business.AdminPageLimit,
		now:             time.Now,
	}
}

// ListAccounts matches search as a case-insensitive substring of the username.
func (s *AdminService) ListAccounts(ctx context.Context, search string, page, pageSize int) ([]AccountDetail, int64, error) {
	page, pageSize = normalizePage(page, pageSize, s.pageLimit)
	accounts, total, err := s.accountRepo.List(ctx, search, page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}

	details := make([]AccountDetail, 0, len(accounts))
	for _, a := range accounts {
		details = append(details, s.buildDetail(a))
	}
	return details, total, nil
}

func (s *AdminService) GetAccount(ctx context.Context, accountID int64) (*AccountDetail, error) {
	account, err := s.accountRepo.GetByID(ctx, nil, accountID)
	if err != nil {
		return nil, adminAccountErr(err)
	}
	detail := s.buildDetail(account)
	return &detail, nil
}

// UpdateAccount applies patch. A plan change restarts the quota window with the plan's
// full quota, like a confirmed payment; an explicit quota is then clamped to that plan.
func (s *AdminService) UpdateAccount(ctx context.Context, accountID int64, patch AccountPatch) (*AccountDetail, error) {
	var plan *model.Plan
	if patch.PlanID != nil && strings.TrimSpace(*patch.PlanID) != "" {
		p, err := s.catalog.Plan(strings.TrimSpace(*patch.PlanID))
		if err != nil {
			return nil, err
		}
		plan = &p
	}
	if patch.Role != nil && !model.ValidRole(*patch.Role) {
		return nil, newError(KindValidation, "Role must be %s or %s.", model.RoleStandard, model.RoleAdmin)
	}

	var detail AccountDetail
	err := lockedAccountTx(ctx, s.db, s.guard, s.accountRepo, accountID, func(tx *gorm.DB, account *model.Account) error {
		now := s.now()
		from := account.PlanID
		before := account.PointsBalance

		if plan != nil {
			account.ApplyPlan(*plan, now)
		}
		if patch.Balance != nil {
			account.PointsBalance = max(0, *patch.Balance)
		}
		if patch.QuotaRemaining != nil {
			account.QuotaRemaining = clamp(*patch.QuotaRemaining, 0, s.catalog.PlanOrDefault(account.PlanID).MaxQuota)
		}
		if patch.CashBalance != nil {
			account.CashBalance = max(0, *patch.CashBalance)
		}
		if patch.Role != nil {
			account.Role = *patch.Role
		}

		if err := s.accountRepo.Save(ctx, tx, account); err != nil {
			return fmt.Errorf("save account: %w", err)
		}
		if err := recordPoints(ctx, s.transactionRepo, tx, account.ID, before, account.PointsBalance, model.TransactionTypeAdminAdjust, "admin adjustment"); err != nil {
			return err
		}
		if plan != nil && plan.ID != from {
			event := PlanChangedEvent{
				AccountID:  account.ID,
				FromPlan:   from,
				ToPlan:     plan.ID,
				Source:     PlanChangeSourceAdmin,
				OccurredAt: now,
			}
			if err := s.outboxRepo.Enqueue(ctx, tx, s.topics.AccountEvents, model.EventAccountPlanChanged, accountEventKey(account.ID), event); err != nil {
				return err
			}
		}

		detail = s.buildDetail(account)
		return nil
	})
	if err != nil {
		return nil, adminAccountErr(err)
	}

	logger.Log.Info().Int64("account_id", accountID).Msg("account updated by admin")
	return &detail, nil
}

// Transactions returns any account's points history.
func (s *AdminService) Transactions(ctx context.Context, accountID int64, page, pageSize int) ([]*model.PointsTransaction, int64, error) {
	if _, err := s.accountRepo.GetByID(ctx, nil, accountID); err != nil {
		return nil, 0, adminAccountErr(err)
	}
	page, pageSize = normalizePage(page, pageSize, s.pageLimit)
	return s.transactionRepo.ListByAccountID(ctx, accountID, page, pageSize)
}

func (s *AdminService) buildDetail(account *model.Account) AccountDetail {
	return AccountDetail{
		Profile:              buildProfile(s.catalog, account),
		QuotaRemaining:       account.QuotaRemaining,
		QuotaWindowStartedAt: account.QuotaWindowStartedAt,
		CreatedAt:            account.CreatedAt,
		UpdatedAt:            account.UpdatedAt,
	}
}

func adminAccountErr(err error) error {
	if errors.Is(err, repository.ErrAccountNotFound) {
		return newError(KindNotFound, "User not found.")
	}
	return err
}

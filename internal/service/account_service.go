package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"ethpoint/internal/config"
	"ethpoint/internal/infrastructure/lock"
	"ethpoint/internal/model"
	"ethpoint/internal/repository"
	"ethpoint/pkg/logger"

	"gorm.io/gorm"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 32
	minPasswordLen = 6
)

// Profile is the public view of an account.
type Profile struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Plan        model.Plan `json:"plan"`
	Balance     int64      `json:"balance"`
	CashBalance int64      `json:"cash_balance"`
	Role        string     `json:"role"`
}

// AccountState is the tap screen of an account. Awarded is only set by Tap.
type AccountState struct {
	Balance        int64      `json:"balance"`
	QuotaRemaining int64      `json:"quota_remaining"`
	QuotaMax       int64      `json:"quota_max"`
	ResetInMs      int64      `json:"reset_in_ms"`
	Awarded        int64      `json:"awarded"`
	Plan           model.Plan `json:"plan"`
	CashBalance    int64      `json:"cash_balance"`
}

type AccountView struct {
	User  Profile      `json:"user"`
	State AccountState `json:"state"`
}

type AccountService struct {
	db              *gorm.DB
	guard           lock.Guard
	catalog         *Catalog
	hasher          *Hasher
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
	resetDelay      time.Duration
	topics          config.KafkaTopicConfig
	pageLimit       int
	now             func() time.Time
}

func NewAccountService(db *gorm.DB, guard lock.Guard, catalog *Catalog, hasher *Hasher, cfg *config.Config) *AccountService {
	return &AccountService{
		db:              db,
		guard:           guard,
		catalog:         catalog,
		hasher:          hasher,
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
		resetDelay:      cfg.Quota.ResetDelay,
		topics:          cfg.Kafka.Topic,
		pageLimit:       cfg.Business.AdminPageLimit,
		now:             time.Now,
	}
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// validateUsername checks the length of a normalized username in characters.
func validateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < minUsernameLen {
		return newError(KindValidation, "Username must be at least %d characters.", minUsernameLen)
	}
	if n > maxUsernameLen {
		return newError(KindValidation, "Username must be at most %d characters.", maxUsernameLen)
	}
	return nil
}

func (s *AccountService) Register(ctx context.Context, username, password string) (*model.Account, error) {
	username = normalizeUsername(username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(password) < minPasswordLen {
		return nil, newError(KindValidation, "Password must be at least %d characters.", minPasswordLen)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	plan := s.catalog.DefaultPlan()
	account := &model.Account{
		Username:     username,
		PasswordHash: hash,
		Role:         model.RoleStandard,
	}
	account.ApplyPlan(plan, s.now())

	if err := s.accountRepo.Create(ctx, nil, account); err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			return nil, newError(KindConflict, "Username already exists.")
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	logger.Log.Info().Int64("account_id", account.ID).Str("username", username).Msg("account registered")
	return account, nil
}

// Authenticate fails with the same AuthError for an unknown username and a wrong password.
func (s *AccountService) Authenticate(ctx context.Context, username, password string) (*model.Account, error) {
	username = normalizeUsername(username)
	if username == "" || password == "" {
		return nil, newError(KindValidation, "Username and password are required.")
	}

	account, err := s.accountRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			s.hasher.burn(password)
			return nil, newError(KindAuth, "Invalid credentials.")
		}
		return nil, fmt.Errorf("find account: %w", err)
	}

	ok, err := s.hasher.Verify(account.PasswordHash, password)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, newError(KindAuth, "Invalid credentials.")
	}
	return account, nil
}

// GetAccount loads an account for an authenticated caller.
func (s *AccountService) GetAccount(ctx context.Context, accountID int64) (*model.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, nil, accountID)
	if err != nil {
		return nil, callerAccountErr(err)
	}
	return account, nil
}

// RefreshQuotaWindow restarts the account's quota window once the reset delay has
// passed since it started and returns the time left until the next reset.
func (s *AccountService) RefreshQuotaWindow(ctx context.Context, accountID int64, now time.Time) (time.Duration, error) {
	var resetIn time.Duration
	err := s.withAccount(ctx, accountID, func(tx *gorm.DB, account *model.Account) error {
		var err error
		resetIn, err = s.refresh(ctx, tx, account, now)
		return err
	})
	return resetIn, err
}

// State refreshes the quota window and returns the tap screen.
func (s *AccountService) State(ctx context.Context, accountID int64) (*AccountState, error) {
	var state AccountState
	err := s.withAccount(ctx, accountID, func(tx *gorm.DB, account *model.Account) error {
		resetIn, err := s.refresh(ctx, tx, account, s.now())
		if err != nil {
			return err
		}
		state = s.buildState(account, resetIn, 0)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Tap consumes up to requested taps from the quota and credits the reward.
// Requests that are non-positive or exceed the quota are clamped, never rejected.
func (s *AccountService) Tap(ctx context.Context, accountID int64, requested int64) (*AccountState, error) {
	var state AccountState
	err := s.withAccount(ctx, accountID, func(tx *gorm.DB, account *model.Account) error {
		now := s.now()
		resetIn, err := s.refresh(ctx, tx, account, now)
		if err != nil {
			return err
		}

		taps := clamp(requested, 0, account.QuotaRemaining)
		if taps == 0 {
			state = s.buildState(account, resetIn, 0)
			return nil
		}

		plan := s.catalog.PlanOrDefault(account.PlanID)
		awarded := plan.Reward(taps)
		before := account.PointsBalance
		account.PointsBalance += awarded
		account.QuotaRemaining -= taps
		if account.QuotaRemaining <= 0 {
			// the wait starts when the quota runs out
			account.QuotaRemaining = 0
			account.QuotaWindowStartedAt = now
			resetIn = s.resetDelay
		}

		if err := s.accountRepo.Save(ctx, tx, account); err != nil {
			return fmt.Errorf("save account: %w", err)
		}
		remark := fmt.Sprintf("tap x%d on %s", taps, plan.ID)
		if err := recordPoints(ctx, s.transactionRepo, tx, account.ID, before, account.PointsBalance, model.TransactionTypeTap, remark); err != nil {
			return err
		}

		state = s.buildState(account, resetIn, awarded)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// UpgradePlan moves the account to planID, paying the plan's points cost.
func (s *AccountService) UpgradePlan(ctx context.Context, accountID int64, planID string) (*AccountView, error) {
	plan, err := s.catalog.Plan(planID)
	if err != nil {
		return nil, err
	}

	var view AccountView
	err = s.withAccount(ctx, accountID, func(tx *gorm.DB, account *model.Account) error {
		if account.PlanID == plan.ID {
			return newError(KindNoOp, "You are already on this plan.")
		}
		if plan.UpgradeCostPoints > account.PointsBalance {
			return newError(KindInsufficientFunds, "Not enough balance to upgrade.")
		}

		now := s.now()
		from := account.PlanID
		before := account.PointsBalance
		account.PointsBalance -= plan.UpgradeCostPoints
		account.ApplyPlan(plan, now)

		if err := s.accountRepo.Save(ctx, tx, account); err != nil {
			return fmt.Errorf("save account: %w", err)
		}
		remark := fmt.Sprintf("upgrade %s -> %s", from, plan.ID)
		if err := recordPoints(ctx, s.transactionRepo, tx, account.ID, before, account.PointsBalance, model.TransactionTypeUpgrade, remark); err != nil {
			return err
		}
		event := PlanChangedEvent{
			AccountID:  account.ID,
			FromPlan:   from,
			ToPlan:     plan.ID,
			Source:     PlanChangeSourcePoints,
			OccurredAt: now,
		}
		if err := s.outboxRepo.Enqueue(ctx, tx, s.topics.AccountEvents, model.EventAccountPlanChanged, accountEventKey(account.ID), event); err != nil {
			return err
		}

		view = s.buildView(account, s.resetDelay)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info().Int64("account_id", accountID).Str("plan", plan.ID).Msg("plan upgraded with points")
	return &view, nil
}

// CashOut moves amount points into the cash balance.
func (s *AccountService) CashOut(ctx context.Context, accountID int64, amount int64) (*AccountView, error) {
	if amount <= 0 {
		return nil, newError(KindInvalidAmount, "Enter a valid amount to cash out.")
	}

	var view AccountView
	err := s.withAccount(ctx, accountID, func(tx *gorm.DB, account *model.Account) error {
		if amount > account.PointsBalance {
			return newError(KindInsufficientFunds, "Insufficient balance for cash out.")
		}

		now := s.now()
		before := account.PointsBalance
		account.PointsBalance -= amount
		account.CashBalance += amount

		if err := s.accountRepo.Save(ctx, tx, account); err != nil {
			return fmt.Errorf("save account: %w", err)
		}
		if err := recordPoints(ctx, s.transactionRepo, tx, account.ID, before, account.PointsBalance, model.TransactionTypeCashOut, "cash out"); err != nil {
			return err
		}
		event := CashedOutEvent{
			AccountID:     account.ID,
			Amount:        amount,
			PointsBalance: account.PointsBalance,
			CashBalance:   account.CashBalance,
			OccurredAt:    now,
		}
		if err := s.outboxRepo.Enqueue(ctx, tx, s.topics.AccountEvents, model.EventAccountCashedOut, accountEventKey(account.ID), event); err != nil {
			return err
		}

		view = s.Describe(account)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// Transactions returns the account's points history, newest first.
func (s *AccountService) Transactions(ctx context.Context, accountID int64, page, pageSize int) ([]*model.PointsTransaction, int64, error) {
	page, pageSize = normalizePage(page, pageSize, s.pageLimit)
	return s.transactionRepo.ListByAccountID(ctx, accountID, page, pageSize)
}

// Profile builds the public view of an account.
func (s *AccountService) Profile(account *model.Account) Profile {
	return buildProfile(s.catalog, account)
}

// Describe returns the profile and state of account as of now without persisting
// a window reset.
func (s *AccountService) Describe(account *model.Account) AccountView {
	plan := s.catalog.PlanOrDefault(account.PlanID)
	window, resetIn, _ := ResolveQuota(
		QuotaWindow{Remaining: account.QuotaRemaining, StartedAt: account.QuotaWindowStartedAt},
		plan.MaxQuota, s.now(), s.resetDelay,
	)
	view := *account
	view.QuotaRemaining = window.Remaining
	return s.buildView(&view, resetIn)
}

func (s *AccountService) withAccount(ctx context.Context, accountID int64, fn func(tx *gorm.DB, account *model.Account) error) error {
	err := lockedAccountTx(ctx, s.db, s.guard, s.accountRepo, accountID, fn)
	return callerAccountErr(err)
}

// refresh resolves the quota window of account and saves it when it changed.
func (s *AccountService) refresh(ctx context.Context, tx *gorm.DB, account *model.Account, now time.Time) (time.Duration, error) {
	plan := s.catalog.PlanOrDefault(account.PlanID)
	window, resetIn, reset := ResolveQuota(
		QuotaWindow{Remaining: account.QuotaRemaining, StartedAt: account.QuotaWindowStartedAt},
		plan.MaxQuota, now, s.resetDelay,
	)
	if !reset && window.Remaining == account.QuotaRemaining {
		return resetIn, nil
	}

	account.QuotaRemaining = window.Remaining
	account.QuotaWindowStartedAt = window.StartedAt
	if err := s.accountRepo.Save(ctx, tx, account); err != nil {
		return 0, fmt.Errorf("save quota window: %w", err)
	}
	return resetIn, nil
}

func (s *AccountService) buildState(account *model.Account, resetIn time.Duration, awarded int64) AccountState {
	plan := s.catalog.PlanOrDefault(account.PlanID)
	return AccountState{
		Balance:        account.PointsBalance,
		QuotaRemaining: clamp(account.QuotaRemaining, 0, plan.MaxQuota),
		QuotaMax:       plan.MaxQuota,
		ResetInMs:      resetIn.Milliseconds(),
		Awarded:        awarded,
		Plan:           plan,
		CashBalance:    account.CashBalance,
	}
}

func (s *AccountService) buildView(account *model.Account, resetIn time.Duration) AccountView {
	return AccountView{
		User:  buildProfile(s.catalog, account),
		State: s.buildState(account, resetIn, 0),
	}
}

func buildProfile(catalog *Catalog, account *model.Account) Profile {
	return Profile{
		ID:          account.ID,
		Username:    account.Username,
		Plan:        catalog.PlanOrDefault(account.PlanID),
		Balance:     account.PointsBalance,
		CashBalance: account.CashBalance,
		Role:        account.Role,
	}
}

// callerAccountErr reports a vanished account of an authenticated caller as an AuthError.
func callerAccountErr(err error) error {
	if errors.Is(err, repository.ErrAccountNotFound) {
		return newError(KindAuth, "User not found.")
	}
	return err
}

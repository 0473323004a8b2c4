package service

import (
	"context"
	"testing"
	"time"

	"ethpoint/internal/config"
	"ethpoint/internal/infrastructure/database"
	"ethpoint/internal/infrastructure/lock"
	"ethpoint/internal/model"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

type testEnv struct {
	db       *gorm.DB
	cfg      *config.Config
	catalog  *Catalog
	hasher   *Hasher
	clock    *fakeClock
	accounts *AccountService
	payments *PaymentService
	admin    *AdminService
}

var testAddresses = map[string]string{
	"usdt-bep20": "0xbep20",
	"usdc-erc20": "0xerc20",
}

func newTestConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{PaymentEvents: "payments", AccountEvents: "accounts"},
		},
		Quota:    config.QuotaConfig{ResetDelay: time.Hour},
		Business: config.BusinessConfig{AdminPageLimit: 100},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(&config.DatabaseConfig{Dialect: "sqlite", DSN: ":memory:", LogLevel: "silent"})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	catalog, err := NewCatalog(model.DefaultPlans(), model.DefaultPaymentMethods(), testAddresses)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	hasher, err := NewHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}

	cfg := newTestConfig()
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	env := &testEnv{
		db:       db,
		cfg:      cfg,
		catalog:  catalog,
		hasher:   hasher,
		clock:    clock,
		accounts: NewAccountService(db, lock.NopGuard{}, catalog, hasher, cfg),
		payments: NewPaymentService(db, lock.NopGuard{}, catalog, cfg),
		admin:    NewAdminService(db, lock.NopGuard{}, catalog, cfg),
	}
	env.accounts.now = clock.Now
	env.payments.now = clock.Now
	env.admin.now = clock.Now
	return env
}

func (e *testEnv) register(t *testing.T, username string) *model.Account {
	t.Helper()
	account, err := e.accounts.Register(context.Background(), username, "secret1")
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return account
}

func (e *testEnv) setPoints(t *testing.T, accountID, points int64) {
	t.Helper()
	err := e.db.Model(&model.Account{}).Where("id = ?", accountID).Update("points_balance", points).Error
	if err != nil {
		t.Fatalf("set points: %v", err)
	}
}

func (e *testEnv) load(t *testing.T, accountID int64) *model.Account {
	t.Helper()
	var account model.Account
	if err := e.db.First(&account, accountID).Error; err != nil {
		t.Fatalf("load account %d: %v", accountID, err)
	}
	return &account
}

func (e *testEnv) outboxEvents(t *testing.T, eventType string) []model.OutboxMessage {
	t.Helper()
	var messages []model.OutboxMessage
	if err := e.db.Where("event_type = ?", eventType).Order("id ASC").Find(&messages).Error; err != nil {
		t.Fatalf("load outbox: %v", err)
	}
	return messages
}

func (e *testEnv) ledger(t *testing.T, accountID int64) []model.PointsTransaction {
	t.Helper()
	var rows []model.PointsTransaction
	if err := e.db.Where("account_id = ?", accountID).Order("id ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	return rows
}

func assertKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := KindOf(err); got != want {
		t.Fatalf("expected %s error, got %s (%v)", want, got, err)
	}
}

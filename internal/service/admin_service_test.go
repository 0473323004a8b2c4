package service

import (
	"context"
	"testing"
	"time"

	"ethpoint/internal/config"
	"ethpoint/internal/model"
	"ethpoint/internal/repository"
)

func int64Ptr(v int64) *int64 {
	return &v
}

func TestListAccountsSearch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "alpha_one")
	env.register(t, "beta")
	env.register(t, "alphabet")

	list, total, err := env.admin.ListAccounts(ctx, "ALPHA", 1, 0)
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if total != 2 || len(list) != 2 {
		t.Fatalf("expected 2 matches, got %d", total)
	}
	if list[0].Username != "alphabet" {
		t.Errorf("expected newest first, got %s", list[0].Username)
	}

	// underscore is matched literally
	list, total, err = env.admin.ListAccounts(ctx, "a_o", 1, 10)
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if total != 1 || list[0].Username != "alpha_one" {
		t.Errorf("expected alpha_one only, got %+v", list)
	}

	_, total, err = env.admin.ListAccounts(ctx, "", 1, 10)
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if total != 3 {
		t.Errorf("expected 3 accounts, got %d", total)
	}
}

func TestGetAccount(t *testing.T) {
	env := newTestEnv(t)
	account := env.register(t, "yvonne")

	detail, err := env.admin.GetAccount(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if detail.Username != "yvonne" || detail.QuotaRemaining != 1000 || detail.Plan.ID != model.PlanFree {
		t.Errorf("unexpected detail %+v", detail)
	}

	_, err = env.admin.GetAccount(context.Background(), 404)
	assertKind(t, err, KindNotFound)
}

func TestUpdateAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.register(t, "zara")

	env.clock.Advance(time.Minute)
	detail, err := env.admin.UpdateAccount(ctx, account.ID, AccountPatch{
		PlanID:         strPtr(model.PlanSilver),
		Balance:        int64Ptr(750),
		QuotaRemaining: int64Ptr(99999),
		CashBalance:    int64Ptr(-20),
		Role:           strPtr(model.RoleAdmin),
	})
	if err != nil {
		t.Fatalf("UpdateAccount failed: %v", err)
	}
	if detail.Plan.ID != model.PlanSilver || detail.Balance != 750 || detail.CashBalance != 0 || detail.Role != model.RoleAdmin {
		t.Errorf("unexpected detail %+v", detail)
	}
	if detail.QuotaRemaining != 2500 {
		t.Errorf("expected quota clamped to silver max, got %d", detail.QuotaRemaining)
	}

	rows := env.ledger(t, account.ID)
	if len(rows) != 1 || rows[0].Type != model.TransactionTypeAdminAdjust || rows[0].Amount != 750 {
		t.Errorf("unexpected ledger %+v", rows)
	}
	if events := env.outboxEvents(t, model.EventAccountPlanChanged); len(events) != 1 {
		t.Errorf("expected plan_changed event, got %d", len(events))
	}

	detail, err = env.admin.UpdateAccount(ctx, account.ID, AccountPatch{Balance: int64Ptr(-5)})
	if err != nil {
		t.Fatalf("UpdateAccount failed: %v", err)
	}
	if detail.Balance != 0 {
		t.Errorf("expected negative balance clamped to 0, got %d", detail.Balance)
	}
}

func TestUpdateAccountFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.register(t, "amber")

	_, err := env.admin.UpdateAccount(ctx, account.ID, AccountPatch{PlanID: strPtr("diamond")})
	assertKind(t, err, KindInvalidPlan)

	_, err = env.admin.UpdateAccount(ctx, account.ID, AccountPatch{Role: strPtr("root")})
	assertKind(t, err, KindValidation)

	_, err = env.admin.UpdateAccount(ctx, 404, AccountPatch{Balance: int64Ptr(1)})
	assertKind(t, err, KindNotFound)

	_, _, err = env.admin.Transactions(ctx, 404, 1, 10)
	assertKind(t, err, KindNotFound)
}

func TestEnsureDefaultAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	repo := repository.NewAccountRepository(env.db)

	if err := EnsureDefaultAdmin(ctx, repo, env.hasher, env.catalog, config.AdminConfig{}); err != nil {
		t.Fatalf("EnsureDefaultAdmin without credentials failed: %v", err)
	}
	var count int64
	env.db.Model(&model.Account{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no admin without credentials, got %d accounts", count)
	}

	cfg := config.AdminConfig{Username: "Root", Password: "rootpass"}
	if err := EnsureDefaultAdmin(ctx, repo, env.hasher, env.catalog, cfg); err != nil {
		t.Fatalf("EnsureDefaultAdmin failed: %v", err)
	}
	admin, err := env.accounts.Authenticate(ctx, "root", "rootpass")
	if err != nil {
		t.Fatalf("expected admin to log in: %v", err)
	}
	if !admin.IsAdmin() || admin.PlanID != model.PlanFree || admin.QuotaRemaining != 1000 {
		t.Errorf("unexpected admin %+v", admin)
	}

	if err := EnsureDefaultAdmin(ctx, repo, env.hasher, env.catalog, cfg); err != nil {
		t.Fatalf("second EnsureDefaultAdmin failed: %v", err)
	}
	env.db.Model(&model.Account{}).Count(&count)
	if count != 1 {
		t.Errorf("expected a single admin, got %d accounts", count)
	}
}

func TestEnsureDefaultAdminPromotesExisting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	repo := repository.NewAccountRepository(env.db)
	env.register(t, "boss")

	cfg := config.AdminConfig{Username: "boss", Password: "new-password"}
	if err := EnsureDefaultAdmin(ctx, repo, env.hasher, env.catalog, cfg); err != nil {
		t.Fatalf("EnsureDefaultAdmin failed: %v", err)
	}

	if _, err := env.accounts.Authenticate(ctx, "boss", "secret1"); !IsKind(err, KindAuth) {
		t.Errorf("expected old password to be replaced, got %v", err)
	}
	admin, err := env.accounts.Authenticate(ctx, "boss", "new-password")
	if err != nil {
		t.Fatalf("expected new password to work: %v", err)
	}
	if !admin.IsAdmin() {
		t.Errorf("expected promotion to admin, got role %s", admin.Role)
	}
}

func TestEnsureDefaultAdminRejectsInvalidUsername(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	repo := repository.NewAccountRepository(env.db)

	for _, username := range []string{"ab", "abcdefghijklmnopqrstuvwxyz0123456"} {
		cfg := config.AdminConfig{Username: username, Password: "rootpass"}
		err := EnsureDefaultAdmin(ctx, repo, env.hasher, env.catalog, cfg)
		if !IsKind(err, KindValidation) {
			t.Errorf("username %q: expected validation error, got %v", username, err)
		}
	}

	var count int64
	env.db.Model(&model.Account{}).Count(&count)
	if count != 0 {
		t.Errorf("expected no account to be created, got %d", count)
	}
}

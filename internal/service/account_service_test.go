package service

import (
	"context"
	"testing"
	"time"

	"ethpoint/internal/model"
)

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	account, err := env.accounts.Register(ctx, "  Alice ", "secret1")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if account.Username != "alice" {
		t.Errorf("expected normalized username, got %q", account.Username)
	}
	if account.PlanID != model.PlanFree || account.QuotaRemaining != 1000 || account.PointsBalance != 0 {
		t.Errorf("unexpected new account %+v", account)
	}
	if account.Role != model.RoleStandard {
		t.Errorf("expected standard role, got %s", account.Role)
	}
	if account.PasswordHash == "secret1" {
		t.Error("password stored in clear text")
	}

	_, err = env.accounts.Register(ctx, "ALICE", "another1")
	assertKind(t, err, KindConflict)

	_, err = env.accounts.Register(ctx, "ab", "secret1")
	assertKind(t, err, KindValidation)

	_, err = env.accounts.Register(ctx, "abcdefghijklmnopqrstuvwxyz0123456", "secret1")
	assertKind(t, err, KindValidation)

	_, err = env.accounts.Register(ctx, "bob", "12345")
	assertKind(t, err, KindValidation)
}

func TestRegisterCountsCharacters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// two characters, three bytes
	_, err := env.accounts.Register(ctx, "éa", "secret1")
	assertKind(t, err, KindValidation)

	// twenty characters, forty bytes
	account, err := env.accounts.Register(ctx, "пользовательпользова", "secret1")
	if err != nil {
		t.Fatalf("Register failed for a 20 character name: %v", err)
	}
	if account.Username != "пользовательпользова" {
		t.Errorf("unexpected username %q", account.Username)
	}
}

func TestAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.register(t, "carol")

	account, err := env.accounts.Authenticate(ctx, "CAROL", "secret1")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if account.ID != created.ID {
		t.Errorf("expected account %d, got %d", created.ID, account.ID)
	}

	_, wrongPassword := env.accounts.Authenticate(ctx, "carol", "wrong-password")
	assertKind(t, wrongPassword, KindAuth)

	_, unknownUser := env.accounts.Authenticate(ctx, "nobody", "secret1")
	assertKind(t, unknownUser, KindAuth)

	if wrongPassword.Error() != unknownUser.Error() {
		t.Errorf("expected identical messages, got %q and %q", wrongPassword, unknownUser)
	}

	_, err = env.accounts.Authenticate(ctx, "", "")
	assertKind(t, err, KindValidation)
}

func TestTapFirstTapOnFreePlan(t *testing.T) {
	env := newTestEnv(t)
	account := env.register(t, "dave")

	state, err := env.accounts.Tap(context.Background(), account.ID, 1)
	if err != nil {
		t.Fatalf("Tap failed: %v", err)
	}
	if state.Awarded != 1 || state.QuotaRemaining != 999 || state.Balance != 1 {
		t.Errorf("unexpected state %+v", state)
	}
	if state.QuotaMax != 1000 {
		t.Errorf("expected quota max 1000, got %d", state.QuotaMax)
	}

	rows := env.ledger(t, account.ID)
	if len(rows) != 1 || rows[0].Type != model.TransactionTypeTap || rows[0].Amount != 1 || rows[0].BalanceAfter != 1 {
		t.Errorf("unexpected ledger %+v", rows)
	}
}

func TestTapAppliesMultiplier(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.register(t, "erin")
	env.setPoints(t, account.ID, 5000)

	if _, err := env.accounts.UpgradePlan(ctx, account.ID, model.PlanSilver); err != nil {
		t.Fatalf("UpgradePlan failed: %v", err)
	}

	state, err := env.accounts.Tap(ctx, account.ID, 2)
	if err != nil {
		t.Fatalf("Tap failed: %v", err)
	}
	// 2 x 1.25 = 2.5 rounds half up
	if state.Awarded != 3 || state.Balance != 3 || state.QuotaRemaining != 2498 {
		t.Errorf("unexpected state %+v", state)
	}
}

func TestTapIgnoresInvalidRequests(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.register(t, "frank")

	for _, requested := range []int64{0, -10} {
		state, err := env.accounts.Tap(ctx, account.ID, requested)
		if err != nil {
			t.Fatalf("Tap(%d) failed: %v", requested, err)
		}
		if state.Awarded != 0 || state.Balance != 0 || state.QuotaRemaining != 1000 {
			t.Errorf("Tap(%d): unexpected state %+v", requested, state)
		}
	}
	if rows := env.ledger(t, account.ID); len(rows) != 0 {
		t.Errorf("expected no ledger rows, got %d", len(rows))
	}
}

func TestTapExhaustionRestartsWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.register(t, "grace")

	env.clock.Advance(40 * time.Minute)
	state, err := env.accounts.Tap(ctx, account.ID, 5000)
	if err != nil {
		t.Fatalf("Tap failed: %v", err)
	}
	if state.Awarded != 1000 || state.QuotaRemaining != 0 || state.Balance != 1000 {
		t.Errorf("unexpected state after exhausting quota %+v", state)
	}
	if state.ResetInMs != time.Hour.Milliseconds() {
		t.Errorf("expected full delay after exhaustion, got %dms", state.ResetInMs)
	}
	if stored := env.load(t, account.ID); !stored.QuotaWindowStartedAt.Equal(env.clock.Now()) {
		t.Errorf("expected window to restart at exhaustion, got %s", stored.QuotaWindowStartedAt)
	}

	// the window started at registration would have ended 20 minutes from now
	env.clock.Advance(59 * time.Minute)
	state, err = env.accounts.State(ctx, account.ID)
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if state.QuotaRemaining != 0 {
		t.Errorf("expected quota to stay exhausted, got %d", state.QuotaRemaining)
	}

	state, err = env.accounts.Tap(ctx, account.ID, 3)
	if err != nil {
		t.Fatalf("Tap failed: %v", err)
	}
	if state.Awarded != 0 || state.Balance != 1000 {
		t.Errorf("expected no award with exhausted quota, got %+v", state)
	}

	env.clock.Advance(time.Minute)
	resetIn, err := env.accounts.RefreshQuotaWindow(ctx, account.ID, env.clock.Now())
	if err != nil {
		t.Fatalf("RefreshQuotaWindow failed: %v", err)
	}
	if resetIn != time.Hour {
		t.Errorf("expected full delay after reset, got %s", resetIn)
	}
	stored := env.load(t, account.ID)
	if stored.QuotaRemaining != 1000 || !stored.QuotaWindowStartedAt.Equal(env.clock.Now()) {
		t.Errorf("expected refreshed window, got %+v", stored)
	}
}

func TestStateReportsTimeUntilReset(t *testing.T) {
	env := newTestEnv(t)
	account := env.register(t, "heidi")

	env.clock.Advance(15 * time.Minute)
	state, err := env.accounts.State(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if state.ResetInMs != (45 * time.Minute).Milliseconds() {
		t.Errorf("expected 45m until reset, got %dms", state.ResetInMs)
	}
	if state.Plan.ID != model.PlanFree {
		t.Errorf("expected free plan, got %s", state.Plan.ID)
	}
}

func TestStateUnknownAccount(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.accounts.State(context.Background(), 999)
	assertKind(t, err, KindAuth)
}

func TestUpgradePlanWithPoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.register(t, "ivan")
	env.setPoints(t, account.ID, 5000)

	view, err := env.accounts.UpgradePlan(ctx, account.ID, model.PlanSilver)
	if err != nil {
		t.Fatalf("UpgradePlan failed: %v", err)
	}
	if view.User.Balance != 0 || view.User.Plan.ID != model.PlanSilver || view.State.QuotaRemaining != 2500 {
		t.Errorf("unexpected view %+v", view)
	}

	stored := env.load(t, account.ID)
	if stored.PointsBalance != 0 || stored.PlanID != model.PlanSilver || stored.QuotaRemaining != 2500 {
		t.Errorf("unexpected stored account %+v", stored)
	}
	if !stored.QuotaWindowStartedAt.Equal(env.clock.Now()) {
		t.Errorf("expected window restart at upgrade")
	}

	rows := env.ledger(t, account.ID)
	if len(rows) != 1 || rows[0].Type != model.TransactionTypeUpgrade || rows[0].Amount != -5000 {
		t.Errorf("unexpected ledger %+v", rows)
	}
	if events := env.outboxEvents(t, model.EventAccountPlanChanged); len(events) != 1 || events[0].Topic != "accounts" {
		t.Errorf("expected one plan_changed event, got %+v", events)
	}
}

func TestUpgradePlanFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.register(t, "judy")
	env.setPoints(t, account.ID, 100)

	_, err := env.accounts.UpgradePlan(ctx, account.ID, model.PlanGold)
	assertKind(t, err, KindInsufficientFunds)

	_, err = env.accounts.UpgradePlan(ctx, account.ID, model.PlanFree)
	assertKind(t, err, KindNoOp)

	_, err = env.accounts.UpgradePlan(ctx, account.ID, "diamond")
	assertKind(t, err, KindInvalidPlan)

	stored := env.load(t, account.ID)
	if stored.PointsBalance != 100 || stored.PlanID != model.PlanFree || stored.QuotaRemaining != 1000 {
		t.Errorf("expected no state change, got %+v", stored)
	}
	if rows := env.ledger(t, account.ID); len(rows) != 0 {
		t.Errorf("expected no ledger rows, got %d", len(rows))
	}
}

func TestCashOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.register(t, "mallory")
	env.setPoints(t, account.ID, 300)

	view, err := env.accounts.CashOut(ctx, account.ID, 120)
	if err != nil {
		t.Fatalf("CashOut failed: %v", err)
	}
	if view.User.Balance != 180 || view.User.CashBalance != 120 || view.State.CashBalance != 120 {
		t.Errorf("unexpected view %+v", view)
	}

	_, err = env.accounts.CashOut(ctx, account.ID, 0)
	assertKind(t, err, KindInvalidAmount)

	_, err = env.accounts.CashOut(ctx, account.ID, -5)
	assertKind(t, err, KindInvalidAmount)

	_, err = env.accounts.CashOut(ctx, account.ID, 181)
	assertKind(t, err, KindInsufficientFunds)

	stored := env.load(t, account.ID)
	if stored.PointsBalance != 180 || stored.CashBalance != 120 {
		t.Errorf("unexpected stored balances %+v", stored)
	}
	if events := env.outboxEvents(t, model.EventAccountCashedOut); len(events) != 1 {
		t.Errorf("expected one cashed_out event, got %d", len(events))
	}
}

func TestTransactionsNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.register(t, "niaj")

	for i := 0; i < 3; i++ {
		if _, err := env.accounts.Tap(ctx, account.ID, 1); err != nil {
			t.Fatalf("Tap failed: %v", err)
		}
	}

	rows, total, err := env.accounts.Transactions(ctx, account.ID, 1, 2)
	if err != nil {
		t.Fatalf("Transactions failed: %v", err)
	}
	if total != 3 || len(rows) != 2 {
		t.Fatalf("expected 2 of 3 rows, got %d of %d", len(rows), total)
	}
	if rows[0].BalanceAfter != 3 || rows[1].BalanceAfter != 2 {
		t.Errorf("expected newest first, got %d then %d", rows[0].BalanceAfter, rows[1].BalanceAfter)
	}
}

func TestDescribeDoesNotPersist(t *testing.T) {
	env := newTestEnv(t)
	account := env.register(t, "olivia")
	if _, err := env.accounts.Tap(context.Background(), account.ID, 1000); err != nil {
		t.Fatalf("Tap failed: %v", err)
	}

	env.clock.Advance(2 * time.Hour)
	stored := env.load(t, account.ID)
	view := env.accounts.Describe(stored)
	if view.State.QuotaRemaining != 1000 {
		t.Errorf("expected resolved quota 1000, got %d", view.State.QuotaRemaining)
	}
	if env.load(t, account.ID).QuotaRemaining != 0 {
		t.Error("expected Describe to leave the stored quota untouched")
	}
}

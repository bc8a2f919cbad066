package account_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"casino-core/internal/model"
	"casino-core/internal/service/account"
	"casino-core/internal/service/ledger"
	appErr "casino-core/pkg/errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const welcomeBonus = 10

func newTestService(t *testing.T) (*gorm.DB, *account.Service) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&model.Account{}, &model.LedgerEntry{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if err := ledger.NewService(db).EnsureHouseAccount(context.Background()); err != nil {
		t.Fatalf("failed to seed house account: %v", err)
	}
	return db, account.NewService(db, welcomeBonus)
}

func TestEnsureCreatesAccountWithWelcomeBonus(t *testing.T) {
	db, svc := newTestService(t)

	acct, err := svc.Ensure(context.Background(), 100, "alice", "Alice", nil)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if acct.Balance != welcomeBonus || !acct.WelcomeCredited {
		t.Fatalf("expected welcome bonus credited: %+v", acct)
	}

	var entry model.LedgerEntry
	err = db.Where("reason = ? AND correlation_id = ?", model.ReasonWelcomeBonus, "welcome:100").
		Where("account_id = ?", 100).First(&entry).Error
	if err != nil || entry.Amount != welcomeBonus {
		t.Fatalf("expected welcome entry: %+v err=%v", entry, err)
	}

	// The bonus comes out of the house bankroll.
	var house model.Account
	if err := db.First(&house, ledger.HouseAccountID).Error; err != nil {
		t.Fatalf("failed to load house: %v", err)
	}
	if house.Balance != -welcomeBonus {
		t.Fatalf("expected house balance %d, got %d", -welcomeBonus, house.Balance)
	}
}

func TestWelcomeBonusCreditedOnce(t *testing.T) {
	db, svc := newTestService(t)

	for i := 0; i < 3; i++ {
		if _, err := svc.Ensure(context.Background(), 100, "alice", "Alice", nil); err != nil {
			t.Fatalf("ensure %d failed: %v", i, err)
		}
	}

	var acct model.Account
	if err := db.First(&acct, 100).Error; err != nil {
		t.Fatalf("failed to reload account: %v", err)
	}
	if acct.Balance != welcomeBonus {
		t.Fatalf("repeated onboarding double-credited: %d", acct.Balance)
	}
	var entries int64
	db.Model(&model.LedgerEntry{}).Where("reason = ?", model.ReasonWelcomeBonus).Count(&entries)
	if entries != 2 { // debit side on the house plus credit side on the user
		t.Fatalf("expected one welcome transfer (2 entries), got %d", entries)
	}
}

func TestEnsureBindsReferrerOnce(t *testing.T) {
	_, svc := newTestService(t)

	if _, err := svc.Ensure(context.Background(), 300, "ref", "Ref", nil); err != nil {
		t.Fatalf("referrer ensure failed: %v", err)
	}

	referrerID := int64(300)
	acct, err := svc.Ensure(context.Background(), 100, "alice", "Alice", &referrerID)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if acct.ReferrerID == nil || *acct.ReferrerID != 300 {
		t.Fatalf("expected referrer 300, got %v", acct.ReferrerID)
	}

	// A different referrer on a later contact is ignored.
	other := int64(400)
	if _, err := svc.Ensure(context.Background(), 400, "other", "Other", nil); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	acct, err = svc.Ensure(context.Background(), 100, "alice", "Alice", &other)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if acct.ReferrerID == nil || *acct.ReferrerID != 300 {
		t.Fatalf("referrer binding mutated: %v", acct.ReferrerID)
	}
}

func TestEnsureIgnoresSelfReferral(t *testing.T) {
	_, svc := newTestService(t)

	self := int64(100)
	acct, err := svc.Ensure(context.Background(), 100, "alice", "Alice", &self)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if acct.ReferrerID != nil {
		t.Fatalf("self-referral accepted: %v", acct.ReferrerID)
	}
}

func TestEnsureIgnoresUnknownReferrer(t *testing.T) {
	_, svc := newTestService(t)

	ghost := int64(999)
	acct, err := svc.Ensure(context.Background(), 100, "alice", "Alice", &ghost)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if acct.ReferrerID != nil {
		t.Fatalf("unknown referrer accepted: %v", acct.ReferrerID)
	}
}

func TestEnsureRefreshesNames(t *testing.T) {
	db, svc := newTestService(t)

	if _, err := svc.Ensure(context.Background(), 100, "alice", "Alice", nil); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if _, err := svc.Ensure(context.Background(), 100, "alice2", "Alicia", nil); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}

	var acct model.Account
	if err := db.First(&acct, 100).Error; err != nil {
		t.Fatalf("failed to reload account: %v", err)
	}
	if acct.Username != "alice2" || acct.FirstName != "Alicia" {
		t.Fatalf("names not refreshed: %+v", acct)
	}
}

func TestGetProfile(t *testing.T) {
	db, svc := newTestService(t)

	if _, err := svc.Ensure(context.Background(), 300, "ref", "Ref", nil); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	referrerID := int64(300)
	for _, id := range []int64{100, 200} {
		if _, err := svc.Ensure(context.Background(), id, fmt.Sprintf("u%d", id), "U", &referrerID); err != nil {
			t.Fatalf("ensure failed: %v", err)
		}
	}
	if err := db.Model(&model.Account{}).Where("id = ?", 300).
		Update("reserved", 5).Error; err != nil {
		t.Fatalf("failed to set reservation: %v", err)
	}

	profile, err := svc.GetProfile(context.Background(), 300)
	if err != nil {
		t.Fatalf("profile failed: %v", err)
	}
	if profile.InvitedCount != 2 {
		t.Fatalf("expected 2 invited, got %d", profile.InvitedCount)
	}
	if profile.Spendable != profile.Account.Balance-5 {
		t.Fatalf("unexpected spendable: %d", profile.Spendable)
	}
}

func TestGetProfileNotFound(t *testing.T) {
	_, svc := newTestService(t)

	if _, err := svc.GetProfile(context.Background(), 999); !errors.Is(err, appErr.ErrAccountNotFound) {
		t.Fatalf("expected account not found, got: %v", err)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	db, svc := newTestService(t)
	if _, err := svc.Ensure(context.Background(), 100, "alice", "Alice", nil); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}

	led := ledger.NewService(db)
	for i := 1; i <= 3; i++ {
		if _, err := led.Credit(context.Background(), 100, int64(i*100), model.ReasonDeposit, fmt.Sprintf("invoice:%d", i)); err != nil {
			t.Fatalf("credit failed: %v", err)
		}
	}

	entries, err := svc.History(context.Background(), 100, 2)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Amount != 300 || entries[1].Amount != 200 {
		t.Fatalf("expected newest first, got %d then %d", entries[0].Amount, entries[1].Amount)
	}
}

package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"casino-core/internal/model"
	"casino-core/internal/service/ledger"
	appErr "casino-core/pkg/errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&model.Account{}, &model.LedgerEntry{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (*gorm.DB, *ledger.Service) {
	t.Helper()

	db := newTestDB(t)
	svc := ledger.NewService(db)
	if err := svc.EnsureHouseAccount(context.Background()); err != nil {
		t.Fatalf("failed to seed house account: %v", err)
	}
	return db, svc
}

func createAccount(t *testing.T, db *gorm.DB, id, balance int64) *model.Account {
	t.Helper()

	acct := &model.Account{ID: id, Username: fmt.Sprintf("user%d", id), Balance: balance}
	if err := db.Create(acct).Error; err != nil {
		t.Fatalf("failed to insert account: %v", err)
	}
	return acct
}

func reload(t *testing.T, db *gorm.DB, id int64) *model.Account {
	t.Helper()

	var acct model.Account
	if err := db.First(&acct, id).Error; err != nil {
		t.Fatalf("failed to reload account %d: %v", id, err)
	}
	return &acct
}

func TestCreditAndDebit(t *testing.T) {
	db, svc := newTestService(t)
	createAccount(t, db, 100, 0)

	if _, err := svc.Credit(context.Background(), 100, 500, model.ReasonDeposit, "invoice:1"); err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if got := reload(t, db, 100).Balance; got != 500 {
		t.Fatalf("expected balance 500, got %d", got)
	}

	entry, err := svc.Debit(context.Background(), 100, 200, model.ReasonWithdrawal, "withdrawal:1")
	if err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	if entry.Amount != -200 || entry.BalanceAfter != 300 {
		t.Fatalf("unexpected entry: amount=%d balanceAfter=%d", entry.Amount, entry.BalanceAfter)
	}
	if got := reload(t, db, 100).Balance; got != 300 {
		t.Fatalf("expected balance 300, got %d", got)
	}
}

func TestDebitInsufficientFundsNoSideEffects(t *testing.T) {
	db, svc := newTestService(t)
	createAccount(t, db, 100, 50)

	_, err := svc.Debit(context.Background(), 100, 100, model.ReasonBetStake, "bet:1")
	if !errors.Is(err, appErr.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got: %v", err)
	}

	if got := reload(t, db, 100).Balance; got != 50 {
		t.Fatalf("balance mutated on failed debit: %d", got)
	}
	var count int64
	db.Model(&model.LedgerEntry{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no ledger entries, got %d", count)
	}
}

func TestDebitRejectsNonPositiveAmount(t *testing.T) {
	db, svc := newTestService(t)
	createAccount(t, db, 100, 500)

	for _, amount := range []int64{0, -10} {
		if _, err := svc.Debit(context.Background(), 100, amount, model.ReasonBetStake, "bet:1"); !errors.Is(err, appErr.ErrInvalidAmount) {
			t.Fatalf("amount %d: expected invalid amount, got: %v", amount, err)
		}
	}
}

func TestHouseMayGoNegative(t *testing.T) {
	db, _ := newTestService(t)
	createAccount(t, db, 100, 0)

	err := db.Transaction(func(tx *gorm.DB) error {
		return ledger.TransferTx(tx, ledger.HouseAccountID, 100, 1000, model.ReasonBetPayout, "bet:1")
	})
	if err != nil {
		t.Fatalf("house payout failed: %v", err)
	}

	if got := reload(t, db, ledger.HouseAccountID).Balance; got != -1000 {
		t.Fatalf("expected house balance -1000, got %d", got)
	}
	if got := reload(t, db, 100).Balance; got != 1000 {
		t.Fatalf("expected user balance 1000, got %d", got)
	}
}

func TestTransferConservation(t *testing.T) {
	db, svc := newTestService(t)
	createAccount(t, db, 100, 1000)
	createAccount(t, db, 200, 0)

	err := db.Transaction(func(tx *gorm.DB) error {
		return ledger.TransferTx(tx, 100, 200, 400, model.ReasonReferralCommission, "bet:7")
	})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	var sum int64
	db.Model(&model.LedgerEntry{}).Select("COALESCE(SUM(amount), 0)").Scan(&sum)
	if sum != 0 {
		t.Fatalf("internal transfer did not net to zero: %d", sum)
	}

	for _, id := range []int64{100, 200} {
		recomputed, err := svc.ReconcileBalance(context.Background(), id)
		if err != nil {
			t.Fatalf("reconcile failed: %v", err)
		}
		// Account 100 was seeded outside the ledger, so only the delta matches.
		acct := reload(t, db, id)
		var seeded int64
		if id == 100 {
			seeded = 1000
		}
		if acct.Balance != seeded+recomputed {
			t.Fatalf("account %d: balance %d, seeded %d + entries %d", id, acct.Balance, seeded, recomputed)
		}
	}
}

func TestReserveReleaseLifecycle(t *testing.T) {
	db, svc := newTestService(t)
	createAccount(t, db, 100, 1000)

	if err := svc.Reserve(context.Background(), 100, 600); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	acct := reload(t, db, 100)
	if acct.Balance != 1000 || acct.Reserved != 600 || acct.Spendable() != 400 {
		t.Fatalf("unexpected state after reserve: balance=%d reserved=%d", acct.Balance, acct.Reserved)
	}

	// Spendable is the cap now, not the balance.
	if err := svc.Reserve(context.Background(), 100, 500); !errors.Is(err, appErr.ErrInsufficientSpendable) {
		t.Fatalf("expected insufficient spendable, got: %v", err)
	}

	if err := svc.Release(context.Background(), 100, 600); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	acct = reload(t, db, 100)
	if acct.Reserved != 0 || acct.Spendable() != 1000 {
		t.Fatalf("unexpected state after release: reserved=%d", acct.Reserved)
	}
}

func TestReleaseExceedingReservation(t *testing.T) {
	db, svc := newTestService(t)
	createAccount(t, db, 100, 1000)

	if err := svc.Reserve(context.Background(), 100, 100); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := svc.Release(context.Background(), 100, 200); !errors.Is(err, appErr.ErrInvalidState) {
		t.Fatalf("expected invalid state, got: %v", err)
	}
}

func TestDebitReserved(t *testing.T) {
	db, svc := newTestService(t)
	createAccount(t, db, 100, 1000)

	if err := svc.Reserve(context.Background(), 100, 300); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := ledger.DebitReservedTx(tx, 100, 300, "withdrawal:1")
		return err
	})
	if err != nil {
		t.Fatalf("debit reserved failed: %v", err)
	}

	acct := reload(t, db, 100)
	if acct.Balance != 700 || acct.Reserved != 0 {
		t.Fatalf("unexpected state: balance=%d reserved=%d", acct.Balance, acct.Reserved)
	}

	var entry model.LedgerEntry
	if err := db.Where("reason = ?", model.ReasonWithdrawal).First(&entry).Error; err != nil {
		t.Fatalf("expected withdrawal entry: %v", err)
	}
	if entry.Amount != -300 || entry.BalanceAfter != 700 {
		t.Fatalf("unexpected entry: amount=%d balanceAfter=%d", entry.Amount, entry.BalanceAfter)
	}
}

func TestDebitReservedBeyondReservation(t *testing.T) {
	db, svc := newTestService(t)
	createAccount(t, db, 100, 1000)

	if err := svc.Reserve(context.Background(), 100, 100); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := ledger.DebitReservedTx(tx, 100, 200, "withdrawal:1")
		return err
	})
	if !errors.Is(err, appErr.ErrInvalidState) {
		t.Fatalf("expected invalid state, got: %v", err)
	}
	if got := reload(t, db, 100).Balance; got != 1000 {
		t.Fatalf("balance mutated on failed debit: %d", got)
	}
}

func TestEntryExists(t *testing.T) {
	db, svc := newTestService(t)
	createAccount(t, db, 100, 0)

	if _, err := svc.Credit(context.Background(), 100, 50, model.ReasonWelcomeBonus, "welcome:100"); err != nil {
		t.Fatalf("credit failed: %v", err)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		exists, err := ledger.EntryExists(tx, model.ReasonWelcomeBonus, "welcome:100")
		if err != nil {
			return err
		}
		if !exists {
			t.Fatalf("expected entry to exist")
		}
		exists, err = ledger.EntryExists(tx, model.ReasonWelcomeBonus, "welcome:200")
		if err != nil {
			return err
		}
		if exists {
			t.Fatalf("expected no entry for other correlation")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
}

func TestAccountNotFound(t *testing.T) {
	_, svc := newTestService(t)

	if _, err := svc.GetAccount(context.Background(), 999); !errors.Is(err, appErr.ErrAccountNotFound) {
		t.Fatalf("expected account not found, got: %v", err)
	}
	if _, err := svc.Debit(context.Background(), 999, 10, model.ReasonBetStake, "bet:1"); !errors.Is(err, appErr.ErrAccountNotFound) {
		t.Fatalf("expected account not found, got: %v", err)
	}
}

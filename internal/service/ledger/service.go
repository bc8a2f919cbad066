package ledger

import (
	"context"
	"fmt"
	"time"

	"casino-core/internal/model"
	appErr "casino-core/pkg/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// HouseAccountID is the platform bankroll account. Every internal money flow
// (stakes, payouts, commissions, bonuses) moves between a user account and
// the house, so internal operations net to zero across the whole ledger and
// the sum of balances only moves on deposits and withdrawals.
const HouseAccountID int64 = 1

// Service is the source of truth for balances. Every mutating operation is
// atomic per account: the account row is locked for the duration of the
// transaction, so operations on the same account serialize while independent
// accounts proceed concurrently.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// EnsureHouseAccount creates the bankroll account if missing. Called once on
// startup.
func (s *Service) EnsureHouseAccount(ctx context.Context) error {
	acct := model.Account{ID: HouseAccountID, Username: "house", WelcomeCredited: true}
	return s.db.WithContext(ctx).
		Where(model.Account{ID: HouseAccountID}).
		FirstOrCreate(&acct).Error
}

func (s *Service) Credit(ctx context.Context, accountID, amount int64, reason, correlation string) (*model.LedgerEntry, error) {
	var entry *model.LedgerEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := CreditTx(tx, accountID, amount, reason, correlation)
		entry = e
		return err
	})
	return entry, err
}

func (s *Service) Debit(ctx context.Context, accountID, amount int64, reason, correlation string) (*model.LedgerEntry, error) {
	var entry *model.LedgerEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := DebitTx(tx, accountID, amount, reason, correlation)
		entry = e
		return err
	})
	return entry, err
}

func (s *Service) Reserve(ctx context.Context, accountID, amount int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return ReserveTx(tx, accountID, amount)
	})
}

func (s *Service) Release(ctx context.Context, accountID, amount int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return ReleaseTx(tx, accountID, amount)
	})
}

// ReconcileBalance recomputes an account balance from its ledger entries.
// Auditing helper: the result must equal Account.Balance.
func (s *Service) ReconcileBalance(ctx context.Context, accountID int64) (int64, error) {
	var sum int64
	err := s.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("account_id = ?", accountID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}

func (s *Service) GetAccount(ctx context.Context, accountID int64) (*model.Account, error) {
	var acct model.Account
	if err := s.db.WithContext(ctx).First(&acct, accountID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, appErr.ErrAccountNotFound
		}
		return nil, err
	}
	return &acct, nil
}

// LockAccount loads the account row under a FOR UPDATE lock so concurrent
// mutations on the same account serialize. SQLite (tests) has a single
// writer already, so the clause is skipped there.
func LockAccount(tx *gorm.DB, accountID int64) (*model.Account, error) {
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var acct model.Account
	if err := q.First(&acct, accountID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, appErr.ErrAccountNotFound
		}
		return nil, err
	}
	return &acct, nil
}

// CreditTx adds amount to the account balance inside an existing transaction.
func CreditTx(tx *gorm.DB, accountID, amount int64, reason, correlation string) (*model.LedgerEntry, error) {
	if amount <= 0 {
		return nil, appErr.ErrInvalidAmount
	}
	acct, err := LockAccount(tx, accountID)
	if err != nil {
		return nil, err
	}
	acct.Balance += amount
	return applyEntry(tx, acct, amount, reason, correlation)
}

// DebitTx removes amount from the spendable balance. Fails without side
// effects when spendable funds are insufficient. The house account may go
// negative: the bankroll absorbs payout variance.
func DebitTx(tx *gorm.DB, accountID, amount int64, reason, correlation string) (*model.LedgerEntry, error) {
	if amount <= 0 {
		return nil, appErr.ErrInvalidAmount
	}
	acct, err := LockAccount(tx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.ID != HouseAccountID && amount > acct.Spendable() {
		return nil, appErr.ErrInsufficientFunds
	}
	acct.Balance -= amount
	return applyEntry(tx, acct, -amount, reason, correlation)
}

// TransferTx moves amount between two accounts, writing one entry per side
// under the same reason and correlation id. The pair always nets to zero.
func TransferTx(tx *gorm.DB, fromID, toID, amount int64, reason, correlation string) error {
	if fromID == toID {
		return fmt.Errorf("%w: transfer to self", appErr.ErrInvalidAmount)
	}
	if _, err := DebitTx(tx, fromID, amount, reason, correlation); err != nil {
		return err
	}
	_, err := CreditTx(tx, toID, amount, reason, correlation)
	return err
}

// ReserveTx earmarks amount for a pending withdrawal. Reserved funds stay on
// the balance but are no longer spendable. No ledger entry is written: the
// balance itself does not move.
func ReserveTx(tx *gorm.DB, accountID, amount int64) error {
	if amount <= 0 {
		return appErr.ErrInvalidAmount
	}
	acct, err := LockAccount(tx, accountID)
	if err != nil {
		return err
	}
	if amount > acct.Spendable() {
		return appErr.ErrInsufficientSpendable
	}
	acct.Reserved += amount
	acct.UpdatedAt = time.Now()
	return tx.Save(acct).Error
}

// ReleaseTx returns a reservation to the spendable balance.
func ReleaseTx(tx *gorm.DB, accountID, amount int64) error {
	if amount <= 0 {
		return appErr.ErrInvalidAmount
	}
	acct, err := LockAccount(tx, accountID)
	if err != nil {
		return err
	}
	if amount > acct.Reserved {
		return fmt.Errorf("%w: release exceeds reservation", appErr.ErrInvalidState)
	}
	acct.Reserved -= amount
	acct.UpdatedAt = time.Now()
	return tx.Save(acct).Error
}

// DebitReservedTx converts a reservation into a permanent debit. Used when a
// withdrawal is approved: both balance and reservation shrink together.
func DebitReservedTx(tx *gorm.DB, accountID, amount int64, correlation string) (*model.LedgerEntry, error) {
	if amount <= 0 {
		return nil, appErr.ErrInvalidAmount
	}
	acct, err := LockAccount(tx, accountID)
	if err != nil {
		return nil, err
	}
	if amount > acct.Reserved {
		return nil, fmt.Errorf("%w: debit exceeds reservation", appErr.ErrInvalidState)
	}
	acct.Balance -= amount
	acct.Reserved -= amount
	return applyEntry(tx, acct, -amount, model.ReasonWithdrawal, correlation)
}

// EntryExists reports whether an entry with the given reason and correlation
// id is already recorded. Idempotency guard for retried resolutions and
// duplicate invoice poll detections.
func EntryExists(tx *gorm.DB, reason, correlation string) (bool, error) {
	var count int64
	err := tx.Model(&model.LedgerEntry{}).
		Where("reason = ? AND correlation_id = ?", reason, correlation).
		Count(&count).Error
	return count > 0, err
}

func applyEntry(tx *gorm.DB, acct *model.Account, amount int64, reason, correlation string) (*model.LedgerEntry, error) {
	acct.UpdatedAt = time.Now()
	if err := tx.Save(acct).Error; err != nil {
		return nil, err
	}
	entry := &model.LedgerEntry{
		AccountID:     acct.ID,
		Amount:        amount,
		Reason:        reason,
		CorrelationID: correlation,
		BalanceAfter:  acct.Balance,
		CreatedAt:     time.Now(),
	}
	if err := tx.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

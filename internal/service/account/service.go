package account

import (
	"context"
	"fmt"

	"casino-core/internal/model"
	"casino-core/internal/service/ledger"
	appErr "casino-core/pkg/errors"

	"gorm.io/gorm"
)

// Service handles account onboarding and profile reads. Accounts are created
// on first contact; the welcome bonus and the referral binding each happen at
// most once.
type Service struct {
	db           *gorm.DB
	welcomeBonus int64
}

func NewService(db *gorm.DB, welcomeBonus int64) *Service {
	return &Service{db: db, welcomeBonus: welcomeBonus}
}

// Ensure upserts the account for an external user id. On the very first
// contact it credits the welcome bonus and binds the referrer when one is
// given. The binding is immutable: a referrer passed on later calls is
// ignored. Self-referral and unknown referrers are ignored too.
func (s *Service) Ensure(ctx context.Context, id int64, username, firstName string, referrerID *int64) (*model.Account, error) {
	var acct model.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&acct, id).Error
		if err != nil && err != gorm.ErrRecordNotFound {
			return err
		}

		if err == gorm.ErrRecordNotFound {
			acct = model.Account{ID: id, Username: username, FirstName: firstName}
			if ref := s.validReferrer(tx, id, referrerID); ref != nil {
				acct.ReferrerID = ref
			}
			if err := tx.Create(&acct).Error; err != nil {
				return err
			}
			return s.creditWelcomeTx(tx, &acct)
		}

		if acct.Username != username || acct.FirstName != firstName {
			acct.Username = username
			acct.FirstName = firstName
			if err := tx.Save(&acct).Error; err != nil {
				return err
			}
		}
		if !acct.WelcomeCredited {
			return s.creditWelcomeTx(tx, &acct)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// creditWelcomeTx pays the one-time signup bonus from the house account.
// Idempotent: the ledger entry keyed on the account id is the guard, so a
// retried onboarding cannot double-credit.
func (s *Service) creditWelcomeTx(tx *gorm.DB, acct *model.Account) error {
	if s.welcomeBonus <= 0 {
		return nil
	}

	correlation := fmt.Sprintf("welcome:%d", acct.ID)
	exists, err := ledger.EntryExists(tx, model.ReasonWelcomeBonus, correlation)
	if err != nil {
		return err
	}
	if !exists {
		if err := ledger.TransferTx(tx, ledger.HouseAccountID, acct.ID, s.welcomeBonus, model.ReasonWelcomeBonus, correlation); err != nil {
			return err
		}
		acct.Balance += s.welcomeBonus
	}
	acct.WelcomeCredited = true
	return tx.Model(acct).Update("welcome_credited", true).Error
}

func (s *Service) validReferrer(tx *gorm.DB, id int64, referrerID *int64) *int64 {
	if referrerID == nil || *referrerID == id {
		return nil
	}
	var count int64
	if err := tx.Model(&model.Account{}).Where("id = ?", *referrerID).Count(&count).Error; err != nil || count == 0 {
		return nil
	}
	return referrerID
}

type Profile struct {
	Account      *model.Account `json:"account"`
	Spendable    int64          `json:"spendable"`
	InvitedCount int64          `json:"invitedCount"`
}

// GetProfile returns the account with derived figures for the wallet view.
func (s *Service) GetProfile(ctx context.Context, id int64) (*Profile, error) {
	var acct model.Account
	if err := s.db.WithContext(ctx).First(&acct, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, appErr.ErrAccountNotFound
		}
		return nil, err
	}

	var invited int64
	if err := s.db.WithContext(ctx).Model(&model.Account{}).
		Where("referrer_id = ?", id).Count(&invited).Error; err != nil {
		return nil, err
	}

	return &Profile{Account: &acct, Spendable: acct.Spendable(), InvitedCount: invited}, nil
}

// History returns the most recent ledger entries for an account.
func (s *Service) History(ctx context.Context, id int64, limit int) ([]model.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var entries []model.LedgerEntry
	err := s.db.WithContext(ctx).
		Where("account_id = ?", id).
		Order("id DESC").Limit(limit).
		Find(&entries).Error
	return entries, err
}

package referral

import (
	"fmt"

	"casino-core/internal/model"
	"casino-core/internal/service/ledger"

	"gorm.io/gorm"
)

// Service pays the referrer a fixed share of a referred user's losing
// stakes. Commission is one hop only and flows referrer-ward.
type Service struct {
	rateBP int64
}

// NewService takes the commission rate as a fraction (0.10 = 10%).
func NewService(rate float64) *Service {
	return &Service{rateBP: int64(rate * 10000)}
}

// CommissionOnLossTx credits the bettor's referrer inside the caller's
// transaction, so a bet can never resolve as lost without its commission
// side effect committing with it. Idempotent by bet id: a retried resolution
// finds the existing entry and does nothing. Returns the credited amount.
func (s *Service) CommissionOnLossTx(tx *gorm.DB, bet *model.Bet) (int64, error) {
	if s.rateBP <= 0 {
		return 0, nil
	}

	var acct model.Account
	if err := tx.First(&acct, bet.AccountID).Error; err != nil {
		return 0, err
	}
	if acct.ReferrerID == nil {
		return 0, nil
	}

	amount := bet.Stake * s.rateBP / 10000
	if amount <= 0 {
		return 0, nil
	}

	correlation := fmt.Sprintf("bet:%d", bet.ID)
	exists, err := ledger.EntryExists(tx, model.ReasonReferralCommission, correlation)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, nil
	}

	if err := ledger.TransferTx(tx, ledger.HouseAccountID, *acct.ReferrerID, amount, model.ReasonReferralCommission, correlation); err != nil {
		return 0, err
	}
	if err := tx.Model(&model.Account{}).
		Where("id = ?", *acct.ReferrerID).
		UpdateColumn("referral_earnings", gorm.Expr("referral_earnings + ?", amount)).Error; err != nil {
		return 0, err
	}
	return amount, nil
}

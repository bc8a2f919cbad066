package admin

import (
	"context"
	"fmt"
	"time"

	"casino-core/internal/model"
	"casino-core/internal/service/ledger"
	"casino-core/pkg/auth"
	appErr "casino-core/pkg/errors"
	"casino-core/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Service covers the operator surface: login, manual credits and platform
// stats.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// EnsureDefaultAdmin seeds the configured operator account on first boot.
func (s *Service) EnsureDefaultAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Admin{}).
		Where("username = ?", username).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := &model.Admin{
		Username:     username,
		PasswordHash: string(hash),
		Status:       "active",
	}
	if err := s.db.WithContext(ctx).Create(admin).Error; err != nil {
		return err
	}
	logger.Log.Info("default admin created", zap.String("username", username))
	return nil
}

// Login verifies credentials and issues an admin-scoped token.
func (s *Service) Login(ctx context.Context, username, password string) (string, *model.Admin, error) {
	var admin model.Admin
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&admin).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", nil, appErr.ErrAdminNotFound
		}
		return "", nil, err
	}
	if admin.Status != "active" {
		return "", nil, appErr.ErrAdminDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return "", nil, appErr.ErrInvalidAdminPassword
	}

	token, err := auth.GenerateAdminToken(admin.ID)
	if err != nil {
		return "", nil, err
	}

	now := time.Now()
	admin.LastLoginAt = &now
	if err := s.db.WithContext(ctx).Model(&admin).Update("last_login_at", now).Error; err != nil {
		logger.Log.Warn("failed to record admin login time", zap.Error(err))
	}
	return token, &admin, nil
}

// Credit grants funds to an account from the house bankroll. Each grant gets
// a fresh correlation id; repeated grants of the same amount are distinct
// ledger entries.
func (s *Service) Credit(ctx context.Context, adminID, accountID, amount int64) (*model.Account, error) {
	if amount <= 0 {
		return nil, appErr.ErrInvalidAmount
	}

	correlation := fmt.Sprintf("give:%s", uuid.NewString())
	var acct *model.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ledger.TransferTx(tx, ledger.HouseAccountID, accountID, amount, model.ReasonAdminCredit, correlation); err != nil {
			return err
		}
		var a model.Account
		if err := tx.First(&a, accountID).Error; err != nil {
			return err
		}
		acct = &a
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("admin credit",
		zap.Int64("adminID", adminID),
		zap.Int64("accountID", accountID),
		zap.Int64("amount", amount))
	return acct, nil
}

// Stats is the operator dashboard snapshot.
type Stats struct {
	Accounts       int64 `json:"accounts"`
	BetsTotal      int64 `json:"betsTotal"`
	WagerTotal     int64 `json:"wagerTotal"`
	PayoutTotal    int64 `json:"payoutTotal"`
	HouseBalance   int64 `json:"houseBalance"`
	PendingPayouts int64 `json:"pendingPayouts"`
}

func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	db := s.db.WithContext(ctx)

	if err := db.Model(&model.Account{}).
		Where("id <> ?", ledger.HouseAccountID).
		Count(&st.Accounts).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Bet{}).Count(&st.BetsTotal).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Bet{}).
		Select("COALESCE(SUM(stake), 0)").Scan(&st.WagerTotal).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Bet{}).
		Where("status = ?", model.BetStatusWon).
		Select("COALESCE(SUM(payout), 0)").Scan(&st.PayoutTotal).Error; err != nil {
		return nil, err
	}

	var house model.Account
	if err := db.First(&house, ledger.HouseAccountID).Error; err != nil {
		return nil, err
	}
	st.HouseBalance = house.Balance

	if err := db.Model(&model.WithdrawalRequest{}).
		Where("status = ?", model.WithdrawalStatusPending).
		Count(&st.PendingPayouts).Error; err != nil {
		return nil, err
	}
	return st, nil
}

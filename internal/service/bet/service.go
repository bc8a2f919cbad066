package bet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"casino-core/internal/model"
	"casino-core/internal/service/games"
	"casino-core/internal/service/ledger"
	"casino-core/internal/service/referral"
	appErr "casino-core/pkg/errors"
	"casino-core/pkg/logger"
	"casino-core/pkg/utils/random"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Config is the money/tuning snapshot the service works from. Edges are
// fractions of stake the house expects to keep.
type Config struct {
	Edges         map[games.Game]float64
	MinStake      int64
	MaxStake      int64
	BetsPerMinute int
}

// Service places and settles instant-game bets and runs mines sessions.
// Crash bets are owned by the crash engine.
type Service struct {
	db       *gorm.DB
	rdb      *redis.Client
	referral *referral.Service
	src      random.Source
	cfg      Config
}

func NewService(db *gorm.DB, rdb *redis.Client, ref *referral.Service, cfg Config) *Service {
	return &Service{db: db, rdb: rdb, referral: ref, src: random.NewSource(), cfg: cfg}
}

type Result struct {
	BetID          int64                  `json:"betId"`
	Game           games.Game             `json:"game"`
	Stake          int64                  `json:"stake"`
	Won            bool                   `json:"won"`
	MultiplierX100 int64                  `json:"multiplierX100"`
	Payout         int64                  `json:"payout"`
	Balance        int64                  `json:"balance"`
	Details        map[string]interface{} `json:"details,omitempty"`
}

// Place runs one instant bet end to end: the stake debit, the bet record,
// the outcome draw and the settlement (payout or referral commission) commit
// in a single transaction. Either everything applies or nothing does.
func (s *Service) Place(ctx context.Context, accountID int64, game games.Game, stake int64, p games.Params) (*Result, error) {
	if err := s.ValidateStake(stake); err != nil {
		return nil, err
	}
	if err := s.checkRateLimit(ctx, accountID); err != nil {
		return nil, err
	}

	edgeBP := s.edgeBP(game)
	var result *Result

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := s.OpenTx(tx, accountID, game, stake, edgeBP, nil)
		if err != nil {
			return err
		}

		out, err := games.Resolve(game, p, edgeBP, s.src)
		if err != nil {
			return err
		}

		if out.Won {
			if err := s.SettleWinTx(tx, b, out.MultiplierX100); err != nil {
				return err
			}
		} else {
			if err := s.SettleLossTx(tx, b); err != nil {
				return err
			}
		}
		if out.Details != nil {
			b.DetailsJSON = mustJSON(out.Details)
			if err := tx.Save(b).Error; err != nil {
				return err
			}
		}

		result = &Result{
			BetID:          b.ID,
			Game:           game,
			Stake:          stake,
			Won:            out.Won,
			MultiplierX100: b.MultiplierX100,
			Payout:         b.Payout,
			Details:        out.Details,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.fillBalance(ctx, accountID, result)
	return result, nil
}

// OpenTx debits the stake and records the pending bet. The debit fails
// without side effects on insufficient spendable funds.
func (s *Service) OpenTx(tx *gorm.DB, accountID int64, game games.Game, stake, edgeBP int64, roundID *int64) (*model.Bet, error) {
	b := &model.Bet{
		AccountID: accountID,
		Game:      string(game),
		Stake:     stake,
		EdgeBP:    edgeBP,
		Status:    model.BetStatusPending,
		RoundID:   roundID,
		CreatedAt: time.Now(),
	}
	if err := tx.Create(b).Error; err != nil {
		return nil, err
	}

	correlation := fmt.Sprintf("bet:%d", b.ID)
	if err := ledger.TransferTx(tx, accountID, ledger.HouseAccountID, stake, model.ReasonBetStake, correlation); err != nil {
		return nil, err
	}

	if err := tx.Model(&model.Account{}).Where("id = ?", accountID).
		UpdateColumns(map[string]interface{}{
			"total_bets":  gorm.Expr("total_bets + 1"),
			"total_wager": gorm.Expr("total_wager + ?", stake),
		}).Error; err != nil {
		return nil, err
	}
	return b, nil
}

// SettleWinTx resolves a pending bet as won and pays out. A bet resolves
// exactly once: the guard is the stored status, flipped by a conditional
// update, so a retry after a rolled-back transaction still applies while a
// retry after a committed one gets ErrDuplicateEffect.
func (s *Service) SettleWinTx(tx *gorm.DB, b *model.Bet, multX100 int64) error {
	now := time.Now()
	payout := b.Stake * multX100 / 100

	res := tx.Model(&model.Bet{ID: b.ID}).
		Where("status = ?", model.BetStatusPending).
		Updates(model.Bet{
			Status:         model.BetStatusWon,
			MultiplierX100: multX100,
			Payout:         payout,
			ResolvedAt:     &now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return appErr.ErrDuplicateEffect
	}

	if payout > 0 {
		correlation := fmt.Sprintf("bet:%d", b.ID)
		if err := ledger.TransferTx(tx, ledger.HouseAccountID, b.AccountID, payout, model.ReasonBetPayout, correlation); err != nil {
			return err
		}
	}

	b.Status = model.BetStatusWon
	b.MultiplierX100 = multX100
	b.Payout = payout
	b.ResolvedAt = &now
	return nil
}

// SettleLossTx resolves a pending bet as lost; the referral commission, if
// any, commits in the same transaction. Exactly-once is guarded by the
// stored status, as in SettleWinTx.
func (s *Service) SettleLossTx(tx *gorm.DB, b *model.Bet) error {
	now := time.Now()

	res := tx.Model(&model.Bet{ID: b.ID}).
		Where("status = ?", model.BetStatusPending).
		Updates(model.Bet{
			Status:     model.BetStatusLost,
			ResolvedAt: &now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return appErr.ErrDuplicateEffect
	}

	if _, err := s.referral.CommissionOnLossTx(tx, b); err != nil {
		return err
	}

	b.Status = model.BetStatusLost
	b.Payout = 0
	b.ResolvedAt = &now
	return nil
}

func (s *Service) ValidateStake(stake int64) error {
	if stake < s.cfg.MinStake || stake > s.cfg.MaxStake {
		return appErr.ErrInvalidStake
	}
	return nil
}

// checkRateLimit caps bets per account per minute. Redis is optional: absent
// (tests, degraded mode) the limit is not enforced.
func (s *Service) checkRateLimit(ctx context.Context, accountID int64) error {
	if s.rdb == nil || s.cfg.BetsPerMinute <= 0 {
		return nil
	}
	key := fmt.Sprintf("bets:rate:%d", accountID)
	count, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		logger.Log.Warn("bet rate limit check failed", zap.Error(err))
		return nil
	}
	if count == 1 {
		s.rdb.Expire(ctx, key, time.Minute)
	}
	if count > int64(s.cfg.BetsPerMinute) {
		return appErr.ErrRateLimited
	}
	return nil
}

func (s *Service) edgeBP(game games.Game) int64 {
	return int64(s.cfg.Edges[game] * 10000)
}

func (s *Service) fillBalance(ctx context.Context, accountID int64, r *Result) {
	var acct model.Account
	if err := s.db.WithContext(ctx).First(&acct, accountID).Error; err == nil {
		r.Balance = acct.Balance
	}
}

func mustJSON(v interface{}) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(raw)
}

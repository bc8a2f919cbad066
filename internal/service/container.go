package service

import (
	"context"
	"time"

	"casino-core/internal/config"
	"casino-core/internal/service/account"
	"casino-core/internal/service/admin"
	"casino-core/internal/service/bet"
	"casino-core/internal/service/crash"
	"casino-core/internal/service/games"
	"casino-core/internal/service/ledger"
	"casino-core/internal/service/payment"
	"casino-core/internal/service/referral"
	"casino-core/internal/service/withdraw"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	Ledger   *ledger.Service
	Account  *account.Service
	Referral *referral.Service
	Bet      *bet.Service
	Crash    *crash.Engine
	Withdraw *withdraw.Service
	Payment  *payment.Service
	Admin    *admin.Service
}

func NewContainer(db *gorm.DB, rdb *redis.Client) *Container {
	cfg := config.GlobalConfig

	ref := referral.NewService(cfg.Casino.ReferralRate)
	bets := bet.NewService(db, rdb, ref, bet.Config{
		Edges: map[games.Game]float64{
			games.Dice:       cfg.Casino.HouseEdgeDice,
			games.Football:   cfg.Casino.HouseEdgeFootball,
			games.Basketball: cfg.Casino.HouseEdgeBasketball,
			games.Slots:      cfg.Casino.HouseEdgeSlots,
			games.Mines:      cfg.Casino.HouseEdgeMines,
			games.Roulette:   cfg.Casino.HouseEdgeRoulette,
			games.Crash:      cfg.Crash.HouseEdge,
		},
		MinStake:      cfg.Casino.MinStake,
		MaxStake:      cfg.Casino.MaxStake,
		BetsPerMinute: cfg.Casino.BetsPerMinute,
	})

	engine := crash.NewEngine(db, rdb, bets, crash.Config{
		EdgeBP:        int64(cfg.Crash.HouseEdge * 10000),
		BettingWindow: time.Duration(cfg.Crash.BettingWindowMS) * time.Millisecond,
		TickInterval:  time.Duration(cfg.Crash.TickIntervalMS) * time.Millisecond,
		Cooldown:      time.Duration(cfg.Crash.CooldownMS) * time.Millisecond,
		GrowthRate:    cfg.Crash.GrowthRate,
		MaxX100:       cfg.Crash.MaxMultiplier,
		HistorySize:   cfg.Crash.HistorySize,
	})

	var gateway payment.Gateway
	if cfg.Payment.APIBase != "" && cfg.Payment.APIToken != "" {
		gateway = payment.NewClient(cfg.Payment.APIBase, cfg.Payment.APIToken, cfg.Payment.Asset)
	}
	pay := payment.NewService(db, gateway, time.Duration(cfg.Payment.PollIntervalSec)*time.Second)

	var transfer withdraw.Transfer
	if gateway != nil {
		transfer = gateway
	}

	return &Container{
		Ledger:   ledger.NewService(db),
		Account:  account.NewService(db, cfg.Casino.WelcomeBonus),
		Referral: ref,
		Bet:      bets,
		Crash:    engine,
		Withdraw: withdraw.NewService(db, transfer),
		Payment:  pay,
		Admin:    admin.NewService(db),
	}
}

// Start seeds the house and admin accounts, launches the crash controller and
// the invoice watcher. Background loops stop when ctx ends.
func (c *Container) Start(ctx context.Context) error {
	if err := c.Ledger.EnsureHouseAccount(ctx); err != nil {
		return err
	}
	seed := config.GlobalConfig.Admin
	if err := c.Admin.EnsureDefaultAdmin(ctx, seed.DefaultUsername, seed.DefaultPassword); err != nil {
		return err
	}
	c.Crash.Start(ctx)
	go c.Payment.Watch(ctx)
	return nil
}
